package llm

import (
	"encoding/base64"

	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

// ShouldAttachImage applies the inline-payload gates and, when they pass,
// returns the image as a data URL. HEIC/HEIF payloads are never attached:
// chat providers reject them, and by this point the pipeline has already
// tried converting to PNG.
func ShouldAttachImage(img *imaging.Image, maxBytes int64) (bool, string) {
	if img == nil || len(img.Bytes) == 0 {
		return false, ""
	}
	if maxBytes > 0 && int64(len(img.Bytes)) > maxBytes {
		return false, ""
	}

	mt := img.MIME
	if mt == "" {
		mt = imaging.SniffMIME(img.Bytes)
	}
	switch mt {
	case imaging.MIMEJPEG, imaging.MIMEPNG, imaging.MIMEWebP:
	default:
		return false, ""
	}

	return true, "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes)
}
