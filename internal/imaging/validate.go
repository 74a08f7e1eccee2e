package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decode support for validation
	_ "image/png"  // decode support for validation
)

// MIME types this pipeline knows how to hand to a backend.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEHEIC = "image/heic"
	MIMEHEIF = "image/heif"
)

// Validate rejects bytes that are empty, over the size cap, or not a
// recognized image format. JPEG and PNG additionally get a DecodeConfig
// pass; WebP and HEIC have no stdlib decoder, so the magic bytes decide.
func Validate(raw []byte, maxBytes int64) error {
	if len(raw) == 0 {
		return errors.New("image data is empty")
	}
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return fmt.Errorf("image size %d exceeds limit %d", len(raw), maxBytes)
	}

	switch SniffMIME(raw) {
	case MIMEJPEG, MIMEPNG:
		if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("invalid image data: %w", err)
		}
		return nil
	case MIMEWebP, MIMEHEIC, MIMEHEIF:
		return nil
	default:
		return errors.New("unsupported image format")
	}
}

// SniffMIME identifies the image format from magic bytes. Unknown content
// maps to application/octet-stream.
func SniffMIME(raw []byte) string {
	switch {
	case len(raw) >= 3 && raw[0] == 0xFF && raw[1] == 0xD8 && raw[2] == 0xFF:
		return MIMEJPEG
	case len(raw) >= 8 && bytes.Equal(raw[:8], []byte("\x89PNG\r\n\x1a\n")):
		return MIMEPNG
	case len(raw) >= 12 && bytes.Equal(raw[0:4], []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WEBP")):
		return MIMEWebP
	case isHEIF(raw):
		if brand := heifBrand(raw); brand == "heif" || brand == "mif1" {
			return MIMEHEIF
		}
		return MIMEHEIC
	default:
		return "application/octet-stream"
	}
}

// isHEIF checks for an ISO BMFF ftyp box with a HEIF-family brand.
func isHEIF(raw []byte) bool {
	if len(raw) < 12 || !bytes.Equal(raw[4:8], []byte("ftyp")) {
		return false
	}
	switch heifBrand(raw) {
	case "heic", "heix", "hevc", "hevx", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func heifBrand(raw []byte) string {
	if len(raw) < 12 {
		return ""
	}
	return string(raw[8:12])
}
