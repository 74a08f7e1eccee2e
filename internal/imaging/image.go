package imaging

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
)

// Image is a validated screenshot ready for a backend: raw bytes, sniffed
// MIME type, content hash, and the reference it came from.
type Image struct {
	Bytes  []byte
	MIME   string
	SHA256 string
	Ref    string
}

// Acquirer resolves opaque image references: filesystem paths, http(s)
// URLs, and data URLs. Every failure comes back as IMAGE_ACQUISITION so the
// pipeline can absorb it into the extraction metadata.
type Acquirer struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewAcquirer builds an acquirer with a bounded fetch timeout and image
// size cap in megabytes. Zero values fall back to the defaults.
func NewAcquirer(fetchTimeout time.Duration, maxImageMB int, logger *slog.Logger) *Acquirer {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	if maxImageMB <= 0 {
		maxImageMB = constants.MaxImageMBDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: int64(maxImageMB) << 20,
		logger:   logger,
	}
}

// Acquire resolves ref to a validated image.
func (a *Acquirer) Acquire(ctx context.Context, ref string) (*Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, common.NewAppError(common.CodeImageAcquisition, "empty image reference", nil)
	}

	var raw []byte
	var err error
	switch {
	case strings.HasPrefix(ref, "data:"):
		raw, err = decodeDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		raw, err = a.fetch(ctx, ref)
	default:
		raw, err = a.readFile(ref)
	}
	if err != nil {
		a.logger.Warn("imaging.acquire.err", "ref", refForLog(ref), "err", err)
		return nil, common.NewAppError(common.CodeImageAcquisition, "acquire image", err)
	}

	img, err := a.FromBytes(ref, raw)
	if err != nil {
		a.logger.Warn("imaging.acquire.invalid", "ref", refForLog(ref), "err", err)
		return nil, err
	}
	a.logger.Debug("imaging.acquire.ok",
		"ref", refForLog(ref), "mime", img.MIME, "bytes", len(img.Bytes))
	return img, nil
}

// FromBytes validates already-loaded bytes (uploads, batch scans) and wraps
// them as an Image.
func (a *Acquirer) FromBytes(ref string, raw []byte) (*Image, error) {
	if err := Validate(raw, a.maxBytes); err != nil {
		return nil, common.NewAppError(common.CodeImageAcquisition, "validate image", err)
	}
	sum := sha256.Sum256(raw)
	return &Image{
		Bytes:  raw,
		MIME:   SniffMIME(raw),
		SHA256: hex.EncodeToString(sum[:]),
		Ref:    ref,
	}, nil
}

func (a *Acquirer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > a.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", a.maxBytes)
	}
	return raw, nil
}

func (a *Acquirer) readFile(path string) ([]byte, error) {
	path = filepath.Clean(path)
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if st.Size() > a.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", a.maxBytes)
	}
	return os.ReadFile(path)
}

// decodeDataURL accepts data:<mediatype>;base64,<payload> references.
func decodeDataURL(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta := ref[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URL must be base64-encoded")
	}
	raw, err := base64.StdEncoding.DecodeString(ref[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("decode data URL: %w", err)
	}
	return raw, nil
}

// refForLog keeps data URLs from flooding the log.
func refForLog(ref string) string {
	if len(ref) > 96 {
		return ref[:96] + "...(truncated)"
	}
	return ref
}
