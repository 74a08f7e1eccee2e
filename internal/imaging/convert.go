package imaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Converter turns HEIC/HEIF screenshots (the iPhone default) into PNG by
// shelling out to an external binary. Converted artifacts are cached on
// disk keyed by the source content hash, so re-submitting the same
// screenshot never pays for a second conversion.
type Converter struct {
	runner    Runner
	converter string // magick | heif-convert | sips
	cacheDir  string
	logger    *slog.Logger
}

// NewConverter builds a converter. An empty cacheDir disables artifact
// caching.
func NewConverter(runner Runner, converter, cacheDir string, logger *slog.Logger) *Converter {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		runner:    runner,
		converter: converter,
		cacheDir:  cacheDir,
		logger:    logger,
	}
}

// EnsurePNG returns img untouched unless it is HEIC/HEIF. Conversion
// failures return an error alongside the original image so the caller can
// log and proceed with the unconverted bytes.
func (c *Converter) EnsurePNG(ctx context.Context, img *Image) (*Image, error) {
	if img.MIME != MIMEHEIC && img.MIME != MIMEHEIF {
		return img, nil
	}

	if cached, ok := c.readCached(img.SHA256); ok {
		c.logger.Debug("imaging.convert.cached", "sha256", img.SHA256)
		return pngImage(img.Ref, cached), nil
	}

	png, err := c.convert(ctx, img)
	if err != nil {
		return img, err
	}
	c.writeCache(img.SHA256, png)

	c.logger.Debug("imaging.convert.ok",
		"sha256", img.SHA256, "converter", c.converter, "png_bytes", len(png))
	return pngImage(img.Ref, png), nil
}

func (c *Converter) convert(ctx context.Context, img *Image) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "tx-heic-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "in.heic")
	out := filepath.Join(tmpDir, "out.png")
	if err := os.WriteFile(in, img.Bytes, 0o600); err != nil {
		return nil, err
	}

	switch c.converter {
	case "heif-convert":
		if _, errb, err := c.runner.Run(ctx, "heif-convert", c.logger, in, out); err != nil {
			return nil, fmt.Errorf("heif-convert: %w (stderr: %s)", err, truncate(string(errb), 512))
		}
	case "magick":
		if _, errb, err := c.runner.Run(ctx, "magick", c.logger, in, out); err != nil {
			return nil, fmt.Errorf("magick: %w (stderr: %s)", err, truncate(string(errb), 512))
		}
	case "sips":
		if _, errb, err := c.runner.Run(ctx, "sips", c.logger, "-s", "format", "png", in, "--out", out); err != nil {
			return nil, fmt.Errorf("sips: %w (stderr: %s)", err, truncate(string(errb), 512))
		}
	default:
		return nil, fmt.Errorf("heic conversion needs one of: magick | heif-convert | sips (got %q)", c.converter)
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("conversion produced no output: %w", err)
	}
	return png, nil
}

func (c *Converter) readCached(hashHex string) ([]byte, bool) {
	if c.cacheDir == "" || hashHex == "" {
		return nil, false
	}
	raw, err := os.ReadFile(filepath.Join(c.cacheDir, hashHex+".png"))
	if err != nil {
		return nil, false
	}
	return raw, true
}

// writeCache persists best-effort; a failed write only costs a future
// re-conversion.
func (c *Converter) writeCache(hashHex string, png []byte) {
	if c.cacheDir == "" || hashHex == "" {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		c.logger.Warn("imaging.convert.cache_dir", "err", err)
		return
	}
	tmp := filepath.Join(c.cacheDir, hashHex+".png.tmp")
	final := filepath.Join(c.cacheDir, hashHex+".png")
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		c.logger.Warn("imaging.convert.cache_write", "err", err)
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		c.logger.Warn("imaging.convert.cache_rename", "err", err)
	}
}

func pngImage(ref string, png []byte) *Image {
	sum := sha256.Sum256(png)
	return &Image{
		Bytes:  png,
		MIME:   MIMEPNG,
		SHA256: hex.EncodeToString(sum[:]),
		Ref:    ref,
	}
}
