package imaging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner pretends to be a converter binary: it writes png to the output
// path given as the last argument.
type fakeRunner struct {
	calls int
	fail  bool
	png   []byte
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.calls++
	if f.fail {
		return nil, []byte("boom"), errors.New("exit status 1")
	}
	out := args[len(args)-1]
	return nil, nil, os.WriteFile(out, f.png, 0o644)
}

func heicImage(t *testing.T) *Image {
	t.Helper()
	a := newTestAcquirer()
	img, err := a.FromBytes("shot.heic", heicBytes())
	require.NoError(t, err)
	require.Equal(t, MIMEHEIC, img.MIME)
	return img
}

func TestEnsurePNGPassthrough(t *testing.T) {
	runner := &fakeRunner{}
	c := NewConverter(runner, "magick", "", testLogger())

	img, err := NewAcquirer(0, 0, testLogger()).FromBytes("shot.png", pngBytes(t))
	require.NoError(t, err)

	got, err := c.EnsurePNG(context.Background(), img)
	require.NoError(t, err)
	assert.Same(t, img, got)
	assert.Zero(t, runner.calls)
}

func TestEnsurePNGConvertsHEIC(t *testing.T) {
	png := pngBytes(t)
	runner := &fakeRunner{png: png}
	cacheDir := t.TempDir()
	c := NewConverter(runner, "magick", cacheDir, testLogger())

	src := heicImage(t)
	got, err := c.EnsurePNG(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, MIMEPNG, got.MIME)
	assert.Equal(t, png, got.Bytes)
	assert.Equal(t, src.Ref, got.Ref)
	assert.NotEqual(t, src.SHA256, got.SHA256)

	// Artifact cached under the source hash.
	cached, err := os.ReadFile(filepath.Join(cacheDir, src.SHA256+".png"))
	require.NoError(t, err)
	assert.Equal(t, png, cached)

	// Second conversion is served from the cache.
	_, err = c.EnsurePNG(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
}

func TestEnsurePNGFailureReturnsOriginal(t *testing.T) {
	runner := &fakeRunner{fail: true}
	c := NewConverter(runner, "heif-convert", "", testLogger())

	src := heicImage(t)
	got, err := c.EnsurePNG(context.Background(), src)
	require.Error(t, err)
	assert.Same(t, src, got, "caller proceeds with the original bytes")
}

func TestEnsurePNGUnknownConverter(t *testing.T) {
	c := NewConverter(&fakeRunner{}, "", "", testLogger())

	src := heicImage(t)
	got, err := c.EnsurePNG(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magick | heif-convert | sips")
	assert.Same(t, src, got)
}
