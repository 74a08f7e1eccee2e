package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func pngFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o644))
	return path
}

type fakeExtractor struct {
	outcome entity.ExtractionOutcome
	calls   int
	lastImg *imaging.Image
}

func (f *fakeExtractor) Extract(_ context.Context, img *imaging.Image) entity.ExtractionOutcome {
	f.calls++
	f.lastImg = img
	return f.outcome
}

func (f *fakeExtractor) IsHighQuality(d entity.ExtractedBankData) bool {
	return d.Fields.BankName && d.Fields.AccountNumber && d.Confidence >= constants.QualityThresholdDefault
}

type fakeCache struct {
	entries      map[string]entity.ExtractedBankData
	similar      *entity.ExtractedBankData
	puts         []entity.ExtractedBankData
	similarCalls int
}

func (f *fakeCache) Get(_ context.Context, accountNumber, bankName string) (entity.ExtractedBankData, bool) {
	d, ok := f.entries[accountNumber+"|"+bankName]
	return d, ok
}

func (f *fakeCache) Put(_ context.Context, data entity.ExtractedBankData) {
	f.puts = append(f.puts, data)
}

func (f *fakeCache) FindSimilar(_ context.Context, _ entity.ExtractedBankData) (entity.ExtractedBankData, bool) {
	f.similarCalls++
	if f.similar == nil {
		return entity.ExtractedBankData{}, false
	}
	return *f.similar, true
}

type fakeRecorder struct {
	banks []string
}

func (f *fakeRecorder) RecordSuccess(_ context.Context, bankName string, _ entity.ExtractedBankData) {
	f.banks = append(f.banks, bankName)
}

func qualityResult() entity.ExtractedBankData {
	return entity.ExtractedBankData{
		BankName:          "GTBank",
		AccountNumber:     "0123456789",
		AccountHolderName: "JOHN DOE",
		Amount:            "5000.00",
		Confidence:        92,
	}.Normalize()
}

func weakResult() entity.ExtractedBankData {
	return entity.ExtractedBankData{
		BankName:      "GTBank",
		AccountNumber: "0123456780",
		Confidence:    55,
	}.Normalize()
}

func outcomeFor(d entity.ExtractedBankData) entity.ExtractionOutcome {
	return entity.ExtractionOutcome{
		Result:   d,
		Metadata: entity.ExtractionMetadata{RequestID: uuid.New(), Winner: "primary"},
	}
}

func newTestProcessor(ext *fakeExtractor, c *fakeCache, r *fakeRecorder) *Processor {
	acq := imaging.NewAcquirer(0, 0, testLogger())
	var cache ResultCache
	if c != nil {
		cache = c
	}
	var rec SuccessRecorder
	if r != nil {
		rec = r
	}
	return NewProcessor(acq, nil, ext, cache, rec, testLogger())
}

func TestProcessKnownPairCacheHit(t *testing.T) {
	cached := qualityResult()
	c := &fakeCache{entries: map[string]entity.ExtractedBankData{
		"0123456789|GTBank": cached,
	}}
	ext := &fakeExtractor{}
	p := newTestProcessor(ext, c, nil)

	reqID := uuid.New()
	ctx := common.WithRequestID(context.Background(), reqID.String())
	out, err := p.Process(ctx, ExtractInput{
		KnownAccountNumber: "0123456789",
		KnownBankName:      "GTBank",
	})

	require.NoError(t, err)
	assert.True(t, out.Metadata.CacheHit)
	assert.Equal(t, cached, out.Result)
	assert.Equal(t, reqID, out.Metadata.RequestID)
	assert.Zero(t, ext.calls, "backends must not run on a cache hit")
}

func TestProcessKnownPairCacheMissExtracts(t *testing.T) {
	c := &fakeCache{entries: map[string]entity.ExtractedBankData{}}
	ext := &fakeExtractor{outcome: outcomeFor(qualityResult())}
	p := newTestProcessor(ext, c, nil)

	out, err := p.Process(context.Background(), ExtractInput{
		Ref:                pngFile(t),
		KnownAccountNumber: "0123456789",
		KnownBankName:      "GTBank",
	})

	require.NoError(t, err)
	assert.False(t, out.Metadata.CacheHit)
	assert.Equal(t, 1, ext.calls)
}

func TestProcessNoInput(t *testing.T) {
	ext := &fakeExtractor{}
	p := newTestProcessor(ext, nil, nil)

	_, err := p.Process(context.Background(), ExtractInput{})

	require.Error(t, err)
	assert.Equal(t, common.CodeInvalidArgument, common.CodeOf(err))
	assert.Zero(t, ext.calls)
}

func TestProcessAcquireFailureIsAbsorbed(t *testing.T) {
	ext := &fakeExtractor{}
	p := newTestProcessor(ext, nil, nil)

	out, err := p.Process(context.Background(), ExtractInput{
		Ref: filepath.Join(t.TempDir(), "missing.png"),
	})

	require.NoError(t, err, "acquisition failures stay in metadata")
	assert.True(t, out.Result.IsEmpty())
	assert.NotEmpty(t, out.Metadata.AcquireError)
	assert.Zero(t, ext.calls)
}

func TestProcessFromBytesSkipsAcquire(t *testing.T) {
	ext := &fakeExtractor{outcome: outcomeFor(qualityResult())}
	p := newTestProcessor(ext, nil, nil)

	out, err := p.Process(context.Background(), ExtractInput{
		Ref:        "upload:shot.png",
		ImageBytes: pngBytes(t),
	})

	require.NoError(t, err)
	require.NotNil(t, ext.lastImg)
	assert.Equal(t, "upload:shot.png", ext.lastImg.Ref)
	assert.Equal(t, imaging.MIMEPNG, ext.lastImg.MIME)
	assert.Equal(t, "GTBank", out.Result.BankName)
}

func TestProcessHighQualityWritesThrough(t *testing.T) {
	c := &fakeCache{entries: map[string]entity.ExtractedBankData{}}
	r := &fakeRecorder{}
	ext := &fakeExtractor{outcome: outcomeFor(qualityResult())}
	p := newTestProcessor(ext, c, r)

	out, err := p.Process(context.Background(), ExtractInput{Ref: pngFile(t)})

	require.NoError(t, err)
	require.Len(t, c.puts, 1)
	assert.Equal(t, "GTBank", c.puts[0].BankName)
	assert.Equal(t, []string{"GTBank"}, r.banks)
	assert.Empty(t, out.Metadata.SimilarAccount)
	assert.Zero(t, c.similarCalls)
}

func TestProcessWeakResultGetsSimilarHint(t *testing.T) {
	known := qualityResult()
	c := &fakeCache{
		entries: map[string]entity.ExtractedBankData{},
		similar: &known,
	}
	r := &fakeRecorder{}
	ext := &fakeExtractor{outcome: outcomeFor(weakResult())}
	p := newTestProcessor(ext, c, r)

	out, err := p.Process(context.Background(), ExtractInput{Ref: pngFile(t)})

	require.NoError(t, err)
	require.Len(t, c.puts, 1, "usable results are cached even below the bar")
	assert.Empty(t, r.banks, "only high-quality results count as verified")
	assert.Equal(t, known.AccountNumber, out.Metadata.SimilarAccount)
}

func TestProcessEmptyResultNoSideEffects(t *testing.T) {
	c := &fakeCache{entries: map[string]entity.ExtractedBankData{}}
	r := &fakeRecorder{}
	ext := &fakeExtractor{outcome: entity.ExtractionOutcome{Result: entity.EmptyResult()}}
	p := newTestProcessor(ext, c, r)

	out, err := p.Process(context.Background(), ExtractInput{Ref: pngFile(t)})

	require.NoError(t, err)
	assert.True(t, out.Result.IsEmpty())
	assert.Empty(t, c.puts)
	assert.Empty(t, r.banks)
	assert.Zero(t, c.similarCalls)
}

func TestNewProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewProcessor(nil, nil, &fakeExtractor{}, nil, nil, testLogger())
	})
	assert.Panics(t, func() {
		NewProcessor(imaging.NewAcquirer(0, 0, testLogger()), nil, nil, nil, nil, testLogger())
	})
}
