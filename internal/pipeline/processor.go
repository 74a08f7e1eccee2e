// Package pipeline glues acquisition, orchestration, and the cache into the
// one entry point every surface (HTTP, queue, batch, CLI) calls.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

// ExtractInput names one extraction request. Ref is an opaque image
// reference (path, URL, data URL); ImageBytes short-circuits acquisition for
// uploads. A known account/bank pair lets the cache answer without any
// backend call.
type ExtractInput struct {
	Ref                string
	ImageBytes         []byte
	KnownAccountNumber string
	KnownBankName      string
}

// Extractor runs the two-attempt orchestration and owns the quality bar.
type Extractor interface {
	Extract(ctx context.Context, img *imaging.Image) entity.ExtractionOutcome
	IsHighQuality(d entity.ExtractedBankData) bool
}

// ResultCache reuses verified extractions and offers approximate account
// lookup. All methods degrade to misses on store trouble.
type ResultCache interface {
	Get(ctx context.Context, accountNumber, bankName string) (entity.ExtractedBankData, bool)
	Put(ctx context.Context, data entity.ExtractedBankData)
	FindSimilar(ctx context.Context, data entity.ExtractedBankData) (entity.ExtractedBankData, bool)
}

// SuccessRecorder feeds verified extractions back into prompt guidance.
type SuccessRecorder interface {
	RecordSuccess(ctx context.Context, bankName string, data entity.ExtractedBankData)
}

// Processor coordinates cache pre-check, image acquisition, orchestration,
// and the write-back side effects.
type Processor struct {
	acquirer  *imaging.Acquirer
	converter *imaging.Converter
	extractor Extractor
	cache     ResultCache
	recorder  SuccessRecorder
	logger    *slog.Logger
}

// NewProcessor wires the pipeline. converter, cache, and recorder may be
// nil; the corresponding steps are skipped.
func NewProcessor(acquirer *imaging.Acquirer, converter *imaging.Converter, extractor Extractor, cache ResultCache, recorder SuccessRecorder, logger *slog.Logger) *Processor {
	if acquirer == nil {
		panic("pipeline: processor needs an acquirer")
	}
	if extractor == nil {
		panic("pipeline: processor needs an extractor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		acquirer:  acquirer,
		converter: converter,
		extractor: extractor,
		cache:     cache,
		recorder:  recorder,
		logger:    logger,
	}
}

// Process runs one extraction end to end. Provider and storage failures are
// absorbed into the outcome; the error return is reserved for unusable input.
func (p *Processor) Process(ctx context.Context, in ExtractInput) (entity.ExtractionOutcome, error) {
	ctx = p.ensureRequestID(ctx)
	log := p.logger.With("req_id", common.RequestIDFromContext(ctx))

	if hit, ok := p.cachePreCheck(ctx, log, in); ok {
		return hit, nil
	}

	if in.Ref == "" && len(in.ImageBytes) == 0 {
		return entity.ExtractionOutcome{}, common.NewAppError(
			common.CodeInvalidArgument, "no image reference or bytes supplied", nil)
	}

	img, err := p.acquire(ctx, in)
	if err != nil {
		log.Warn("pipeline.acquire.failed", "ref", in.Ref, "err", err)
		return acquireFailureOutcome(ctx, in.Ref, err), nil
	}

	out := p.extractor.Extract(ctx, img)
	p.writeBack(ctx, log, &out)
	return out, nil
}

// cachePreCheck answers from the cache when the caller already knows the
// account/bank pair. The outcome carries no attempts; CacheHit flags it.
func (p *Processor) cachePreCheck(ctx context.Context, log *slog.Logger, in ExtractInput) (entity.ExtractionOutcome, bool) {
	if p.cache == nil || in.KnownAccountNumber == "" || in.KnownBankName == "" {
		return entity.ExtractionOutcome{}, false
	}
	data, ok := p.cache.Get(ctx, in.KnownAccountNumber, in.KnownBankName)
	if !ok {
		return entity.ExtractionOutcome{}, false
	}

	now := time.Now().UTC()
	log.Info("pipeline.cache_hit",
		"account", in.KnownAccountNumber, "bank", in.KnownBankName)
	return entity.ExtractionOutcome{
		Result: data,
		Metadata: entity.ExtractionMetadata{
			RequestID:  requestUUID(ctx),
			ImageRef:   in.Ref,
			CacheHit:   true,
			StartedAt:  now,
			FinishedAt: now,
		},
	}, true
}

// acquire resolves the input to a validated image, converting HEIC/HEIF
// best-effort. A failed conversion keeps the original bytes.
func (p *Processor) acquire(ctx context.Context, in ExtractInput) (*imaging.Image, error) {
	var (
		img *imaging.Image
		err error
	)
	if len(in.ImageBytes) > 0 {
		img, err = p.acquirer.FromBytes(in.Ref, in.ImageBytes)
	} else {
		img, err = p.acquirer.Acquire(ctx, in.Ref)
	}
	if err != nil {
		return nil, err
	}

	if p.converter != nil {
		converted, err := p.converter.EnsurePNG(ctx, img)
		if err != nil {
			p.logger.Warn("pipeline.convert.failed", "ref", img.Ref, "err", err)
			return img, nil
		}
		img = converted
	}
	return img, nil
}

// writeBack applies the post-extraction side effects: cache any usable
// result, record high-quality ones as verified, and on a weak result try to
// surface a similar known account as a hint.
func (p *Processor) writeBack(ctx context.Context, log *slog.Logger, out *entity.ExtractionOutcome) {
	result := out.Result
	if result.IsEmpty() {
		return
	}

	if p.cache != nil {
		p.cache.Put(ctx, result)
	}

	if p.extractor.IsHighQuality(result) {
		if p.recorder != nil {
			p.recorder.RecordSuccess(ctx, result.BankName, result)
		}
		return
	}

	if p.cache != nil && result.AccountNumber != "" {
		if similar, ok := p.cache.FindSimilar(ctx, result); ok {
			out.Metadata.SimilarAccount = similar.AccountNumber
			log.Info("pipeline.similar_account",
				"extracted", result.AccountNumber, "known", similar.AccountNumber)
		}
	}
}

// acquireFailureOutcome is the sentinel for an image that never made it to a
// backend. The failure lands in metadata so callers can report it without an
// error path.
func acquireFailureOutcome(ctx context.Context, ref string, err error) entity.ExtractionOutcome {
	now := time.Now().UTC()
	return entity.ExtractionOutcome{
		Result: entity.EmptyResult(),
		Metadata: entity.ExtractionMetadata{
			RequestID:    requestUUID(ctx),
			ImageRef:     ref,
			AcquireError: err.Error(),
			StartedAt:    now,
			FinishedAt:   now,
		},
	}
}

func (p *Processor) ensureRequestID(ctx context.Context) context.Context {
	if common.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return common.WithRequestID(ctx, uuid.NewString())
}

func requestUUID(ctx context.Context) uuid.UUID {
	if id, err := uuid.Parse(common.RequestIDFromContext(ctx)); err == nil {
		return id
	}
	return uuid.New()
}
