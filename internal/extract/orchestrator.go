package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

// Config carries the orchestrator's tunables. Zero values fall back to the
// documented defaults.
type Config struct {
	QualityThreshold float64
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
}

// Orchestrator runs the primary/secondary extraction state machine over a
// single screenshot. It never returns an error for backend-side failures:
// the caller always gets a well-formed outcome, in the worst case the
// all-empty sentinel with every attempt recorded in the metadata.
type Orchestrator struct {
	primary        Backend
	secondary      Backend
	corrector      BankNameCorrector
	contextBuilder ContextBuilder
	cfg            Config
	logger         *slog.Logger
}

// NewOrchestrator wires the state machine. secondary, corrector, and
// contextBuilder may be nil: without a secondary the fallback stage records
// a skipped attempt, and without a corrector bank names pass through
// unchanged.
func NewOrchestrator(primary, secondary Backend, corrector BankNameCorrector, contextBuilder ContextBuilder, cfg Config, logger *slog.Logger) *Orchestrator {
	if primary == nil {
		panic("extract: orchestrator needs a primary backend")
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = constants.QualityThresholdDefault
	}
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = constants.PrimaryTimeoutDefault
	}
	if cfg.SecondaryTimeout <= 0 {
		cfg.SecondaryTimeout = constants.SecondaryTimeoutDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		primary:        primary,
		secondary:      secondary,
		corrector:      corrector,
		contextBuilder: contextBuilder,
		cfg:            cfg,
		logger:         logger,
	}
}

// IsHighQuality reports whether a result clears the bar to be accepted
// without a second opinion: both key fields present and confidence at or
// above the threshold.
func (o *Orchestrator) IsHighQuality(d entity.ExtractedBankData) bool {
	return d.Fields.BankName && d.Fields.AccountNumber && d.Confidence >= o.cfg.QualityThreshold
}

// Extract runs up to two sequential backend attempts and returns the
// winning result with full diagnostics. img must be non-nil; passing nil is
// a programming error and panics.
func (o *Orchestrator) Extract(ctx context.Context, img *imaging.Image) entity.ExtractionOutcome {
	if img == nil {
		panic("extract: nil image in request")
	}

	start := time.Now()
	meta := entity.ExtractionMetadata{
		RequestID: requestID(ctx),
		ImageRef:  img.Ref,
		StartedAt: start.UTC(),
		States:    []constants.OrchestratorState{constants.StateInit},
	}
	log := o.logger.With("req_id", meta.RequestID)

	o.transition(log, &meta, constants.StatePrimaryPending)
	primary := o.runAttempt(ctx, log, o.primary, constants.BackendRolePrimary, Request{Image: img}, o.cfg.PrimaryTimeout)
	meta.Attempts = append(meta.Attempts, primary)

	var winner *entity.ExtractionAttempt
	if primary.Succeeded() && o.IsHighQuality(primary.Data) {
		winner = &meta.Attempts[0]
		meta.Winner = winner.Role
		meta.CompareReason = "primary_high_quality"
	} else {
		o.transition(log, &meta, constants.StateSecondaryPending)
		secondary := o.runSecondary(ctx, log, img, primary)
		meta.Attempts = append(meta.Attempts, secondary)

		winner, meta.CompareReason = compare(&meta.Attempts[0], &meta.Attempts[1])
		if winner != nil {
			meta.Winner = winner.Role
		}
	}
	o.transition(log, &meta, constants.StateDone)

	result := entity.EmptyResult()
	if winner != nil {
		result = o.correctBankName(log, &meta, winner.Data)
	}

	meta.FinishedAt = time.Now().UTC()
	meta.DurationMs = time.Since(start).Milliseconds()
	log.Info("orchestrator.done",
		"winner", meta.Winner,
		"reason", meta.CompareReason,
		"attempts", len(meta.Attempts),
		"confidence", result.Confidence,
		"elapsed_ms", meta.DurationMs)

	return entity.ExtractionOutcome{Result: result, Metadata: meta}
}

// runSecondary invokes the fallback backend seeded with the primary result.
// With no secondary configured the stage records a skipped attempt.
func (o *Orchestrator) runSecondary(ctx context.Context, log *slog.Logger, img *imaging.Image, primary entity.ExtractionAttempt) entity.ExtractionAttempt {
	if o.secondary == nil {
		log.Debug("orchestrator.secondary.skip")
		return entity.ExtractionAttempt{
			Role:   constants.BackendRoleSecondary,
			Status: constants.AttemptStatusSkipped,
		}
	}

	req := Request{Image: img}
	hint := ""
	if primary.Succeeded() {
		seed := primary.Data
		req.Seed = &seed
		hint = seed.BankName
	}
	if o.contextBuilder != nil {
		pc := o.contextBuilder.BuildContext(hint)
		req.Context = &pc
	}
	return o.runAttempt(ctx, log, o.secondary, constants.BackendRoleSecondary, req, o.cfg.SecondaryTimeout)
}

// runAttempt calls one backend under its own deadline. The call runs in a
// goroutine so that a deadline or cancellation abandons it immediately; the
// buffered channel lets the straggler finish and be collected.
func (o *Orchestrator) runAttempt(ctx context.Context, log *slog.Logger, b Backend, role string, req Request, timeout time.Duration) entity.ExtractionAttempt {
	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type recognized struct {
		data entity.ExtractedBankData
		err  error
	}
	ch := make(chan recognized, 1)
	go func() {
		data, _, err := b.Recognize(attemptCtx, req)
		ch <- recognized{data: data, err: err}
	}()

	attempt := entity.ExtractionAttempt{Backend: b.Name(), Role: role}
	select {
	case res := <-ch:
		attempt.DurationMs = time.Since(start).Milliseconds()
		if res.err != nil {
			attempt.Status, attempt.ErrorCode = classifyAttemptError(res.err)
			attempt.Error = res.err.Error()
			log.Warn(fmt.Sprintf("orchestrator.%s.err", role),
				"backend", b.Name(),
				"code", attempt.ErrorCode,
				"elapsed_ms", attempt.DurationMs,
				"err", res.err)
			return attempt
		}
		attempt.Status = constants.AttemptStatusOK
		attempt.Data = res.data
		log.Info(fmt.Sprintf("orchestrator.%s.ok", role),
			"backend", b.Name(),
			"confidence", res.data.Confidence,
			"fields", res.data.FieldCount(),
			"elapsed_ms", attempt.DurationMs)
		return attempt
	case <-attemptCtx.Done():
		attempt.DurationMs = time.Since(start).Milliseconds()
		attempt.Status, attempt.ErrorCode = classifyAttemptError(attemptCtx.Err())
		attempt.Error = attemptCtx.Err().Error()
		log.Warn(fmt.Sprintf("orchestrator.%s.abandoned", role),
			"backend", b.Name(),
			"code", attempt.ErrorCode,
			"elapsed_ms", attempt.DurationMs)
		return attempt
	}
}

func classifyAttemptError(err error) (constants.AttemptStatus, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return constants.AttemptStatusTimedOut, common.CodeBackendTimeout
	}
	switch code := common.CodeOf(err); code {
	case common.CodeValidation:
		return constants.AttemptStatusFailed, common.CodeValidation
	case "":
		return constants.AttemptStatusFailed, common.CodeBackendProtocol
	default:
		return constants.AttemptStatusFailed, code
	}
}

// compare picks between two attempts: more extracted fields wins, then a
// confidence gap beyond the tie margin, then account holder presence, and
// finally the first successful attempt for stability.
func compare(a, b *entity.ExtractionAttempt) (*entity.ExtractionAttempt, string) {
	switch {
	case a.Succeeded() && !b.Succeeded():
		return a, "secondary_unusable"
	case !a.Succeeded() && b.Succeeded():
		return b, "primary_unusable"
	case !a.Succeeded() && !b.Succeeded():
		return nil, "no_usable_attempt"
	}

	if ca, cb := a.Data.FieldCount(), b.Data.FieldCount(); ca != cb {
		if ca > cb {
			return a, "field_count"
		}
		return b, "field_count"
	}

	if diff := a.Data.Confidence - b.Data.Confidence; diff > constants.ConfidenceTieMargin {
		return a, "confidence"
	} else if -diff > constants.ConfidenceTieMargin {
		return b, "confidence"
	}

	if a.Data.Fields.AccountHolderName != b.Data.Fields.AccountHolderName {
		if a.Data.Fields.AccountHolderName {
			return a, "holder_presence"
		}
		return b, "holder_presence"
	}

	return a, "stability"
}

// correctBankName passes the winning bank name through the corrector and
// records the original next to the outcome.
func (o *Orchestrator) correctBankName(log *slog.Logger, meta *entity.ExtractionMetadata, data entity.ExtractedBankData) entity.ExtractedBankData {
	if o.corrector == nil || data.BankName == "" {
		return data
	}
	meta.OriginalBankName = data.BankName

	canonical, matched := o.corrector.Correct(data.BankName)
	if !matched || canonical == data.BankName {
		return data
	}
	meta.BankCorrected = true
	log.Debug("orchestrator.bank_corrected", "from", data.BankName, "to", canonical)
	return data.WithBankName(canonical)
}

func (o *Orchestrator) transition(log *slog.Logger, meta *entity.ExtractionMetadata, next constants.OrchestratorState) {
	meta.States = append(meta.States, next)
	log.Debug("orchestrator.state", "state", string(next))
}

func requestID(ctx context.Context) uuid.UUID {
	if id, err := uuid.Parse(common.RequestIDFromContext(ctx)); err == nil {
		return id
	}
	return uuid.New()
}
