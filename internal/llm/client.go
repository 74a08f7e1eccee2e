package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
)

// ContextAwareLLMBackend is the second-opinion backend: chat completions
// with the screenshot attached as a data URL, steered by the prompt
// adapter's context and the primary result as a confirm-or-override seed.
type ContextAwareLLMBackend struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ extract.Backend = (*ContextAwareLLMBackend)(nil)

// NewBackend builds the backend. The limiter smooths request bursts below
// the provider's rate limits; retry handles what still slips through.
func NewBackend(cfg Config, logger *slog.Logger) *ContextAwareLLMBackend {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextAwareLLMBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), 1),
		logger:  logger,
	}
}

func (b *ContextAwareLLMBackend) Name() string {
	return "openai:" + b.cfg.Model
}

// Recognize sends one multimodal chat completion and parses the reply
// through the shared schema boundary.
func (b *ContextAwareLLMBackend) Recognize(ctx context.Context, req extract.Request) (entity.ExtractedBankData, []byte, error) {
	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		return entity.ExtractedBankData{}, nil, err
	}

	attach, dataURL := ShouldAttachImage(req.Image, int64(b.cfg.MaxImageMB)<<20)
	if !attach && req.Image != nil {
		b.logger.Warn("llm.recognize.image_not_attached",
			"ref", req.Image.Ref,
			"mime", req.Image.MIME,
			"bytes", len(req.Image.Bytes))
	}

	content := []map[string]any{
		{"type": "text", "text": BuildUserPrompt(req.Seed, attach)},
	}
	if attach {
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL},
		})
	}

	body := map[string]any{
		"model":           b.cfg.Model,
		"temperature":     b.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": BuildSystemPrompt(req.Context)},
			{"role": "user", "content": content},
		},
	}

	raw, err := b.send(ctx, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.ExtractedBankData{}, raw, ctxErr
		}
		return entity.ExtractedBankData{}, raw,
			common.NewAppError(common.CodeBackendProtocol, "chat completion failed", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return entity.ExtractedBankData{}, raw,
			common.NewAppError(common.CodeBackendProtocol, "decode chat response", err)
	}
	if len(cc.Choices) == 0 {
		return entity.ExtractedBankData{}, raw,
			common.NewAppError(common.CodeBackendProtocol, "chat response has no choices", nil)
	}

	payload := []byte(cc.Choices[0].Message.Content)
	data, err := extract.ParseExtraction(payload, b.logger)
	if err != nil {
		return entity.ExtractedBankData{}, payload, err
	}

	b.logger.Info("llm.recognize.ok",
		"model", b.cfg.Model,
		"confidence", data.Confidence,
		"fields", data.FieldCount(),
		"seeded", req.Seed != nil,
		"elapsed_ms", time.Since(start).Milliseconds())
	return data, payload, nil
}

// send posts the body, retrying 429/5xx and transport errors with
// exponential backoff until MaxRetries attempts are spent or ctx ends.
func (b *ContextAwareLLMBackend) send(ctx context.Context, body any) ([]byte, error) {
	endpoint := b.cfg.BaseURL + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + b.cfg.APIKey}

	var (
		raw     []byte
		lastErr error
	)
	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := time.Second << (attempt - 2)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return raw, ctx.Err()
			}
		}

		var status int
		raw, status, lastErr = SendJSON(ctx, b.client, endpoint, body, headers, b.logger)
		if lastErr == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return raw, ctx.Err()
		}
		if !retryableStatus(status) {
			return raw, lastErr
		}
		b.logger.Warn("llm.send.retry",
			"attempt", attempt,
			"status", status,
			"err", lastErr)
	}
	return raw, lastErr
}

// retryableStatus: transport errors come through as status 0.
func retryableStatus(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}
