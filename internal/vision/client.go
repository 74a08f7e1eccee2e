package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

// systemPrompt is the fixed first-pass instruction. The vision backend gets
// no adapter context; steering belongs to the second opinion.
var systemPrompt = fmt.Sprintf(`You read Nigerian bank transfer screenshots and extract the recipient details. `+
	`Return ONLY JSON with the keys bank_name, account_number, account_holder_name, amount, confidence. `+
	`account_number is a NUBAN: exactly %d digits, reported digits-only with leading zeros kept. `+
	`amount is the transferred amount as a plain decimal string, no currency symbols or grouping commas. `+
	`confidence is your overall certainty from 0 to 100. `+
	`Never output null. Omit any field you cannot read.`, constants.AccountNumberLength)

const userPrompt = "Extract the transfer recipient details from this screenshot."

// media types the messages API accepts as image blocks
var supportedMedia = map[string]struct{}{
	imaging.MIMEJPEG: {},
	imaging.MIMEPNG:  {},
	imaging.MIMEWebP: {},
	"image/gif":      {},
}

type visionRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []visionMessage `json:"messages"`
}

type visionMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type visionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type visionError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// VisionOCRBackend is the primary backend: one multimodal messages call
// with the screenshot as a base64 source block.
type VisionOCRBackend struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ extract.Backend = (*VisionOCRBackend)(nil)

func NewBackend(cfg Config, logger *slog.Logger) *VisionOCRBackend {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionOCRBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), 1),
		logger:  logger,
	}
}

func (b *VisionOCRBackend) Name() string {
	return "anthropic:" + b.cfg.Model
}

// Recognize sends the screenshot through the messages API and parses the
// reply through the shared schema boundary.
func (b *VisionOCRBackend) Recognize(ctx context.Context, req extract.Request) (entity.ExtractedBankData, []byte, error) {
	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		return entity.ExtractedBankData{}, nil, err
	}

	block, err := b.imageBlock(req.Image)
	if err != nil {
		return entity.ExtractedBankData{}, nil, err
	}

	body := visionRequest{
		Model:     b.cfg.Model,
		MaxTokens: b.cfg.MaxTokens,
		System:    systemPrompt,
		Messages: []visionMessage{{
			Role: "user",
			Content: []contentBlock{
				block,
				{Type: "text", Text: userPrompt},
			},
		}},
	}

	raw, err := b.send(ctx, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.ExtractedBankData{}, raw, ctxErr
		}
		return entity.ExtractedBankData{}, raw,
			common.NewAppError(common.CodeBackendProtocol, "vision request failed", err)
	}

	var resp visionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return entity.ExtractedBankData{}, raw,
			common.NewAppError(common.CodeBackendProtocol, "decode vision response", err)
	}
	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text = c.Text
			break
		}
	}
	if text == "" {
		return entity.ExtractedBankData{}, raw,
			common.NewAppError(common.CodeBackendProtocol, "vision response has no text block", nil)
	}

	payload := []byte(text)
	data, err := extract.ParseExtraction(payload, b.logger)
	if err != nil {
		return entity.ExtractedBankData{}, payload, err
	}

	b.logger.Info("vision.recognize.ok",
		"model", b.cfg.Model,
		"confidence", data.Confidence,
		"fields", data.FieldCount(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds())
	return data, payload, nil
}

// imageBlock validates the payload gates and encodes the screenshot.
// Anything the provider would reject is caught here instead of wasting the
// API call.
func (b *VisionOCRBackend) imageBlock(img *imaging.Image) (contentBlock, error) {
	if img == nil || len(img.Bytes) == 0 {
		return contentBlock{}, common.NewAppError(common.CodeBackendProtocol, "no image payload", nil)
	}
	if max := int64(b.cfg.MaxImageMB) << 20; int64(len(img.Bytes)) > max {
		return contentBlock{}, common.NewAppError(common.CodeBackendProtocol,
			fmt.Sprintf("image payload %d bytes exceeds %d MB gate", len(img.Bytes), b.cfg.MaxImageMB), nil)
	}

	mt := img.MIME
	if mt == "" {
		mt = imaging.SniffMIME(img.Bytes)
	}
	if _, ok := supportedMedia[mt]; !ok {
		return contentBlock{}, common.NewAppError(common.CodeBackendProtocol,
			"media type "+mt+" not accepted by provider", nil)
	}

	return contentBlock{
		Type: "image",
		Source: &imageSource{
			Type:      "base64",
			MediaType: mt,
			Data:      base64.StdEncoding.EncodeToString(img.Bytes),
		},
	}, nil
}

// send posts the request, retrying 429/5xx and transport errors with
// exponential backoff until the retry budget is spent or ctx ends.
func (b *VisionOCRBackend) send(ctx context.Context, body visionRequest) ([]byte, error) {
	var (
		raw     []byte
		lastErr error
	)
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Second * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return raw, ctx.Err()
			}
			b.logger.Warn("vision.send.retry", "attempt", attempt, "err", lastErr)
		}

		raw, lastErr = b.doRequest(ctx, body)
		if lastErr == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return raw, ctx.Err()
		}
		if !isRetryable(lastErr) {
			return raw, lastErr
		}
	}
	return raw, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (b *VisionOCRBackend) doRequest(ctx context.Context, body visionRequest) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return raw, &retryableError{err: errors.New("rate limited (429)")}
	case resp.StatusCode >= 500:
		return raw, &retryableError{err: fmt.Errorf("server error (%d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		var apiErr visionError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return raw, fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return raw, fmt.Errorf("api error (%d)", resp.StatusCode)
	}
	return raw, nil
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
