package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBackend(t *testing.T, url string) *VisionOCRBackend {
	t.Helper()
	return NewBackend(Config{
		APIKey:  "test-key",
		BaseURL: url,
		RPM:     6000,
	}, testLogger())
}

func jpegImage() *imaging.Image {
	return &imaging.Image{
		Bytes: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10},
		MIME:  imaging.MIMEJPEG,
		Ref:   "shot.jpg",
	}
}

func messagesReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"usage":   map[string]any{"input_tokens": 100, "output_tokens": 40},
	})
	return string(b)
}

func TestRecognizeHappyPath(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	var gotBody visionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, messagesReply("```json\n{\"bank_name\":\"GTBank\",\"account_number\":\"0123456789\",\"account_holder_name\":\"JOHN DOE\",\"amount\":\"25000\",\"confidence\":91}\n```"))
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	data, raw, err := b.Recognize(context.Background(), extract.Request{Image: jpegImage()})
	require.NoError(t, err)

	assert.Equal(t, "GTBank", data.BankName)
	assert.Equal(t, "0123456789", data.AccountNumber)
	assert.Equal(t, "JOHN DOE", data.AccountHolderName)
	assert.Equal(t, "25000", data.Amount)
	assert.Equal(t, 91.0, data.Confidence)
	assert.NotEmpty(t, raw)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "claude-3-5-sonnet-20241022", gotBody.Model)
	assert.Contains(t, gotBody.System, "NUBAN")
	require.Len(t, gotBody.Messages, 1)
	require.Len(t, gotBody.Messages[0].Content, 2)
	img := gotBody.Messages[0].Content[0]
	assert.Equal(t, "image", img.Type)
	require.NotNil(t, img.Source)
	assert.Equal(t, "base64", img.Source.Type)
	assert.Equal(t, imaging.MIMEJPEG, img.Source.MediaType)
	assert.NotEmpty(t, img.Source.Data)
	assert.Equal(t, "text", gotBody.Messages[0].Content[1].Type)
}

func TestRecognizeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, messagesReply(`{"bank_name":"OPay","account_number":"8031234567","confidence":88}`))
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	data, _, err := b.Recognize(context.Background(), extract.Request{Image: jpegImage()})

	require.NoError(t, err)
	assert.Equal(t, "OPay", data.BankName)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRecognizeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"image too large"}}`)
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	_, _, err := b.Recognize(context.Background(), extract.Request{Image: jpegImage()})

	require.Error(t, err)
	assert.Equal(t, common.CodeBackendProtocol, common.CodeOf(err))
	assert.Contains(t, err.Error(), "image too large")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRecognizeRejectsUnsupportedPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the provider")
	}))
	defer srv.Close()
	b := testBackend(t, srv.URL)

	_, _, err := b.Recognize(context.Background(), extract.Request{Image: nil})
	assert.Equal(t, common.CodeBackendProtocol, common.CodeOf(err))

	heic := &imaging.Image{Bytes: []byte{1, 2, 3}, MIME: imaging.MIMEHEIC}
	_, _, err = b.Recognize(context.Background(), extract.Request{Image: heic})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media type")

	big := &imaging.Image{Bytes: make([]byte, 11<<20), MIME: imaging.MIMEPNG}
	_, _, err = b.Recognize(context.Background(), extract.Request{Image: big})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate")
}

func TestRecognizeUnparseableContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, messagesReply("The screenshot is too blurry to read."))
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	_, raw, err := b.Recognize(context.Background(), extract.Request{Image: jpegImage()})

	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))
	assert.Contains(t, string(raw), "blurry")
}

func TestRecognizeNoTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	_, _, err := b.Recognize(context.Background(), extract.Request{Image: jpegImage()})

	require.Error(t, err)
	assert.Equal(t, common.CodeBackendProtocol, common.CodeOf(err))
}

func TestRecognizeHonorsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, messagesReply(`{"confidence":50}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := testBackend(t, srv.URL)
	_, _, err := b.Recognize(ctx, extract.Request{Image: jpegImage()})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackendName(t *testing.T) {
	b := NewBackend(Config{Model: "claude-3-haiku-20240307"}, testLogger())
	assert.Equal(t, "anthropic:claude-3-haiku-20240307", b.Name())
}

func TestRetryableErrorClassification(t *testing.T) {
	re := &retryableError{err: fmt.Errorf("boom")}
	assert.True(t, isRetryable(re))
	assert.True(t, isRetryable(fmt.Errorf("wrapped: %w", re)))
	assert.False(t, isRetryable(fmt.Errorf("plain")))
}
