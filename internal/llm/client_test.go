package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
)

func pngImageFixture(t *testing.T) *imaging.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 4; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &imaging.Image{Bytes: buf.Bytes(), MIME: imaging.MIMEPNG, Ref: "shot.png"}
}

func testBackend(t *testing.T, url string) *ContextAwareLLMBackend {
	t.Helper()
	return NewBackend(Config{
		APIKey:  "test-key",
		BaseURL: url,
		RPM:     6000,
	}, testLogger())
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestRecognizeHappyPath(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, chatReply("```json\n{\"bank_name\":\"OPay\",\"account_number\":\"8031234567\",\"account_holder_name\":\"JANE ROE\",\"amount\":\"5000\",\"confidence\":0.9}\n```"))
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	seed := &entity.ExtractedBankData{BankName: "opay", AccountNumber: "8031234567"}
	pc := entity.PromptContext{RankedBanks: []string{"OPay", "GTBank"}}

	data, raw, err := b.Recognize(context.Background(), extract.Request{
		Image:   pngImageFixture(t),
		Seed:    seed,
		Context: &pc,
	})
	require.NoError(t, err)

	assert.Equal(t, "OPay", data.BankName)
	assert.Equal(t, "8031234567", data.AccountNumber)
	assert.Equal(t, "JANE ROE", data.AccountHolderName)
	assert.Equal(t, 90.0, data.Confidence, "fractional confidence scales to percent")
	assert.NotEmpty(t, raw)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	assert.Equal(t, "json_object", gotBody.ResponseFormat.Type)
	require.Len(t, gotBody.Messages, 2)

	var system string
	require.NoError(t, json.Unmarshal(gotBody.Messages[0].Content, &system))
	assert.Contains(t, system, "NUBAN")
	assert.Contains(t, system, "OPay, GTBank")

	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(gotBody.Messages[1].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Contains(t, parts[0].Text, "first pass")
	assert.Contains(t, parts[0].Text, "account_number: 8031234567")
	assert.Equal(t, "image_url", parts[1].Type)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestRecognizeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatReply(`{"bank_name":"GTBank","account_number":"0123456789","confidence":88}`))
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	data, _, err := b.Recognize(context.Background(), extract.Request{Image: pngImageFixture(t)})

	require.NoError(t, err)
	assert.Equal(t, "GTBank", data.BankName)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRecognizeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	_, _, err := b.Recognize(context.Background(), extract.Request{Image: pngImageFixture(t)})

	require.Error(t, err)
	assert.Equal(t, common.CodeBackendProtocol, common.CodeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRecognizeRejectsUnparseableContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("I could not read the image, sorry."))
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	_, raw, err := b.Recognize(context.Background(), extract.Request{Image: pngImageFixture(t)})

	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))
	assert.Contains(t, string(raw), "could not read")
}

func TestRecognizeNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	b := testBackend(t, srv.URL)
	_, _, err := b.Recognize(context.Background(), extract.Request{Image: pngImageFixture(t)})

	require.Error(t, err)
	assert.Equal(t, common.CodeBackendProtocol, common.CodeOf(err))
}

func TestRecognizeHonorsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, chatReply(`{"confidence":50}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := testBackend(t, srv.URL)
	_, _, err := b.Recognize(ctx, extract.Request{Image: pngImageFixture(t)})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShouldAttachImage(t *testing.T) {
	jpeg := &imaging.Image{Bytes: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01}, MIME: imaging.MIMEJPEG}
	heic := &imaging.Image{Bytes: []byte{0x00, 0x00, 0x00, 0x18}, MIME: imaging.MIMEHEIC}

	attach, url := ShouldAttachImage(jpeg, 1<<20)
	assert.True(t, attach)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	attach, _ = ShouldAttachImage(nil, 1<<20)
	assert.False(t, attach)

	attach, _ = ShouldAttachImage(&imaging.Image{}, 1<<20)
	assert.False(t, attach)

	attach, _ = ShouldAttachImage(jpeg, 2)
	assert.False(t, attach, "size gate")

	attach, _ = ShouldAttachImage(heic, 1<<20)
	assert.False(t, attach, "providers reject HEIC payloads")
}

func TestBuildSystemPromptSections(t *testing.T) {
	digit := "10 digits, usually starts with 8 or 9"
	pc := &entity.PromptContext{
		RankedBanks: []string{"OPay", "Kuda Microfinance Bank"},
		Examples: []entity.WorkedExample{
			{BankName: "OPay", AccountFormats: []string{"8031234567"}},
		},
		HintBank: "OPay",
		Hints:    &entity.BankHints{Colors: []string{"green", "white"}, Logo: "green O", DigitFormat: digit},
	}

	got := BuildSystemPrompt(pc)
	assert.Contains(t, got, "bank_name, account_number, account_holder_name, amount, confidence")
	assert.Contains(t, got, "OPay, Kuda Microfinance Bank")
	assert.Contains(t, got, "likely OPay")
	assert.Contains(t, got, "green/white")
	assert.Contains(t, got, digit)
	assert.Contains(t, got, "8031234567")

	bare := BuildSystemPrompt(nil)
	assert.Contains(t, bare, "Return ONLY JSON")
	assert.NotContains(t, bare, "likely")
}

func TestBuildUserPromptSeed(t *testing.T) {
	seed := &entity.ExtractedBankData{BankName: "GTBank", AccountNumber: "0123456789"}

	got := BuildUserPrompt(seed, true)
	assert.Contains(t, got, "bank_name: GTBank")
	assert.Contains(t, got, "account_number: 0123456789")
	assert.NotContains(t, got, "account_holder_name:", "empty seed fields are omitted")
	assert.NotContains(t, got, "No screenshot could be attached")

	got = BuildUserPrompt(nil, false)
	assert.Contains(t, got, "No screenshot could be attached")
}

func TestBackendName(t *testing.T) {
	b := NewBackend(Config{Model: "gpt-4o"}, testLogger())
	assert.Equal(t, "openai:gpt-4o", b.Name())
}
