package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/async"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePipeline struct {
	out     entity.ExtractionOutcome
	err     error
	last    pipeline.ExtractInput
	lastCtx context.Context
}

func (f *fakePipeline) Process(ctx context.Context, in pipeline.ExtractInput) (entity.ExtractionOutcome, error) {
	f.last = in
	f.lastCtx = ctx
	return f.out, f.err
}

type fakeQueue struct {
	jobs []async.Job
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeCacheAPI struct {
	data     map[string]entity.ExtractedBankData
	similar  *entity.ExtractedBankData
	purged   int
	purgeErr error
}

func (f *fakeCacheAPI) Get(_ context.Context, accountNumber, bankName string) (entity.ExtractedBankData, bool) {
	d, ok := f.data[accountNumber+"|"+bankName]
	return d, ok
}

func (f *fakeCacheAPI) FindSimilar(_ context.Context, _ entity.ExtractedBankData) (entity.ExtractedBankData, bool) {
	if f.similar == nil {
		return entity.ExtractedBankData{}, false
	}
	return *f.similar, true
}

func (f *fakeCacheAPI) Purge(_ context.Context) (int, error) {
	return f.purged, f.purgeErr
}

type fakeBanks struct {
	patterns []entity.BankPattern
	stats    []entity.BankStats
}

func (f *fakeBanks) Patterns() []entity.BankPattern { return f.patterns }
func (f *fakeBanks) Stats() []entity.BankStats      { return f.stats }

type fakeCorrector struct {
	canonical string
	matched   bool
}

func (f *fakeCorrector) Correct(string) (string, bool) { return f.canonical, f.matched }

type fakeExporter struct {
	raw []byte
	err error
}

func (f *fakeExporter) Workbook(context.Context) ([]byte, error) { return f.raw, f.err }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func extractedSample() entity.ExtractedBankData {
	return entity.ExtractedBankData{
		BankName:      "GTBank",
		AccountNumber: "0123456789",
		Confidence:    92,
	}.Normalize()
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Pipeline == nil {
		deps.Pipeline = &fakePipeline{}
	}
	s, err := New(deps, Config{}, testLogger())
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresPipeline(t *testing.T) {
	_, err := New(Deps{}, Config{}, testLogger())
	require.Error(t, err)
}

func TestHandleExtract(t *testing.T) {
	fp := &fakePipeline{out: entity.ExtractionOutcome{Result: extractedSample()}}
	s := newTestServer(t, Deps{Pipeline: fp})

	rec := doJSON(s, http.MethodPost, "/v1/extractions", map[string]string{
		"image_ref":      "shots/a.png",
		"account_number": "0123456789",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shots/a.png", fp.last.Ref)
	assert.Equal(t, "0123456789", fp.last.KnownAccountNumber)
	assert.NotEmpty(t, common.RequestIDFromContext(fp.lastCtx),
		"request id must reach the pipeline context")

	var out entity.ExtractionOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "GTBank", out.Result.BankName)
}

func TestHandleExtractErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid argument", common.NewAppError(common.CodeInvalidArgument, "no input", nil), http.StatusBadRequest},
		{"validation", common.NewAppError(common.CodeValidation, "bad payload", nil), http.StatusBadRequest},
		{"not found", common.NewAppError(common.CodeNotFound, "missing", nil), http.StatusNotFound},
		{"acquisition", common.NewAppError(common.CodeImageAcquisition, "no image", nil), http.StatusUnprocessableEntity},
		{"cache io", common.NewAppError(common.CodeCacheIO, "store down", nil), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Deps{Pipeline: &fakePipeline{err: tt.err}})

			rec := doJSON(s, http.MethodPost, "/v1/extractions", map[string]string{"image_ref": "x.png"})

			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHandleExtractUpload(t *testing.T) {
	fp := &fakePipeline{out: entity.ExtractionOutcome{Result: extractedSample()}}
	s := newTestServer(t, Deps{Pipeline: fp})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("image", "shot.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("bank_name", "OPay"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upload:shot.png", fp.last.Ref)
	assert.Equal(t, []byte("png-bytes"), fp.last.ImageBytes)
	assert.Equal(t, "OPay", fp.last.KnownBankName)
}

func TestHandleExtractUploadMissingFile(t *testing.T) {
	s := newTestServer(t, Deps{})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("bank_name", "OPay"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExtractAsync(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(t, Deps{Queue: q})

	rec := doJSON(s, http.MethodPost, "/v1/extractions/async", map[string]string{
		"image_ref": "shots/b.png",
		"bank_name": "OPay",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp asyncAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.JobID)
	assert.NoError(t, err)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, "shots/b.png", q.jobs[0].Ref)
	assert.Equal(t, "OPay", q.jobs[0].KnownBankName)
	assert.NotEmpty(t, q.jobs[0].TraceID)
	assert.False(t, q.jobs[0].SubmittedAt.IsZero())
}

func TestHandleExtractAsyncMissingRef(t *testing.T) {
	s := newTestServer(t, Deps{Queue: &fakeQueue{}})

	rec := doJSON(s, http.MethodPost, "/v1/extractions/async", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCacheGet(t *testing.T) {
	c := &fakeCacheAPI{data: map[string]entity.ExtractedBankData{
		"0123456789|GTBank": extractedSample(),
	}}
	s := newTestServer(t, Deps{Cache: c})

	rec := doJSON(s, http.MethodGet, "/v1/cache/0123456789/GTBank", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var data entity.ExtractedBankData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "GTBank", data.BankName)

	rec = doJSON(s, http.MethodGet, "/v1/cache/9999999999/GTBank", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCacheSimilar(t *testing.T) {
	known := extractedSample()
	s := newTestServer(t, Deps{Cache: &fakeCacheAPI{similar: &known}})

	rec := doJSON(s, http.MethodGet, "/v1/cache/similar?account=0123456780", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(s, http.MethodGet, "/v1/cache/similar", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s = newTestServer(t, Deps{Cache: &fakeCacheAPI{}})
	rec = doJSON(s, http.MethodGet, "/v1/cache/similar?account=0123456780", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCachePurge(t *testing.T) {
	s := newTestServer(t, Deps{Cache: &fakeCacheAPI{purged: 3}})

	rec := doJSON(s, http.MethodPost, "/v1/cache/purge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp purgeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Purged)

	s = newTestServer(t, Deps{Cache: &fakeCacheAPI{
		purgeErr: common.NewAppError(common.CodeCacheIO, "store down", nil),
	}})
	rec = doJSON(s, http.MethodPost, "/v1/cache/purge", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleBanksList(t *testing.T) {
	banks := &fakeBanks{patterns: []entity.BankPattern{
		{CanonicalName: "OPay", Tier: constants.TierDigital},
		{CanonicalName: "GTBank", Tier: constants.TierCommercial},
	}}
	s := newTestServer(t, Deps{Banks: banks})

	rec := doJSON(s, http.MethodGet, "/v1/banks", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp banksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Banks, 2)
	assert.Equal(t, "OPay", resp.Banks[0].CanonicalName)
}

func TestHandleBankStatsRanked(t *testing.T) {
	banks := &fakeBanks{stats: []entity.BankStats{
		{CanonicalName: "GTBank", SuccessCount: 2},
		{CanonicalName: "OPay", SuccessCount: 7},
		{CanonicalName: "Kuda Microfinance Bank", SuccessCount: 2},
	}}
	s := newTestServer(t, Deps{Banks: banks})

	rec := doJSON(s, http.MethodGet, "/v1/banks/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp bankStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Stats, 3)
	assert.Equal(t, "OPay", resp.Stats[0].CanonicalName)
	assert.Equal(t, "GTBank", resp.Stats[1].CanonicalName, "ties break alphabetically")
	assert.Equal(t, "Kuda Microfinance Bank", resp.Stats[2].CanonicalName)
}

func TestHandleBankCorrect(t *testing.T) {
	s := newTestServer(t, Deps{Corrector: &fakeCorrector{canonical: "OPay", matched: true}})

	rec := doJSON(s, http.MethodPost, "/v1/banks/correct", map[string]string{"text": "opay digital"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp correctResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OPay", resp.Canonical)
	assert.True(t, resp.Matched)

	rec = doJSON(s, http.MethodPost, "/v1/banks/correct", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExport(t *testing.T) {
	s := newTestServer(t, Deps{Exporter: &fakeExporter{raw: []byte("workbook-bytes")}})

	rec := doJSON(s, http.MethodGet, "/v1/export.xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "extractions.xlsx")
	assert.Equal(t, "workbook-bytes", rec.Body.String())
}

func TestHandleExportFailure(t *testing.T) {
	s := newTestServer(t, Deps{Exporter: &fakeExporter{err: errors.New("boom")}})

	rec := doJSON(s, http.MethodGet, "/v1/export.xlsx", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t, Deps{Pingers: map[string]Pinger{
		"sql":   fakePinger{},
		"redis": fakePinger{},
	}})

	rec := doJSON(s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Stores["sql"])
	assert.Equal(t, "ok", resp.Stores["redis"])
}

func TestHandleHealthzDegraded(t *testing.T) {
	s := newTestServer(t, Deps{Pingers: map[string]Pinger{
		"sql":   fakePinger{},
		"redis": fakePinger{err: errors.New("connection refused")},
	}})

	rec := doJSON(s, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Stores["sql"])
	assert.True(t, strings.Contains(resp.Stores["redis"], "connection refused"))
}

func TestRequestIDHeaderSet(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec := doJSON(s, http.MethodGet, "/healthz", nil)

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
