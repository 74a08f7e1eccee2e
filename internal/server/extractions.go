package server

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/femi-ajayi/transfer-extractor/internal/async"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
)

// extractRequest is the body for the sync and async extraction routes.
type extractRequest struct {
	ImageRef      string `json:"image_ref"`
	AccountNumber string `json:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

type asyncAccepted struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleExtract(c echo.Context) error {
	var req extractRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "invalid request body", err))
	}

	out, err := s.deps.Pipeline.Process(c.Request().Context(), pipeline.ExtractInput{
		Ref:                req.ImageRef,
		KnownAccountNumber: req.AccountNumber,
		KnownBankName:      req.BankName,
	})
	if err != nil {
		return errJSON(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// handleExtractUpload accepts a multipart screenshot in the "image" field;
// account_number and bank_name may ride along as form values.
func (s *Server) handleExtractUpload(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "multipart field 'image' is required", err))
	}
	f, err := fh.Open()
	if err != nil {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "open uploaded image", err))
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "read uploaded image", err))
	}

	out, err := s.deps.Pipeline.Process(c.Request().Context(), pipeline.ExtractInput{
		Ref:                "upload:" + fh.Filename,
		ImageBytes:         raw,
		KnownAccountNumber: c.FormValue("account_number"),
		KnownBankName:      c.FormValue("bank_name"),
	})
	if err != nil {
		return errJSON(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleExtractAsync(c echo.Context) error {
	if s.deps.Queue == nil {
		return errJSON(c, common.NewAppError(common.CodeInternal, "async queue is not configured", nil))
	}
	var req extractRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "invalid request body", err))
	}
	if req.ImageRef == "" {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "image_ref is required", nil))
	}

	job := async.Job{
		ID:                 uuid.New(),
		Ref:                req.ImageRef,
		KnownAccountNumber: req.AccountNumber,
		KnownBankName:      req.BankName,
		SubmittedAt:        time.Now().UTC(),
		TraceID:            c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if err := s.deps.Queue.Enqueue(c.Request().Context(), job); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(http.StatusAccepted, asyncAccepted{JobID: job.ID.String()})
}
