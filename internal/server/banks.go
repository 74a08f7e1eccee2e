package server

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

type banksResponse struct {
	Banks []entity.BankPattern `json:"banks"`
}

type bankStatsResponse struct {
	Stats []entity.BankStats `json:"stats"`
}

type correctRequest struct {
	Text string `json:"text"`
}

type correctResponse struct {
	Canonical string `json:"canonical"`
	Matched   bool   `json:"matched"`
}

func (s *Server) handleBanksList(c echo.Context) error {
	if s.deps.Banks == nil {
		return errJSON(c, common.NewAppError(common.CodeRegistry, "bank registry is not configured", nil))
	}
	return c.JSON(http.StatusOK, banksResponse{Banks: s.deps.Banks.Patterns()})
}

// handleBankStats returns learned stats, most successful bank first.
func (s *Server) handleBankStats(c echo.Context) error {
	if s.deps.Banks == nil {
		return errJSON(c, common.NewAppError(common.CodeRegistry, "bank registry is not configured", nil))
	}
	stats := s.deps.Banks.Stats()
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].SuccessCount != stats[j].SuccessCount {
			return stats[i].SuccessCount > stats[j].SuccessCount
		}
		return stats[i].CanonicalName < stats[j].CanonicalName
	})
	return c.JSON(http.StatusOK, bankStatsResponse{Stats: stats})
}

func (s *Server) handleBankCorrect(c echo.Context) error {
	if s.deps.Corrector == nil {
		return errJSON(c, common.NewAppError(common.CodeRegistry, "corrector is not configured", nil))
	}
	var req correctRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "invalid request body", err))
	}
	if req.Text == "" {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "text is required", nil))
	}

	canonical, matched := s.deps.Corrector.Correct(req.Text)
	return c.JSON(http.StatusOK, correctResponse{Canonical: canonical, Matched: matched})
}
