package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

type purgeResponse struct {
	Purged int `json:"purged"`
}

func (s *Server) handleCacheGet(c echo.Context) error {
	if s.deps.Cache == nil {
		return errJSON(c, common.NewAppError(common.CodeCacheIO, "cache is not configured", nil))
	}
	account := c.Param("account")
	bank := c.Param("bank")

	data, ok := s.deps.Cache.Get(c.Request().Context(), account, bank)
	if !ok {
		return errJSON(c, common.NewAppError(common.CodeNotFound, "no cached extraction for pair", nil))
	}
	return c.JSON(http.StatusOK, data)
}

func (s *Server) handleCacheSimilar(c echo.Context) error {
	if s.deps.Cache == nil {
		return errJSON(c, common.NewAppError(common.CodeCacheIO, "cache is not configured", nil))
	}
	account := c.QueryParam("account")
	if account == "" {
		return errJSON(c, common.NewAppError(common.CodeInvalidArgument, "account query parameter is required", nil))
	}

	data, ok := s.deps.Cache.FindSimilar(c.Request().Context(), entity.ExtractedBankData{AccountNumber: account})
	if !ok {
		return errJSON(c, common.NewAppError(common.CodeNotFound, "no similar account cached", nil))
	}
	return c.JSON(http.StatusOK, data)
}

func (s *Server) handleCachePurge(c echo.Context) error {
	if s.deps.Cache == nil {
		return errJSON(c, common.NewAppError(common.CodeCacheIO, "cache is not configured", nil))
	}
	purged, err := s.deps.Cache.Purge(c.Request().Context())
	if err != nil {
		return errJSON(c, err)
	}
	return c.JSON(http.StatusOK, purgeResponse{Purged: purged})
}
