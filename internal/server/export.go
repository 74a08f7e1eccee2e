package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExport(c echo.Context) error {
	if s.deps.Exporter == nil {
		return errJSON(c, common.NewAppError(common.CodeInternal, "export is not configured", nil))
	}
	raw, err := s.deps.Exporter.Workbook(c.Request().Context())
	if err != nil {
		return errJSON(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="extractions.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, raw)
}
