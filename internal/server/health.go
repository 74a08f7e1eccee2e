package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores,omitempty"`
}

// handleHealthz pings every configured store. Any failure turns the overall
// status to degraded with a 503, but each store reports individually.
func (s *Server) handleHealthz(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if len(s.deps.Pingers) > 0 {
		resp.Stores = make(map[string]string, len(s.deps.Pingers))
	}

	status := http.StatusOK
	for name, p := range s.deps.Pingers {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health.ping.failed", "store", name, "err", err)
			resp.Stores[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Stores[name] = "ok"
	}
	return c.JSON(status, resp)
}
