// Package server exposes the extraction pipeline, cache, and bank registry
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/femi-ajayi/transfer-extractor/internal/async"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
)

// Config holds the listen address.
type Config struct {
	Host string
	Port int
}

// Pipeline runs one extraction.
type Pipeline interface {
	Process(ctx context.Context, in pipeline.ExtractInput) (entity.ExtractionOutcome, error)
}

// JobQueue accepts async extraction jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// CacheAPI is the slice of the extraction cache the HTTP surface needs.
type CacheAPI interface {
	Get(ctx context.Context, accountNumber, bankName string) (entity.ExtractedBankData, bool)
	FindSimilar(ctx context.Context, data entity.ExtractedBankData) (entity.ExtractedBankData, bool)
	Purge(ctx context.Context) (int, error)
}

// BankDirectory is the registry surface: listing, stats, and correction.
type BankDirectory interface {
	Patterns() []entity.BankPattern
	Stats() []entity.BankStats
}

// Corrector maps raw bank-name text to a canonical name.
type Corrector interface {
	Correct(raw string) (string, bool)
}

// Exporter renders the operator workbook.
type Exporter interface {
	Workbook(ctx context.Context) ([]byte, error)
}

// Pinger is anything with a health check. Stores that cannot ping simply
// stay out of the map.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps collects everything the handlers touch. Pipeline is required; nil
// optional deps disable their routes' functionality with a 503.
type Deps struct {
	Pipeline  Pipeline
	Queue     JobQueue
	Cache     CacheAPI
	Banks     BankDirectory
	Corrector Corrector
	Exporter  Exporter
	Pingers   map[string]Pinger
}

// Server wraps echo with the extraction routes.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// New builds the server and registers all routes.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("server needs a pipeline")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("16M"))
	e.Use(requestContext)
	e.Use(requestLogger(logger))

	s := &Server{echo: e, deps: deps, cfg: cfg, logger: logger}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)

	v1 := s.echo.Group("/v1")
	v1.POST("/extractions", s.handleExtract)
	v1.POST("/extractions/upload", s.handleExtractUpload)
	v1.POST("/extractions/async", s.handleExtractAsync)

	v1.GET("/cache/:account/:bank", s.handleCacheGet)
	v1.GET("/cache/similar", s.handleCacheSimilar)
	v1.POST("/cache/purge", s.handleCachePurge)

	v1.GET("/banks", s.handleBanksList)
	v1.GET("/banks/stats", s.handleBankStats)
	v1.POST("/banks/correct", s.handleBankCorrect)

	v1.GET("/export.xlsx", s.handleExport)
}

// requestContext copies echo's request ID into the request context so
// pipeline and backend logs carry the same req_id as the access log.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		if rid != "" {
			ctx := common.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http.request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"req_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"elapsed_ms", time.Since(start).Milliseconds())
			return err
		}
	}
}

// errorBody is the uniform error payload.
type errorBody struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// errJSON maps an AppError code to its HTTP status and writes the payload.
func errJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch common.CodeOf(err) {
	case common.CodeValidation, common.CodeInvalidArgument:
		status = http.StatusBadRequest
	case common.CodeNotFound:
		status = http.StatusNotFound
	case common.CodeImageAcquisition:
		status = http.StatusUnprocessableEntity
	case common.CodeCacheIO:
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, errorBody{Code: common.CodeOf(err), Error: err.Error()})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("server.start", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server.shutdown")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }
