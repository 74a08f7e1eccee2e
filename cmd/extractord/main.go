package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/femi-ajayi/transfer-extractor/internal/async"
	"github.com/femi-ajayi/transfer-extractor/internal/banks"
	"github.com/femi-ajayi/transfer-extractor/internal/cache"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/export"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
	"github.com/femi-ajayi/transfer-extractor/internal/ingest"
	"github.com/femi-ajayi/transfer-extractor/internal/llm"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
	"github.com/femi-ajayi/transfer-extractor/internal/server"
	"github.com/femi-ajayi/transfer-extractor/internal/vision"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("extractord.config.invalid", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pingers, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("extractord.store.open_failed", "backend", cfg.Cache.Backend, "err", err)
		os.Exit(1)
	}

	extractionCache := cache.New(store, cfg.Cache.TTL, logger)
	if n, err := extractionCache.Load(ctx); err != nil {
		logger.Warn("extractord.cache.load_failed", "err", err)
	} else {
		logger.Info("extractord.cache.loaded", "entries", n)
	}

	registry := banks.NewRegistry(logger)
	if err := registry.Load(cfg.Registry.YAMLPath, cfg.Registry.XLSXPath); err != nil {
		logger.Error("extractord.registry.load_failed", "err", err)
		os.Exit(1)
	}
	corrector := banks.NewCorrector(registry, logger)

	var stats llm.StatsStore = llm.NewMemoryStatsStore()
	if ss, ok := store.(llm.StatsStore); ok {
		stats = ss
	}
	adapter := llm.NewPromptAdapter(registry, stats, logger)
	if err := adapter.Restore(ctx); err != nil {
		logger.Warn("extractord.adapter.restore_failed", "err", err)
	}

	primary, secondary := buildBackends(cfg, logger)

	orch := extract.NewOrchestrator(primary, secondary, corrector, adapter, extract.Config{
		QualityThreshold: cfg.Extract.QualityThreshold,
		PrimaryTimeout:   cfg.Extract.PrimaryTimeout,
		SecondaryTimeout: cfg.Extract.SecondaryTimeout,
	}, logger)

	acquirer := imaging.NewAcquirer(cfg.Imaging.FetchTimeout, cfg.Imaging.MaxImageMB, logger)
	converter := imaging.NewConverter(imaging.ExecRunner{}, cfg.Imaging.HeicConverter, cfg.Imaging.ArtifactCacheDir, logger)

	proc := pipeline.NewProcessor(acquirer, converter, orch, extractionCache, adapter, logger)

	queue := async.NewExtractQueue(proc, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	if len(cfg.Ingest.WatchDirs) > 0 {
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Ingest.WatchDirs,
			InitialScan: cfg.Ingest.InitialScan,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if err != nil {
			logger.Error("extractord.watch.start_failed", "dirs", cfg.Ingest.WatchDirs, "err", err)
			os.Exit(1)
		}
		scanner := ingest.NewScanner(nil, logger)
		go feedQueue(ctx, events, errs, scanner, queue, logger)
		logger.Info("extractord.watch.started", "dirs", cfg.Ingest.WatchDirs)
	}

	exporter := export.NewService(extractionCache, registry, logger)

	host, port := splitAddr(cfg.Server.Addr)
	srv, err := server.New(server.Deps{
		Pipeline:  proc,
		Queue:     queue,
		Cache:     extractionCache,
		Banks:     registry,
		Corrector: corrector,
		Exporter:  exporter,
		Pingers:   pingers,
	}, server.Config{Host: host, Port: port}, logger)
	if err != nil {
		logger.Error("extractord.server.wire_failed", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("extractord.serve_failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("extractord.shutdown.begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("extractord.server.shutdown_err", "err", err)
	}
	queue.Shutdown(shutdownCtx)
	if err := store.Close(); err != nil {
		logger.Warn("extractord.store.close_err", "err", err)
	}
	logger.Info("extractord.shutdown.done")
}

// openStore builds the configured cache store and the pinger set for the
// health endpoint. The memory store has nothing to ping.
func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (cache.Store, map[string]server.Pinger, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rs, map[string]server.Pinger{"redis": rs}, nil
	case "sql":
		ss, err := cache.NewSQLStore(ctx, cfg.Cache.SQLDriver, cfg.Cache.SQLDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return ss, map[string]server.Pinger{"sql": ss}, nil
	default:
		return cache.NewMemoryStore(), nil, nil
	}
}

// buildBackends constructs whichever providers are configured. With no
// vision key the LLM backend is promoted to primary and the fallback stage
// records skips.
func buildBackends(cfg *common.Config, logger *slog.Logger) (extract.Backend, extract.Backend) {
	var primary, secondary extract.Backend
	if cfg.Vision.APIKey != "" {
		primary = vision.NewBackend(vision.Config{
			APIKey:     cfg.Vision.APIKey,
			BaseURL:    cfg.Vision.BaseURL,
			Model:      cfg.Vision.Model,
			MaxTokens:  cfg.Vision.MaxTokens,
			Timeout:    cfg.Vision.Timeout,
			MaxImageMB: cfg.Imaging.MaxImageMB,
		}, logger)
	}
	if cfg.LLM.APIKey != "" {
		secondary = llm.NewBackend(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxImageMB:  cfg.Imaging.MaxImageMB,
		}, logger)
	}
	if primary == nil {
		logger.Warn("extractord.backends.no_vision", "promoted", "llm")
		primary, secondary = secondary, nil
	}
	return primary, secondary
}

// feedQueue turns watcher events into extraction jobs, deduplicating by
// content hash. A failed enqueue forgets the hash so a later event can retry.
func feedQueue(ctx context.Context, events <-chan string, errs <-chan error, scanner *ingest.Scanner, queue *async.ExtractQueue, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("extractord.watch.err", "err", err)
		case path, ok := <-events:
			if !ok {
				return
			}
			res, ok := scanner.Accept(path)
			if !ok {
				continue
			}
			job := async.Job{
				ID:          uuid.New(),
				Ref:         res.Path,
				SubmittedAt: time.Now().UTC(),
			}
			if err := queue.Enqueue(ctx, job); err != nil {
				scanner.Forget(res.SHA256)
				logger.Warn("extractord.enqueue.failed", "path", path, "err", err)
			}
		}
	}
}

func splitAddr(addr string) (string, int) {
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
