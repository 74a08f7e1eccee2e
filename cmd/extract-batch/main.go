package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/femi-ajayi/transfer-extractor/internal/async"
	"github.com/femi-ajayi/transfer-extractor/internal/banks"
	"github.com/femi-ajayi/transfer-extractor/internal/cache"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/export"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
	"github.com/femi-ajayi/transfer-extractor/internal/imaging"
	"github.com/femi-ajayi/transfer-extractor/internal/ingest"
	"github.com/femi-ajayi/transfer-extractor/internal/llm"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
	"github.com/femi-ajayi/transfer-extractor/internal/vision"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// countingRunner wraps the pipeline so the summary can report how many
// screenshots yielded usable data.
type countingRunner struct {
	proc *pipeline.Processor

	mu     sync.Mutex
	usable int
	empty  int
}

func (r *countingRunner) Process(ctx context.Context, in pipeline.ExtractInput) (entity.ExtractionOutcome, error) {
	out, err := r.proc.Process(ctx, in)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil || out.Result.IsEmpty() {
		r.empty++
	} else {
		r.usable++
	}
	return out, err
}

func (r *countingRunner) totals() (usable, empty int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usable, r.empty
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of transfer screenshots to process (required)")
		out     = flag.String("out", "", "output XLSX report path (defaults to the parent directory)")
		workers = flag.Int("workers", 4, "parallel extraction workers")
		timeout = flag.Duration("timeout", 2*time.Minute, "per-screenshot processing timeout")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "extractions.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("batch.config.invalid", "err", err)
		os.Exit(1)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("batch.store.open_failed", "backend", cfg.Cache.Backend, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	extractionCache := cache.New(store, cfg.Cache.TTL, logger)
	if _, err := extractionCache.Load(ctx); err != nil {
		logger.Warn("batch.cache.load_failed", "err", err)
	}

	registry := banks.NewRegistry(logger)
	if err := registry.Load(cfg.Registry.YAMLPath, cfg.Registry.XLSXPath); err != nil {
		logger.Error("batch.registry.load_failed", "err", err)
		os.Exit(1)
	}
	corrector := banks.NewCorrector(registry, logger)

	var stats llm.StatsStore = llm.NewMemoryStatsStore()
	if ss, ok := store.(llm.StatsStore); ok {
		stats = ss
	}
	adapter := llm.NewPromptAdapter(registry, stats, logger)
	if err := adapter.Restore(ctx); err != nil {
		logger.Warn("batch.adapter.restore_failed", "err", err)
	}

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
		logger.Warn("batch.backends.no_vision", "promoted", "llm")
		primary, secondary = secondary, nil
	}

	orch := extract.NewOrchestrator(primary, secondary, corrector, adapter, extract.Config{
		QualityThreshold: cfg.Extract.QualityThreshold,
		PrimaryTimeout:   cfg.Extract.PrimaryTimeout,
		SecondaryTimeout: cfg.Extract.SecondaryTimeout,
	}, logger)

	acquirer := imaging.NewAcquirer(cfg.Imaging.FetchTimeout, cfg.Imaging.MaxImageMB, logger)
	converter := imaging.NewConverter(imaging.ExecRunner{}, cfg.Imaging.HeicConverter, cfg.Imaging.ArtifactCacheDir, logger)

	runner := &countingRunner{proc: pipeline.NewProcessor(acquirer, converter, orch, extractionCache, adapter, logger)}

	queue := async.NewExtractQueue(runner, logger,
		async.WithWorkers(*workers),
		async.WithQueueSize(1024),
		async.WithProcessTimeout(*timeout),
	)

	scanner := ingest.NewScanner(nil, logger)
	logger.Info("batch.scan.start", "dir", *dir)
	results, scanStats, err := scanner.ScanDirectory(ctx, *dir)
	if err != nil {
		logger.Error("batch.scan.failed", "dir", *dir, "err", err)
		os.Exit(1)
	}

	enqueued := 0
	for _, r := range results {
		if r.Err != "" || r.Deduplicated {
			continue
		}
		job := async.Job{ID: uuid.New(), Ref: r.Path, SubmittedAt: time.Now().UTC()}
		if err := queue.Enqueue(ctx, job); err != nil {
			logger.Warn("batch.enqueue.failed", "path", r.Path, "err", err)
			continue
		}
		enqueued++
	}

	// Shutdown drains: every enqueued job runs to completion before it
	// returns.
	drainCtx, cancel := context.WithTimeout(ctx, time.Duration(enqueued+1)*(*timeout))
	defer cancel()
	queue.Shutdown(drainCtx)

	logger.Info("batch.export.start", "out", *out)
	exporter := export.NewService(extractionCache, registry, logger)
	raw, err := exporter.Workbook(ctx)
	if err != nil {
		logger.Error("batch.export.failed", "err", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, raw, 0644); err != nil {
		logger.Error("batch.export.write_failed", "out", *out, "err", err)
		os.Exit(1)
	}

	usable, empty := runner.totals()
	logger.Info("batch.done",
		"scanned", scanStats.Scanned,
		"matched", scanStats.Matched,
		"deduplicated", scanStats.Deduplicated,
		"enqueued", enqueued,
		"usable", usable,
		"empty", empty,
		"out", *out)

	fmt.Printf("Batch extraction complete!\n")
	fmt.Printf("- Screenshots scanned: %d\n", scanStats.Scanned)
	fmt.Printf("- Enqueued: %d\n", enqueued)
	fmt.Printf("- Usable extractions: %d\n", usable)
	fmt.Printf("- Empty/failed: %d\n", empty)
	fmt.Printf("- Report: %s\n", *out)
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	case "sql":
		return cache.NewSQLStore(ctx, cfg.Cache.SQLDriver, cfg.Cache.SQLDSN, logger)
	default:
		return cache.NewMemoryStore(), nil
	}
}
