package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/femi-ajayi/transfer-extractor/internal/cache"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
)

func main() {
	cfg := common.LoadConfig()
	if cfg.Cache.Backend == "memory" {
		log.Println("CACHE_BACKEND is memory: nothing to probe")
		log.Println("  redis: export CACHE_BACKEND=redis REDIS_ADDR=localhost:6379")
		log.Println("  sql:   export CACHE_BACKEND=sql CACHE_DB_DSN=./cache.db")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	switch cfg.Cache.Backend {
	case "redis":
		store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatalf("opening redis: %v", err)
		}
		defer store.Close()
		probe(ctx, "redis", store, func() (int, error) {
			entries, err := store.List(ctx)
			return len(entries), err
		})

	case "sql":
		store, err := cache.NewSQLStore(ctx, cfg.Cache.SQLDriver, cfg.Cache.SQLDSN, logger)
		if err != nil {
			log.Fatalf("opening sql store (%s): %v", cfg.Cache.SQLDriver, err)
		}
		defer store.Close()
		probe(ctx, "sql", store, func() (int, error) {
			entries, err := store.List(ctx)
			return len(entries), err
		})

		// Learned stats ride in the same database.
		stats, err := store.LoadBankStats(ctx)
		if err != nil {
			log.Fatalf("loading bank stats: %v", err)
		}
		log.Printf("bank stats rows: %d", len(stats))
		for _, s := range stats {
			log.Printf("- %s: %d successes", s.CanonicalName, s.SuccessCount)
		}

	default:
		log.Fatalf("unknown CACHE_BACKEND %q", cfg.Cache.Backend)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func probe(ctx context.Context, name string, p pinger, count func() (int, error)) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		log.Fatalf("%s health: FAIL (%v)", name, err)
	}
	log.Printf("%s health: OK", name)

	n, err := count()
	if err != nil {
		log.Fatalf("listing cache entries: %v", err)
	}
	log.Printf("cache entries: %d", n)
}
