// Package main implements the bankctl CLI for operator tasks against the
// extraction cache and bank registry.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/femi-ajayi/transfer-extractor/internal/banks"
	"github.com/femi-ajayi/transfer-extractor/internal/cache"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
)

var (
	verbose bool
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bankctl",
	Short: "Operator CLI for the transfer-extractor cache and bank registry",
	Long: `bankctl wires the extraction cache and bank registry in-process, so it
works against the same stores the daemon uses (set CACHE_BACKEND, REDIS_ADDR,
or CACHE_DB_DSN to point at them) without needing the daemon to be up.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log wiring details to stderr")
	rootCmd.AddCommand(banksCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(exportCmd)
}

// app is the in-process wiring shared by all commands.
type app struct {
	cfg       *common.Config
	store     cache.Store
	cache     *cache.Cache
	registry  *banks.Registry
	corrector *banks.Corrector
	logger    *slog.Logger
}

// wire builds the store, cache, and registry from the environment. Unlike
// the daemon it does not demand backend API keys: bankctl never calls a
// provider.
func wire(ctx context.Context) (*app, error) {
	out := io.Discard
	if verbose {
		out = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := common.LoadConfig()

	var (
		store cache.Store
		err   error
	)
	switch cfg.Cache.Backend {
	case "redis":
		store, err = cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	case "sql":
		store, err = cache.NewSQLStore(ctx, cfg.Cache.SQLDriver, cfg.Cache.SQLDSN, logger)
	default:
		store = cache.NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}

	registry := banks.NewRegistry(logger)
	if err := registry.Load(cfg.Registry.YAMLPath, cfg.Registry.XLSXPath); err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		store:     store,
		cache:     cache.New(store, cfg.Cache.TTL, logger),
		registry:  registry,
		corrector: banks.NewCorrector(registry, logger),
		logger:    logger,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("bankctl.store.close_err", "err", err)
	}
}

// withApp wires the app lazily so --help and flag errors never open stores.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := wire(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a, args)
	}
}
