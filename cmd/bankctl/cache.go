package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the extraction cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <account> <bank>",
	Short: "Print the cached extraction for an account/bank pair",
	Long: `Look up one cached extraction by its key fields.

Examples:
  bankctl cache get 0123456789 GTBank
  CACHE_BACKEND=redis bankctl cache get 0123456789 "Zenith Bank"`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(runCacheGet),
}

var cacheSimilarCmd = &cobra.Command{
	Use:   "similar <account>",
	Short: "Find a cached account within edit distance of the given one",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runCacheSimilar),
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached extraction",
	Args:  cobra.NoArgs,
	RunE:  withApp(runCachePurge),
}

func init() {
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheSimilarCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

func runCacheGet(ctx context.Context, a *app, args []string) error {
	data, ok := a.cache.Get(ctx, args[0], args[1])
	if !ok {
		return fmt.Errorf("no cached extraction for %s at %s", args[0], args[1])
	}
	return printJSON(data)
}

func runCacheSimilar(ctx context.Context, a *app, args []string) error {
	data, ok := a.cache.FindSimilar(ctx, entity.ExtractedBankData{AccountNumber: args[0]})
	if !ok {
		return fmt.Errorf("no cached account similar to %s", args[0])
	}
	return printJSON(data)
}

func runCachePurge(ctx context.Context, a *app, _ []string) error {
	purged, err := a.cache.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d entries\n", purged)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
