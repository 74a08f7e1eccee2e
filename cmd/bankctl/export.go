package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/femi-ajayi/transfer-extractor/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the extractions workbook to disk",
	Long: `Render the two-sheet XLSX workbook (cached extractions plus per-bank
stats) from the configured store.

Examples:
  bankctl export --out ./extractions.xlsx
  CACHE_BACKEND=sql CACHE_DB_DSN=./cache.db bankctl export --out report.xlsx`,
	Args: cobra.NoArgs,
	RunE: withApp(runExport),
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "extractions.xlsx", "output XLSX path")
}

func runExport(ctx context.Context, a *app, _ []string) error {
	raw, err := export.NewService(a.cache, a.registry, a.logger).Workbook(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, raw, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", exportOut, len(raw))
	return nil
}
