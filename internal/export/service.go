// Package export renders the cache and bank registry as an XLSX workbook
// for operators.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

const (
	sheetExtractions = "Extractions"
	sheetBankStats   = "Bank Stats"

	timeLayout = "2006-01-02 15:04"
)

// EntrySource lists the live cache entries.
type EntrySource interface {
	Entries(ctx context.Context) ([]entity.CacheEntry, error)
}

// PatternSource exposes the registry's patterns.
type PatternSource interface {
	Patterns() []entity.BankPattern
}

// Service produces XLSX bytes from the cache and registry.
type Service struct {
	entries  EntrySource
	patterns PatternSource
	logger   *slog.Logger
}

func NewService(entries EntrySource, patterns PatternSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{entries: entries, patterns: patterns, logger: logger}
}

// Workbook builds the two-sheet workbook and returns it as bytes, ready for
// a file write or an HTTP download.
func (s *Service) Workbook(ctx context.Context) ([]byte, error) {
	start := time.Now()

	entries, err := s.entries.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetExtractions); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetBankStats); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(sheetExtractions); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := s.writeExtractions(f, entries); err != nil {
		return nil, err
	}
	statRows := s.writeBankStats(f)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"extractions", len(entries),
		"banks", statRows,
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func (s *Service) writeExtractions(f *excelize.File, entries []entity.CacheEntry) error {
	headers := []string{
		"Bank",
		"Account Number",
		"Account Holder",
		"Amount",
		"Confidence",
		"Created",
		"Expires",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetExtractions, cell, h); err != nil {
			return err
		}
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheetExtractions, cell, v)
	}
	row := 2
	for _, e := range entries {
		write(1, row, e.Data.BankName)
		write(2, row, e.Data.AccountNumber)
		write(3, row, e.Data.AccountHolderName)
		write(4, row, e.Data.Amount)
		write(5, row, e.Data.Confidence)
		write(6, row, e.CreatedAt.UTC().Format(timeLayout))
		write(7, row, e.ExpiresAt.UTC().Format(timeLayout))
		row++
	}

	_ = f.SetColWidth(sheetExtractions, "A", "A", 28)
	_ = f.SetColWidth(sheetExtractions, "B", "B", 16)
	_ = f.SetColWidth(sheetExtractions, "C", "C", 32)
	_ = f.SetColWidth(sheetExtractions, "D", "E", 12)
	_ = f.SetColWidth(sheetExtractions, "F", "G", 18)
	return nil
}

// writeBankStats lists every real bank (generic rows are matching
// artifacts, not institutions), most successful first.
func (s *Service) writeBankStats(f *excelize.File) int {
	patterns := s.patterns.Patterns()
	rows := make([]entity.BankPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Tier == constants.TierGeneric {
			continue
		}
		rows = append(rows, p)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SuccessCount != rows[j].SuccessCount {
			return rows[i].SuccessCount > rows[j].SuccessCount
		}
		return rows[i].CanonicalName < rows[j].CanonicalName
	})

	headers := []string{"Bank", "Tier", "Success Count", "Recent Formats", "Last Updated"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetBankStats, cell, h)
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheetBankStats, cell, v)
	}
	row := 2
	for _, p := range rows {
		write(1, row, p.CanonicalName)
		write(2, row, p.Tier.String())
		write(3, row, p.SuccessCount)
		write(4, row, strings.Join(p.AccountFormats, ", "))
		if p.LastUpdated.IsZero() {
			write(5, row, "")
		} else {
			write(5, row, p.LastUpdated.UTC().Format(timeLayout))
		}
		row++
	}

	_ = f.SetColWidth(sheetBankStats, "A", "A", 34)
	_ = f.SetColWidth(sheetBankStats, "B", "B", 14)
	_ = f.SetColWidth(sheetBankStats, "C", "C", 14)
	_ = f.SetColWidth(sheetBankStats, "D", "D", 48)
	_ = f.SetColWidth(sheetBankStats, "E", "E", 18)
	return len(rows)
}
