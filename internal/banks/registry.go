package banks

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

// Registry is the authoritative, read-mostly table of known institutions.
// Entries come from the compiled-in defaults, optionally overlaid by a YAML
// file and an XLSX sheet. Registry order is stable: it decides ties during
// correction, so overlays update entries in place rather than reordering.
type Registry struct {
	mu       sync.RWMutex
	patterns []entity.BankPattern
	index    map[string]int // lowercased canonical name -> patterns index
	logger   *slog.Logger
}

// NewRegistry returns a registry seeded with the built-in bank table.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		index:  make(map[string]int),
		logger: logger,
	}
	for _, p := range builtinPatterns() {
		r.upsertLocked(p)
	}
	return r
}

// Load rebuilds the registry from the built-in table plus the optional
// overlay files, preserving learned stats across the reload. Empty paths
// are skipped; a configured path that cannot be read is a REGISTRY_ERROR.
func (r *Registry) Load(yamlPath, xlsxPath string) error {
	var fromYAML, fromXLSX []entity.BankPattern
	var err error

	if yamlPath != "" {
		fromYAML, err = parseYAMLFile(yamlPath)
		if err != nil {
			return err
		}
	}
	if xlsxPath != "" {
		fromXLSX, err = parseXLSXFile(xlsxPath)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	stats := r.statsLocked()
	r.patterns = r.patterns[:0]
	r.index = make(map[string]int)
	for _, p := range builtinPatterns() {
		r.upsertLocked(p)
	}
	for _, p := range fromYAML {
		r.upsertLocked(p)
	}
	for _, p := range fromXLSX {
		r.upsertLocked(p)
	}
	r.applyStatsLocked(stats)
	total := len(r.patterns)
	r.mu.Unlock()

	r.logger.Info("banks.registry.load",
		"total", total, "yaml", len(fromYAML), "xlsx", len(fromXLSX))
	return nil
}

// Lookup returns the entry for a canonical name, case-insensitively.
func (r *Registry) Lookup(name string) (entity.BankPattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[normalizeKey(name)]
	if !ok {
		return entity.BankPattern{}, false
	}
	return copyPattern(r.patterns[i]), true
}

// Patterns returns a snapshot of all entries in registry order.
func (r *Registry) Patterns() []entity.BankPattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.BankPattern, len(r.patterns))
	for i, p := range r.patterns {
		out[i] = copyPattern(p)
	}
	return out
}

// Len reports the number of registry entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

// RankedBySuccess returns a snapshot sorted by SuccessCount descending.
// Equal counts keep registry order, so the ranking is deterministic.
func (r *Registry) RankedBySuccess() []entity.BankPattern {
	out := r.Patterns()
	// Insertion sort keeps the sort stable without pulling in sort.SliceStable
	// for a list this small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].SuccessCount > out[j-1].SuccessCount; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// RecordSuccess bumps the success count of a bank after a high-quality
// extraction and remembers the observed account number format, keeping only
// the most recent few. It reports whether the bank is known.
func (r *Registry) RecordSuccess(bankName, accountNumber string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[normalizeKey(bankName)]
	if !ok {
		r.logger.Debug("banks.stats.skip", "bank", bankName)
		return false
	}

	p := &r.patterns[i]
	p.SuccessCount++
	if accountNumber != "" {
		p.AccountFormats = append(p.AccountFormats, accountNumber)
		if len(p.AccountFormats) > constants.AccountFormatHistory {
			trimmed := make([]string, constants.AccountFormatHistory)
			copy(trimmed, p.AccountFormats[len(p.AccountFormats)-constants.AccountFormatHistory:])
			p.AccountFormats = trimmed
		}
	}
	p.LastUpdated = time.Now().UTC()

	r.logger.Debug("banks.stats.record",
		"bank", p.CanonicalName, "success_count", p.SuccessCount)
	return true
}

// Stats returns the learned counters for every entry that has recorded at
// least one success. This is the persistence payload.
func (r *Registry) Stats() []entity.BankStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statsLocked()
}

// ApplyStats restores previously persisted counters onto matching entries.
// Stats for banks no longer in the registry are dropped.
func (r *Registry) ApplyStats(stats []entity.BankStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyStatsLocked(stats)
}

func (r *Registry) statsLocked() []entity.BankStats {
	var out []entity.BankStats
	for _, p := range r.patterns {
		if p.SuccessCount == 0 {
			continue
		}
		formats := make([]string, len(p.AccountFormats))
		copy(formats, p.AccountFormats)
		out = append(out, entity.BankStats{
			CanonicalName:  p.CanonicalName,
			SuccessCount:   p.SuccessCount,
			AccountFormats: formats,
			LastUpdated:    p.LastUpdated,
		})
	}
	return out
}

func (r *Registry) applyStatsLocked(stats []entity.BankStats) {
	for _, s := range stats {
		i, ok := r.index[normalizeKey(s.CanonicalName)]
		if !ok {
			r.logger.Debug("banks.stats.orphan", "bank", s.CanonicalName)
			continue
		}
		p := &r.patterns[i]
		p.SuccessCount = s.SuccessCount
		p.AccountFormats = make([]string, len(s.AccountFormats))
		copy(p.AccountFormats, s.AccountFormats)
		p.LastUpdated = s.LastUpdated
	}
}

// upsertLocked merges one entry into the registry. Existing entries keep
// their position and learned stats; the overlay replaces tier and hints and
// unions match patterns. Entries without a name or patterns are dropped.
//
// One exception: a generic-tier row for a bank that already exists at a
// higher tier becomes a scoring-only alias row. It participates in pattern
// matching with the weak generic bonus but stays out of the index, so
// lookups and stats still resolve to the real entry.
func (r *Registry) upsertLocked(in entity.BankPattern) {
	key := normalizeKey(in.CanonicalName)
	if key == "" || len(in.MatchPatterns) == 0 {
		return
	}
	if !in.Tier.Valid() {
		in.Tier = constants.TierCommercial
	}

	if i, ok := r.index[key]; ok {
		cur := &r.patterns[i]
		if in.Tier == constants.TierGeneric && cur.Tier != constants.TierGeneric {
			r.patterns = append(r.patterns, copyPattern(in))
			return
		}
		cur.Tier = in.Tier
		cur.MatchPatterns = unionPatterns(cur.MatchPatterns, in.MatchPatterns)
		if !hintsEmpty(in.Hints) {
			cur.Hints = in.Hints
		}
		return
	}

	r.patterns = append(r.patterns, copyPattern(in))
	r.index[key] = len(r.patterns) - 1
}

// parseYAMLFile reads an overlay of the form:
//
//	banks:
//	  - name: GTBank
//	    tier: 2
//	    patterns: [gtbank, gtb]
//	    hints:
//	      colors: [orange]
//	      logo: orange square with white GT
//	      digit_format: 10 digits starting with 0
func parseYAMLFile(path string) ([]entity.BankPattern, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeRegistry, "read banks yaml", err)
	}
	var doc struct {
		Banks []entity.BankPattern `yaml:"banks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, common.NewAppError(common.CodeRegistry, "parse banks yaml", err)
	}
	return doc.Banks, nil
}

// parseXLSXFile reads the first sheet of an operator-maintained workbook.
// Expected columns: Name | Tier | Patterns | Colors | Logo | Digit Format,
// with list cells separated by ';' or ','. A header row is skipped when the
// first cell says "name" or "bank".
func parseXLSXFile(path string) ([]entity.BankPattern, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeRegistry, "open banks xlsx", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, common.NewAppError(common.CodeRegistry, "banks xlsx has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, common.NewAppError(common.CodeRegistry, "read banks xlsx rows", err)
	}

	var out []entity.BankPattern
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		first := strings.ToLower(strings.TrimSpace(cell(row, 0)))
		if i == 0 && (first == "name" || first == "bank") {
			continue
		}
		name := strings.TrimSpace(cell(row, 0))
		if name == "" {
			continue
		}
		tier := constants.TierCommercial
		if n, convErr := strconv.Atoi(strings.TrimSpace(cell(row, 1))); convErr == nil {
			tier = constants.Tier(n)
		}
		out = append(out, entity.BankPattern{
			CanonicalName: name,
			Tier:          tier,
			MatchPatterns: splitList(cell(row, 2)),
			Hints: entity.BankHints{
				Colors:      splitList(cell(row, 3)),
				Logo:        strings.TrimSpace(cell(row, 4)),
				DigitFormat: strings.TrimSpace(cell(row, 5)),
			},
		})
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func unionPatterns(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[strings.ToLower(p)] = true
	}
	out := existing
	for _, p := range incoming {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		out = append(out, p)
	}
	return out
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func hintsEmpty(h entity.BankHints) bool {
	return len(h.Colors) == 0 && h.Logo == "" && h.DigitFormat == ""
}

// copyPattern deep-copies the slices so snapshots never alias registry
// internals that RecordSuccess mutates.
func copyPattern(p entity.BankPattern) entity.BankPattern {
	out := p
	out.MatchPatterns = make([]string, len(p.MatchPatterns))
	copy(out.MatchPatterns, p.MatchPatterns)
	if len(p.AccountFormats) > 0 {
		out.AccountFormats = make([]string, len(p.AccountFormats))
		copy(out.AccountFormats, p.AccountFormats)
	} else {
		out.AccountFormats = nil
	}
	if len(p.Hints.Colors) > 0 {
		out.Hints.Colors = make([]string, len(p.Hints.Colors))
		copy(out.Hints.Colors, p.Hints.Colors)
	}
	return out
}
