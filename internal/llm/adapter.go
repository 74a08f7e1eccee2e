package llm

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/banks"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/extract"
)

// StatsStore persists learned bank recognition stats across restarts. The
// SQL cache store implements it; MemoryStatsStore is the in-process
// default.
type StatsStore interface {
	SaveBankStats(ctx context.Context, stats entity.BankStats) error
	LoadBankStats(ctx context.Context) ([]entity.BankStats, error)
}

// PromptAdapter turns registry knowledge into prompt context and feeds
// verified extractions back as learned stats. It never changes matching
// correctness, only ranking and examples.
type PromptAdapter struct {
	registry *banks.Registry
	store    StatsStore
	logger   *slog.Logger
}

var _ extract.ContextBuilder = (*PromptAdapter)(nil)

// NewPromptAdapter wires the adapter. store may be nil: stats then live
// only as long as the registry does.
func NewPromptAdapter(registry *banks.Registry, store StatsStore, logger *slog.Logger) *PromptAdapter {
	if registry == nil {
		panic("llm: prompt adapter needs a registry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptAdapter{registry: registry, store: store, logger: logger}
}

// Restore loads persisted stats into the registry. An empty store is not an
// error.
func (a *PromptAdapter) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	stats, err := a.store.LoadBankStats(ctx)
	if err != nil {
		return err
	}
	a.registry.ApplyStats(stats)
	a.logger.Info("llm.adapter.stats_restored", "banks", len(stats))
	return nil
}

// BuildContext assembles ranked banks, up to the worked-example limit of
// past successes, and recognition cues for the hinted bank. The generic
// catch-all entry never appears in prompts.
func (a *PromptAdapter) BuildContext(bankNameHint string) entity.PromptContext {
	ranked := a.registry.RankedBySuccess()

	pc := entity.PromptContext{}
	for _, p := range ranked {
		if p.Tier == constants.TierGeneric {
			continue
		}
		pc.RankedBanks = append(pc.RankedBanks, p.CanonicalName)
		if len(pc.Examples) < constants.WorkedExampleLimit && p.SuccessCount > 0 && len(p.AccountFormats) > 0 {
			pc.Examples = append(pc.Examples, entity.WorkedExample{
				BankName:       p.CanonicalName,
				AccountFormats: dedupeFormats(p.AccountFormats),
			})
		}
	}

	if bankNameHint != "" {
		if p, ok := a.registry.Lookup(bankNameHint); ok && p.Tier != constants.TierGeneric {
			pc.HintBank = p.CanonicalName
			if h := p.Hints; h.Logo != "" || h.DigitFormat != "" || len(h.Colors) > 0 {
				hints := h
				pc.Hints = &hints
			}
		}
	}
	return pc
}

// RecordSuccess counts one verified extraction against its bank and, when a
// store is configured, persists that bank's updated stats.
func (a *PromptAdapter) RecordSuccess(ctx context.Context, bankName string, data entity.ExtractedBankData) {
	if bankName == "" {
		return
	}
	if !a.registry.RecordSuccess(bankName, data.AccountNumber) {
		a.logger.Debug("llm.adapter.record_miss", "bank", bankName)
		return
	}
	if a.store == nil {
		return
	}
	p, ok := a.registry.Lookup(bankName)
	if !ok {
		return
	}
	stats := entity.BankStats{
		CanonicalName:  p.CanonicalName,
		SuccessCount:   p.SuccessCount,
		AccountFormats: p.AccountFormats,
		LastUpdated:    p.LastUpdated,
	}
	if err := a.store.SaveBankStats(ctx, stats); err != nil {
		a.logger.Warn("llm.adapter.stats_save_failed", "bank", p.CanonicalName, "err", err)
	}
}

func dedupeFormats(formats []string) []string {
	seen := make(map[string]struct{}, len(formats))
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// MemoryStatsStore is the no-persistence default: stats survive exactly as
// long as the process.
type MemoryStatsStore struct {
	mu    sync.Mutex
	stats map[string]entity.BankStats
}

var _ StatsStore = (*MemoryStatsStore)(nil)

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{stats: make(map[string]entity.BankStats)}
}

func (s *MemoryStatsStore) SaveBankStats(_ context.Context, stats entity.BankStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.CanonicalName] = stats
	return nil
}

func (s *MemoryStatsStore) LoadBankStats(_ context.Context) ([]entity.BankStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.BankStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out, nil
}
