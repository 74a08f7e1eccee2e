package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

// Cache reuses verified extractions keyed by (account number, bank name).
// Store failures never fail an extraction: Get and FindSimilar degrade to a
// miss, Put logs and moves on. Expiry is lazy; Load prunes, and Get
// re-checks even right after a load.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	// now is swappable so expiry behavior is testable around the TTL edge.
	now func() time.Time
}

// New creates a cache over a store. A non-positive ttl falls back to the
// default.
func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = constants.CacheTTLDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Key builds the canonical cache key for an account/bank pair: whitespace
// stripped, lowercased, joined with an underscore.
func Key(accountNumber, bankName string) string {
	return normalizeKeyPart(accountNumber) + "_" + normalizeKeyPart(bankName)
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// Get returns a previously verified extraction for the pair, or a miss.
// Expired entries are dropped on sight.
func (c *Cache) Get(ctx context.Context, accountNumber, bankName string) (entity.ExtractedBankData, bool) {
	if accountNumber == "" || bankName == "" {
		return entity.ExtractedBankData{}, false
	}
	key := Key(accountNumber, bankName)

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return entity.ExtractedBankData{}, false
	}
	if err != nil {
		c.logger.Warn("cache.get.err", "key", key, "err", err)
		return entity.ExtractedBankData{}, false
	}

	entry, err := decodeEntry(key, raw)
	if err != nil {
		c.logger.Warn("cache.get.corrupt", "key", key, "err", err)
		_ = c.store.Delete(ctx, key)
		return entity.ExtractedBankData{}, false
	}
	if entry.Expired(c.now()) {
		_ = c.store.Delete(ctx, key)
		c.logger.Debug("cache.get.expired", "key", key)
		return entity.ExtractedBankData{}, false
	}
	return entry.Data, true
}

// Put stores a verified extraction with the configured TTL. Entries without
// both key parts are skipped; store failures are logged, not surfaced.
func (c *Cache) Put(ctx context.Context, data entity.ExtractedBankData) {
	if data.AccountNumber == "" || data.BankName == "" {
		c.logger.Debug("cache.put.skip",
			"account_present", data.AccountNumber != "", "bank_present", data.BankName != "")
		return
	}
	key := Key(data.AccountNumber, data.BankName)
	now := c.now()
	entry := entity.CacheEntry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache.put.marshal", "key", key, "err", err)
		return
	}
	if err := c.store.Put(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("cache.put.err", "key", key, "err", err)
		return
	}
	c.logger.Debug("cache.put.ok", "key", key)
}

// FindSimilar scans stored entries for an account number within the
// similarity threshold of data's. Keys are visited in sorted order, so the
// winner is deterministic. Expired entries never match.
func (c *Cache) FindSimilar(ctx context.Context, data entity.ExtractedBankData) (entity.ExtractedBankData, bool) {
	if data.AccountNumber == "" {
		return entity.ExtractedBankData{}, false
	}

	entries, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("cache.similar.err", "err", err)
		return entity.ExtractedBankData{}, false
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := c.now()
	for _, k := range keys {
		entry := entries[k]
		if entry.Expired(now) || entry.Data.AccountNumber == "" {
			continue
		}
		if similarity(data.AccountNumber, entry.Data.AccountNumber) >= constants.SimilarityThreshold {
			c.logger.Debug("cache.similar.hit",
				"account", data.AccountNumber, "match", entry.Data.AccountNumber)
			return entry.Data, true
		}
	}
	return entity.ExtractedBankData{}, false
}

// similarity is the normalized Levenshtein score (maxLen - dist) / maxLen.
func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.Distance(a, b, nil)
	return float64(maxLen-dist) / float64(maxLen)
}

// Load prunes expired entries from the store and reports what remains.
// Store unavailability is a CACHE_IO error.
func (c *Cache) Load(ctx context.Context) (int, error) {
	entries, err := c.load(ctx)
	if err != nil {
		return 0, common.NewAppError(common.CodeCacheIO, "load cache", err)
	}

	now := c.now()
	kept := 0
	for key, entry := range entries {
		if entry.Expired(now) {
			if err := c.store.Delete(ctx, key); err != nil {
				c.logger.Warn("cache.load.prune", "key", key, "err", err)
			}
			continue
		}
		kept++
	}
	c.logger.Info("cache.load.ok", "kept", kept, "pruned", len(entries)-kept)
	return kept, nil
}

// Purge deletes every entry and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return 0, common.NewAppError(common.CodeCacheIO, "purge cache", err)
	}
	purged := 0
	for key := range entries {
		if err := c.store.Delete(ctx, key); err != nil {
			return purged, common.NewAppError(common.CodeCacheIO, "purge cache", err)
		}
		purged++
	}
	c.logger.Info("cache.purge.ok", "purged", purged)
	return purged, nil
}

// Entries returns the live entries sorted by key, for the export workbook
// and operator surfaces.
func (c *Cache) Entries(ctx context.Context) ([]entity.CacheEntry, error) {
	entries, err := c.load(ctx)
	if err != nil {
		return nil, common.NewAppError(common.CodeCacheIO, "list cache", err)
	}

	now := c.now()
	out := make([]entity.CacheEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Expired(now) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// load lists the store and decodes entries, dropping corrupt blobs.
func (c *Cache) load(ctx context.Context) (map[string]entity.CacheEntry, error) {
	raw, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]entity.CacheEntry, len(raw))
	for key, blob := range raw {
		entry, err := decodeEntry(key, blob)
		if err != nil {
			c.logger.Warn("cache.entry.corrupt", "key", key, "err", err)
			continue
		}
		out[key] = entry
	}
	return out, nil
}

func decodeEntry(key string, raw []byte) (entity.CacheEntry, error) {
	var entry entity.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entity.CacheEntry{}, err
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return entry, nil
}
