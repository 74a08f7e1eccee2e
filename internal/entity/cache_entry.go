package entity

import "time"

// CacheEntry is one persisted extraction keyed by the normalized
// account/bank pair. An entry is visible to readers only while
// now < ExpiresAt; expired entries are purged lazily on load.
type CacheEntry struct {
	Key       string            `json:"key"`
	Data      ExtractedBankData `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
