package constants

import "time"

// Extraction quality and comparison defaults. All of these are tunable via
// configuration; the values here are the documented defaults.
const (
	// QualityThresholdDefault is the minimum confidence (with both key
	// fields present) to accept a primary result without a second opinion.
	QualityThresholdDefault = 85.0

	// ConfidenceTieMargin is the confidence gap that decides between two
	// attempts with equal field counts. Differences at or below the margin
	// are treated as a tie.
	ConfidenceTieMargin = 5.0

	// PrimaryTimeoutDefault and SecondaryTimeoutDefault bound the two
	// backend calls. The secondary gets more room for the more expensive
	// second-opinion call.
	PrimaryTimeoutDefault   = 15 * time.Second
	SecondaryTimeoutDefault = 20 * time.Second
)

// Cache defaults.
const (
	// CacheTTLDefault is how long a verified extraction stays reusable.
	CacheTTLDefault = 30 * 24 * time.Hour

	// SimilarityThreshold is the minimum normalized Levenshtein similarity
	// for an approximate account-number match.
	SimilarityThreshold = 0.85
)

// AccountNumberLength is the NUBAN account number length. An account
// number is valid only when it is exactly this many digits.
const AccountNumberLength = 10

// Prompt-learning defaults.
const (
	// AccountFormatHistory bounds the per-bank ring buffer of observed
	// account formats.
	AccountFormatHistory = 10

	// WorkedExampleLimit caps the worked examples included in a prompt.
	WorkedExampleLimit = 3
)
