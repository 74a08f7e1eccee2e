package entity

import (
	"time"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// BankHints is per-bank recognition guidance surfaced to LLM-style
// backends: what the app looks like and how account digits are rendered.
type BankHints struct {
	Colors      []string `json:"colors,omitempty" yaml:"colors"`
	Logo        string   `json:"logo,omitempty" yaml:"logo"`
	DigitFormat string   `json:"digit_format,omitempty" yaml:"digit_format"`
}

// BankPattern is one registry entry: the canonical institution name, its
// match patterns for correction, its tier, and the learned recognition
// stats. Tier is fixed at load time; only the learning step mutates
// SuccessCount, AccountFormats, and LastUpdated.
type BankPattern struct {
	CanonicalName  string         `json:"canonical_name" yaml:"name"`
	Tier           constants.Tier `json:"tier" yaml:"tier"`
	MatchPatterns  []string       `json:"match_patterns" yaml:"patterns"`
	Hints          BankHints      `json:"hints,omitempty" yaml:"hints"`
	SuccessCount   int            `json:"success_count" yaml:"-"`
	AccountFormats []string       `json:"account_formats,omitempty" yaml:"-"`
	LastUpdated    time.Time      `json:"last_updated" yaml:"-"`
}

// BankStats is the mutable, persistable slice of a BankPattern: what the
// learning step changes and what survives a restart.
type BankStats struct {
	CanonicalName  string    `json:"canonical_name"`
	SuccessCount   int       `json:"success_count"`
	AccountFormats []string  `json:"account_formats,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// WorkedExample is one successful-extraction exemplar included in a prompt.
type WorkedExample struct {
	BankName       string   `json:"bank_name"`
	AccountFormats []string `json:"account_formats"`
}

// PromptContext is what BuildContext assembles for a backend request:
// known banks ranked by past success, a handful of worked examples, and,
// when the caller hinted at a bank, that bank's recognition guidance.
type PromptContext struct {
	RankedBanks []string        `json:"ranked_banks"`
	Examples    []WorkedExample `json:"examples,omitempty"`
	HintBank    string          `json:"hint_bank,omitempty"`
	Hints       *BankHints      `json:"hints,omitempty"`
}
