package banks

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

// Corrector maps raw bank-name text from a screenshot to a canonical
// registry name. Matching is two-phase: a tiered whole-word pattern scan,
// then a fuzzy fallback. Both phases walk the registry in order, so the
// same text against the same registry snapshot always gives the same
// answer.
type Corrector struct {
	registry *Registry
	logger   *slog.Logger
}

// NewCorrector creates a corrector over a registry.
func NewCorrector(registry *Registry, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Corrector{registry: registry, logger: logger}
}

// Correct returns the canonical name for raw bank-name text and whether
// anything matched. Empty input never matches.
func (c *Corrector) Correct(raw string) (string, bool) {
	text := normalizeText(raw)
	if text == "" {
		return "", false
	}

	patterns := c.registry.Patterns()

	if name, ok := c.matchTiered(text, patterns); ok {
		return name, true
	}
	if name, ok := c.matchFuzzy(text, patterns); ok {
		return name, true
	}

	c.logger.Debug("banks.correct.miss", "text", text)
	return "", false
}

// CorrectBankName is the lenient surface: it returns the canonical name
// when one matches and the input unchanged otherwise.
func (c *Corrector) CorrectBankName(text string) string {
	if name, ok := c.Correct(text); ok {
		return name
	}
	return text
}

// matchTiered scores every whole-word pattern occurrence in the text as
// tier bonus + pattern length. A strictly higher score wins; ties keep the
// earlier registry entry. Tier bonuses dwarf length differences, so a
// tier-1 brand token always beats a longer tier-2 one.
func (c *Corrector) matchTiered(text string, patterns []entity.BankPattern) (string, bool) {
	best := -1
	var bestName, bestPattern string

	for _, entry := range patterns {
		bonus := constants.TierBonus(entry.Tier)
		for _, pattern := range entry.MatchPatterns {
			p := strings.ToLower(strings.TrimSpace(pattern))
			if p == "" || !containsWholeWord(text, p) {
				continue
			}
			if score := bonus + len(p); score > best {
				best = score
				bestName = entry.CanonicalName
				bestPattern = p
			}
		}
	}

	if best < 0 {
		return "", false
	}
	c.logger.Debug("banks.correct.tiered",
		"text", text, "pattern", bestPattern, "canonical", bestName, "score", best)
	return bestName, true
}

// matchFuzzy runs three passes of decreasing strictness over canonical
// names and patterns: exact equality, substring containment in either
// direction, then word overlap of at least min(2, words in the input).
func (c *Corrector) matchFuzzy(text string, patterns []entity.BankPattern) (string, bool) {
	type pass func(text, candidate string) bool

	textWords := strings.Fields(text)
	needed := len(textWords)
	if needed > 2 {
		needed = 2
	}

	passes := []pass{
		func(t, cand string) bool { return t == cand },
		func(t, cand string) bool {
			return strings.Contains(t, cand) || strings.Contains(cand, t)
		},
		func(t, cand string) bool {
			return wordOverlap(textWords, strings.Fields(cand)) >= needed
		},
	}

	for pi, match := range passes {
		for _, entry := range patterns {
			for _, cand := range candidateTexts(entry) {
				if !match(text, cand) {
					continue
				}
				c.logger.Debug("banks.correct.fuzzy",
					"text", text, "candidate", cand, "canonical", entry.CanonicalName, "pass", pi)
				return entry.CanonicalName, true
			}
		}
	}
	return "", false
}

func candidateTexts(entry entity.BankPattern) []string {
	out := make([]string, 0, len(entry.MatchPatterns)+1)
	out = append(out, normalizeText(entry.CanonicalName))
	for _, p := range entry.MatchPatterns {
		out = append(out, normalizeText(p))
	}
	return out
}

func wordOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	n := 0
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if set[w] && !seen[w] {
			seen[w] = true
			n++
		}
	}
	return n
}

// containsWholeWord reports whether pattern occurs in text bounded by
// non-word runes. "access" matches in "access bank" but not in
// "accessories". Both arguments must already be lowercased.
func containsWholeWord(text, pattern string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], pattern)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(pattern)

		beforeOK := i == 0
		if !beforeOK {
			r, _ := utf8.DecodeLastRuneInString(text[:i])
			beforeOK = !isWordRune(r)
		}
		afterOK := end == len(text)
		if !afterOK {
			r, _ := utf8.DecodeRuneInString(text[end:])
			afterOK = !isWordRune(r)
		}
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// normalizeText lowercases and collapses runs of whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
