package constants

// Tier is the priority class of a bank pattern. Lower numbers outrank
// higher ones during bank-name correction.
type Tier int

const (
	TierDigital      Tier = 1 // digital / fintech banks
	TierCommercial   Tier = 2 // commercial banks
	TierMicrofinance Tier = 3 // microfinance banks
	TierGeneric      Tier = 4 // generic terms ("bank", "transfer")
)

// tierBonuses keeps a short generic token from ever outranking a longer
// brand token: the gap between tiers dwarfs any length difference.
var tierBonuses = map[Tier]int{
	TierDigital:      10000,
	TierCommercial:   5000,
	TierMicrofinance: 500,
	TierGeneric:      10,
}

// TierBonus returns the score bonus for a tier. Unknown tiers score as
// generic.
func TierBonus(t Tier) int {
	if b, ok := tierBonuses[t]; ok {
		return b
	}
	return tierBonuses[TierGeneric]
}

// Valid reports whether t is one of the four defined tiers.
func (t Tier) Valid() bool {
	_, ok := tierBonuses[t]
	return ok
}

// String names the tier for operator surfaces.
func (t Tier) String() string {
	switch t {
	case TierDigital:
		return "digital"
	case TierCommercial:
		return "commercial"
	case TierMicrofinance:
		return "microfinance"
	case TierGeneric:
		return "generic"
	default:
		return "unknown"
	}
}
