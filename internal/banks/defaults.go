package banks

import (
	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

// builtinPatterns is the compiled-in registry of Nigerian institutions.
// Tier 1 digital/fintech entries carry the brand tokens their transfer
// receipts actually show; tier 4 holds generic terms that should only ever
// win when nothing better matches. Order is stable and meaningful: equal
// scores resolve to the earlier entry.
func builtinPatterns() []entity.BankPattern {
	return []entity.BankPattern{
		// Tier 1 — digital / fintech
		{
			CanonicalName: "OPay",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"opay", "opay digital services limited", "opay digital services", "paycom"},
			Hints: entity.BankHints{
				Colors:      []string{"green", "white"},
				Logo:        "rounded green square with white O",
				DigitFormat: "10 digits, usually starts with 8 or 9 (phone-derived)",
			},
		},
		{
			CanonicalName: "PalmPay",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"palmpay", "palmpay limited", "palm pay"},
			Hints: entity.BankHints{
				Colors:      []string{"purple", "white"},
				Logo:        "purple palm glyph",
				DigitFormat: "10 digits, usually phone-derived",
			},
		},
		{
			CanonicalName: "Kuda Microfinance Bank",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"kuda", "kuda bank", "kuda mfb", "kuda microfinance bank"},
			Hints: entity.BankHints{
				Colors:      []string{"purple", "white"},
				Logo:        "white K on purple",
				DigitFormat: "10 digits starting with 1 or 2",
			},
		},
		{
			CanonicalName: "Moniepoint MFB",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"moniepoint", "moniepoint mfb", "moniepoint microfinance bank", "teamapt"},
			Hints: entity.BankHints{
				Colors:      []string{"blue", "white"},
				Logo:        "blue M badge",
				DigitFormat: "10 digits, usually starts with 5 or 8",
			},
		},
		{
			CanonicalName: "Carbon",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"carbon", "carbon microfinance bank", "one finance"},
			Hints: entity.BankHints{
				Colors: []string{"black", "teal"},
				Logo:   "black wordmark",
			},
		},
		{
			CanonicalName: "FairMoney Microfinance Bank",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"fairmoney", "fair money", "fairmoney mfb"},
			Hints: entity.BankHints{
				Colors: []string{"blue", "white"},
				Logo:   "blue F spark",
			},
		},
		{
			CanonicalName: "VBank",
			Tier:          constants.TierDigital,
			MatchPatterns: []string{"vbank", "v bank", "vfd microfinance bank", "vfd"},
		},

		// Tier 2 — commercial banks
		{
			CanonicalName: "GTBank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"gtbank", "gtb", "guaranty trust", "guaranty trust bank", "gt bank", "gtco"},
			Hints: entity.BankHints{
				Colors:      []string{"orange", "white"},
				Logo:        "orange square with white GT",
				DigitFormat: "10 digits starting with 0",
			},
		},
		{
			CanonicalName: "Access Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"access bank", "access bank plc", "accessbank", "diamond bank"},
			Hints: entity.BankHints{
				Colors:      []string{"orange", "navy"},
				Logo:        "orange chevron ribbon",
				DigitFormat: "10 digits starting with 0 or 1",
			},
		},
		{
			CanonicalName: "Zenith Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"zenith", "zenith bank", "zenith bank plc"},
			Hints: entity.BankHints{
				Colors:      []string{"red", "white"},
				Logo:        "red Z emblem",
				DigitFormat: "10 digits starting with 1 or 2",
			},
		},
		{
			CanonicalName: "United Bank for Africa",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"uba", "united bank for africa", "united bank of africa"},
			Hints: entity.BankHints{
				Colors:      []string{"red", "white"},
				Logo:        "red shield with lifted bird",
				DigitFormat: "10 digits starting with 1 or 2",
			},
		},
		{
			CanonicalName: "First Bank of Nigeria",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"first bank", "firstbank", "first bank of nigeria", "fbn"},
			Hints: entity.BankHints{
				Colors:      []string{"blue", "gold"},
				Logo:        "blue elephant head",
				DigitFormat: "10 digits starting with 2 or 3",
			},
		},
		{
			CanonicalName: "Fidelity Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"fidelity", "fidelity bank", "fidelity bank plc"},
		},
		{
			CanonicalName: "Union Bank of Nigeria",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"union bank", "union bank of nigeria", "unionbank"},
		},
		{
			CanonicalName: "Sterling Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"sterling", "sterling bank", "sterling bank plc"},
		},
		{
			CanonicalName: "Wema Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"wema", "wema bank", "alat", "alat by wema"},
		},
		{
			CanonicalName: "Stanbic IBTC Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"stanbic", "stanbic ibtc", "stanbic ibtc bank"},
		},
		{
			CanonicalName: "Ecobank Nigeria",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"ecobank", "eco bank", "ecobank nigeria"},
		},
		{
			CanonicalName: "Polaris Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"polaris", "polaris bank", "skye bank"},
		},
		{
			CanonicalName: "Keystone Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"keystone", "keystone bank"},
		},
		{
			CanonicalName: "First City Monument Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"fcmb", "first city monument bank", "first city monument"},
		},
		{
			CanonicalName: "Providus Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"providus", "providus bank"},
		},
		{
			CanonicalName: "Jaiz Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"jaiz", "jaiz bank"},
		},
		{
			CanonicalName: "Unity Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"unity bank"},
		},
		{
			CanonicalName: "Heritage Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"heritage bank"},
		},
		{
			CanonicalName: "Globus Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"globus", "globus bank"},
		},
		{
			CanonicalName: "Titan Trust Bank",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"titan trust", "titan trust bank", "titan bank"},
		},
		{
			CanonicalName: "Citibank Nigeria",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"citibank", "citi bank", "citibank nigeria"},
		},
		{
			CanonicalName: "Standard Chartered Bank Nigeria",
			Tier:          constants.TierCommercial,
			MatchPatterns: []string{"standard chartered", "standard chartered bank"},
		},

		// Tier 3 — microfinance
		{
			CanonicalName: "LAPO Microfinance Bank",
			Tier:          constants.TierMicrofinance,
			MatchPatterns: []string{"lapo", "lapo mfb", "lapo microfinance"},
		},
		{
			CanonicalName: "AB Microfinance Bank",
			Tier:          constants.TierMicrofinance,
			MatchPatterns: []string{"ab microfinance", "ab mfb"},
		},
		{
			CanonicalName: "Accion Microfinance Bank",
			Tier:          constants.TierMicrofinance,
			MatchPatterns: []string{"accion", "accion mfb", "accion microfinance"},
		},
		{
			CanonicalName: "Sparkle Microfinance Bank",
			Tier:          constants.TierMicrofinance,
			MatchPatterns: []string{"sparkle", "sparkle mfb", "sparkle microfinance"},
		},
		{
			CanonicalName: "Mint Finex MFB",
			Tier:          constants.TierMicrofinance,
			MatchPatterns: []string{"mintyn", "mint finex"},
		},
		{
			CanonicalName: "Renmoney Microfinance Bank",
			Tier:          constants.TierMicrofinance,
			MatchPatterns: []string{"renmoney", "renmoney mfb"},
		},

		// Tier 4 — generic terms. These exist so a receipt that only says
		// "bank transfer successful" still resolves to something rather than
		// winning over a brand token by accident.
		{
			CanonicalName: "Access Bank",
			Tier:          constants.TierGeneric,
			MatchPatterns: []string{"access"},
		},
		{
			CanonicalName: "Unknown Bank",
			Tier:          constants.TierGeneric,
			MatchPatterns: []string{"bank", "mobile transfer", "bank transfer"},
		},
	}
}
