package entity

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// FieldFlags marks which fields of an ExtractedBankData carry a usable
// value. A flag is true iff the corresponding value is non-empty and, for
// AccountNumber, valid.
type FieldFlags struct {
	BankName          bool `json:"bank_name"`
	AccountNumber     bool `json:"account_number"`
	AccountHolderName bool `json:"account_holder_name"`
	Amount            bool `json:"amount"`
}

// ExtractedBankData is the central value type: one structured extraction
// from a transfer screenshot. Results are never mutated after being
// returned; merging copies.
type ExtractedBankData struct {
	BankName          string     `json:"bank_name"`
	AccountNumber     string     `json:"account_number"`
	AccountHolderName string     `json:"account_holder_name"`
	Amount            string     `json:"amount"`
	Confidence        float64    `json:"confidence"`
	Fields            FieldFlags `json:"extracted_fields"`
}

var (
	reNonDigit = regexp.MustCompile(`\D`)
	reSpaces   = regexp.MustCompile(`\s+`)
	// currency markers seen on Nigerian transfer receipts
	reCurrency     = regexp.MustCompile(`(?i)₦|\bNGN\b`)
	reLeadingNaira = regexp.MustCompile(`(?i)^n(\d)`)
)

// EmptyResult is the canonical "nothing could be extracted" sentinel: all
// fields empty, confidence 0, all flags false.
func EmptyResult() ExtractedBankData {
	return ExtractedBankData{}
}

// Normalize enforces the value invariants and returns a fresh copy:
//   - AccountNumber keeps digits only and is dropped unless exactly
//     10 digits remain;
//   - Amount is stripped of currency markers and grouping commas and is
//     dropped if the remainder is not a decimal;
//   - Confidence is clamped to [0,100];
//   - Fields is recomputed from the surviving values.
//
// Invalid fields are dropped rather than failing the whole extraction.
func (d ExtractedBankData) Normalize() ExtractedBankData {
	out := d

	out.BankName = strings.TrimSpace(reSpaces.ReplaceAllString(out.BankName, " "))
	out.AccountHolderName = strings.TrimSpace(reSpaces.ReplaceAllString(out.AccountHolderName, " "))

	digits := reNonDigit.ReplaceAllString(out.AccountNumber, "")
	if len(digits) == constants.AccountNumberLength {
		out.AccountNumber = digits
	} else {
		out.AccountNumber = ""
	}

	out.Amount = normalizeAmount(out.Amount)

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 100 {
		out.Confidence = 100
	}

	out.Fields = FieldFlags{
		BankName:          out.BankName != "",
		AccountNumber:     out.AccountNumber != "",
		AccountHolderName: out.AccountHolderName != "",
		Amount:            out.Amount != "",
	}
	return out
}

// normalizeAmount strips currency markers and grouping commas, then checks
// the remainder parses as a decimal. Anything unparseable is dropped.
func normalizeAmount(s string) string {
	s = reCurrency.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	s = reLeadingNaira.ReplaceAllString(s, "$1")
	if s == "" {
		return ""
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return ""
	}
	return s
}

// FieldCount returns how many field flags are set. Used as the primary key
// when comparing two attempts (more complete wins).
func (d ExtractedBankData) FieldCount() int {
	n := 0
	for _, b := range []bool{d.Fields.BankName, d.Fields.AccountNumber, d.Fields.AccountHolderName, d.Fields.Amount} {
		if b {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no field carries a usable value.
func (d ExtractedBankData) IsEmpty() bool {
	return d.FieldCount() == 0
}

// WithBankName returns a copy with the bank name replaced and the flag
// recomputed. Other fields are untouched.
func (d ExtractedBankData) WithBankName(name string) ExtractedBankData {
	out := d
	out.BankName = name
	out.Fields.BankName = name != ""
	return out
}
