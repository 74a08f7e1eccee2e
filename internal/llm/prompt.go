package llm

import (
	"fmt"
	"strings"

	"github.com/femi-ajayi/transfer-extractor/constants"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

// BuildSystemPrompt composes the system message: extraction rules plus
// whatever guidance the prompt context carries (ranked banks, hint-bank
// recognition cues, worked examples).
func BuildSystemPrompt(pc *entity.PromptContext) string {
	parts := []string{
		"You read Nigerian bank transfer screenshots and extract the recipient details.",
		"Return ONLY JSON with the keys bank_name, account_number, account_holder_name, amount, confidence.",
		fmt.Sprintf("account_number is a NUBAN: exactly %d digits, reported digits-only with leading zeros kept.", constants.AccountNumberLength),
		"amount is the transferred amount as a plain decimal string, no currency symbols or grouping commas.",
		"confidence is your overall certainty from 0 to 100.",
		"Never output null. Omit any field you cannot read.",
	}

	if pc != nil {
		if len(pc.RankedBanks) > 0 {
			parts = append(parts, "Banks seen most often, most frequent first: "+strings.Join(pc.RankedBanks, ", ")+".")
		}
		if pc.HintBank != "" {
			line := "The sending app is likely " + pc.HintBank + "."
			if h := pc.Hints; h != nil {
				if len(h.Colors) > 0 {
					line += " Interface colors: " + strings.Join(h.Colors, "/") + "."
				}
				if h.Logo != "" {
					line += " Logo: " + h.Logo + "."
				}
				if h.DigitFormat != "" {
					line += " Account format: " + h.DigitFormat + "."
				}
			}
			parts = append(parts, line)
		}
		if len(pc.Examples) > 0 {
			var ex []string
			for _, e := range pc.Examples {
				if len(e.AccountFormats) > 0 {
					ex = append(ex, e.BankName+" ("+strings.Join(e.AccountFormats, ", ")+")")
				} else {
					ex = append(ex, e.BankName)
				}
			}
			parts = append(parts, "Past verified extractions for format reference: "+strings.Join(ex, "; ")+".")
		}
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the task plus an optional first-pass seed for
// confirm-or-override. When the image could not be attached the prompt says
// so rather than letting the model hallucinate one.
func BuildUserPrompt(seed *entity.ExtractedBankData, imageAttached bool) string {
	var b strings.Builder
	b.WriteString("Extract the transfer recipient details from the attached screenshot.")
	if !imageAttached {
		b.WriteString(" No screenshot could be attached; verify and complete the first-pass values below instead of guessing new ones.")
	}

	if seed != nil {
		b.WriteString("\n\nA first pass read these values:\n")
		writeSeedLine(&b, "bank_name", seed.BankName)
		writeSeedLine(&b, "account_number", seed.AccountNumber)
		writeSeedLine(&b, "account_holder_name", seed.AccountHolderName)
		writeSeedLine(&b, "amount", seed.Amount)
		b.WriteString("\nConfirm each value, correct anything wrong, and omit anything you cannot verify.")
	}
	return b.String()
}

func writeSeedLine(b *strings.Builder, key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("  ")
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
