package extract

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
)

// StripMarkdownFences removes a surrounding ```json ... ``` block. Models
// add these even when told not to.
func StripMarkdownFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return []byte(strings.TrimSpace(s))
}

// ParseExtraction turns raw backend output into normalized extraction data.
// The document must pass the schema strictly; on failure one sanitize pass
// runs before re-validating, and a document that still fails is a
// VALIDATION error. Fractional confidences (0,1) are read as ratios and
// scaled to the 0-100 range.
func ParseExtraction(raw []byte, logger *slog.Logger) (entity.ExtractedBankData, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc := StripMarkdownFences(raw)
	schema := BuildExtractionJSONSchema()

	if err := ValidateJSON(schema, doc); err != nil {
		logger.Debug("extract.parse.strict_fail", "err", err)
		sanitized, _, serr := NormalizeAndSanitizeJSON(doc, logger)
		if serr != nil {
			return entity.ExtractedBankData{},
				common.NewAppError(common.CodeValidation, "backend response is not valid JSON", serr)
		}
		if err := ValidateJSON(schema, sanitized); err != nil {
			return entity.ExtractedBankData{},
				common.NewAppError(common.CodeValidation, "backend response does not match schema", err)
		}
		doc = sanitized
	}

	var payload struct {
		BankName          string  `json:"bank_name"`
		AccountNumber     string  `json:"account_number"`
		AccountHolderName string  `json:"account_holder_name"`
		Amount            string  `json:"amount"`
		Confidence        float64 `json:"confidence"`
	}
	if err := json.Unmarshal(doc, &payload); err != nil {
		return entity.ExtractedBankData{},
			common.NewAppError(common.CodeValidation, "decode backend response", err)
	}

	confidence := payload.Confidence
	if confidence > 0 && confidence < 1 {
		confidence *= 100
	}

	data := entity.ExtractedBankData{
		BankName:          payload.BankName,
		AccountNumber:     payload.AccountNumber,
		AccountHolderName: payload.AccountHolderName,
		Amount:            payload.Amount,
		Confidence:        confidence,
	}
	return data.Normalize(), nil
}
