package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
)

// synonyms maps the field names providers actually emit onto the schema's.
// Order matters: the list is walked top to bottom and the first synonym to
// land on a vacant canonical key wins; later ones are discarded.
var synonyms = []struct{ from, to string }{
	{"bank", "bank_name"},
	{"bankname", "bank_name"},
	{"recipient_bank", "bank_name"},
	{"beneficiary_bank", "bank_name"},

	{"account", "account_number"},
	{"account_no", "account_number"},
	{"account_num", "account_number"},
	{"acct_number", "account_number"},
	{"acct_no", "account_number"},
	{"nuban", "account_number"},

	{"account_name", "account_holder_name"},
	{"account_holder", "account_holder_name"},
	{"holder", "account_holder_name"},
	{"holder_name", "account_holder_name"},
	{"beneficiary", "account_holder_name"},
	{"beneficiary_name", "account_holder_name"},
	{"recipient", "account_holder_name"},
	{"recipient_name", "account_holder_name"},

	{"amount_paid", "amount"},
	{"amount_sent", "amount"},
	{"transfer_amount", "amount"},
	{"total", "amount"},

	{"score", "confidence"},
	{"confidence_score", "confidence"},
}

// NormalizeAndSanitizeJSON repairs a response that failed strict schema
// validation:
//   - renames known synonym keys onto the schema's names,
//   - coerces numbers to strings for account_number and amount, and a
//     string confidence back to a number,
//   - drops nulls, empty strings, and unknown keys,
//   - trims whatever remains.
//
// It returns the repaired document plus a log of what was touched.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	touched := make([]string, 0, 8)

	for _, syn := range synonyms {
		v, ok := m[syn.from]
		if !ok {
			continue
		}
		if _, exists := m[syn.to]; !exists {
			m[syn.to] = v
		}
		delete(m, syn.from)
		touched = append(touched, syn.from+"->"+syn.to)
	}

	// account_number: models love returning it as a number, which silently
	// eats leading zeros upstream; here all we can do is stringify.
	if v, ok := m["account_number"]; ok {
		if f, isNum := v.(float64); isNum {
			m["account_number"] = strconv.FormatFloat(f, 'f', 0, 64)
			touched = append(touched, "account_number(number)")
		}
	}
	if v, ok := m["amount"]; ok {
		if f, isNum := v.(float64); isNum {
			m["amount"] = fmt.Sprintf("%.2f", f)
			touched = append(touched, "amount(number)")
		}
	}
	if v, ok := m["confidence"]; ok {
		switch t := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				m["confidence"] = f
				touched = append(touched, "confidence(string)")
			} else {
				delete(m, "confidence")
				touched = append(touched, "confidence(unparseable)")
			}
		case float64:
			if t < 0 {
				m["confidence"] = 0.0
				touched = append(touched, "confidence(negative)")
			}
			if t > 100 {
				m["confidence"] = 100.0
				touched = append(touched, "confidence(overflow)")
			}
		}
	}

	allowed := map[string]struct{}{
		"bank_name": {}, "account_number": {}, "account_holder_name": {},
		"amount": {}, "confidence": {},
	}
	for k, v := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case nil:
			delete(m, k)
			touched = append(touched, k+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				delete(m, k)
				touched = append(touched, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, touched, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(touched) > 0 {
		logger.Warn("extract.sanitize", "touched", touched)
	}
	return out, touched, nil
}
