package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildExtractionJSONSchema returns the JSON-Schema (draft 2020-12 subset)
// every backend response must satisfy. It doubles as the structured-output
// constraint sent to providers that accept one. No field is required:
// a missing field means "not visible in the screenshot", and Normalize
// recomputes the flags afterwards.
func BuildExtractionJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"bank_name":           map[string]any{"type": "string"},
			"account_number":      map[string]any{"type": "string"},
			"account_holder_name": map[string]any{"type": "string"},
			"amount":              map[string]any{"type": "string"},
			// Providers report either 0-1 or 0-100; the parser rescales.
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0},
		},
	}
}

// ValidateJSON validates data against schemaMap.
func ValidateJSON(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
