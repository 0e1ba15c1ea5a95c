package llm

import "github.com/kopfenjager/Vision-crm-agent/constants"

// BuildRecordJSONSchema returns the JSON Schema (draft 2020-12) of an ExtractedRecord:
// the ten keys, all required, each string or null, nothing else.
func BuildRecordJSONSchema() map[string]any {
	props := make(map[string]any, constants.NumFields)
	for _, f := range constants.AllFields() {
		props[string(f)] = map[string]any{"type": []string{"string", "null"}}
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             constants.AsStringSlice(),
	}
}
