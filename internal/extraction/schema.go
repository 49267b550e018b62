package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

const isoDatePattern = `^\d{4}-\d{2}-\d{2}$`

// BuildExtractionJSONSchema returns the closed draft 2020-12 schema for ExtractionResult.
// The same map is sent to the LLM as a structured output constraint and used locally to validate.
func BuildExtractionJSONSchema() map[string]any {
	props := map[string]any{
		"classification":           map[string]any{"type": "string", "enum": constants.ClassificationStrings()},
		"title":                    map[string]any{"type": "string", "minLength": 1},
		"issuing_company":          nullableString(),
		"issuing_contact":          nullableString(),
		"inspection_or_issue_date": nullableDate(),
		"period_covered_end_date":  nullableDate(),
		"building_name":            nullableString(),
		"building_address":         nullableString(),
		"building_postcode":        nullableString(),
		"certificate_number":       nullableString(),
		"notes":                    map[string]any{"type": "string"},
		"page_count":               map[string]any{"type": "integer", "minimum": 0},
		"confidence":               map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"people": arrayOf(closedObject(map[string]any{
			"role": map[string]any{"type": "string", "minLength": 1},
			"name": nullableString(),
		})),
		"equipment": arrayOf(closedObject(map[string]any{
			"type":      map[string]any{"type": "string", "minLength": 1},
			"size":      nullableString(),
			"count":     map[string]any{"type": "integer", "minimum": 0},
			"locations": arrayOf(map[string]any{"type": "string"}),
			"status":    nullableString(),
		})),
		"standard_references": arrayOf(map[string]any{"type": "string"}),
		"reminders": arrayOf(closedObject(map[string]any{
			"label":  map[string]any{"type": "string", "minLength": 1},
			"date":   map[string]any{"type": "string", "format": "date", "pattern": isoDatePattern},
			"reason": map[string]any{"type": "string"},
		})),
		"follow_ups":                 arrayOf(map[string]any{"type": "string"}),
		"blocking_issues":            arrayOf(map[string]any{"type": "string"}),
		"suggested_category":         map[string]any{"type": "string", "enum": constants.StorageCategoryStrings()},
		"suggested_compliance_asset": nullableString(),
		"next_due_date":              nullableDate(),
		"ocr_needed":                 map[string]any{"type": "boolean"},
		"possible_duplicate":         map[string]any{"type": "boolean"},
		"duplicate_match_hint": map[string]any{
			"anyOf": []any{
				map[string]any{"type": "null"},
				closedObject(map[string]any{
					"title": map[string]any{"type": "string"},
					"date":  nullableDate(),
				}),
			},
		},
		"text_extracted": map[string]any{"type": "string"},
	}

	schema := closedObject(props)
	// a document with no recovered text cannot carry confidence
	schema["if"] = map[string]any{
		"properties": map[string]any{"ocr_needed": map[string]any{"const": true}},
		"required":   []string{"ocr_needed"},
	}
	schema["then"] = map[string]any{
		"properties": map[string]any{
			"confidence":     map[string]any{"const": 0},
			"text_extracted": map[string]any{"const": entity.NoTextSentinel},
		},
	}
	return schema
}

// closedObject requires every listed property and forbids any other.
func closedObject(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	slices.Sort(required)
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

func nullableDate() map[string]any {
	return map[string]any{"type": []string{"string", "null"}, "format": "date", "pattern": isoDatePattern}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(BuildExtractionJSONSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		if err := c.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile("extraction.json")
	})
	return compiled, compileErr
}

// Validate checks raw JSON against the extraction schema.
func Validate(data []byte) error {
	schema, err := compiledSchema()
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

// ValidateResult marshals r and validates it.
func ValidateResult(r entity.ExtractionResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return Validate(b)
}
