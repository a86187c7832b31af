package llm

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildPathRecordSchema returns the JSON-Schema (draft 2020-12 subset) we
// expect a single extraction object to match. Validation is advisory: the
// salvager logs mismatches but still maps the object with placeholders.
func buildPathRecordSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":     map[string]any{"type": "string", "minLength": 1},
			"filename": map[string]any{"type": "string", "minLength": 1},
			"type":     map[string]any{"type": "string"},
			"app":      map[string]any{"type": "string"},
		},
		"required": []string{"path"},
	}
}

type recordSchema struct {
	compiled *jsonschema.Schema
}

func compileRecordSchema() *recordSchema {
	b, err := json.Marshal(buildPathRecordSchema())
	if err != nil {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", bytes.NewReader(b)); err != nil {
		return nil
	}
	compiled, err := compiler.Compile("record.json")
	if err != nil {
		return nil
	}
	return &recordSchema{compiled: compiled}
}

func (s *recordSchema) validate(obj map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	return s.compiled.Validate(obj)
}
