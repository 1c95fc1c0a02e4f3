package committee

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema is the strict JSON Schema every provider response must
// satisfy. No additional properties anywhere; selected_column_id may be
// null but must be present.
const resultSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["mappings", "issues", "overall_confidence", "processing_time_ms"],
  "properties": {
    "mappings": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["field", "selected_column_id", "confidence", "reasoning"],
        "properties": {
          "field": {"type": "string"},
          "selected_column_id": {"type": ["string", "null"]},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "reasoning": {"type": "string"}
        }
      }
    },
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["code", "severity", "evidence"],
        "properties": {
          "code": {"type": "string"},
          "severity": {"type": "string", "enum": ["info", "warning", "error"]},
          "evidence": {"type": "string"}
        }
      }
    },
    "overall_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "processing_time_ms": {"type": "integer", "minimum": 0}
  }
}`

var compiledResultSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("result.json", bytes.NewReader([]byte(resultSchema))); err != nil {
		panic(fmt.Sprintf("committee result schema: %v", err))
	}
	return c.MustCompile("result.json")
}

// ParseResult validates raw provider output against the contract and the
// pack's structural constraints: (i) every canonical field has exactly one
// mapping entry, (ii) every selected column id belongs to the candidate set.
// Any violation discards the vote via ContractError.
func ParseResult(provider string, raw []byte, pack *Pack) (*ProviderResult, error) {
	var loose any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if err := compiledResultSchema.Validate(loose); err != nil {
		return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("schema violation: %v", err)}
	}

	var result ProviderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("decode failed: %v", err)}
	}

	// (i) every field mapped exactly once
	seen := map[string]int{}
	for _, m := range result.Mappings {
		seen[m.Field]++
	}
	for _, f := range pack.Fields {
		switch seen[f] {
		case 1:
		case 0:
			return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("field %q has no mapping entry", f)}
		default:
			return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("field %q mapped %d times", f, seen[f])}
		}
	}
	for f := range seen {
		if !containsString(pack.Fields, f) {
			return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("unknown field %q", f)}
		}
	}

	// (ii) selected ids inside the candidate set
	candidates := pack.CandidateSet()
	for _, m := range result.Mappings {
		if m.SelectedColumnID != nil && !candidates[*m.SelectedColumnID] {
			return nil, &ContractError{Provider: provider, Reason: fmt.Sprintf("column id %q is not in the candidate set", *m.SelectedColumnID)}
		}
	}

	return &result, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
