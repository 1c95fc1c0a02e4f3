package committee

import (
	"encoding/json"
	"errors"
	"testing"
)

// validRaw builds a contract-conforming response mapping every field to null
// except sku, which maps to col_0.
func validRaw(t *testing.T, pack *Pack) []byte {
	t.Helper()
	var mappings []map[string]any
	for _, f := range pack.Fields {
		m := map[string]any{
			"field":              f,
			"selected_column_id": nil,
			"confidence":         0.5,
			"reasoning":          "r",
		}
		if f == "sku" {
			m["selected_column_id"] = "col_0"
			m["confidence"] = 0.9
		}
		mappings = append(mappings, m)
	}
	raw, err := json.Marshal(map[string]any{
		"mappings":           mappings,
		"issues":             []any{},
		"overall_confidence": 0.8,
		"processing_time_ms": 120,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestParseResult_Valid(t *testing.T) {
	pack := testPack()
	result, err := ParseResult("p", validRaw(t, pack), pack)
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if len(result.Mappings) != len(pack.Fields) {
		t.Errorf("mappings %d, want %d", len(result.Mappings), len(pack.Fields))
	}
}

func TestParseResult_RejectsAdditionalProperties(t *testing.T) {
	pack := testPack()
	var doc map[string]any
	json.Unmarshal(validRaw(t, pack), &doc)
	doc["extra"] = true
	raw, _ := json.Marshal(doc)

	_, err := ParseResult("p", raw, pack)
	var contract *ContractError
	if !errors.As(err, &contract) {
		t.Fatalf("expected ContractError for extra property, got %v", err)
	}
}

func TestParseResult_RejectsMissingField(t *testing.T) {
	pack := testPack()
	var doc struct {
		Mappings          []map[string]any `json:"mappings"`
		Issues            []any            `json:"issues"`
		OverallConfidence float64          `json:"overall_confidence"`
		ProcessingTimeMS  int              `json:"processing_time_ms"`
	}
	json.Unmarshal(validRaw(t, pack), &doc)
	doc.Mappings = doc.Mappings[1:] // drop one field's entry
	raw, _ := json.Marshal(doc)

	_, err := ParseResult("p", raw, pack)
	var contract *ContractError
	if !errors.As(err, &contract) {
		t.Fatalf("expected ContractError for missing field mapping, got %v", err)
	}
}

func TestParseResult_RejectsUnknownColumnID(t *testing.T) {
	pack := testPack()
	var doc map[string]any
	json.Unmarshal(validRaw(t, pack), &doc)
	mappings := doc["mappings"].([]any)
	mappings[0].(map[string]any)["selected_column_id"] = "col_999"
	raw, _ := json.Marshal(doc)

	_, err := ParseResult("p", raw, pack)
	var contract *ContractError
	if !errors.As(err, &contract) {
		t.Fatalf("expected ContractError for unknown column id, got %v", err)
	}
}

func TestParseResult_RejectsConfidenceOutOfRange(t *testing.T) {
	pack := testPack()
	var doc map[string]any
	json.Unmarshal(validRaw(t, pack), &doc)
	mappings := doc["mappings"].([]any)
	mappings[0].(map[string]any)["confidence"] = 1.5
	raw, _ := json.Marshal(doc)

	_, err := ParseResult("p", raw, pack)
	var contract *ContractError
	if !errors.As(err, &contract) {
		t.Fatalf("expected ContractError for confidence > 1, got %v", err)
	}
}

func TestParseResult_RejectsNonJSON(t *testing.T) {
	pack := testPack()
	_, err := ParseResult("p", []byte("I think col_0 is the SKU column."), pack)
	var contract *ContractError
	if !errors.As(err, &contract) {
		t.Fatalf("expected ContractError for prose output, got %v", err)
	}
}

func TestCalibrate_AccuracyDrivesWeights(t *testing.T) {
	pack := testPack()
	golden := []GoldenCase{{
		Pack:     pack,
		Expected: map[string]string{"sku": "col_0", "quantity": "col_2"},
	}}

	good := fullResult(pack, "col_0", 0.9)
	// Fix quantity to the right column for the good provider.
	for i := range good.Mappings {
		if good.Mappings[i].Field == "quantity" {
			c := "col_2"
			good.Mappings[i].SelectedColumnID = &c
		}
	}
	bad := fullResult(pack, "col_1", 0.9)

	providers := []Provider{
		&fakeProvider{name: "good", family: "anthropic"},
		&fakeProvider{name: "bad", family: "openai"},
	}
	results := map[string][]*ProviderResult{
		"good": {good},
		"bad":  {bad},
	}

	weights := Calibrate(providers, results, golden)
	if weights["good"] <= weights["bad"] {
		t.Errorf("accurate provider must outweigh inaccurate one: %v", weights)
	}

	sum := 0.0
	for _, v := range weights {
		sum += v
	}
	if sum < 1.999 || sum > 2.001 {
		t.Errorf("weights sum %v, want 2", sum)
	}
}
