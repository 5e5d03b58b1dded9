package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GeneratePlanJSONSchema produces a JSON Schema Draft 2020-12 document
// from the Plan Go types. Step generators are prompted with it and their
// output is validated against it.
func GeneratePlanJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Plan{})
	s.ID = "https://github.com/ormasoftchile/uirun/schemas/plan-v0.json"
	s.Title = "UI test plan (plan/v0)"
	s.Description = "Ordered UI steps executed by the uirun step runner (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal plan schema: %w", err)
	}
	return data, nil
}

// GenerateRequestJSONSchema produces a JSON Schema document for RunRequest.
func GenerateRequestJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&RunRequest{})
	s.ID = "https://github.com/ormasoftchile/uirun/schemas/request-v0.json"
	s.Title = "Run request (request/v0)"
	s.Description = "Input accepted by the uirun step runner (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal request schema: %w", err)
	}
	return data, nil
}
