package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPlanFile reads a plan from a .json, .yaml, or .yml file.
func LoadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	if isJSONPath(path) {
		return DecodePlanJSON(data)
	}
	return LoadPlan(bytes.NewReader(data))
}

// LoadPlan reads a YAML plan from a reader.
// Returns a structural error if the YAML contains unknown fields.
func LoadPlan(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &p, nil
}

// DecodePlanJSON decodes a JSON plan. A bare array is accepted as the step
// list, which is the shape step generators return.
func DecodePlanJSON(data []byte) (*Plan, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		steps, err := DecodeSteps(trimmed)
		if err != nil {
			return nil, err
		}
		return &Plan{Steps: steps}, nil
	}
	var p Plan
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &p, nil
}

// DecodeSteps decodes a JSON array of step definitions.
func DecodeSteps(data []byte) ([]StepDefinition, error) {
	var steps []StepDefinition
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&steps); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return steps, nil
}

// LoadRequestFile reads a run request from a JSON or YAML file.
func LoadRequestFile(path string) (*RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open request: %w", err)
	}
	var req RunRequest
	if isJSONPath(path) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, fmt.Errorf("structural decode: %w", err)
		}
		return &req, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &req, nil
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
