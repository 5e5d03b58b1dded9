package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const planSchemaURL = "https://github.com/ormasoftchile/uirun/schemas/plan-v0.json"

var (
	planSchemaOnce sync.Once
	planSchema     *sjsonschema.Schema
	planSchemaErr  error
)

func compiledPlanSchema() (*sjsonschema.Schema, error) {
	planSchemaOnce.Do(func() {
		schemaJSON, err := GeneratePlanJSONSchema()
		if err != nil {
			planSchemaErr = fmt.Errorf("generate schema: %w", err)
			return
		}
		schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			planSchemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(planSchemaURL, schemaDoc); err != nil {
			planSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		planSchema, planSchemaErr = c.Compile(planSchemaURL)
	})
	return planSchema, planSchemaErr
}

// ValidatePlanJSON runs semantic (JSON Schema) and domain validation on raw
// generator output. A bare array is validated as the plan's step list.
func ValidatePlanJSON(data []byte) []*ValidationError {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		trimmed = append(append([]byte(`{"steps":`), trimmed...), '}')
	}
	if errs := validateSemantic(trimmed); len(errs) > 0 {
		return errs
	}
	plan, err := DecodePlanJSON(trimmed)
	if err != nil {
		return []*ValidationError{{Phase: "structural", Message: err.Error(), Severity: "error"}}
	}
	return ValidateDomain(plan)
}

// ValidatePlan validates an already decoded plan.
func ValidatePlan(p *Plan) []*ValidationError {
	data, err := json.Marshal(p)
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("marshal for schema validation: %v", err),
			Severity: "error",
		}}
	}
	if errs := validateSemantic(data); len(errs) > 0 {
		return errs
	}
	return ValidateDomain(p)
}

// validateSemantic validates a JSON plan document against the JSON Schema.
func validateSemantic(data []byte) []*ValidationError {
	sch, err := compiledPlanSchema()
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: err.Error(), Severity: "error"}}
	}

	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal document: %v", err),
			Severity: "error",
		}}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  cause.ErrorKind.LocalizedString(printer),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{Phase: "semantic", Message: err.Error(), Severity: "error"})
		}
		return errs
	}
	return nil
}

// PlanLevel drops the errors scoped to a single step. Those belong to the
// step itself and are reported when it runs.
func PlanLevel(errs []*ValidationError) []*ValidationError {
	var out []*ValidationError
	for _, e := range errs {
		if !stepScoped(e.Path) {
			out = append(out, e)
		}
	}
	return out
}

// stepScoped reports whether path points into one element of steps, in
// either the schema ("steps/2/action") or domain ("steps[2].value") form.
func stepScoped(path string) bool {
	rest, ok := strings.CutPrefix(path, "steps/")
	if !ok {
		rest, ok = strings.CutPrefix(path, "steps[")
	}
	return ok && rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

var printer = message.NewPrinter(language.English)

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain applies the per-action field rules to every step.
func ValidateDomain(p *Plan) []*ValidationError {
	var errs []*ValidationError
	if len(p.Steps) == 0 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "steps",
			Message:  "plan has no steps",
			Severity: "warning",
		})
	}
	for i, step := range p.Steps {
		if err := ValidateStep(step); err != nil {
			path := fmt.Sprintf("steps[%d]", i)
			switch e := err.(type) {
			case *ValidationError:
				if e.Path != "" {
					path += "." + e.Path
				}
				errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: e.Message, Severity: e.Severity})
			default:
				errs = append(errs, &ValidationError{Phase: "domain", Path: path + ".action", Message: err.Error(), Severity: "error"})
			}
		}
	}
	return errs
}

// ValidateStep checks that a step carries the fields its action requires.
// Returns *UnknownActionError for unrecognized actions and *ValidationError
// for missing or malformed fields.
func ValidateStep(s StepDefinition) error {
	if !s.Action.Known() {
		return &UnknownActionError{Action: s.Action}
	}
	missing := func(field, msg string) error {
		return &ValidationError{Phase: "domain", Path: field, Message: msg, Severity: "error"}
	}
	target := strings.TrimSpace(s.Target)
	switch s.Action {
	case ActionNavigate:
		if target == "" && strings.TrimSpace(s.Value) == "" {
			return missing("target", "navigate requires a url in target or value")
		}
	case ActionClick, ActionHover:
		if target == "" {
			return missing("target", fmt.Sprintf("%s requires a target", s.Action))
		}
	case ActionFill, ActionSelect:
		if target == "" {
			return missing("target", fmt.Sprintf("%s requires a target", s.Action))
		}
		if s.Value == "" {
			return missing("value", fmt.Sprintf("%s requires a value", s.Action))
		}
	case ActionKeyboard:
		if strings.TrimSpace(s.Value) == "" && target == "" {
			return missing("value", "keyboard requires a key in value")
		}
	case ActionWait:
		if target == "" && s.Value != "" {
			if _, err := strconv.Atoi(strings.TrimSpace(s.Value)); err != nil {
				return missing("value", fmt.Sprintf("wait value %q is not a millisecond count", s.Value))
			}
		}
	case ActionAssert:
		if s.Assertion == nil {
			return missing("assertion", "assert requires an assertion")
		}
	}
	if s.Assertion != nil {
		if !s.Assertion.Type.Known() {
			return missing("assertion.type", fmt.Sprintf("unknown assertion type %q", s.Assertion.Type))
		}
		switch s.Assertion.Type {
		case AssertCount:
			if target == "" {
				return missing("target", "count assertion requires the locator in target")
			}
			if _, err := strconv.Atoi(strings.TrimSpace(s.Assertion.Expected)); err != nil {
				return missing("assertion.expected", fmt.Sprintf("count expects an integer, got %q", s.Assertion.Expected))
			}
		case AssertElement:
			if target == "" && strings.TrimSpace(s.Assertion.Expected) == "" {
				return missing("assertion.expected", "element assertion requires a locator")
			}
		}
	}
	return nil
}
