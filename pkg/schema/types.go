// Package schema defines the run, step, and assertion types shared by the
// execution engine and its collaborators.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// Action enumerates the UI actions a step can request.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionFill       Action = "fill"
	ActionSelect     Action = "select"
	ActionWait       Action = "wait"
	ActionAssert     Action = "assert"
	ActionScreenshot Action = "screenshot"
	ActionScroll     Action = "scroll"
	ActionHover      Action = "hover"
	ActionKeyboard   Action = "keyboard"
)

// Actions lists every recognized action in declaration order.
var Actions = []Action{
	ActionNavigate, ActionClick, ActionFill, ActionSelect, ActionWait,
	ActionAssert, ActionScreenshot, ActionScroll, ActionHover, ActionKeyboard,
}

// Known reports whether a is a recognized action.
func (a Action) Known() bool {
	for _, k := range Actions {
		if a == k {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Step definitions
// ---------------------------------------------------------------------------

// StepDefinition is one abstract action produced by the step generator.
// It is immutable once produced; credential placeholders are substituted into
// a copy right before execution.
type StepDefinition struct {
	Action      Action         `yaml:"action"                json:"action" jsonschema:"enum=navigate,enum=click,enum=fill,enum=select,enum=wait,enum=assert,enum=screenshot,enum=scroll,enum=hover,enum=keyboard"`
	Target      string         `yaml:"target,omitempty"      json:"target,omitempty"`
	Value       string         `yaml:"value,omitempty"       json:"value,omitempty"`
	Assertion   *AssertionSpec `yaml:"assertion,omitempty"   json:"assertion,omitempty"`
	Description string         `yaml:"description"           json:"description"`

	// When is an optional guard expression; a false result skips the step.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
	// Context names the entity the target belongs to (e.g. a product card title).
	Context string `yaml:"context,omitempty" json:"context,omitempty"`
}

// Plan is a named, ordered list of steps as stored in plan files.
type Plan struct {
	Name   string           `yaml:"name,omitempty"   json:"name,omitempty"`
	URL    string           `yaml:"url,omitempty"    json:"url,omitempty"`
	Prompt string           `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Steps  []StepDefinition `yaml:"steps"            json:"steps"`
}

// ---------------------------------------------------------------------------
// Assertions
// ---------------------------------------------------------------------------

// AssertionType enumerates the closed set of assertion kinds.
type AssertionType string

const (
	AssertText    AssertionType = "text"
	AssertURL     AssertionType = "url"
	AssertTitle   AssertionType = "title"
	AssertElement AssertionType = "element"
	AssertCount   AssertionType = "count"
)

// Known reports whether t is a recognized assertion type.
func (t AssertionType) Known() bool {
	switch t {
	case AssertText, AssertURL, AssertTitle, AssertElement, AssertCount:
		return true
	}
	return false
}

// AssertionSpec is the assertion requested by a step.
type AssertionSpec struct {
	Type     AssertionType `yaml:"type"     json:"type" jsonschema:"enum=text,enum=url,enum=title,enum=element,enum=count"`
	Expected string        `yaml:"expected" json:"expected"`
}

// UnmarshalJSON accepts numeric expected values, which generators commonly
// emit for count assertions.
func (a *AssertionSpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     AssertionType   `json:"type"`
		Expected json.RawMessage `json:"expected"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Type = raw.Type
	a.Expected = ""
	exp := bytes.TrimSpace(raw.Expected)
	if len(exp) == 0 || bytes.Equal(exp, []byte("null")) {
		return nil
	}
	if exp[0] == '"' {
		return json.Unmarshal(exp, &a.Expected)
	}
	var n json.Number
	if err := json.Unmarshal(exp, &n); err != nil {
		return fmt.Errorf("assertion expected: %w", err)
	}
	a.Expected = n.String()
	return nil
}

// JSONSchemaExtend allows expected to be either a string or a number.
func (AssertionSpec) JSONSchemaExtend(s *jsonschema.Schema) {
	if s.Properties == nil {
		return
	}
	s.Properties.Set("expected", &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{{Type: "string"}, {Type: "number"}},
	})
}

// AssertionResult records the observed outcome of an assertion. Passed is
// computed by the evaluator and never supplied by callers.
type AssertionResult struct {
	Type     AssertionType `json:"type"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message,omitempty"`
}

// ---------------------------------------------------------------------------
// Step results
// ---------------------------------------------------------------------------

// StepStatus is the execution status of a step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is the execution record of one StepDefinition. Value holds the
// unsubstituted value so credentials never appear in derived output.
type StepResult struct {
	ID          string           `json:"id"`
	Index       int              `json:"index"`
	Action      Action           `json:"action"`
	Target      string           `json:"target,omitempty"`
	Value       string           `json:"value,omitempty"`
	Description string           `json:"description,omitempty"`
	Assertion   *AssertionResult `json:"assertion,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      StepStatus       `json:"status"`
	Error       string           `json:"error,omitempty"`
	Screenshot  string           `json:"screenshot,omitempty"`
	Strategy    string           `json:"strategy,omitempty"`
	Duration    time.Duration    `json:"duration,omitempty"`
}

// Snapshot returns a copy safe to hand to observers.
func (s *StepResult) Snapshot() StepResult {
	cp := *s
	if s.Assertion != nil {
		a := *s.Assertion
		cp.Assertion = &a
	}
	return cp
}

// Screenshot references a stored screenshot of a step.
type Screenshot struct {
	StepID    string    `json:"stepId"`
	Ref       string    `json:"ref"`
	SHA256    string    `json:"sha256,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
