package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAssertionSpec_UnmarshalNumericExpected(t *testing.T) {
	var spec AssertionSpec
	if err := json.Unmarshal([]byte(`{"type":"count","expected":3}`), &spec); err != nil {
		t.Fatal(err)
	}
	if spec.Type != AssertCount {
		t.Errorf("type = %q, want count", spec.Type)
	}
	if spec.Expected != "3" {
		t.Errorf("expected = %q, want 3", spec.Expected)
	}

	if err := json.Unmarshal([]byte(`{"type":"text","expected":"Dashboard"}`), &spec); err != nil {
		t.Fatal(err)
	}
	if spec.Expected != "Dashboard" {
		t.Errorf("expected = %q, want Dashboard", spec.Expected)
	}
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		step    StepDefinition
		wantErr string
	}{
		{"navigate ok", StepDefinition{Action: ActionNavigate, Target: "https://example.com"}, ""},
		{"navigate missing", StepDefinition{Action: ActionNavigate}, "navigate requires"},
		{"click missing target", StepDefinition{Action: ActionClick}, "click requires a target"},
		{"fill missing value", StepDefinition{Action: ActionFill, Target: "Email"}, "fill requires a value"},
		{"fill ok", StepDefinition{Action: ActionFill, Target: "Email", Value: "a@b.c"}, ""},
		{"wait bad value", StepDefinition{Action: ActionWait, Value: "soon"}, "not a millisecond count"},
		{"wait default", StepDefinition{Action: ActionWait}, ""},
		{"assert missing", StepDefinition{Action: ActionAssert}, "assert requires an assertion"},
		{"count non-integer", StepDefinition{Action: ActionAssert, Target: ".item", Assertion: &AssertionSpec{Type: AssertCount, Expected: "three"}}, "count expects an integer"},
		{"count missing locator", StepDefinition{Action: ActionAssert, Assertion: &AssertionSpec{Type: AssertCount, Expected: "3"}}, "locator in target"},
		{"unknown assertion", StepDefinition{Action: ActionAssert, Assertion: &AssertionSpec{Type: "color"}}, "unknown assertion type"},
		{"screenshot ok", StepDefinition{Action: ActionScreenshot}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStep(tt.step)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStep_UnknownAction(t *testing.T) {
	err := ValidateStep(StepDefinition{Action: "teleport", Target: "x"})
	var uae *UnknownActionError
	if !errors.As(err, &uae) {
		t.Fatalf("error = %T, want *UnknownActionError", err)
	}
	if uae.Action != "teleport" {
		t.Errorf("action = %q", uae.Action)
	}
}

func TestValidatePlanJSON_BareArray(t *testing.T) {
	raw := []byte(`[
		{"action":"navigate","target":"https://example.com","description":"open"},
		{"action":"click","target":"Login","description":"log in"},
		{"action":"assert","assertion":{"type":"text","expected":"Dashboard"},"description":"check"}
	]`)
	if errs := ValidatePlanJSON(raw); HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", JoinValidation(errs))
	}
}

func TestValidatePlanJSON_RejectsUnknownAction(t *testing.T) {
	raw := []byte(`[{"action":"teleport","target":"x","description":"nope"}]`)
	errs := ValidatePlanJSON(raw)
	if !HasErrors(errs) {
		t.Fatal("expected semantic error for unknown action")
	}
	if errs[0].Phase != "semantic" {
		t.Errorf("phase = %q, want semantic", errs[0].Phase)
	}
	if msg := errs[0].Message; strings.Contains(msg, "&{") || !strings.Contains(msg, "click") {
		t.Errorf("message = %q, want a readable list of allowed actions", msg)
	}
}

func TestPlanLevel(t *testing.T) {
	errs := []*ValidationError{
		{Phase: "semantic", Path: "steps/2/action", Message: "bad action", Severity: "error"},
		{Phase: "domain", Path: "steps[0].value", Message: "fill requires a value", Severity: "error"},
		{Phase: "semantic", Path: "", Message: "additional properties", Severity: "error"},
		{Phase: "semantic", Path: "steps", Message: "not an array", Severity: "error"},
		{Phase: "domain", Path: "stepsX/1", Message: "odd", Severity: "error"},
	}
	got := PlanLevel(errs)
	var paths []string
	for _, e := range got {
		paths = append(paths, e.Path)
	}
	if want := []string{"", "steps", "stepsX/1"}; strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("PlanLevel paths = %q, want %q", paths, want)
	}
}

func TestValidatePlanJSON_RejectsUnknownField(t *testing.T) {
	raw := []byte(`{"steps":[{"action":"click","target":"x","description":"d","selector":"#x"}]}`)
	if errs := ValidatePlanJSON(raw); !HasErrors(errs) {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidatePlanJSON_DomainError(t *testing.T) {
	raw := []byte(`[{"action":"fill","target":"Email","description":"type email"}]`)
	errs := ValidatePlanJSON(raw)
	if !HasErrors(errs) {
		t.Fatal("expected domain error")
	}
	if errs[0].Phase != "domain" || errs[0].Path != "steps[0].value" {
		t.Errorf("got [%s] %s", errs[0].Phase, errs[0].Path)
	}
}

func TestLoadPlanFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login.yaml")
	content := `name: login
url: https://example.com
steps:
  - action: fill
    target: Password
    value: "{{password}}"
    description: enter password
  - action: assert
    target: .item
    assertion:
      type: count
      expected: 3
    description: three items
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPlanFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(p.Steps))
	}
	if p.Steps[0].Value != "{{password}}" {
		t.Errorf("value = %q", p.Steps[0].Value)
	}
	if p.Steps[1].Assertion.Expected != "3" {
		t.Errorf("expected = %q, want 3", p.Steps[1].Assertion.Expected)
	}
	if errs := ValidatePlan(p); HasErrors(errs) {
		t.Errorf("unexpected errors: %v", JoinValidation(errs))
	}
}

func TestLoadPlan_RejectsUnknownFields(t *testing.T) {
	_, err := LoadPlan(strings.NewReader("steps:\n  - action: click\n    selector: '#x'\n"))
	if err == nil {
		t.Fatal("expected structural error")
	}
}

func TestGeneratePlanJSONSchema(t *testing.T) {
	data, err := GeneratePlanJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"navigate"`, `"keyboard"`, `"count"`, "plan-v0.json"} {
		if !strings.Contains(s, want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

func TestRun_FinishOnce(t *testing.T) {
	r := NewRun("run-1", RunRequest{URL: "https://example.com"})
	if r.Status != RunQueued {
		t.Fatalf("status = %q, want queued", r.Status)
	}
	now := time.Now()
	if err := r.Start(now); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(RunCompleted, "", now); err != nil {
		t.Fatal(err)
	}
	if err := r.Finish(RunFailed, "late", now); err == nil {
		t.Fatal("second Finish should fail")
	}
	if r.CurrentStatus() != RunCompleted {
		t.Errorf("status = %q, want completed", r.CurrentStatus())
	}
	if err := r.Finish(RunRunning, "", now); err == nil {
		t.Error("non-terminal Finish should fail")
	}
}

func TestRunRequest_Defaults(t *testing.T) {
	req := RunRequest{URL: "https://example.com"}
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}
	opts := req.EffectiveOptions()
	if opts.Browser != BrowserChromium || !opts.IsHeadless() {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Viewport.Width != DefaultViewportWidth || opts.TimeoutDuration() != 30*time.Second {
		t.Errorf("viewport/timeout = %+v / %v", opts.Viewport, opts.TimeoutDuration())
	}

	bad := RunRequest{URL: "https://example.com", Options: &RunOptions{Browser: "netscape"}}
	if err := bad.Validate(); err == nil {
		t.Error("expected unsupported browser error")
	}
	if err := (&RunRequest{}).Validate(); err == nil {
		t.Error("expected missing url error")
	}
}
