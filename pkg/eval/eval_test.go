package eval

import (
	"reflect"
	"testing"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

func TestSubstitute_Literal(t *testing.T) {
	got, missing := Substitute("hello world", map[string]string{"a": "b"})
	if got != "hello world" || missing != nil {
		t.Errorf("got %q, missing %v", got, missing)
	}
}

func TestSubstitute_Forms(t *testing.T) {
	creds := map[string]string{"password": "s3cret", "user": "ana"}
	tests := []struct{ in, want string }{
		{"{{password}}", "s3cret"},
		{"{{ password }}", "s3cret"},
		{"{{ .user }}:{{password}}", "ana:s3cret"},
	}
	for _, tt := range tests {
		got, missing := Substitute(tt.in, creds)
		if got != tt.want || len(missing) != 0 {
			t.Errorf("Substitute(%q) = %q, missing %v; want %q", tt.in, got, missing, tt.want)
		}
	}
}

func TestSubstitute_Missing(t *testing.T) {
	got, missing := Substitute("{{otp}} and {{user}}", map[string]string{"user": "ana"})
	if got != "{{otp}} and ana" {
		t.Errorf("got %q", got)
	}
	if !reflect.DeepEqual(missing, []string{"otp"}) {
		t.Errorf("missing = %v", missing)
	}
}

func TestSubstituteStep_DoesNotMutate(t *testing.T) {
	step := schema.StepDefinition{
		Action:    schema.ActionFill,
		Target:    "Password",
		Value:     "{{password}}",
		Assertion: &schema.AssertionSpec{Type: schema.AssertText, Expected: "Hi {{user}}"},
	}
	out, missing := SubstituteStep(step, map[string]string{"password": "pw", "user": "ana"})
	if len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}
	if out.Value != "pw" || out.Assertion.Expected != "Hi ana" {
		t.Errorf("out = %+v / %+v", out, out.Assertion)
	}
	if step.Value != "{{password}}" || step.Assertion.Expected != "Hi {{user}}" {
		t.Error("original step mutated")
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{a}} {{ b }} {{a}}")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("got %v", got)
	}
}

func TestSecrets_LongestFirst(t *testing.T) {
	got := Secrets(map[string]string{"a": "pw", "b": "pw-long", "c": ""})
	if !reflect.DeepEqual(got, []string{"pw-long", "pw"}) {
		t.Errorf("got %v", got)
	}
}

func TestEvalWhen(t *testing.T) {
	env := map[string]any{"url": "https://app.test/login", "index": 2}
	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{`url contains "login"`, true},
		{`index > 3`, false},
		{`url startsWith "https://" && index == 2`, true},
	}
	for _, tt := range tests {
		got, err := EvalWhen(tt.expr, env)
		if err != nil {
			t.Fatalf("%q: %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("EvalWhen(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
	if _, err := EvalWhen(`index + 1`, env); err == nil {
		t.Error("expected error for non-bool expression")
	}
}
