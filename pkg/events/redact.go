package events

import (
	"sort"
	"strings"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Redacted replaces secret values in output.
const Redacted = "<REDACTED>"

// Redactor masks credential values in strings and event payloads.
type Redactor struct {
	secrets []string
}

// NewRedactor creates a Redactor for the given secret values. Empty values
// are ignored and longer values are replaced first.
func NewRedactor(secrets []string) *Redactor {
	var s []string
	for _, v := range secrets {
		if v != "" {
			s = append(s, v)
		}
	}
	sort.Slice(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return &Redactor{secrets: s}
}

// String replaces every secret value in s with <REDACTED>.
func (r *Redactor) String(s string) string {
	if r == nil {
		return s
	}
	for _, v := range r.secrets {
		if strings.Contains(s, v) {
			s = strings.ReplaceAll(s, v, Redacted)
		}
	}
	return s
}

// Step returns a copy of step with its free-text fields redacted.
func (r *Redactor) Step(step schema.StepResult) schema.StepResult {
	out := step.Snapshot()
	out.Target = r.String(out.Target)
	out.Value = r.String(out.Value)
	out.Description = r.String(out.Description)
	out.Error = r.String(out.Error)
	if out.Assertion != nil {
		out.Assertion.Expected = r.String(out.Assertion.Expected)
		out.Assertion.Actual = r.String(out.Assertion.Actual)
		out.Assertion.Message = r.String(out.Assertion.Message)
	}
	return out
}

// Data returns a redacted copy of an event payload.
func (r *Redactor) Data(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if k == "screenshot" {
				out[k] = val
				continue
			}
			out[k] = r.String(val)
		case schema.StepResult:
			out[k] = r.Step(val)
		case *schema.StepResult:
			s := r.Step(*val)
			out[k] = s
		case error:
			out[k] = r.String(val.Error())
		default:
			out[k] = v
		}
	}
	return out
}
