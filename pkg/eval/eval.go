// Package eval substitutes credential placeholders into step values and
// evaluates step guard expressions.
package eval

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

// placeholderRe matches {{key}}, {{ key }} and {{ .key }}.
var placeholderRe = regexp.MustCompile(`\{\{\s*\.?([A-Za-z_][A-Za-z0-9_.-]*)\s*\}\}`)

// Placeholders returns the distinct placeholder keys in s, in order of
// first appearance.
func Placeholders(s string) []string {
	if !strings.Contains(s, "{{") {
		return nil
	}
	seen := map[string]bool{}
	var keys []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// Substitute replaces placeholders in s with values from creds. Placeholders
// without a value are left in place and their keys returned as missing.
func Substitute(s string, creds map[string]string) (string, []string) {
	if !strings.Contains(s, "{{") {
		return s, nil // fast path for literals
	}
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
		key := placeholderRe.FindStringSubmatch(tok)[1]
		if v, ok := creds[key]; ok {
			return v
		}
		missing = append(missing, key)
		return tok
	})
	return out, missing
}

// SubstituteStep returns a copy of step with credentials substituted into
// its value. The original definition is not modified.
func SubstituteStep(step schema.StepDefinition, creds map[string]string) (schema.StepDefinition, []string) {
	out := step
	var missing []string
	out.Value, missing = Substitute(step.Value, creds)
	if step.Assertion != nil {
		a := *step.Assertion
		var m []string
		a.Expected, m = Substitute(a.Expected, creds)
		missing = append(missing, m...)
		out.Assertion = &a
	}
	return out, missing
}

// Secrets returns the non-empty credential values, longest first, for
// redaction.
func Secrets(creds map[string]string) []string {
	var out []string
	for _, v := range creds {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// EvalWhen evaluates a guard expression with expr-lang. An empty
// expression is true.
func EvalWhen(exprStr string, env map[string]any) (bool, error) {
	exprStr = strings.TrimSpace(exprStr)
	if exprStr == "" {
		return true, nil
	}
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", exprStr, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", exprStr, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", exprStr, output)
	}
	return result, nil
}
