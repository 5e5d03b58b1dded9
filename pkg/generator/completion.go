package generator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Completer is a language-model backend. It receives a system prompt and a
// user prompt and returns the assistant's response text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ModelName() string
}

// SystemPrompt instructs the model to answer with a JSON step array.
const SystemPrompt = `You write UI test steps for a browser automation engine.
Answer with a JSON array of steps and nothing else. Every step conforms to
the "steps" items of this JSON Schema (Draft 2020-12):

` + "```json" + `
{{ .JSONSchema }}
` + "```" + `

Rules:
- Targets are visible text, labels, or placeholders. Use CSS only when no text identifies the element.
- Never use :contains(), :has-text(), :text() or :visible in a target.
- Reference credentials as {{"{{"}}name{{"}}"}} placeholders, never literal values.
- Put the entity a target belongs to in "context" when several elements share the same text.
- Count assertions put the locator in target and an integer in expected.
`

const userPromptTemplate = `Start URL: {{ .URL }}

Task:
{{ .Prompt }}
{{- if .Inventory }}

Visible interactive elements on the start page:
{{ .Inventory }}
{{- end }}
`

var (
	systemTmpl = template.Must(template.New("system").Parse(SystemPrompt))
	userTmpl   = template.Must(template.New("user").Parse(userPromptTemplate))
)

// Completion generates steps by prompting a Completer.
type Completion struct {
	Client Completer
}

// Prompts renders the system and user prompts for req.
func Prompts(req Request) (system, user string, err error) {
	schemaJSON, err := schema.GeneratePlanJSONSchema()
	if err != nil {
		return "", "", err
	}
	var sb, ub bytes.Buffer
	if err := systemTmpl.Execute(&sb, map[string]string{"JSONSchema": string(schemaJSON)}); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	inv := ""
	if req.Inventory != nil {
		inv = req.Inventory.Summary()
	}
	if err := userTmpl.Execute(&ub, map[string]string{"URL": req.URL, "Prompt": req.Prompt, "Inventory": inv}); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return sb.String(), ub.String(), nil
}

func (c Completion) Generate(ctx context.Context, req Request) ([]schema.StepDefinition, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("completion generator has no client")
	}
	system, user, err := Prompts(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Client.ModelName(), err)
	}
	return ParseSteps(resp)
}

// ParseSteps decodes a model response into steps. A wrapping code fence and
// a plan object with a "steps" field are both accepted.
func ParseSteps(response string) ([]schema.StepDefinition, error) {
	body := stripOuterCodeFence(response)
	if body == "" {
		return nil, fmt.Errorf("empty generator response")
	}
	plan, err := schema.DecodePlanJSON([]byte(body))
	if err != nil {
		return nil, err
	}
	return plan.Steps, nil
}

// stripOuterCodeFence removes a wrapping ```...``` fence if present.
func stripOuterCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if idx := strings.Index(trimmed, "\n"); idx != -1 {
		trimmed = trimmed[idx+1:]
	}
	if last := strings.LastIndex(trimmed, "```"); last != -1 {
		trimmed = trimmed[:last]
	}
	return strings.TrimSpace(trimmed)
}
