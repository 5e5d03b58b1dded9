// Package generator provides the step generator port and the generators
// shipped with uirun: a plan-file generator, a static list, a completion
// adapter for language-model backends, and a validating decorator.
package generator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/uirun/pkg/inventory"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Request is the input handed to a step generator.
type Request struct {
	Prompt string
	URL    string
	// Inventory is the pre-flight scan of the start page, or nil.
	Inventory *inventory.Inventory
}

// Generator turns a prompt into an ordered list of steps.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]schema.StepDefinition, error)
}

// Func adapts a function to a Generator.
type Func func(ctx context.Context, req Request) ([]schema.StepDefinition, error)

func (f Func) Generate(ctx context.Context, req Request) ([]schema.StepDefinition, error) {
	return f(ctx, req)
}

// Static returns the same steps for every request.
type Static []schema.StepDefinition

func (s Static) Generate(ctx context.Context, _ Request) ([]schema.StepDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]schema.StepDefinition(nil), s...), nil
}

// PlanFile reads steps from a JSON or YAML plan file on every call. Step
// level problems are left to the runner, as with Validating.
type PlanFile struct {
	Path string
}

func (p PlanFile) Generate(ctx context.Context, _ Request) ([]schema.StepDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := schema.LoadPlanFile(p.Path)
	if err != nil {
		return nil, err
	}
	if err := schema.JoinValidation(schema.PlanLevel(schema.ValidatePlan(plan))); err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.Path, err)
	}
	return plan.Steps, nil
}

// Validating checks the steps returned by Next against the plan schema.
// Only plan-level problems fail generation; a step that breaks the schema or
// its action's field rules is left for the runner to fail when that step is
// reached.
type Validating struct {
	Next Generator
}

func (v Validating) Generate(ctx context.Context, req Request) ([]schema.StepDefinition, error) {
	steps, err := v.Next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []schema.StepDefinition{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal generated steps: %w", err)
	}
	if err := schema.JoinValidation(schema.PlanLevel(schema.ValidatePlanJSON(data))); err != nil {
		return nil, fmt.Errorf("generated steps: %w", err)
	}
	return steps, nil
}
