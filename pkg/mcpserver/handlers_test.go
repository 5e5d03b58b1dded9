package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/uirun/pkg/browser/htmlpage"
	"github.com/ormasoftchile/uirun/pkg/engine"
	"github.com/ormasoftchile/uirun/pkg/generator"
	"github.com/ormasoftchile/uirun/pkg/resolve"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

const startURL = "https://app.test/"

func newHandlers(t *testing.T, steps []schema.StepDefinition) *Handlers {
	t.Helper()
	return newHandlersWith(t, generator.Static(steps))
}

// gated returns steps only once gate is closed, holding the run in its
// pre-flight phase.
func gated(gate <-chan struct{}, steps []schema.StepDefinition) generator.Generator {
	return generator.Func(func(ctx context.Context, _ generator.Request) ([]schema.StepDefinition, error) {
		select {
		case <-gate:
			return steps, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func newHandlersWith(t *testing.T, gen generator.Generator) *Handlers {
	t.Helper()
	site := htmlpage.Site{
		startURL:           `<html><head><title>Home</title></head><body><a href="/about">About us</a><button>Subscribe</button></body></html>`,
		startURL + "about": `<html><head><title>About</title></head><body><h1>About</h1></body></html>`,
	}
	r, err := engine.New(engine.Config{
		Driver:    htmlpage.New(site),
		Generator: gen,
		Resolver:  resolve.New(resolve.WithTimeout(20 * time.Millisecond)),
		Runs:      &memRuns{runs: map[string]schema.RunSnapshot{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewHandlers(r, nil)
}

type memRuns struct {
	mu   sync.Mutex
	runs map[string]schema.RunSnapshot
}

func (m *memRuns) Save(_ context.Context, run schema.RunSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memRuns) Get(_ context.Context, id string) (*schema.RunSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return &run, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return tc.Text
}

func TestHandleRun_Wait(t *testing.T) {
	h := newHandlers(t, []schema.StepDefinition{
		{Action: schema.ActionClick, Target: "About us", Description: "open about"},
		{Action: schema.ActionAssert, Assertion: &schema.AssertionSpec{Type: schema.AssertTitle, Expected: "About"}, Description: "on about"},
	})
	res, err := h.HandleRun(context.Background(), call(map[string]any{
		"prompt": "open the about page",
		"url":    startURL,
		"wait":   true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("run failed: %s", text(t, res))
	}
	var snap schema.RunSnapshot
	if err := json.Unmarshal([]byte(text(t, res)), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Status != schema.RunCompleted || len(snap.Steps) != 2 {
		t.Errorf("snapshot = %s with %d steps", snap.Status, len(snap.Steps))
	}
}

func TestHandleRun_FailureIsError(t *testing.T) {
	h := newHandlers(t, []schema.StepDefinition{
		{Action: schema.ActionClick, Target: "Unsubscribe now", Description: "unsubscribe"},
	})
	res, _ := h.HandleRun(context.Background(), call(map[string]any{
		"prompt":      "x",
		"url":         startURL,
		"wait":        true,
		"credentials": map[string]any{"token": "s3cr3t-token"},
	}))
	if !res.IsError {
		t.Error("expected IsError for failed run")
	}
	out := text(t, res)
	if !strings.Contains(out, `"status": "failed"`) {
		t.Errorf("result = %s", out)
	}
	if strings.Contains(out, "s3cr3t-token") {
		t.Error("credential echoed in result")
	}
}

func TestHandleRun_Background(t *testing.T) {
	h := newHandlers(t, []schema.StepDefinition{
		{Action: schema.ActionClick, Target: "Subscribe", Description: "subscribe"},
	})
	res, err := h.HandleRun(context.Background(), call(map[string]any{"prompt": "x", "url": startURL}))
	if err != nil || res.IsError {
		t.Fatalf("HandleRun = %v, %v", res, err)
	}
	var started struct {
		RunID  string `json:"runId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &started); err != nil {
		t.Fatal(err)
	}
	if started.RunID == "" || started.Status != "queued" {
		t.Errorf("started = %+v", started)
	}
	h.Wait()
	if active := h.runner.Registry().Active(); len(active) != 0 {
		t.Errorf("active after wait = %v", active)
	}
}

func startRun(t *testing.T, h *Handlers) string {
	t.Helper()
	res, err := h.HandleRun(context.Background(), call(map[string]any{"prompt": "x", "url": startURL}))
	if err != nil || res.IsError {
		t.Fatalf("HandleRun = %v, %v", res, err)
	}
	var started struct {
		RunID string `json:"runId"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &started); err != nil {
		t.Fatal(err)
	}
	return started.RunID
}

var twoClicks = []schema.StepDefinition{
	{Action: schema.ActionClick, Target: "Subscribe", Description: "subscribe"},
	{Action: schema.ActionClick, Target: "About us", Description: "open about"},
}

func TestHandleRun_CancelImmediately(t *testing.T) {
	gate := make(chan struct{})
	h := newHandlersWith(t, gated(gate, twoClicks))
	runID := startRun(t, h)

	res, _ := h.HandleCancel(context.Background(), call(map[string]any{"runId": runID}))
	var cancelled struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &cancelled); err != nil {
		t.Fatal(err)
	}
	if !cancelled.Cancelled {
		t.Errorf("cancel right after start = %s", text(t, res))
	}
	close(gate)
	h.Wait()

	res, _ = h.HandleStatus(context.Background(), call(map[string]any{"runId": runID}))
	var snap schema.RunSnapshot
	if err := json.Unmarshal([]byte(text(t, res)), &snap); err != nil {
		t.Fatalf("status: %v\n%s", err, text(t, res))
	}
	if snap.Status != schema.RunCancelled {
		t.Errorf("status = %q, want %q", snap.Status, schema.RunCancelled)
	}
	if len(snap.Steps) != 0 {
		t.Errorf("%d steps ran after cancellation", len(snap.Steps))
	}
}

func TestHandleStatus_QueuedRunIsVisible(t *testing.T) {
	gate := make(chan struct{})
	h := newHandlersWith(t, gated(gate, twoClicks))
	runID := startRun(t, h)
	defer func() {
		close(gate)
		h.Wait()
	}()

	res, _ := h.HandleStatus(context.Background(), call(map[string]any{"runId": runID}))
	if res.IsError {
		t.Errorf("status of a just-started run = %s", text(t, res))
	}
}

func TestShutdown_CancelsFreshRuns(t *testing.T) {
	gate := make(chan struct{})
	h := newHandlersWith(t, gated(gate, twoClicks))
	runID := startRun(t, h)

	done := make(chan struct{})
	go func() {
		h.Shutdown()
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		hd, ok := h.runner.Registry().Get(runID)
		if !ok || hd.Cancelled() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("shutdown did not cancel the run")
		}
		time.Sleep(time.Millisecond)
	}
	close(gate)
	<-done

	snap, err := h.runner.Status(context.Background(), runID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != schema.RunCancelled {
		t.Errorf("status = %q, want %q", snap.Status, schema.RunCancelled)
	}
}

func TestHandleRun_InvalidArguments(t *testing.T) {
	h := newHandlers(t, nil)
	tests := []map[string]any{
		{"prompt": "x"},
		{"prompt": "x", "url": startURL, "browser": "netscape"},
		{"prompt": "x", "url": startURL, "timeout": "soon"},
		{"prompt": "x", "url": startURL, "timeout": -1.0},
	}
	for _, args := range tests {
		res, err := h.HandleRun(context.Background(), call(args))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Errorf("HandleRun(%v) succeeded, want error", args)
		}
	}
}

func TestRequestFromArgs(t *testing.T) {
	r, err := requestFromArgs(map[string]any{
		"prompt":      "p",
		"url":         startURL,
		"browser":     "Firefox",
		"headless":    false,
		"timeout":     1500.0,
		"credentials": map[string]any{"pin": 1234.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Options == nil || r.Options.Browser != schema.BrowserFirefox || r.Options.IsHeadless() || r.Options.Timeout != 1500 {
		t.Errorf("options = %+v", r.Options)
	}
	if r.Credentials["pin"] != "1234" {
		t.Errorf("pin = %q, want %q", r.Credentials["pin"], "1234")
	}

	r, _ = requestFromArgs(map[string]any{"prompt": "p", "url": startURL})
	if r.Options != nil {
		t.Errorf("options = %+v, want nil", r.Options)
	}
}

func TestHandleCancel(t *testing.T) {
	h := newHandlers(t, nil)
	res, _ := h.HandleCancel(context.Background(), call(map[string]any{"runId": "missing"}))
	if res.IsError || !strings.Contains(text(t, res), `"cancelled": false`) {
		t.Errorf("cancel unknown = %s", text(t, res))
	}
	res, _ = h.HandleCancel(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Error("expected error for missing runId")
	}
}

func TestHandleStatus_Unknown(t *testing.T) {
	h := newHandlers(t, nil)
	res, _ := h.HandleStatus(context.Background(), call(map[string]any{"runId": "missing"}))
	if !res.IsError {
		t.Errorf("status of unknown run = %s", text(t, res))
	}
}

func TestHandleScan(t *testing.T) {
	h := newHandlers(t, nil)
	res, _ := h.HandleScan(context.Background(), call(map[string]any{"url": startURL}))
	if res.IsError {
		t.Fatalf("scan: %s", text(t, res))
	}
	out := text(t, res)
	for _, want := range []string{"Subscribe", "About us"} {
		if !strings.Contains(out, want) {
			t.Errorf("inventory missing %q: %s", want, out)
		}
	}

	res, _ = h.HandleScan(context.Background(), call(map[string]any{"url": "https://app.test/nowhere"}))
	if !res.IsError {
		t.Error("expected error scanning unknown page")
	}
}

func TestHandleValidate(t *testing.T) {
	res, _ := HandleValidate(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Error("expected error for missing path")
	}

	dir := t.TempDir()
	good := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(good, []byte("steps:\n  - action: click\n    target: Login\n    description: log in\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, _ = HandleValidate(context.Background(), call(map[string]any{"path": good}))
	if res.IsError {
		t.Errorf("valid plan rejected: %s", text(t, res))
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("steps:\n  - action: fill\n    target: Email\n    description: type\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, _ = HandleValidate(context.Background(), call(map[string]any{"path": bad}))
	if !res.IsError {
		t.Error("plan without fill value accepted")
	}
}

func TestHandleSchema(t *testing.T) {
	for _, typ := range []string{"plan", "request"} {
		res, err := HandleSchema(context.Background(), call(map[string]any{"type": typ}))
		if err != nil {
			t.Fatal(err)
		}
		if res.IsError || !json.Valid([]byte(text(t, res))) {
			t.Errorf("schema %s: %s", typ, text(t, res))
		}
	}
	res, _ := HandleSchema(context.Background(), call(map[string]any{"type": "runbook"}))
	if !res.IsError {
		t.Error("expected error for unknown schema type")
	}
}

func TestNewServer(t *testing.T) {
	h := newHandlers(t, nil)
	if s := newServer("test", h); s == nil {
		t.Fatal("newServer returned nil")
	}
}
