package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ormasoftchile/uirun/pkg/engine"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Handlers implements the runner-backed tools. Runs started without wait
// outlive the tool call; Shutdown cancels and awaits them.
type Handlers struct {
	runner *engine.Runner
	log    *zap.Logger
	wg     sync.WaitGroup
}

// NewHandlers creates tool handlers for runner. A nil log discards output.
func NewHandlers(runner *engine.Runner, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{runner: runner, log: log}
}

// Wait blocks until every background run has finished.
func (h *Handlers) Wait() { h.wg.Wait() }

// Shutdown requests cancellation of every in-flight run and waits for them.
func (h *Handlers) Shutdown() {
	for _, id := range h.runner.Registry().Active() {
		h.runner.Cancel(id)
	}
	h.wg.Wait()
}

// HandleRun implements the uirun/run tool.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	runReq, err := requestFromArgs(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := runReq.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	runID := uuid.NewString()
	wait, _ := args["wait"].(bool)
	if wait {
		snap, err := h.runner.Run(ctx, runID, runReq)
		return snapshotResult(snap, err), nil
	}

	// The run must survive the end of this call. Start registers it before
	// returning so the id is immediately cancellable.
	p, err := h.runner.Start(context.WithoutCancel(ctx), runID, runReq)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := p.Wait(); err != nil {
			h.log.Info("background run ended", zap.String("run_id", runID), zap.String("error", err.Error()))
		}
	}()
	return jsonResult(map[string]any{"runId": runID, "status": schema.RunQueued}, false), nil
}

// HandleCancel implements the uirun/cancel tool.
func (h *Handlers) HandleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, _ := req.GetArguments()["runId"].(string)
	if runID == "" {
		return errorResult("runId argument is required"), nil
	}
	ok := h.runner.Cancel(runID)
	return jsonResult(map[string]any{"runId": runID, "cancelled": ok}, false), nil
}

// HandleStatus implements the uirun/status tool.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, _ := req.GetArguments()["runId"].(string)
	if runID == "" {
		return errorResult("runId argument is required"), nil
	}
	snap, err := h.runner.Status(ctx, runID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(snap, false), nil
}

// HandleScan implements the uirun/scan tool.
func (h *Handlers) HandleScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, _ := req.GetArguments()["url"].(string)
	if strings.TrimSpace(url) == "" {
		return errorResult("url argument is required"), nil
	}
	inv, err := h.runner.Scan(ctx, url, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("scan %s: %s", url, err)), nil
	}
	return jsonResult(inv, false), nil
}

// HandleValidate implements the uirun/validate tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, _ := req.GetArguments()["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	plan, err := schema.LoadPlanFile(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	errs := schema.ValidatePlan(plan)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", path, len(plan.Steps))), nil
}

// HandleSchema implements the uirun/schema tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemaType, _ := req.GetArguments()["type"].(string)

	var (
		data []byte
		err  error
	)
	switch schemaType {
	case "plan":
		data, err = schema.GeneratePlanJSONSchema()
	case "request":
		data, err = schema.GenerateRequestJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q: use 'plan' or 'request'", schemaType)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// requestFromArgs builds a run request from tool arguments. JSON numbers
// arrive as float64.
func requestFromArgs(args map[string]any) (schema.RunRequest, error) {
	var r schema.RunRequest
	r.Prompt, _ = args["prompt"].(string)
	r.URL, _ = args["url"].(string)
	if raw, ok := args["credentials"].(map[string]any); ok && len(raw) > 0 {
		r.Credentials = make(map[string]string, len(raw))
		for k, v := range raw {
			r.Credentials[k] = fmt.Sprint(v)
		}
	}

	var opts schema.RunOptions
	set := false
	if b, ok := args["browser"].(string); ok && b != "" {
		opts.Browser = schema.BrowserKind(strings.ToLower(b))
		set = true
	}
	if hl, ok := args["headless"].(bool); ok {
		opts.Headless = &hl
		set = true
	}
	switch t := args["timeout"].(type) {
	case nil:
	case float64:
		if t < 0 {
			return r, fmt.Errorf("timeout must not be negative")
		}
		opts.Timeout = int(t)
		set = true
	default:
		return r, fmt.Errorf("timeout must be a number of milliseconds")
	}
	if set {
		r.Options = &opts
	}
	return r, nil
}

func snapshotResult(snap schema.RunSnapshot, err error) *mcp.CallToolResult {
	if snap.ID == "" && err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(snap, snap.Status != schema.RunCompleted)
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
