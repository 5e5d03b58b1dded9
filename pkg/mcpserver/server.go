// Package mcpserver exposes the step runner as MCP tools so agents can start,
// watch and cancel UI test runs.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ormasoftchile/uirun/pkg/engine"
)

// NewServer creates an MCP server with the uirun tools registered against
// runner.
func NewServer(version string, runner *engine.Runner, log *zap.Logger) *server.MCPServer {
	return newServer(version, NewHandlers(runner, log))
}

func newServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"uirun",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("uirun/run",
			mcp.WithDescription("Start a UI test run from a natural-language prompt against a start URL. Returns the run id; pass wait=true to block until the run finishes and get the full result."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What the test should do, in plain language")),
			mcp.WithString("url", mcp.Required(), mcp.Description("Page the run starts on")),
			mcp.WithObject("credentials", mcp.Description("Values for {{name}} placeholders; never echoed back")),
			mcp.WithString("browser", mcp.Description("chromium, firefox or webkit")),
			mcp.WithBoolean("headless", mcp.Description("Run without a visible window (default true)")),
			mcp.WithNumber("timeout", mcp.Description("Per-action timeout in milliseconds")),
			mcp.WithBoolean("wait", mcp.Description("Block until the run is terminal")),
		),
		h.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("uirun/cancel",
			mcp.WithDescription("Request cancellation of a run. Takes effect before the next step."),
			mcp.WithString("runId", mcp.Required(), mcp.Description("Run to cancel")),
		),
		h.HandleCancel,
	)

	s.AddTool(
		mcp.NewTool("uirun/status",
			mcp.WithDescription("Return the current snapshot of a run: status, steps and screenshot references"),
			mcp.WithString("runId", mcp.Required(), mcp.Description("Run to inspect")),
		),
		h.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("uirun/scan",
			mcp.WithDescription("Open a page and list its visible buttons, links and inputs"),
			mcp.WithString("url", mcp.Required(), mcp.Description("Page to scan")),
		),
		h.HandleScan,
	)

	s.AddTool(
		mcp.NewTool("uirun/validate",
			mcp.WithDescription("Validate a step plan file (YAML or JSON)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the plan file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("uirun/schema",
			mcp.WithDescription("Export the JSON Schema for step plans or run requests"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'plan' or 'request'")),
		),
		HandleSchema,
	)

	return s
}

// ServeStdio serves the tools over stdin/stdout until the client
// disconnects. Runs still in flight are then cancelled and awaited.
func ServeStdio(version string, runner *engine.Runner, log *zap.Logger) error {
	h := NewHandlers(runner, log)
	defer h.Shutdown()
	return server.ServeStdio(newServer(version, h))
}
