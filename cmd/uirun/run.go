package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/uirun/pkg/events"
	"github.com/ormasoftchile/uirun/pkg/generator"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

var (
	runURL         string
	runPrompt      string
	runPlan        string
	runRequest     string
	runGenerateCmd string
	runCreds       []string
	runBrowser     string
	runHeaded      bool
	runTimeout     int
	runNoScan      bool
	runJSON        bool
	runVerbose     bool
	runID          string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and execute test steps against a live page",
	Long: `Run opens the start URL, obtains steps from a plan file or a generator
command, executes them one at a time and streams progress events.

Press Ctrl-C once to cancel before the next step, twice to abort.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runURL, "url", "", "Start URL")
	f.StringVar(&runPrompt, "prompt", "", "What the test should do")
	f.StringVar(&runPlan, "plan", "", "Step plan file (YAML or JSON)")
	f.StringVar(&runRequest, "request", "", "Run request file (YAML or JSON)")
	f.StringVar(&runGenerateCmd, "generate-cmd", "", "Command that reads a prompt on stdin and prints a JSON step array")
	f.StringArrayVar(&runCreds, "cred", nil, "Credential for {{name}} placeholders (name=value), repeatable")
	f.StringVar(&runBrowser, "browser", "", "chromium, firefox or webkit")
	f.BoolVar(&runHeaded, "headed", false, "Show the browser window")
	f.IntVar(&runTimeout, "timeout", 0, "Per-action timeout in milliseconds")
	f.BoolVar(&runNoScan, "no-scan", false, "Skip the pre-flight page inventory scan")
	f.BoolVar(&runJSON, "json", false, "Print events as JSON lines instead of a transcript")
	f.BoolVarP(&runVerbose, "verbose", "v", false, "Show step starts, screenshots and log events")
	f.StringVar(&runID, "run-id", "", "Run id (default: a new UUID)")
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}
	gen, err := buildGenerator(runPlan, runGenerateCmd)
	if err != nil {
		return err
	}

	var sink events.Sink = newPrinter(cmd.OutOrStdout(), runVerbose)
	if runJSON {
		sink = events.NewJSONLWriter(cmd.OutOrStdout())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, appOptions{generator: gen, sink: sink, skipScan: runNoScan, metrics: true})
	if err != nil {
		return err
	}
	defer a.close()

	id := runID
	if id == "" {
		id = uuid.NewString()
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go watchSignals(ctx, sigs, func() { a.runner.Cancel(id) }, cancel)

	snap, err := a.runner.Run(ctx, id, req)
	if err != nil {
		if snap.ID == "" {
			return err
		}
		return fmt.Errorf("run %s %s", snap.ID, snap.Status)
	}
	return nil
}

// watchSignals calls cancelRun on the first signal and abort on the second.
// It returns after abort or once ctx is done.
func watchSignals(ctx context.Context, sigs <-chan os.Signal, cancelRun, abort func()) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			n++
			if n == 1 {
				cancelRun()
				continue
			}
			abort()
			return
		}
	}
}

// buildRequest merges the request file, the plan header and the flags, in
// increasing precedence.
func buildRequest(cmd *cobra.Command) (schema.RunRequest, error) {
	var req schema.RunRequest
	if runRequest != "" {
		r, err := schema.LoadRequestFile(runRequest)
		if err != nil {
			return req, err
		}
		req = *r
	}
	if runPlan != "" {
		plan, err := schema.LoadPlanFile(runPlan)
		if err != nil {
			return req, err
		}
		if req.URL == "" {
			req.URL = plan.URL
		}
		if req.Prompt == "" {
			req.Prompt = firstNonEmpty(plan.Prompt, plan.Name)
		}
	}
	if runURL != "" {
		req.URL = runURL
	}
	if runPrompt != "" {
		req.Prompt = runPrompt
	}

	creds, err := parseCreds(runCreds)
	if err != nil {
		return req, err
	}
	if len(creds) > 0 && req.Credentials == nil {
		req.Credentials = make(map[string]string, len(creds))
	}
	for k, v := range creds {
		req.Credentials[k] = v
	}

	flags := cmd.Flags()
	if flags.Changed("browser") || flags.Changed("headed") || flags.Changed("timeout") {
		if req.Options == nil {
			req.Options = &schema.RunOptions{}
		}
		if flags.Changed("browser") {
			req.Options.Browser = schema.BrowserKind(strings.ToLower(runBrowser))
		}
		if flags.Changed("headed") {
			headless := !runHeaded
			req.Options.Headless = &headless
		}
		if flags.Changed("timeout") {
			req.Options.Timeout = runTimeout
		}
	}
	return req, req.Validate()
}

// buildGenerator returns the validating step generator for a plan file or
// a generator command.
func buildGenerator(plan, command string) (generator.Generator, error) {
	switch {
	case plan != "" && command != "":
		return nil, errors.New("--plan and --generate-cmd are mutually exclusive")
	case plan != "":
		return generator.Validating{Next: generator.PlanFile{Path: plan}}, nil
	case command != "":
		argv := strings.Fields(command)
		return generator.Validating{Next: generator.Completion{Client: generator.NewCommand(argv...)}}, nil
	}
	return nil, errors.New("one of --plan or --generate-cmd is required")
}

// parseCreds parses name=value pairs. Values never appear in errors.
func parseCreds(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for i, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --cred #%d: expected name=value", i+1)
		}
		out[name] = value
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
