// Package engine implements the step runner: it owns a run from registration
// to cleanup, executes generated steps one at a time against a browser page,
// and emits the ordered lifecycle event stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/uirun/pkg/artifacts"
	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/eval"
	"github.com/ormasoftchile/uirun/pkg/events"
	"github.com/ormasoftchile/uirun/pkg/generator"
	"github.com/ormasoftchile/uirun/pkg/inventory"
	"github.com/ormasoftchile/uirun/pkg/registry"
	"github.com/ormasoftchile/uirun/pkg/resolve"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// RunSaver persists terminal runs.
type RunSaver interface {
	Save(ctx context.Context, run schema.RunSnapshot) error
}

// RunLoader reads persisted runs.
type RunLoader interface {
	Get(ctx context.Context, id string) (*schema.RunSnapshot, error)
}

// Config wires the runner's collaborators. Driver and Generator are
// required; everything else is optional.
type Config struct {
	Driver    browser.Driver
	Generator generator.Generator
	Registry  *registry.Registry
	Resolver  *resolve.Resolver
	// Sink receives the events of every run. SinkFor, when set, adds a
	// per-run sink next to it.
	Sink    events.Sink
	SinkFor func(runID string) events.Sink
	// Artifacts stores step screenshots; nil keeps them in events only.
	Artifacts artifacts.Store
	Runs      RunSaver
	Logger    *zap.Logger
	Metrics   *Metrics
	// Options fills request options the caller left unset. Nil applies the
	// schema defaults.
	Options func(*schema.RunOptions) schema.RunOptions
	// SkipScan disables the pre-flight inventory scan. The start URL is
	// still opened before steps are generated.
	SkipScan bool
}

// Runner executes runs. It is safe for concurrent use; each run gets its own
// browser session.
type Runner struct {
	driver    browser.Driver
	gen       generator.Generator
	registry  *registry.Registry
	resolver  *resolve.Resolver
	sink      events.Sink
	sinkFor   func(string) events.Sink
	artifacts artifacts.Store
	runs      RunSaver
	log       *zap.Logger
	metrics   *Metrics
	options   func(*schema.RunOptions) schema.RunOptions
	skipScan  bool
	now       func() time.Time

	mu   sync.Mutex
	live map[string]*schema.Run
}

// New creates a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Driver == nil {
		return nil, errors.New("engine: browser driver is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("engine: step generator is required")
	}
	r := &Runner{
		driver:    cfg.Driver,
		gen:       cfg.Generator,
		registry:  cfg.Registry,
		resolver:  cfg.Resolver,
		sink:      cfg.Sink,
		sinkFor:   cfg.SinkFor,
		artifacts: cfg.Artifacts,
		runs:      cfg.Runs,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		options:   cfg.Options,
		skipScan:  cfg.SkipScan,
		now:       time.Now,
		live:      make(map[string]*schema.Run),
	}
	if r.registry == nil {
		r.registry = registry.New()
	}
	if r.resolver == nil {
		r.resolver = resolve.New()
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.options == nil {
		r.options = func(o *schema.RunOptions) schema.RunOptions {
			if o == nil {
				return schema.RunOptions{}.WithDefaults()
			}
			return o.WithDefaults()
		}
	}
	return r, nil
}

// Registry returns the registry tracking this runner's in-flight runs.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Cancel requests cooperative cancellation of runID. The flag is checked
// before each step; an in-flight action is never interrupted. Unknown and
// finished runs are ignored.
func (r *Runner) Cancel(runID string) bool {
	ok := r.registry.RequestCancel(runID)
	if ok {
		r.log.Info("cancellation requested", zap.String("run_id", runID))
	}
	return ok
}

// Status returns a snapshot of an in-flight run, or of a finished run when a
// RunLoader was configured as Runs.
func (r *Runner) Status(ctx context.Context, runID string) (schema.RunSnapshot, error) {
	r.mu.Lock()
	run, ok := r.live[runID]
	r.mu.Unlock()
	if ok {
		return run.Snapshot(), nil
	}
	if loader, ok := r.runs.(RunLoader); ok {
		snap, err := loader.Get(ctx, runID)
		if err != nil {
			return schema.RunSnapshot{}, err
		}
		return *snap, nil
	}
	return schema.RunSnapshot{}, fmt.Errorf("run %s not found", runID)
}

// Run executes req under runID (a new id when empty) and returns the final
// run snapshot. The error is nil only for a completed run. Error messages
// never contain credential values.
func (r *Runner) Run(ctx context.Context, runID string, req schema.RunRequest) (schema.RunSnapshot, error) {
	x, err := r.prepare(runID, req)
	if err != nil {
		return schema.RunSnapshot{}, err
	}
	return x.finish(ctx)
}

// Pending is a registered run executing in the background.
type Pending struct {
	ID   string
	done chan struct{}
	snap schema.RunSnapshot
	err  error
}

// Done is closed when the run has reached a terminal status and released
// its browser resources.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the run ends and returns what Run would have returned.
func (p *Pending) Wait() (schema.RunSnapshot, error) {
	<-p.done
	return p.snap, p.err
}

// Start validates and registers the run, then executes it in a new
// goroutine. The run is visible to Cancel and Status as soon as Start
// returns.
func (r *Runner) Start(ctx context.Context, runID string, req schema.RunRequest) (*Pending, error) {
	x, err := r.prepare(runID, req)
	if err != nil {
		return nil, err
	}
	p := &Pending{ID: x.run.ID, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.snap, p.err = x.finish(ctx)
	}()
	return p, nil
}

// prepare registers runID and builds its queued execution.
func (r *Runner) prepare(runID string, req schema.RunRequest) (*execution, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	h, err := r.registry.Register(runID)
	if err != nil {
		return nil, err
	}

	run := schema.NewRun(runID, req)
	run.Options = r.options(req.Options)
	redactor := events.NewRedactor(eval.Secrets(req.Credentials))
	log := r.log.With(zap.String("run_id", runID))
	em := events.NewEmitter(r.runSink(runID), runID, redactor)
	em.OnError = func(ev events.Event, err error) {
		log.Warn("event delivery failed", zap.String("type", string(ev.Type)), zap.String("error", redactor.String(err.Error())))
	}

	r.mu.Lock()
	r.live[runID] = run
	r.mu.Unlock()
	return &execution{
		Runner:   r,
		run:      run,
		handle:   h,
		req:      req,
		em:       em,
		redactor: redactor,
		log:      log,
	}, nil
}

// finish drives a prepared run to its terminal status and releases it.
func (x *execution) finish(ctx context.Context) (schema.RunSnapshot, error) {
	r, run, h, em, log, redactor := x.Runner, x.run, x.handle, x.em, x.log, x.redactor
	runID := run.ID
	defer func() {
		if err := h.Close(); err != nil {
			log.Warn("cleanup failed", zap.String("error", redactor.String(err.Error())))
		}
		r.registry.Release(runID)
		r.mu.Lock()
		delete(r.live, runID)
		r.mu.Unlock()
	}()

	_ = run.Start(r.now())
	r.metrics.runStarted()
	log.Info("run started", zap.String("url", x.req.URL), zap.String("browser", string(run.Options.Browser)))
	em.TestStarted(x.req.Prompt)

	status, runErr := x.drive(ctx)

	msg := ""
	if runErr != nil {
		msg = redactor.String(runErr.Error())
	}
	h.MarkTerminal()
	_ = run.Finish(status, msg, r.now())
	switch status {
	case schema.RunCompleted:
		em.TestCompleted()
	default:
		var infra *schema.InfrastructureError
		if errors.As(runErr, &infra) {
			em.Error(msg, "")
		}
		em.TestFailed(msg)
	}
	r.metrics.runFinished(status)
	log.Info("run finished", zap.String("status", string(status)), zap.String("error", msg))

	snap := run.Snapshot()
	if r.runs != nil {
		if err := r.runs.Save(context.WithoutCancel(ctx), snap); err != nil {
			log.Warn("save run failed", zap.Error(err))
		}
	}
	if runErr != nil {
		return snap, &runError{msg: msg, err: runErr}
	}
	return snap, nil
}

func (r *Runner) runSink(runID string) events.Sink {
	var sinks events.Multi
	if r.sink != nil {
		sinks = append(sinks, r.sink)
	}
	if r.sinkFor != nil {
		if s := r.sinkFor(runID); s != nil {
			sinks = append(sinks, s)
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// Scan opens pageURL in a throwaway session and returns its inventory.
func (r *Runner) Scan(ctx context.Context, pageURL string, opts *schema.RunOptions) (*inventory.Inventory, error) {
	o := r.options(opts)
	h := &registry.Handle{RunID: "scan"}
	defer func() {
		if err := h.Close(); err != nil {
			r.log.Warn("scan cleanup failed", zap.Error(err))
		}
	}()
	if err := r.open(ctx, h, o); err != nil {
		return nil, err
	}
	if err := h.Page.Goto(ctx, pageURL); err != nil {
		return nil, &schema.InfrastructureError{Op: "navigate", Err: err}
	}
	return inventory.Scan(ctx, h.Page)
}

// open launches the session, context and page for h.
func (r *Runner) open(ctx context.Context, h *registry.Handle, o schema.RunOptions) error {
	session, err := r.driver.Launch(ctx, browser.LaunchOptions{
		Browser:  browser.Kind(o.Browser),
		Headless: o.IsHeadless(),
	})
	if err != nil {
		return &schema.InfrastructureError{Op: "launch browser", Err: err}
	}
	h.Session = session
	bctx, err := session.NewContext(ctx, browser.ContextOptions{
		ViewportWidth:  o.Viewport.Width,
		ViewportHeight: o.Viewport.Height,
	})
	if err != nil {
		return &schema.InfrastructureError{Op: "create context", Err: err}
	}
	h.Context = bctx
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return &schema.InfrastructureError{Op: "create page", Err: err}
	}
	h.Page = page
	page.SetDefaultTimeout(o.TimeoutDuration())
	return nil
}

// runError carries a redacted message while keeping the cause inspectable
// with errors.Is and errors.As.
type runError struct {
	msg string
	err error
}

func (e *runError) Error() string { return e.msg }
func (e *runError) Unwrap() error { return e.err }

// execution is the state of one run while its steps execute.
type execution struct {
	*Runner
	run      *schema.Run
	handle   *registry.Handle
	req      schema.RunRequest
	em       *events.Emitter
	redactor *events.Redactor
	log      *zap.Logger
}

// drive runs the pre-flight phase and the step loop and returns the
// terminal status with its cause.
func (x *execution) drive(ctx context.Context) (schema.RunStatus, error) {
	if err := x.open(ctx, x.handle, x.run.Options); err != nil {
		return schema.RunFailed, err
	}
	page := x.handle.Page

	var inv *inventory.Inventory
	if strings.TrimSpace(x.req.URL) != "" {
		x.em.Log("opening " + x.req.URL)
		if err := page.Goto(ctx, x.req.URL); err != nil {
			return schema.RunFailed, &schema.InfrastructureError{Op: "navigate", Err: err}
		}
		if !x.skipScan {
			scanned, err := inventory.Scan(ctx, page)
			if err != nil {
				x.log.Warn("inventory scan failed", zap.Error(err))
			} else {
				inv = scanned
				x.em.Log(fmt.Sprintf("found %d buttons, %d links, %d inputs", len(inv.Buttons), len(inv.Links), len(inv.Inputs)))
			}
		}
	}

	steps, err := x.gen.Generate(ctx, generator.Request{Prompt: x.req.Prompt, URL: x.req.URL, Inventory: inv})
	if err != nil {
		return schema.RunFailed, &schema.InfrastructureError{Op: "generate steps", Err: err}
	}
	x.em.Log(fmt.Sprintf("generated %d steps", len(steps)))

	var hint string
	for i, def := range steps {
		if x.handle.Cancelled() {
			return schema.RunCancelled, fmt.Errorf("%w before step %d of %d", schema.ErrCancelled, i+1, len(steps))
		}
		if err := ctx.Err(); err != nil {
			return schema.RunCancelled, fmt.Errorf("%w before step %d of %d: %v", schema.ErrCancelled, i+1, len(steps), err)
		}
		hint = nextHint(hint, def)
		if err := x.step(ctx, page, i, def, resolve.Hint{Context: hint}); err != nil {
			return schema.RunFailed, err
		}
	}
	return schema.RunCompleted, nil
}

// step executes one step and emits its events. A non-nil error aborts the run.
func (x *execution) step(ctx context.Context, page browser.Page, i int, def schema.StepDefinition, hint resolve.Hint) error {
	stepID := fmt.Sprintf("step-%d", i+1)
	idx := x.run.AppendStep(schema.StepResult{
		ID:          stepID,
		Index:       i,
		Action:      def.Action,
		Target:      def.Target,
		Value:       def.Value,
		Description: def.Description,
		Timestamp:   x.now(),
		Status:      schema.StepPending,
	})
	slog := x.log.With(zap.String("step_id", stepID), zap.String("action", string(def.Action)))

	var guardErr error
	if strings.TrimSpace(def.When) != "" {
		ok, err := eval.EvalWhen(def.When, x.whenEnv(page, i, def))
		if err == nil && !ok {
			x.run.UpdateStep(idx, func(s *schema.StepResult) { s.Status = schema.StepSkipped })
			x.em.Log(fmt.Sprintf("step %d skipped: condition %q is false", i+1, def.When))
			x.metrics.step(def.Action, schema.StepSkipped, 0)
			return nil
		}
		guardErr = err
	}

	snap := x.run.UpdateStep(idx, func(s *schema.StepResult) {
		s.Status = schema.StepRunning
		s.Timestamp = x.now()
	})
	x.em.StepStarted(snap)
	slog.Debug("step started", zap.String("target", x.redactor.String(def.Target)))

	start := x.now()
	var (
		out outcome
		err = guardErr
	)
	if err == nil {
		err = schema.ValidateStep(def)
	}
	if err == nil {
		concrete, missing := eval.SubstituteStep(def, x.req.Credentials)
		if len(missing) > 0 {
			slog.Warn("unknown credential placeholders left in place", zap.Strings("keys", missing))
		}
		out, err = x.execute(ctx, page, concrete, hint)
	}
	elapsed := x.now().Sub(start)
	if out.strategy != "" {
		x.metrics.strategyWon(def.Action, out.strategy)
		x.em.Log(fmt.Sprintf("step %d: %q resolved by %s", i+1, x.redactor.String(def.Target), out.strategy))
	}
	if out.assertion != nil {
		a := *out.assertion
		a.Expected = x.redactor.String(a.Expected)
		a.Actual = x.redactor.String(a.Actual)
		a.Message = x.redactor.String(a.Message)
		out.assertion = &a
	}

	shot := x.capture(ctx, page, stepID)

	status := schema.StepCompleted
	errMsg := ""
	if err != nil {
		status = schema.StepFailed
		errMsg = x.redactor.String(err.Error())
	}
	snap = x.run.UpdateStep(idx, func(s *schema.StepResult) {
		s.Status = status
		s.Error = errMsg
		s.Strategy = out.strategy
		s.Assertion = out.assertion
		s.Screenshot = shot
		s.Duration = elapsed
	})
	x.metrics.step(def.Action, status, elapsed)
	if err != nil {
		x.em.StepFailed(snap, errMsg)
		slog.Info("step failed", zap.String("error", errMsg), zap.Duration("elapsed", elapsed))
		return err
	}
	x.em.StepCompleted(snap)
	slog.Debug("step completed", zap.String("strategy", out.strategy), zap.Duration("elapsed", elapsed))
	return nil
}

// capture takes the step screenshot, emits it, and stores it when an
// artifact store is configured. Failures are logged and yield "".
func (x *execution) capture(ctx context.Context, page browser.Page, stepID string) string {
	png, err := page.Screenshot(ctx)
	if err != nil {
		x.log.Warn("screenshot failed", zap.String("step_id", stepID), zap.Error(err))
		return ""
	}
	x.em.Screenshot(stepID, png)
	if x.artifacts == nil {
		return ""
	}
	ref, err := x.artifacts.Put(ctx, artifacts.Object{
		RunID:       x.run.ID,
		StepID:      stepID,
		ContentType: "image/png",
		Data:        png,
	})
	if err != nil {
		x.log.Warn("store screenshot failed", zap.String("step_id", stepID), zap.Error(err))
		return ""
	}
	x.run.AddScreenshot(schema.Screenshot{
		StepID:    stepID,
		Ref:       ref.URI,
		SHA256:    ref.SHA256,
		Size:      ref.Size,
		Timestamp: x.now(),
	})
	return ref.URI
}

// whenEnv is the variable set visible to step guards.
func (x *execution) whenEnv(page browser.Page, i int, def schema.StepDefinition) map[string]any {
	completed := 0
	for _, s := range x.run.Snapshot().Steps {
		if s.Status == schema.StepCompleted {
			completed++
		}
	}
	return map[string]any{
		"url":       page.URL(),
		"index":     i,
		"action":    string(def.Action),
		"target":    def.Target,
		"completed": completed,
	}
}

// nextHint returns the context hint for def given the hint carried from
// earlier steps. Navigation clears it; an explicit context or a quoted
// entity in the description replaces it.
func nextHint(prev string, def schema.StepDefinition) string {
	if def.Action == schema.ActionNavigate {
		return ""
	}
	if c := strings.TrimSpace(def.Context); c != "" {
		return c
	}
	h := resolve.ExtractHint(def.Description, def.Target)
	if h != "" && h != def.Value && !strings.Contains(h, "{{") {
		return h
	}
	return prev
}
