package schema

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// BrowserKind selects the browser engine for a run.
type BrowserKind string

const (
	BrowserChromium BrowserKind = "chromium"
	BrowserFirefox  BrowserKind = "firefox"
	BrowserWebKit   BrowserKind = "webkit"
)

// Default run options.
const (
	DefaultTimeoutMS      = 30000
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Viewport is the browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width"  json:"width"`
	Height int `yaml:"height" json:"height"`
}

// RunOptions tunes the browser session of a run.
type RunOptions struct {
	Browser  BrowserKind `yaml:"browser,omitempty"  json:"browser,omitempty" jsonschema:"enum=chromium,enum=firefox,enum=webkit"`
	Headless *bool       `yaml:"headless,omitempty" json:"headless,omitempty"`
	// Timeout is the per-action timeout in milliseconds.
	Timeout  int       `yaml:"timeout,omitempty"  json:"timeout,omitempty"`
	Viewport *Viewport `yaml:"viewport,omitempty" json:"viewport,omitempty"`
}

// WithDefaults returns a copy with unset fields filled in.
func (o RunOptions) WithDefaults() RunOptions {
	if o.Browser == "" {
		o.Browser = BrowserChromium
	}
	if o.Headless == nil {
		t := true
		o.Headless = &t
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeoutMS
	}
	if o.Viewport == nil || o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	return o
}

// IsHeadless reports the effective headless flag.
func (o RunOptions) IsHeadless() bool {
	return o.Headless == nil || *o.Headless
}

// TimeoutDuration returns the per-action timeout.
func (o RunOptions) TimeoutDuration() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}
	return time.Duration(o.Timeout) * time.Millisecond
}

// RunRequest is the input to the step runner.
type RunRequest struct {
	Prompt      string            `yaml:"prompt"                json:"prompt"`
	URL         string            `yaml:"url"                   json:"url"`
	Credentials map[string]string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Options     *RunOptions       `yaml:"options,omitempty"     json:"options,omitempty"`
}

// Validate checks the request fields the runner depends on.
func (r *RunRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Phase: "request", Path: "url", Message: "url is required", Severity: "error"}
	}
	if r.Options != nil && r.Options.Browser != "" {
		switch r.Options.Browser {
		case BrowserChromium, BrowserFirefox, BrowserWebKit:
		default:
			return &ValidationError{
				Phase:    "request",
				Path:     "options.browser",
				Message:  fmt.Sprintf("unsupported browser %q", r.Options.Browser),
				Severity: "error",
			}
		}
	}
	return nil
}

// EffectiveOptions returns the request options with defaults applied.
func (r *RunRequest) EffectiveOptions() RunOptions {
	if r.Options == nil {
		return RunOptions{}.WithDefaults()
	}
	return r.Options.WithDefaults()
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is one end-to-end execution. Only the runner that owns it mutates it;
// the mutex makes Snapshot safe for concurrent readers.
type Run struct {
	mu sync.RWMutex

	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	URL         string       `json:"url"`
	Options     RunOptions   `json:"options"`
	Status      RunStatus    `json:"status"`
	StartedAt   time.Time    `json:"startedAt,omitempty"`
	EndedAt     time.Time    `json:"endedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps"`
	Screenshots []Screenshot `json:"screenshots"`
}

// NewRun creates a queued run for a request.
func NewRun(id string, req RunRequest) *Run {
	return &Run{
		ID:      id,
		Prompt:  req.Prompt,
		URL:     req.URL,
		Options: req.EffectiveOptions(),
		Status:  RunQueued,
	}
}

// Start moves a queued run to running.
func (r *Run) Start(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status != RunQueued {
		return fmt.Errorf("run %s: cannot start from status %s", r.ID, r.Status)
	}
	r.Status = RunRunning
	r.StartedAt = now
	return nil
}

// Finish moves the run to a terminal status. A run becomes terminal exactly
// once; later calls return an error and leave the run unchanged.
func (r *Run) Finish(status RunStatus, errMsg string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("run %s: %s is not a terminal status", r.ID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status.Terminal() {
		return fmt.Errorf("run %s: already %s", r.ID, r.Status)
	}
	r.Status = status
	r.Error = errMsg
	r.EndedAt = now
	return nil
}

// AppendStep adds a step record and returns its index for UpdateStep.
func (r *Run) AppendStep(s StepResult) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps = append(r.Steps, s)
	return len(r.Steps) - 1
}

// UpdateStep applies fn to the step at index i under the run lock.
func (r *Run) UpdateStep(i int, fn func(*StepResult)) StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.Steps[i])
	return r.Steps[i].Snapshot()
}

// AddScreenshot records a stored screenshot reference.
func (r *Run) AddScreenshot(s Screenshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Screenshots = append(r.Screenshots, s)
}

// CurrentStatus returns the status under the read lock.
func (r *Run) CurrentStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// RunSnapshot is an immutable copy of a run.
type RunSnapshot struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	URL         string       `json:"url"`
	Options     RunOptions   `json:"options"`
	Status      RunStatus    `json:"status"`
	StartedAt   time.Time    `json:"startedAt,omitempty"`
	EndedAt     time.Time    `json:"endedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps"`
	Screenshots []Screenshot `json:"screenshots"`
}

// Snapshot copies the run under the read lock.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := make([]StepResult, len(r.Steps))
	for i := range r.Steps {
		steps[i] = r.Steps[i].Snapshot()
	}
	shots := make([]Screenshot, len(r.Screenshots))
	copy(shots, r.Screenshots)
	return RunSnapshot{
		ID:          r.ID,
		Prompt:      r.Prompt,
		URL:         r.URL,
		Options:     r.Options,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Error:       r.Error,
		Steps:       steps,
		Screenshots: shots,
	}
}
