// Package events defines the run lifecycle event stream and its sinks.
package events

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Type enumerates lifecycle event types.
type Type string

const (
	TestStarted   Type = "test_started"
	StepStarted   Type = "step_started"
	StepCompleted Type = "step_completed"
	StepFailed    Type = "step_failed"
	Screenshot    Type = "screenshot"
	Log           Type = "log"
	TestCompleted Type = "test_completed"
	TestFailed    Type = "test_failed"
	Error         Type = "error"
)

// Event is one lifecycle event.
type Event struct {
	Type  Type           `json:"type"`
	RunID string         `json:"runId"`
	Data  map[string]any `json:"data,omitempty"`
}

// Sink receives events in emission order.
type Sink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event) error

func (f SinkFunc) Emit(ev Event) error { return f(ev) }

// Emitter builds and redacts events for one run and forwards them to a
// sink. Emission is serialized so events keep their order.
type Emitter struct {
	mu       sync.Mutex
	sink     Sink
	runID    string
	redactor *Redactor
	now      func() time.Time
	// OnError is called when the sink fails. Emission failures never stop a run.
	OnError func(ev Event, err error)
}

// NewEmitter creates an Emitter. A nil sink discards events; a nil
// redactor redacts nothing.
func NewEmitter(sink Sink, runID string, redactor *Redactor) *Emitter {
	if redactor == nil {
		redactor = NewRedactor(nil)
	}
	return &Emitter{sink: sink, runID: runID, redactor: redactor, now: time.Now}
}

// Emit sends an event with the given data. String values, step snapshots
// and error messages are redacted first.
func (e *Emitter) Emit(t Type, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink == nil {
		return
	}
	ev := Event{Type: t, RunID: e.runID, Data: e.redactor.Data(data)}
	if err := e.sink.Emit(ev); err != nil && e.OnError != nil {
		e.OnError(ev, err)
	}
}

// TestStarted emits test_started.
func (e *Emitter) TestStarted(prompt string) {
	e.Emit(TestStarted, map[string]any{"prompt": prompt})
}

// StepStarted emits step_started with a running snapshot.
func (e *Emitter) StepStarted(step schema.StepResult) {
	e.Emit(StepStarted, map[string]any{"step": step})
}

// StepCompleted emits step_completed.
func (e *Emitter) StepCompleted(step schema.StepResult) {
	e.Emit(StepCompleted, map[string]any{"step": step})
}

// StepFailed emits step_failed.
func (e *Emitter) StepFailed(step schema.StepResult, errMsg string) {
	e.Emit(StepFailed, map[string]any{"step": step, "error": errMsg})
}

// Screenshot emits screenshot with the base64-encoded image.
func (e *Emitter) Screenshot(stepID string, png []byte) {
	e.Emit(Screenshot, map[string]any{
		"stepId":     stepID,
		"screenshot": base64.StdEncoding.EncodeToString(png),
	})
}

// Log emits a free-text progress message.
func (e *Emitter) Log(message string) {
	e.Emit(Log, map[string]any{"message": message})
}

// TestCompleted emits test_completed.
func (e *Emitter) TestCompleted() {
	e.Emit(TestCompleted, map[string]any{"timestamp": e.now().UTC().Format(time.RFC3339Nano)})
}

// TestFailed emits test_failed.
func (e *Emitter) TestFailed(errMsg string) {
	e.Emit(TestFailed, map[string]any{
		"error":     errMsg,
		"timestamp": e.now().UTC().Format(time.RFC3339Nano),
	})
}

// Error emits an infrastructure error. stack may be empty.
func (e *Emitter) Error(message, stack string) {
	data := map[string]any{"message": message}
	if stack != "" {
		data["stack"] = stack
	}
	e.Emit(Error, data)
}
