package schema

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a run observes its cancellation flag at a
// step boundary.
var ErrCancelled = errors.New("run cancelled")

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // request, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[0].target")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// UnknownActionError reports an action tag outside the recognized set.
type UnknownActionError struct {
	Action Action
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// InfrastructureError wraps a session, context, page, or navigation failure
// that happens outside any step.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// HasErrors reports whether errs contains an error-severity entry.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity != "warning" {
			return true
		}
	}
	return false
}

// JoinValidation folds error-severity entries into a single error, or nil.
func JoinValidation(errs []*ValidationError) error {
	var out []error
	for _, e := range errs {
		if e.Severity != "warning" {
			out = append(out, e)
		}
	}
	return errors.Join(out...)
}
