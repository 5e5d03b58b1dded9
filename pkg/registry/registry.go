// Package registry tracks in-flight runs and owns their browser resources.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ormasoftchile/uirun/pkg/browser"
)

var (
	ErrAlreadyRegistered = errors.New("run already registered")
	ErrEmptyRunID        = errors.New("run id is required")
)

// Handle is the per-run resource bundle. Only the owning runner mutates it,
// except for the cancellation flag.
type Handle struct {
	RunID   string
	Session browser.Session
	Context browser.Context
	Page    browser.Page

	cancelled atomic.Bool
	terminal  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Cancelled reports whether cancellation was requested.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Terminal reports whether the run reached a terminal state.
func (h *Handle) Terminal() bool { return h.terminal.Load() }

// MarkTerminal records that the run finished. Later cancellation requests
// have no effect.
func (h *Handle) MarkTerminal() { h.terminal.Store(true) }

// Close releases page, context and session in that order. Every close is
// attempted; failures are joined and returned for logging. Close is
// idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		var errs []error
		if h.Page != nil {
			if err := h.Page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if h.Context != nil {
			if err := h.Context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close context: %w", err))
			}
		}
		if h.Session != nil {
			if err := h.Session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close session: %w", err))
			}
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}

// Registry maps run ids to handles. It holds at most one handle per id.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register creates the handle for runID. A second registration under the
// same id fails with ErrAlreadyRegistered until the first is released.
func (r *Registry) Register(runID string) (*Handle, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handles[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, runID)
	}
	h := &Handle{RunID: runID}
	r.handles[runID] = h
	return h, nil
}

// Get returns the handle for runID.
func (r *Registry) Get(runID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[runID]
	return h, ok
}

// RequestCancel sets the cancellation flag of an active run and reports
// whether it did. Unknown and terminal runs are left untouched.
func (r *Registry) RequestCancel(runID string) bool {
	r.mu.Lock()
	h, ok := r.handles[runID]
	r.mu.Unlock()
	if !ok || h.Terminal() {
		return false
	}
	return h.cancelled.CompareAndSwap(false, true)
}

// Release removes runID. Releasing an unknown id is a no-op.
func (r *Registry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, runID)
}

// Active returns the registered run ids in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
