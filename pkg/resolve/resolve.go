// Package resolve maps natural-language step targets onto page elements by
// trying an ordered chain of named strategies per action. The first strategy
// that yields a visible, acceptable element wins.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/inventory"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// DefaultStrategyTimeout bounds each strategy attempt.
const DefaultStrategyTimeout = 2 * time.Second

// maxCandidates bounds how many matches of one strategy are inspected.
const maxCandidates = 25

var errNoMatch = errors.New("no visible match")

// Attempt describes one strategy attempt, reported to the Observer.
type Attempt struct {
	Strategy string
	Kind     Kind
	Matched  bool
	Err      error
	Elapsed  time.Duration
}

// Resolution is the element a step resolved to.
type Resolution struct {
	Locator   browser.Locator
	Strategy  string
	Kind      Kind
	Attempted []string
}

// ResolutionError reports that no strategy matched target.
type ResolutionError struct {
	Action     schema.Action
	Target     string
	Attempted  []string
	Candidates []string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not resolve %s target %q; tried strategies: %s", e.Action, e.Target, strings.Join(e.Attempted, ", "))
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, "; visible elements: %s", strings.Join(e.Candidates, ", "))
	} else {
		b.WriteString("; no visible interactive elements")
	}
	return b.String()
}

// Resolver holds the per-action strategy chains.
type Resolver struct {
	chains   map[schema.Action][]Strategy
	timeout  time.Duration
	observer func(Attempt)
	scan     func(ctx context.Context, page browser.Page) (*inventory.Inventory, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout sets the per-strategy timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver registers a callback invoked after every strategy attempt.
func WithObserver(fn func(Attempt)) Option {
	return func(r *Resolver) { r.observer = fn }
}

// WithChain replaces the strategy chain for action.
func WithChain(action schema.Action, chain []Strategy) Option {
	return func(r *Resolver) { r.chains[action] = chain }
}

// New creates a Resolver with the default chains.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		chains:  DefaultChains(),
		timeout: DefaultStrategyTimeout,
		scan:    inventory.Scan,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Chain returns the strategy names declared for action, in order.
func (r *Resolver) Chain(action schema.Action) []string {
	var names []string
	for _, s := range r.chains[action] {
		names = append(names, s.Name)
	}
	return names
}

// Resolve finds the element step targets. It returns a *schema.ValidationError
// for targets that cannot match anything and a *ResolutionError when every
// strategy fails.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, step schema.StepDefinition, hint Hint) (*Resolution, error) {
	if err := checkTarget(step.Target); err != nil {
		return nil, err
	}
	chain, ok := r.chains[step.Action]
	if !ok {
		return nil, fmt.Errorf("action %q does not resolve targets", step.Action)
	}
	target := strings.TrimSpace(step.Target)

	var attempted []string
	for _, s := range chain {
		if s.Applies != nil && !s.Applies(target, hint) {
			continue
		}
		attempted = append(attempted, s.Name)
		start := time.Now()
		loc, err := r.attempt(ctx, page, s, target, hint)
		r.observe(Attempt{Strategy: s.Name, Kind: s.Kind, Matched: err == nil, Err: err, Elapsed: time.Since(start)})
		if err == nil {
			return &Resolution{Locator: loc, Strategy: s.Name, Kind: s.Kind, Attempted: attempted}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	resErr := &ResolutionError{Action: step.Action, Target: target, Attempted: attempted}
	if inv, err := r.scan(ctx, page); err == nil {
		resErr.Candidates = inv.Candidates(20)
	}
	return nil, resErr
}

func (r *Resolver) observe(a Attempt) {
	if r.observer != nil {
		r.observer(a)
	}
}

func (r *Resolver) attempt(ctx context.Context, page browser.Page, s Strategy, target string, hint Hint) (browser.Locator, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loc, err := s.Locate(sctx, page, target, hint)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, errNoMatch
	}
	return r.pick(sctx, loc, s.Accept)
}

// pick returns the first visible, accepted match. When nothing matches yet
// it waits up to the strategy timeout for the first match to appear.
func (r *Resolver) pick(ctx context.Context, loc browser.Locator, accept func(context.Context, browser.Locator) bool) (browser.Locator, error) {
	n, err := loc.Count(ctx)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n && i < maxCandidates; i++ {
		el := loc.Nth(i)
		if ok, err := el.IsVisible(ctx); err != nil || !ok {
			continue
		}
		if accept != nil && !accept(ctx, el) {
			continue
		}
		return el, nil
	}
	if n > 0 {
		return nil, errNoMatch
	}
	first := loc.First()
	if err := first.WaitVisible(ctx, r.timeout); err != nil {
		return nil, errNoMatch
	}
	if accept != nil && !accept(ctx, first) {
		return nil, errNoMatch
	}
	return first, nil
}
