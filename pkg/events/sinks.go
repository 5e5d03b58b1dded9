package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONLWriter writes events to an append-only JSONL stream.
type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewJSONLWriter creates a sink writing one JSON object per line to w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w)}
}

// NewFileWriter creates a JSONL sink that appends to path.
func NewFileWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}
	jw := NewJSONLWriter(f)
	jw.c = f
	return jw, nil
}

func (w *JSONLWriter) Emit(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(ev)
}

// Close closes the underlying file, if any.
func (w *JSONLWriter) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// OnEmit, when set, is called synchronously after each event is recorded.
	OnEmit func(ev Event)
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.OnEmit
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Chan delivers events to a channel. Emit blocks until the event is
// received or ctx is done.
type Chan struct {
	ctx context.Context
	ch  chan<- Event
}

// NewChan creates a channel sink bound to ctx.
func NewChan(ctx context.Context, ch chan<- Event) *Chan {
	return &Chan{ctx: ctx, ch: ch}
}

func (c *Chan) Emit(ev Event) error {
	select {
	case c.ch <- ev:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Multi fans events out to every sink. All sinks receive every event;
// failures are joined.
type Multi []Sink

func (m Multi) Emit(ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
