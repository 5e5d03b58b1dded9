package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ormasoftchile/uirun/pkg/browser"
	"github.com/ormasoftchile/uirun/pkg/browser/htmlpage"
)

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	if _, err := r.Register("run-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("run-1"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("error = %v, want ErrAlreadyRegistered", err)
	}
	r.Release("run-1")
	if _, err := r.Register("run-1"); err != nil {
		t.Fatalf("re-register after release: %v", err)
	}
	if _, err := r.Register(""); !errors.Is(err, ErrEmptyRunID) {
		t.Errorf("error = %v, want ErrEmptyRunID", err)
	}
}

func TestRegister_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Register("same"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("successful registrations = %d, want 1", wins)
	}
}

func TestRequestCancel(t *testing.T) {
	r := New()
	if r.RequestCancel("missing") {
		t.Error("cancel of unknown run reported success")
	}

	h, _ := r.Register("run-1")
	if !r.RequestCancel("run-1") {
		t.Error("cancel of active run reported no-op")
	}
	if !h.Cancelled() {
		t.Error("flag not set")
	}
	if r.RequestCancel("run-1") {
		t.Error("second cancel should be a no-op")
	}

	h2, _ := r.Register("run-2")
	h2.MarkTerminal()
	if r.RequestCancel("run-2") {
		t.Error("cancel of terminal run reported success")
	}
	if h2.Cancelled() {
		t.Error("terminal run flag changed")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	r := New()
	r.Register("a")
	r.Register("b")
	r.Release("a")
	r.Release("a")
	r.Release("never")
	if got := r.Active(); len(got) != 1 || got[0] != "b" {
		t.Errorf("active = %v, want [b]", got)
	}
	if _, ok := r.Get("a"); ok {
		t.Error("released run still present")
	}
}

func TestHandleClose(t *testing.T) {
	d := htmlpage.New(htmlpage.Site{})
	ctx := context.Background()
	s, _ := d.Launch(ctx, browser.LaunchOptions{})
	bc, _ := s.NewContext(ctx, browser.ContextOptions{})
	p, _ := bc.NewPage(ctx)

	h := &Handle{RunID: "r", Session: s, Context: bc, Page: p}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if !d.LastPage().Closed() || !d.Sessions()[0].Closed() {
		t.Error("resources not closed")
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close = %v, want cached nil", err)
	}
}

func TestHandleClose_CollectsErrors(t *testing.T) {
	d := htmlpage.New(htmlpage.Site{})
	ctx := context.Background()
	s, _ := d.Launch(ctx, browser.LaunchOptions{})
	bc, _ := s.NewContext(ctx, browser.ContextOptions{})
	p, _ := bc.NewPage(ctx)
	p.Close()

	h := &Handle{RunID: "r", Session: s, Context: bc, Page: p}
	err := h.Close()
	if !errors.Is(err, browser.ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
	if !d.Sessions()[0].Closed() {
		t.Error("session not closed after page close failure")
	}
}
