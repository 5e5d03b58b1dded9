package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/uirun/pkg/events"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// Step status glyphs convey meaning without relying on color alone.
const (
	glyphStarted   = "▸"
	glyphPassed    = "✓"
	glyphFailed    = "✗"
	glyphLog       = "·"
	glyphShot      = "◦"
	glyphError     = "!"
	glyphCompleted = "◆"
)

var (
	colorGreen = lipgloss.Color("42")
	colorRed   = lipgloss.Color("196")
	colorCyan  = lipgloss.Color("51")
	colorDim   = lipgloss.Color("240")
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	passedStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	failedStyle  = lipgloss.NewStyle().Foreground(colorRed)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

// printer renders events as a human-readable transcript. It is an
// events.Sink.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newPrinter(w io.Writer, verbose bool) *printer {
	return &printer{w: w, verbose: verbose}
}

func (p *printer) Emit(ev events.Event) error {
	line := p.render(ev)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *printer) render(ev events.Event) string {
	switch ev.Type {
	case events.TestStarted:
		prompt, _ := ev.Data["prompt"].(string)
		return headerStyle.Render("uirun "+ev.RunID) + "\n" + dimStyle.Render("  "+prompt)
	case events.StepStarted:
		if !p.verbose {
			return ""
		}
		s, ok := stepOf(ev)
		if !ok {
			return ""
		}
		return dimStyle.Render(fmt.Sprintf("  %s %s", glyphStarted, describe(s)))
	case events.StepCompleted:
		s, ok := stepOf(ev)
		if !ok {
			return ""
		}
		return passedStyle.Render(fmt.Sprintf("  %s %s", glyphPassed, describe(s))) + dimStyle.Render(detail(s))
	case events.StepFailed:
		s, _ := stepOf(ev)
		msg, _ := ev.Data["error"].(string)
		return failedStyle.Render(fmt.Sprintf("  %s %s", glyphFailed, describe(s))) + dimStyle.Render(detail(s)) +
			"\n" + failedStyle.Render("      "+msg)
	case events.Screenshot:
		if !p.verbose {
			return ""
		}
		id, _ := ev.Data["stepId"].(string)
		return dimStyle.Render(fmt.Sprintf("    %s screenshot %s", glyphShot, id))
	case events.Log:
		if !p.verbose {
			return ""
		}
		msg, _ := ev.Data["message"].(string)
		return dimStyle.Render(fmt.Sprintf("    %s %s", glyphLog, msg))
	case events.Error:
		msg, _ := ev.Data["message"].(string)
		return failedStyle.Render(fmt.Sprintf("  %s %s", glyphError, msg))
	case events.TestCompleted:
		return summaryStyle.Render(passedStyle.Render(glyphCompleted + " passed"))
	case events.TestFailed:
		msg, _ := ev.Data["error"].(string)
		return summaryStyle.Render(failedStyle.Render(glyphFailed+" failed")) + ": " + msg
	}
	return ""
}

func stepOf(ev events.Event) (schema.StepResult, bool) {
	switch s := ev.Data["step"].(type) {
	case schema.StepResult:
		return s, true
	case *schema.StepResult:
		if s != nil {
			return *s, true
		}
	}
	return schema.StepResult{}, false
}

func describe(s schema.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", s.Index+1, s.Action)
	if s.Target != "" {
		fmt.Fprintf(&b, " %q", s.Target)
	}
	if s.Description != "" {
		b.WriteString(" - " + s.Description)
	}
	return b.String()
}

func detail(s schema.StepResult) string {
	var parts []string
	if s.Strategy != "" {
		parts = append(parts, s.Strategy)
	}
	if s.Assertion != nil {
		parts = append(parts, fmt.Sprintf("%s: expected %q, got %q", s.Assertion.Type, s.Assertion.Expected, s.Assertion.Actual))
	}
	if s.Duration > 0 {
		parts = append(parts, s.Duration.Round(time.Millisecond).String())
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
