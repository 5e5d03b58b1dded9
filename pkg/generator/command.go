package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds one Command completion.
const DefaultCommandTimeout = 5 * time.Minute

// Command is a Completer that runs an external program, writes the combined
// prompt to its stdin and returns its stdout. Any model CLI that reads a
// prompt on stdin works.
type Command struct {
	// Argv is the program and its arguments.
	Argv []string
	// Timeout for the process (default: DefaultCommandTimeout).
	Timeout time.Duration
}

// NewCommand creates a Command from a program and arguments.
func NewCommand(argv ...string) *Command {
	return &Command{Argv: argv, Timeout: DefaultCommandTimeout}
}

// ModelName returns the program name.
func (c *Command) ModelName() string {
	if len(c.Argv) == 0 {
		return "command"
	}
	return c.Argv[0]
}

// Complete runs the program with the prompts on stdin.
func (c *Command) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(c.Argv) == 0 {
		return "", errors.New("generator command is empty")
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}
	prompt := fmt.Sprintf(
		"SYSTEM INSTRUCTIONS (follow these exactly):\n\n%s\n\n---\n\nUSER REQUEST:\n\n%s",
		systemPrompt, userPrompt,
	)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "(no stderr)"
		}
		return "", fmt.Errorf("%s failed: %w\nstderr: %s", c.ModelName(), err, detail)
	}
	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s returned empty output", c.ModelName())
	}
	return out, nil
}
