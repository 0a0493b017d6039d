package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrBinaryNotFound is returned when an engine binary is not on PATH.
var ErrBinaryNotFound = errors.New("binary not found")

// Command describes one run of an external audio tool.
type Command struct {
	Name    string
	Args    []string
	Stdin   []byte
	Timeout time.Duration // zero means no timeout beyond ctx
	MaxOut  int           // zero means unlimited
}

// Runner executes Commands. Tests replace it with a fake.
type Runner interface {
	Run(ctx context.Context, c Command) ([]byte, error)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct{}

// Run starts the process with stdin already attached and collects stdout.
// When ctx ends the process is interrupted, then killed if it lingers.
// A run aborted by ctx returns an error wrapping ctx.Err().
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = bytes.NewReader(c.Stdin)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s aborted: %w", c.Name, ctx.Err())
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", c.Name, ErrBinaryNotFound)
		}
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", c.Name, err, strings.TrimSpace(stderr.String()))
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, fmt.Errorf("%s produced no output, stderr: %s", c.Name, strings.TrimSpace(stderr.String()))
	}
	if c.MaxOut > 0 && len(out) > c.MaxOut {
		return nil, fmt.Errorf("%s output too large: %d bytes (max %d)", c.Name, len(out), c.MaxOut)
	}
	return out, nil
}

// LookPath reports whether name can be executed.
func LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s: %w", name, ErrBinaryNotFound)
	}
	return nil
}
