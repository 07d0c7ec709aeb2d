package simulation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nvandessel/simdash/internal/results"
)

// maxStderrTail bounds how much of the model's stderr is kept on failure.
const maxStderrTail = 2048

// ExecConfig configures an external-process simulator.
type ExecConfig struct {
	// Command is the model executable.
	Command string

	// Args are passed to Command unchanged.
	Args []string

	// Env is appended to the inherited environment.
	Env []string

	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration
}

// Exec runs the model as a child process. The canonical fingerprint is
// written to stdin; stdout must carry {"global": {...}, "local": {...}}.
type Exec struct {
	cfg ExecConfig
}

// NewExec creates an external-process simulator.
func NewExec(cfg ExecConfig) (*Exec, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("simulation command is required")
	}
	return &Exec{cfg: cfg}, nil
}

// Simulate implements Simulator.
func (e *Exec) Simulate(ctx context.Context, fp Fingerprint) (*results.Result, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.cfg.Command, e.cfg.Args...)
	if len(e.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.cfg.Env...)
	}

	// Inputs go through stdin, not argv, so large settings never hit ARG_MAX.
	cmd.Stdin = bytes.NewReader(fp.Canonical())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %v", e.cfg.Timeout)
		}
		return nil, &ComputationError{
			Key:    fp.Key(),
			Stderr: tail(stderr.String(), maxStderrTail),
			Err:    fmt.Errorf("running %s: %w", e.cfg.Command, err),
		}
	}

	res, err := results.DecodeResult(stdout.Bytes())
	if err != nil {
		return nil, &ComputationError{
			Key:    fp.Key(),
			Stderr: tail(stderr.String(), maxStderrTail),
			Err:    fmt.Errorf("reading %s output: %w", e.cfg.Command, err),
		}
	}
	return res, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
