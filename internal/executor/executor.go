package executor

// Package executor runs a single shell-level diagnostic command with a hard
// wall-clock timeout and returns structured output.
//
// Responsibilities:
//   - Execute one command line as an external process with output capture
//   - Enforce the per-command timeout (partial output on timeout is discarded)
//   - Convert every failure mode into a CommandResult — callers never see an
//     error or panic from this boundary
//
// The executor applies no policy of its own. The safety gate decides whether
// a command may run before Execute is ever reached.

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single command execution.
const DefaultTimeout = 30 * time.Second

// CommandResult is the outcome of one executed command. Exactly one of
// {ExitCode set, TimedOut, ExecutionError set} holds.
type CommandResult struct {
	Command        string        `json:"command"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ExitCode       *int          `json:"exit_code,omitempty"`
	TimedOut       bool          `json:"timed_out"`
	ExecutionError string        `json:"execution_error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Failed reports whether the command did not complete normally with exit 0.
func (r CommandResult) Failed() bool {
	return r.TimedOut || r.ExecutionError != "" || (r.ExitCode != nil && *r.ExitCode != 0)
}

// Runner executes diagnostic commands.
type Runner interface {
	Execute(ctx context.Context, command string, timeout time.Duration) CommandResult
}

// shellRunner runs commands through the local shell, matching how an
// operator would run kubectl by hand.
type shellRunner struct{}

// NewRunner returns a Runner backed by the local shell.
func NewRunner() Runner {
	return shellRunner{}
}

// Execute runs command with the given timeout. A zero or negative timeout
// falls back to DefaultTimeout.
func (shellRunner) Execute(ctx context.Context, command string, timeout time.Duration) CommandResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result := CommandResult{Command: command}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		// Partial output is unreliable after a kill; report the timeout only.
		result.TimedOut = true
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			result.ExitCode = &code
			result.Stdout = stdout.String()
			result.Stderr = stderr.String()
			return result
		}
		// Spawn or IO failure before the process produced an exit status.
		result.ExecutionError = err.Error()
		return result
	}

	code := 0
	result.ExitCode = &code
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result
}
