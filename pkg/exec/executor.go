// Package exec provides command execution for the run_command tool. Commands
// run inside a scoped working directory with a hard timeout; a process that
// outlives its deadline is killed, never orphaned.
package exec

import (
	"context"
	"time"
)

// Executor defines the interface for running external commands.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	// A non-zero exit code is reported in Result, not as an error.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type name for logging.
	Name() string

	// Available returns true if this executor can be used in the current
	// environment.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE format).
	Env []string

	// Timeout is the maximum duration for command execution. Zero means no
	// timeout.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the outcome of a command execution.
type Result struct {
	// Stdout contains the standard output, verbatim.
	Stdout string

	// Stderr contains the standard error output, verbatim.
	Stderr string

	// ExitCode is the process exit code; -1 if the process did not start or
	// was killed.
	ExitCode int

	// Duration is how long the command took.
	Duration time.Duration

	// TimedOut is true when the command was killed for exceeding Timeout.
	TimedOut bool
}
