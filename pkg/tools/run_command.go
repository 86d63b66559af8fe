package tools

import (
	"context"
	"fmt"
	"time"

	execpkg "agentd/pkg/exec"
	"agentd/pkg/proto"
)

const (
	// DefaultCommandTimeout bounds run_command when the model gives none.
	DefaultCommandTimeout = 30 * time.Second
	// maxCommandTimeout caps model-requested timeouts.
	maxCommandTimeout = 300 * time.Second
	// maxCommandOutput truncates combined stdout+stderr fed to the model.
	maxCommandOutput = 2000
)

// RunCommandTool executes a shell command inside the task's working
// directory. Timeouts are reported as flagged results, not loop failures.
type RunCommandTool struct {
	executor       execpkg.Executor
	workDir        string
	defaultTimeout time.Duration
}

// NewRunCommandTool creates a run_command tool scoped to workDir. A zero
// defaultTimeout falls back to DefaultCommandTimeout; the configured value
// bounds commands whose caller gives no timeout argument.
func NewRunCommandTool(executor execpkg.Executor, workDir string, defaultTimeout time.Duration) *RunCommandTool {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}
	return &RunCommandTool{executor: executor, workDir: workDir, defaultTimeout: defaultTimeout}
}

// Name returns the tool name.
func (t *RunCommandTool) Name() string {
	return ToolRunCommand
}

// Definition returns the tool definition for the LLM.
func (t *RunCommandTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolRunCommand,
		Description: "Run a shell command in the repository root and return its output",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {
					Type:        "string",
					Description: "Shell command to execute",
				},
				"timeout": {
					Type:        "integer",
					Description: fmt.Sprintf("Timeout in seconds. Defaults to %d.", int(t.defaultTimeout/time.Second)),
				},
			},
			Required: []string{"command"},
		},
		Capability: proto.CapabilityExec,
		Phases:     mutatePhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *RunCommandTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	command, ok := stringArg(args, "command")
	if !ok {
		return errorResult("Error: command is required and must be a string"), nil
	}

	timeout := time.Duration(intArgOrDefault(args, "timeout", int(t.defaultTimeout/time.Second))) * time.Second
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	result, err := t.executor.Run(ctx, []string{"sh", "-c", command}, &execpkg.Opts{
		WorkDir: t.workDir,
		Timeout: timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return errorResult(fmt.Sprintf("Error: failed to execute command: %v", err)), nil
	}

	if result.TimedOut {
		return errorResult(fmt.Sprintf("Error: Command timed out after %d seconds", int(timeout/time.Second))), nil
	}

	output := result.Stdout + result.Stderr
	if result.ExitCode != 0 {
		output = fmt.Sprintf("[Exit code: %d]\n%s", result.ExitCode, output)
	}
	if len(output) > maxCommandOutput {
		total := len(output)
		output = output[:maxCommandOutput] + fmt.Sprintf("\n\n... (truncated, %d total characters)", total)
	}
	if output == "" {
		output = "(no output)"
	}
	return &ExecResult{Content: output}, nil
}
