package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	execpkg "agentd/pkg/exec"
)

func newRunCommandTool(t *testing.T) *RunCommandTool {
	t.Helper()
	return NewRunCommandTool(execpkg.NewLocalExec(), t.TempDir(), 0)
}

func TestRunCommand_Output(t *testing.T) {
	tool := newRunCommandTool(t)

	result, err := tool.Exec(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if result.IsError || !strings.Contains(result.Content, "hello") {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRunCommand_NonZeroExit(t *testing.T) {
	tool := newRunCommandTool(t)

	result, err := tool.Exec(context.Background(), map[string]any{"command": "echo oops >&2; exit 3"})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if result.IsError {
		t.Error("non-zero exit is a flagged result, not a synthetic error")
	}
	if !strings.Contains(result.Content, "[Exit code: 3]") || !strings.Contains(result.Content, "oops") {
		t.Errorf("unexpected content: %q", result.Content)
	}
}

func TestRunCommand_TimeoutFlagged(t *testing.T) {
	tool := newRunCommandTool(t)

	result, err := tool.Exec(context.Background(), map[string]any{"command": "sleep 30", "timeout": 1})
	if err != nil {
		t.Fatalf("timeout must not abort the loop: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "timed out after 1 seconds") {
		t.Errorf("expected timeout-flagged result, got %+v", result)
	}
}

func TestRunCommand_TruncatesLongOutput(t *testing.T) {
	tool := newRunCommandTool(t)

	result, err := tool.Exec(context.Background(), map[string]any{
		"command": "yes x 2>/dev/null | head -c 5000",
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !strings.Contains(result.Content, "truncated") {
		t.Error("expected truncation notice")
	}
	if len(result.Content) > maxCommandOutput+100 {
		t.Errorf("output not capped: %d chars", len(result.Content))
	}
}

func TestRunCommand_ConfiguredDefaultTimeout(t *testing.T) {
	tool := NewRunCommandTool(execpkg.NewLocalExec(), t.TempDir(), 1*time.Second)

	if !strings.Contains(tool.Definition().InputSchema.Properties["timeout"].Description, "Defaults to 1") {
		t.Error("definition does not advertise the configured default")
	}

	result, err := tool.Exec(context.Background(), map[string]any{"command": "sleep 30"})
	if err != nil {
		t.Fatalf("timeout must not abort the loop: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "timed out after 1 seconds") {
		t.Errorf("expected the configured default timeout to apply, got %+v", result)
	}
}

func TestRunCommand_ZeroTimeoutFallsBack(t *testing.T) {
	tool := NewRunCommandTool(execpkg.NewLocalExec(), t.TempDir(), 0)
	if tool.defaultTimeout != DefaultCommandTimeout {
		t.Errorf("expected fallback to %s, got %s", DefaultCommandTimeout, tool.defaultTimeout)
	}
}

func TestRunCommand_NoOutput(t *testing.T) {
	tool := newRunCommandTool(t)

	result, err := tool.Exec(context.Background(), map[string]any{"command": "true"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if result.Content != "(no output)" {
		t.Errorf("expected placeholder for empty output, got %q", result.Content)
	}
}
