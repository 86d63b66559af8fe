package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalExec_Echo(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"echo", "hello"}, &Opts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", result.Stdout)
	}
}

func TestLocalExec_NonZeroExit(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, &Opts{})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("expected stderr to contain 'oops', got %q", result.Stderr)
	}
}

func TestLocalExec_Timeout(t *testing.T) {
	e := NewLocalExec()

	start := time.Now()
	result, err := e.Run(context.Background(), []string{"sleep", "30"}, &Opts{
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("timeout should be a result, not an error: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected TimedOut to be set")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long to fire: %v", elapsed)
	}
}

func TestLocalExec_WorkDir(t *testing.T) {
	e := NewLocalExec()
	tmpDir := t.TempDir()

	result, err := e.Run(context.Background(), []string{"pwd"}, &Opts{WorkDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, tmpDir) {
		t.Errorf("expected pwd output to contain %q, got %q", tmpDir, result.Stdout)
	}
}

func TestLocalExec_MissingWorkDir(t *testing.T) {
	e := NewLocalExec()

	if _, err := e.Run(context.Background(), []string{"pwd"}, &Opts{WorkDir: "/does/not/exist"}); err == nil {
		t.Error("expected error for missing working directory")
	}
}

func TestLocalExec_EmptyCommand(t *testing.T) {
	e := NewLocalExec()

	if _, err := e.Run(context.Background(), nil, &Opts{}); err == nil {
		t.Error("expected error for empty command")
	}
}
