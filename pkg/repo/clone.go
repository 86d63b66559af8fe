package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	execpkg "agentd/pkg/exec"
	"agentd/pkg/logx"
)

// DefaultCloneTimeout bounds how long a clone may take.
const DefaultCloneTimeout = 2 * time.Minute

// CloneManager creates per-task working copies from remote repositories.
type CloneManager struct {
	executor execpkg.Executor
	rootDir  string // parent directory for all task workspaces
	logger   *logx.Logger
	timeout  time.Duration
}

// NewCloneManager creates a clone manager that places workspaces under rootDir.
func NewCloneManager(executor execpkg.Executor, rootDir string) *CloneManager {
	return &CloneManager{
		executor: executor,
		rootDir:  rootDir,
		logger:   logx.NewLogger("clone"),
		timeout:  DefaultCloneTimeout,
	}
}

// Clone shallow-clones url (optionally at branch) into a workspace directory
// named after taskID and returns a Dir repo rooted there.
func (m *CloneManager) Clone(ctx context.Context, taskID, url, branch string) (*Dir, error) {
	dest := filepath.Join(m.rootDir, taskID)
	if err := os.MkdirAll(m.rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	args := []string{"git", "clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)

	m.logger.Info("Cloning %s (branch=%q) into %s", url, branch, dest)
	result, err := m.executor.Run(ctx, args, &execpkg.Opts{Timeout: m.timeout})
	if err != nil {
		return nil, fmt.Errorf("git clone failed to run: %w", err)
	}
	if result.TimedOut {
		return nil, fmt.Errorf("git clone timed out after %s", m.timeout)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("git clone exited %d: %s", result.ExitCode, firstLine(result.Stderr))
	}

	return NewDir(dest)
}

// Workspace creates an empty workspace directory for tasks without a remote
// repository and returns a Dir repo rooted there.
func (m *CloneManager) Workspace(taskID string) (*Dir, error) {
	dest := filepath.Join(m.rootDir, taskID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return NewDir(dest)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
