package tools

import (
	"time"

	"agentd/pkg/changes"
	execpkg "agentd/pkg/exec"
	"agentd/pkg/indexer"
	"agentd/pkg/repo"
)

// RegisterDefaults registers the standard tool set for one task: read tools
// over the working copy, write tools routed through the change manager, and
// command execution scoped to the repository root. cmdTimeout bounds
// run_command when the model gives no timeout; zero means the built-in
// default.
func RegisterDefaults(reg *Registry, r repo.Repo, cm *changes.Manager, in *indexer.Indexer, executor execpkg.Executor, cmdTimeout time.Duration) {
	reg.MustRegister(NewReadFileTool(r, cm))
	reg.MustRegister(NewListDirectoryTool(r))
	reg.MustRegister(NewSearchCodeTool(r))
	reg.MustRegister(NewIndexSymbolsTool(in))
	reg.MustRegister(NewWriteFileTool(cm))
	reg.MustRegister(NewDeleteFileTool(cm))
	reg.MustRegister(NewRunCommandTool(executor, r.Root(), cmdTimeout))
}
