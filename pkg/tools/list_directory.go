package tools

import (
	"context"
	"fmt"
	"strings"

	"agentd/pkg/proto"
	"agentd/pkg/repo"
)

// ListDirectoryTool lists the entries of a directory in the working copy.
type ListDirectoryTool struct {
	repo repo.Repo
}

// NewListDirectoryTool creates a list_directory tool.
func NewListDirectoryTool(r repo.Repo) *ListDirectoryTool {
	return &ListDirectoryTool{repo: r}
}

// Name returns the tool name.
func (t *ListDirectoryTool) Name() string {
	return ToolListDirectory
}

// Definition returns the tool definition for the LLM.
func (t *ListDirectoryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListDirectory,
		Description: "List contents of a directory",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Directory path relative to repo root. Use \".\" for the root.",
				},
			},
			Required: []string{"path"},
		},
		Capability: proto.CapabilityRead,
		Phases:     readPhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *ListDirectoryTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return errorResult("Error: path is required and must be a string"), nil
	}

	entries, err := t.repo.List(path)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: Directory '%s' not found or not readable: %v", path, err)), nil
	}
	if len(entries) == 0 {
		return &ExecResult{Content: fmt.Sprintf("Directory '%s' is empty.", path)}, nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&b, "%s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "%s (%d bytes)\n", e.Name, e.Size)
		}
	}
	return &ExecResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}
