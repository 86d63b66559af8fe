package tools

import (
	"context"
	"fmt"
	"strings"

	"agentd/pkg/changes"
	"agentd/pkg/proto"
	"agentd/pkg/repo"
)

const defaultReadLines = 2000

// ReadFileTool returns file contents from the working copy. Pending staged
// edits overlay the on-disk content so the model sees its own writes.
type ReadFileTool struct {
	repo    repo.Repo
	changes *changes.Manager
}

// NewReadFileTool creates a read_file tool.
func NewReadFileTool(r repo.Repo, cm *changes.Manager) *ReadFileTool {
	return &ReadFileTool{repo: r, changes: cm}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// Definition returns the tool definition for the LLM.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read the contents of a file. For large files, use max_lines to read the beginning only.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to repo root",
				},
				"max_lines": {
					Type:        "integer",
					Description: "Maximum number of lines to return. Defaults to 2000.",
				},
			},
			Required: []string{"path"},
		},
		Capability: proto.CapabilityRead,
		Phases:     readPhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return errorResult("Error: path is required and must be a string"), nil
	}
	maxLines := intArgOrDefault(args, "max_lines", defaultReadLines)

	content, found, err := t.read(path)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err)), nil
	}
	if !found {
		return errorResult(fmt.Sprintf("Error: File '%s' not found.", path)), nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) > maxLines {
		content = strings.Join(lines[:maxLines], "\n")
		content += fmt.Sprintf("\n\n... (truncated at %d of %d lines)", maxLines, len(lines))
	}
	return &ExecResult{Content: content}, nil
}

// read resolves path against the staging area first, then the working copy.
func (t *ReadFileTool) read(path string) (string, bool, error) {
	if t.changes != nil {
		if staged, ok := t.changes.Staged(path); ok {
			if staged.Type == changes.ChangeDelete {
				return "", false, nil
			}
			return staged.NewContent, true, nil
		}
	}
	data, ok, err := t.repo.Read(path)
	if err != nil {
		return "", false, err
	}
	return string(data), ok, nil
}
