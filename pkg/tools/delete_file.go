package tools

import (
	"context"

	"agentd/pkg/changes"
	"agentd/pkg/proto"
)

// DeleteFileTool stages a file deletion through the change manager.
type DeleteFileTool struct {
	changes *changes.Manager
}

// NewDeleteFileTool creates a delete_file tool.
func NewDeleteFileTool(cm *changes.Manager) *DeleteFileTool {
	return &DeleteFileTool{changes: cm}
}

// Name returns the tool name.
func (t *DeleteFileTool) Name() string {
	return ToolDeleteFile
}

// Definition returns the tool definition for the LLM.
func (t *DeleteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolDeleteFile,
		Description: "Stage a file for deletion. The change is held for human approval and is not applied immediately.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to repo root",
				},
			},
			Required: []string{"path"},
		},
		Capability: proto.CapabilityWrite,
		Phases:     mutatePhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *DeleteFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return errorResult("Error: path is required and must be a string"), nil
	}

	ack, err := t.changes.StageDelete(path)
	if err != nil {
		// A delete of a non-existent file is a model mistake, not a fault.
		return errorResult("Error: " + err.Error()), nil
	}
	return &ExecResult{Content: ack}, nil
}
