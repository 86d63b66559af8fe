package tools

import (
	"context"

	"agentd/pkg/changes"
	"agentd/pkg/proto"
)

// WriteFileTool stages a file create or modify through the change manager.
// It never touches real storage; the write lands only after approval.
type WriteFileTool struct {
	changes *changes.Manager
}

// NewWriteFileTool creates a write_file tool.
func NewWriteFileTool(cm *changes.Manager) *WriteFileTool {
	return &WriteFileTool{changes: cm}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// Definition returns the tool definition for the LLM.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Stage content to be written to a file. The change is held for human approval and is not applied immediately.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to repo root",
				},
				"content": {
					Type:        "string",
					Description: "Full content to write to the file",
				},
			},
			Required: []string{"path", "content"},
		},
		Capability: proto.CapabilityWrite,
		Phases:     mutatePhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return errorResult("Error: path is required and must be a string"), nil
	}
	// Empty content is a legal write, so bypass the non-empty check.
	content, ok := args["content"].(string)
	if !ok {
		return errorResult("Error: content is required and must be a string"), nil
	}

	ack, err := t.changes.StageWrite(path, content)
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: ack}, nil
}
