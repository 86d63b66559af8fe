// Package tools provides the tool implementations and the phase-scoped
// registry that validates and dispatches model tool calls.
package tools

import (
	"context"

	"agentd/pkg/proto"
)

// Tool name constants - use these instead of magic strings to prevent typos.
const (
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolDeleteFile    = "delete_file"
	ToolListDirectory = "list_directory"
	ToolSearchCode    = "search_code"
	ToolRunCommand    = "run_command"
	ToolIndexSymbols  = "index_symbols"
)

// Property describes one parameter in a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is the JSON-schema subset describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition carries the static contract of a tool: name, schema,
// capability class, and the phases in which it may be called.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema InputSchema
	Capability  proto.Capability
	Phases      []proto.Phase
}

// EligibleIn reports whether the tool may be called during phase.
func (d ToolDefinition) EligibleIn(phase proto.Phase) bool {
	for _, p := range d.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// ExecResult is the outcome of a tool execution, fed back to the model as a
// tool result. IsError marks synthetic errors (validation failures, tool
// faults) that the model should correct; they do not abort the loop.
type ExecResult struct {
	Content string
	IsError bool
}

// Tool is a named, schema-validated operation the model may invoke.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// readPhases is where side-effect-free tools are callable.
var readPhases = []proto.Phase{proto.PhaseUnderstanding, proto.PhaseExecuting}

// mutatePhases is where write and exec tools are callable.
var mutatePhases = []proto.Phase{proto.PhaseExecuting}

func errorResult(msg string) *ExecResult {
	return &ExecResult{Content: msg, IsError: true}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

// intArgOrDefault extracts an integer argument, returning defaultVal if
// missing or invalid. Handles float64 (from JSON unmarshal), int, and int64.
func intArgOrDefault(args map[string]any, key string, defaultVal int) int {
	v, exists := args[key]
	if !exists {
		return defaultVal
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case int64:
		n = int(val)
	default:
		return defaultVal
	}
	if n < 1 {
		return defaultVal
	}
	return n
}
