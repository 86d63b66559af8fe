package tools

import (
	"context"
	"fmt"
	"strings"

	"agentd/pkg/indexer"
	"agentd/pkg/proto"
)

const maxSymbolListing = 200

// IndexSymbolsTool reports the code symbols (types, functions, methods) of
// the working copy so the model can orient itself without reading every file.
type IndexSymbolsTool struct {
	indexer *indexer.Indexer
}

// NewIndexSymbolsTool creates an index_symbols tool.
func NewIndexSymbolsTool(in *indexer.Indexer) *IndexSymbolsTool {
	return &IndexSymbolsTool{indexer: in}
}

// Name returns the tool name.
func (t *IndexSymbolsTool) Name() string {
	return ToolIndexSymbols
}

// Definition returns the tool definition for the LLM.
func (t *IndexSymbolsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolIndexSymbols,
		Description: "Get a summary of code symbols (types, classes, functions, methods) in the codebase. Use this to understand code structure quickly.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Restrict results to this file or directory prefix.",
				},
				"kind": {
					Type:        "string",
					Description: "Filter by symbol kind. Omit for a summary plus full listing.",
					Enum:        []string{"function", "type", "method", "class"},
				},
				"name": {
					Type:        "string",
					Description: "Filter to symbols whose name contains this text (case-insensitive).",
				},
			},
		},
		Capability: proto.CapabilityRead,
		Phases:     readPhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *IndexSymbolsTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	ix, err := t.indexer.Get()
	if err != nil {
		return errorResult(fmt.Sprintf("Error: failed to index codebase: %v", err)), nil
	}

	symbols := ix.Symbols
	if name, ok := stringArg(args, "name"); ok {
		symbols = ix.FindByName(name)
	}
	if kind, ok := stringArg(args, "kind"); ok {
		symbols = filterKind(symbols, indexer.SymbolKind(kind))
	}
	if prefix, ok := stringArg(args, "path"); ok {
		prefix = strings.TrimPrefix(prefix, "./")
		symbols = filterPath(symbols, prefix)
	}

	if len(symbols) == 0 {
		return &ExecResult{Content: "No matching symbols found."}, nil
	}

	var b strings.Builder
	b.WriteString(ix.Summary())
	b.WriteString("\n\n")
	for i, s := range symbols {
		if i >= maxSymbolListing {
			fmt.Fprintf(&b, "... (%d more symbols omitted)\n", len(symbols)-maxSymbolListing)
			break
		}
		if s.Parent != "" {
			fmt.Fprintf(&b, "%s:%d  %s  %s.%s\n", s.Path, s.Line, s.Kind, s.Parent, s.Name)
		} else {
			fmt.Fprintf(&b, "%s:%d  %s  %s\n", s.Path, s.Line, s.Kind, s.Name)
		}
	}
	return &ExecResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

func filterKind(symbols []indexer.Symbol, kind indexer.SymbolKind) []indexer.Symbol {
	var out []indexer.Symbol
	for _, s := range symbols {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func filterPath(symbols []indexer.Symbol, prefix string) []indexer.Symbol {
	var out []indexer.Symbol
	for _, s := range symbols {
		if s.Path == prefix || strings.HasPrefix(s.Path, prefix+"/") {
			out = append(out, s)
		}
	}
	return out
}
