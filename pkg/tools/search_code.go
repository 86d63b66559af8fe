package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"agentd/pkg/proto"
	"agentd/pkg/repo"
)

const maxSearchMatches = 100

// SearchCodeTool searches file contents for a pattern and returns matching
// lines with file paths and line numbers.
type SearchCodeTool struct {
	repo repo.Repo
}

// NewSearchCodeTool creates a search_code tool.
func NewSearchCodeTool(r repo.Repo) *SearchCodeTool {
	return &SearchCodeTool{repo: r}
}

// Name returns the tool name.
func (t *SearchCodeTool) Name() string {
	return ToolSearchCode
}

// Definition returns the tool definition for the LLM.
func (t *SearchCodeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchCode,
		Description: "Search for a pattern in files. Returns matching lines with file paths and line numbers. Use this to find relevant code without reading entire files.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"pattern": {
					Type:        "string",
					Description: "Regular expression to search for. Plain text works too.",
				},
				"path": {
					Type:        "string",
					Description: "Restrict the search to this file or directory prefix.",
				},
			},
			Required: []string{"pattern"},
		},
		Capability: proto.CapabilityRead,
		Phases:     readPhases,
	}
}

// Exec executes the tool with the given arguments.
func (t *SearchCodeTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return errorResult("Error: pattern is required and must be a string"), nil
	}
	prefix, _ := args["path"].(string)
	prefix = strings.TrimPrefix(prefix, "./")

	re, err := regexp.Compile(pattern)
	if err != nil {
		// Fall back to a literal match so plain strings with regex
		// metacharacters still work.
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}

	var matches []string
	truncated := false
	walkErr := t.repo.Walk(func(rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if truncated {
			return nil
		}
		if prefix != "" && rel != prefix && !strings.HasPrefix(rel, prefix+"/") {
			return nil
		}
		content, found, err := t.repo.Read(rel)
		if err != nil || !found {
			return nil
		}
		if bytes.IndexByte(content, 0) >= 0 {
			return nil // binary
		}

		scanner := bufio.NewScanner(bytes.NewReader(content))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, lineNo, strings.TrimSpace(line)))
				if len(matches) >= maxSearchMatches {
					truncated = true
					return nil
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return errorResult(fmt.Sprintf("Error: search failed: %v", walkErr)), nil
	}

	if len(matches) == 0 {
		return &ExecResult{Content: fmt.Sprintf("No matches for '%s'.", pattern)}, nil
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n\n... (stopped after %d matches)", maxSearchMatches)
	}
	return &ExecResult{Content: out}, nil
}
