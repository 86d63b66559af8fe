package toolloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentd/pkg/agent"
	"agentd/pkg/agent/llm"
	"agentd/pkg/changes"
	"agentd/pkg/contextmgr"
	"agentd/pkg/events"
	execpkg "agentd/pkg/exec"
	"agentd/pkg/indexer"
	"agentd/pkg/proto"
	"agentd/pkg/repo"
	"agentd/pkg/tools"
)

func setupLoop(t *testing.T, files map[string]string, responses []llm.CompletionResponse) (*Loop, *events.Recorder, *changes.Manager) {
	t.Helper()
	tmpDir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(tmpDir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	d, err := repo.NewDir(tmpDir)
	require.NoError(t, err)
	cm := changes.NewManager(d)
	reg := tools.NewRegistry(tools.DefaultValidationBudget)
	tools.RegisterDefaults(reg, d, cm, indexer.New(d), execpkg.NewLocalExec(), 0)

	mock := agent.NewMockLLMClient(responses, nil)
	rec := &events.Recorder{}
	ctxmgr := contextmgr.NewContextManager("gpt-4o")
	ctxmgr.AddUserMessage("do the task")

	return New(mock, reg, ctxmgr, rec, nil), rec, cm
}

func execCfg() Config {
	return Config{
		Phase:         proto.PhaseExecuting,
		MaxIterations: 5,
		Timeout:       time.Minute,
		MaxTokens:     1024,
		Temperature:   0.2,
	}
}

func TestRun_FinalTextWithoutTools(t *testing.T) {
	loop, rec, _ := setupLoop(t, nil, []llm.CompletionResponse{
		{Content: "nothing to do", StopReason: "end_turn"},
	})

	out, err := loop.Run(context.Background(), execCfg())
	require.NoError(t, err)
	assert.Equal(t, "nothing to do", out)
	assert.Empty(t, rec.Events())
}

func TestRun_ToolCallRoundTrip(t *testing.T) {
	loop, rec, _ := setupLoop(t, map[string]string{"main.go": "package main\n"}, []llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "read_file", Parameters: map[string]any{"path": "main.go"}},
			},
		},
		{Content: "read it", StopReason: "end_turn"},
	})

	out, err := loop.Run(context.Background(), execCfg())
	require.NoError(t, err)
	assert.Equal(t, "read it", out)

	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, proto.EventToolCall, evs[0].Type)
	assert.Equal(t, proto.EventToolResult, evs[1].Type)

	var result proto.ToolResultData
	require.NoError(t, evs[1].DecodeData(&result))
	assert.Contains(t, result.Result, "package main")
}

func TestRun_EventsInOperationOrder(t *testing.T) {
	loop, rec, _ := setupLoop(t, map[string]string{"a.go": "package a\n", "b.go": "package b\n"}, []llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "read_file", Parameters: map[string]any{"path": "a.go"}},
				{ID: "c2", Name: "read_file", Parameters: map[string]any{"path": "b.go"}},
			},
		},
		{Content: "done", StopReason: "end_turn"},
	})

	_, err := loop.Run(context.Background(), execCfg())
	require.NoError(t, err)

	evs := rec.Events()
	require.Len(t, evs, 4)
	wantTypes := []proto.EventType{proto.EventToolCall, proto.EventToolResult, proto.EventToolCall, proto.EventToolResult}
	var wantPaths []string
	for i, env := range evs {
		assert.Equal(t, wantTypes[i], env.Type)
		if env.Type == proto.EventToolCall {
			var data proto.ToolCallData
			require.NoError(t, env.DecodeData(&data))
			wantPaths = append(wantPaths, data.Args["path"].(string))
		}
	}
	assert.Equal(t, []string{"a.go", "b.go"}, wantPaths)
}

func TestRun_SyntheticErrorFedBack(t *testing.T) {
	loop, _, _ := setupLoop(t, nil, []llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "no_such_tool", Parameters: map[string]any{}},
			},
		},
		{Content: "recovered", StopReason: "end_turn"},
	})

	out, err := loop.Run(context.Background(), execCfg())
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
}

func TestRun_IterationCapFatal(t *testing.T) {
	responses := make([]llm.CompletionResponse, 6)
	for i := range responses {
		responses[i] = llm.CompletionResponse{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{
				{ID: "c", Name: "list_directory", Parameters: map[string]any{"path": "."}},
			},
		}
	}
	loop, _, _ := setupLoop(t, nil, responses)

	cfg := execCfg()
	cfg.MaxIterations = 3
	_, err := loop.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, proto.ErrCodeLoopBudget, proto.CodeOf(err))
}

func TestRun_ValidationExhaustionFatal(t *testing.T) {
	responses := make([]llm.CompletionResponse, 4)
	for i := range responses {
		responses[i] = llm.CompletionResponse{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{
				// Missing required "path" argument every time.
				{ID: "c", Name: "read_file", Parameters: map[string]any{}},
			},
		}
	}
	loop, _, _ := setupLoop(t, nil, responses)

	_, err := loop.Run(context.Background(), execCfg())
	require.Error(t, err)
	assert.Equal(t, proto.ErrCodeValidationExhausted, proto.CodeOf(err))
}

func TestRun_WriteStagesNotWrites(t *testing.T) {
	loop, _, cm := setupLoop(t, nil, []llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "write_file", Parameters: map[string]any{"path": "new.go", "content": "package new\n"}},
			},
		},
		{Content: "staged", StopReason: "end_turn"},
	})

	_, err := loop.Run(context.Background(), execCfg())
	require.NoError(t, err)
	assert.Equal(t, 1, cm.Len())
}

func TestRun_CancelledContext(t *testing.T) {
	loop, _, _ := setupLoop(t, nil, []llm.CompletionResponse{
		{Content: "unreached", StopReason: "end_turn"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.Run(ctx, execCfg())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
