package contextmgr

import (
	"strings"
	"testing"

	"agentd/pkg/agent/llm"
)

func TestNewContextManager(t *testing.T) {
	cm := NewContextManager("gpt-4o")

	if cm.MessageCount() != 0 {
		t.Errorf("expected new context manager to have 0 messages, got %d", cm.MessageCount())
	}
	if cm.TokenCount() != 0 {
		t.Errorf("expected new context manager to have 0 tokens, got %d", cm.TokenCount())
	}
}

func TestSystemPromptFirst(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.SetSystemPrompt("You are a coding agent.")
	cm.AddUserMessage("Fix the bug in parser.go")

	msgs := cm.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("expected system message first, got role %q", msgs[0].Role)
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "Fix the bug in parser.go" {
		t.Errorf("unexpected user message: %+v", msgs[1])
	}

	// System prompt is not part of the stored message count.
	if cm.MessageCount() != 1 {
		t.Errorf("expected MessageCount 1, got %d", cm.MessageCount())
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.AddUserMessage("List the repo root")
	cm.AddAssistantMessage("", []llm.ToolCall{
		{ID: "call_1", Name: "list_directory", Parameters: map[string]any{"path": "."}},
	})
	cm.AddToolResults([]llm.ToolResult{
		{ToolCallID: "call_1", Name: "list_directory", Content: "main.go (120 bytes)"},
	})

	msgs := cm.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].Name != "list_directory" {
		t.Errorf("assistant turn missing tool call: %+v", msgs[1])
	}
	if len(msgs[2].ToolResults) != 1 || msgs[2].ToolResults[0].ToolCallID != "call_1" {
		t.Errorf("result turn missing tool result: %+v", msgs[2])
	}
}

func TestAddToolResults_EmptyIgnored(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.AddToolResults(nil)
	if cm.MessageCount() != 0 {
		t.Errorf("expected empty results to be ignored, got %d messages", cm.MessageCount())
	}
}

func TestTokenCountGrows(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.AddUserMessage("short")
	small := cm.TokenCount()

	cm.AddUserMessage(strings.Repeat("some longer content here ", 50))
	if cm.TokenCount() <= small {
		t.Errorf("expected token count to grow, got %d then %d", small, cm.TokenCount())
	}
}

func TestCompactKeepsTaskStatement(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.SetSystemPrompt("system prompt")
	cm.AddUserMessage("the original task")
	for i := 0; i < 10; i++ {
		cm.AddAssistantMessage("", []llm.ToolCall{
			{ID: "call", Name: "read_file", Parameters: map[string]any{"path": "a.go"}},
		})
		cm.AddToolResults([]llm.ToolResult{
			{ToolCallID: "call", Name: "read_file", Content: strings.Repeat("file content ", 100)},
		})
	}
	cm.AddAssistantMessage("done exploring", nil)

	cm.SetMaxTokens(200)
	if !cm.CompactIfNeeded() {
		t.Fatal("expected compaction to run")
	}

	msgs := cm.Messages()
	if msgs[0].Role != llm.RoleSystem {
		t.Error("system prompt lost in compaction")
	}
	if msgs[1].Content != "the original task" {
		t.Errorf("task statement lost in compaction, first message: %+v", msgs[1])
	}
	// Tool-call turns are dropped together with their result turn.
	for i, msg := range msgs {
		if len(msg.ToolResults) > 0 {
			prev := msgs[i-1]
			if len(prev.ToolCalls) == 0 {
				t.Errorf("orphaned tool result at index %d", i)
			}
		}
	}
}

func TestCompactNoopUnderBudget(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.AddUserMessage("tiny")
	if cm.CompactIfNeeded() {
		t.Error("expected no compaction under budget")
	}
	if cm.MessageCount() != 1 {
		t.Errorf("expected message retained, got %d", cm.MessageCount())
	}
}

func TestClearKeepsSystemPrompt(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.SetSystemPrompt("persistent")
	cm.AddUserMessage("one")
	cm.AddUserMessage("two")
	cm.Clear()

	if cm.MessageCount() != 0 {
		t.Errorf("expected 0 messages after Clear, got %d", cm.MessageCount())
	}
	msgs := cm.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem {
		t.Errorf("expected system prompt to survive Clear, got %+v", msgs)
	}
}

func TestSummary(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	if cm.Summary() != "empty context" {
		t.Errorf("unexpected empty summary: %q", cm.Summary())
	}

	cm.AddUserMessage("hello")
	cm.AddAssistantMessage("hi", nil)
	summary := cm.Summary()
	if !strings.Contains(summary, "2 messages") {
		t.Errorf("summary missing message count: %q", summary)
	}
	if !strings.Contains(summary, "user: 1") || !strings.Contains(summary, "assistant: 1") {
		t.Errorf("summary missing role breakdown: %q", summary)
	}
}
