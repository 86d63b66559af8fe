// Package contextmgr maintains the conversation context for a task and
// counts tokens so phase loops can stay inside the model window.
package contextmgr

import (
	"fmt"
	"strings"
	"sync"

	"agentd/pkg/agent/llm"
)

// DefaultMaxContextTokens is the compaction threshold when no model-specific
// budget is configured.
const DefaultMaxContextTokens = 100000

// ContextManager accumulates the message history for one task. All mutating
// methods are safe for concurrent use.
type ContextManager struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []llm.CompletionMessage
	counter      *TokenCounter
	maxTokens    int
}

// NewContextManager creates a context manager for the given model. Token
// counting falls back to a character heuristic if the tokenizer cannot load.
func NewContextManager(model string) *ContextManager {
	counter, err := NewTokenCounter(model)
	if err != nil {
		counter = nil
	}
	return &ContextManager{
		counter:   counter,
		maxTokens: DefaultMaxContextTokens,
	}
}

// SetMaxTokens overrides the compaction threshold.
func (cm *ContextManager) SetMaxTokens(n int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if n > 0 {
		cm.maxTokens = n
	}
}

// SetSystemPrompt replaces the system prompt. It is emitted as the first
// message of every snapshot and survives compaction.
func (cm *ContextManager) SetSystemPrompt(prompt string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.systemPrompt = prompt
}

// AddUserMessage appends a plain user message.
func (cm *ContextManager) AddUserMessage(content string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messages = append(cm.messages, llm.NewUserMessage(content))
}

// AddAssistantMessage appends an assistant turn, including any tool calls the
// model requested.
func (cm *ContextManager) AddAssistantMessage(content string, calls []llm.ToolCall) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messages = append(cm.messages, llm.CompletionMessage{
		Role:      llm.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})
}

// AddToolResults appends a user turn carrying tool results answering the
// preceding assistant message.
func (cm *ContextManager) AddToolResults(results []llm.ToolResult) {
	if len(results) == 0 {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messages = append(cm.messages, llm.CompletionMessage{
		Role:        llm.RoleUser,
		ToolResults: results,
	})
}

// Messages returns a snapshot of the conversation, system prompt first.
func (cm *ContextManager) Messages() []llm.CompletionMessage {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	out := make([]llm.CompletionMessage, 0, len(cm.messages)+1)
	if cm.systemPrompt != "" {
		out = append(out, llm.NewSystemMessage(cm.systemPrompt))
	}
	out = append(out, cm.messages...)
	return out
}

// MessageCount returns the number of stored messages, excluding the system
// prompt.
func (cm *ContextManager) MessageCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.messages)
}

// Clear drops all conversation messages but keeps the system prompt.
func (cm *ContextManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messages = cm.messages[:0]
}

// TokenCount returns the token total of the current context, system prompt
// included.
func (cm *ContextManager) TokenCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.tokenCountLocked()
}

func (cm *ContextManager) tokenCountLocked() int {
	total := cm.countText(cm.systemPrompt)
	for i := range cm.messages {
		total += cm.countMessage(&cm.messages[i])
	}
	return total
}

func (cm *ContextManager) countMessage(msg *llm.CompletionMessage) int {
	total := cm.countText(msg.Content)
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		total += cm.countText(tc.Name)
		total += cm.countText(fmt.Sprintf("%v", tc.Parameters))
	}
	for i := range msg.ToolResults {
		total += cm.countText(msg.ToolResults[i].Content)
	}
	return total
}

func (cm *ContextManager) countText(text string) int {
	if cm.counter == nil {
		return len(text) / 4
	}
	return cm.counter.CountTokens(text)
}

// CompactIfNeeded drops the oldest exchanges when the context exceeds the
// token budget. The system prompt and the first user message (the task
// statement) are always kept. Assistant tool-call turns are dropped together
// with the following tool-result turn so providers never see an orphaned
// result.
func (cm *ContextManager) CompactIfNeeded() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tokenCountLocked() <= cm.maxTokens {
		return false
	}

	compacted := false
	for cm.tokenCountLocked() > cm.maxTokens && len(cm.messages) > 2 {
		// Index 0 is the task statement; drop from index 1.
		drop := 1
		end := drop + 1
		if len(cm.messages[drop].ToolCalls) > 0 && end < len(cm.messages) &&
			len(cm.messages[end].ToolResults) > 0 {
			end++
		}
		cm.messages = append(cm.messages[:drop], cm.messages[end:]...)
		compacted = true
	}
	return compacted
}

// Summary returns a one-line description of the context state for logging.
func (cm *ContextManager) Summary() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if len(cm.messages) == 0 {
		return "empty context"
	}

	roleCounts := make(map[llm.CompletionRole]int)
	for i := range cm.messages {
		roleCounts[cm.messages[i].Role]++
	}
	parts := make([]string, 0, len(roleCounts))
	for _, role := range []llm.CompletionRole{llm.RoleUser, llm.RoleAssistant} {
		if n := roleCounts[role]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", role, n))
		}
	}
	return fmt.Sprintf("%d messages (%d tokens) - %s",
		len(cm.messages), cm.tokenCountLocked(), strings.Join(parts, ", "))
}
