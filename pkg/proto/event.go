package proto

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates the server→client event union.
type EventType string

const (
	EventPhase      EventType = "phase"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventSummary    EventType = "summary"
	EventPlan       EventType = "plan"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// Envelope is the JSON wire format for every event: {"type": ..., "data": ...}.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PhaseData announces a phase transition. TaskID lets clients re-query
// GET /api/task/{id} after a reconnect.
type PhaseData struct {
	Phase  Phase  `json:"phase"`
	TaskID string `json:"task_id,omitempty"`
}

// ToolCallData announces that the model requested a tool.
type ToolCallData struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResultData carries the result of the matching tool call.
type ToolResultData struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// SummaryData carries the understanding-phase summary.
type SummaryData struct {
	Text string `json:"text"`
}

// PlanData carries the ordered plan produced during planning.
type PlanData struct {
	Steps []PlanStep `json:"steps"`
}

// StagedChangeData is the wire shape of a staged file mutation.
type StagedChangeData struct {
	Path            string  `json:"path"`
	ChangeType      string  `json:"change_type"`
	OriginalContent *string `json:"original_content"`
	NewContent      string  `json:"new_content"`
}

// CompleteData is the final event of a successful task.
type CompleteData struct {
	Phase   Phase              `json:"phase"`
	Changes []StagedChangeData `json:"changes"`
}

// ErrorData is the final event of a failed task.
type ErrorData struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

// TaskRequest is the single client→server initiating message on a channel.
type TaskRequest struct {
	Task    string `json:"task"`
	RepoURL string `json:"repo_url,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// NewEvent wraps a payload in an Envelope, serializing the data field.
func NewEvent(eventType EventType, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s event data: %w", eventType, err)
	}
	return Envelope{Type: eventType, Data: raw}, nil
}

// MustEvent is NewEvent for payloads that cannot fail to marshal.
func MustEvent(eventType EventType, data any) Envelope {
	env, err := NewEvent(eventType, data)
	if err != nil {
		panic(err)
	}
	return env
}

// DecodeData unmarshals the envelope's data field into dest.
func (e *Envelope) DecodeData(dest any) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s event data: %w", e.Type, err)
	}
	return nil
}
