// Package proto defines the shared protocol types for agentd: task phases,
// event kinds, error codes, and the JSON wire envelope exchanged with clients.
package proto

// Phase is a named stage of the task state machine.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseCloning          Phase = "cloning"
	PhaseUnderstanding    Phase = "understanding"
	PhasePlanning         Phase = "planning"
	PhaseExecuting        Phase = "executing"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseComplete         Phase = "complete"
	PhaseError            Phase = "error"
)

// String returns the phase as a string.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal reports whether the phase ends the task.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhaseCloning, PhaseUnderstanding, PhasePlanning,
		PhaseExecuting, PhaseAwaitingApproval, PhaseComplete, PhaseError:
		return true
	}
	return false
}

// Capability classifies what a tool is allowed to do.
type Capability string

const (
	// CapabilityRead marks side-effect-free tools, callable in every phase.
	CapabilityRead Capability = "read"
	// CapabilityWrite marks tools that stage file mutations; executing only.
	CapabilityWrite Capability = "write"
	// CapabilityExec marks tools that run external processes; executing only.
	CapabilityExec Capability = "exec"
)

// StepStatus tracks the lifecycle of a plan step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// PlanStep is one ordered step of the plan produced during planning.
type PlanStep struct {
	Description string     `json:"description"`
	Tool        string     `json:"tool,omitempty"` // suggested tool name, advisory only
	Status      StepStatus `json:"status"`
}
