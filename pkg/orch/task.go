package orch

import (
	"fmt"
	"sync"
	"time"

	"agentd/pkg/changes"
	"agentd/pkg/proto"
)

// Task is the live state of one orchestrated task. All accessors are safe for
// concurrent use; the controller goroutine is the only writer.
type Task struct {
	ID      string
	Request proto.TaskRequest

	mu         sync.Mutex
	phase      proto.Phase
	summary    string
	plan       []proto.PlanStep
	errData    *proto.ErrorData
	createdAt  time.Time
	finishedAt *time.Time
	changes    *changes.Manager
	applied    int
	failed     int

	decision chan bool
	cancel   func()
	done     chan struct{}
}

// Snapshot is the REST representation of a task: the authoritative phase and
// changeset reconnecting clients re-query.
type Snapshot struct {
	ID         string                   `json:"id"`
	Task       string                   `json:"task"`
	Phase      proto.Phase              `json:"phase"`
	Summary    string                   `json:"summary,omitempty"`
	Plan       []proto.PlanStep         `json:"plan,omitempty"`
	Changes    []proto.StagedChangeData `json:"changes"`
	Error      *proto.ErrorData         `json:"error,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

func newTask(id string, req proto.TaskRequest) *Task {
	return &Task{
		ID:        id,
		Request:   req,
		phase:     proto.PhaseIdle,
		createdAt: time.Now().UTC(),
		decision:  make(chan bool, 1),
		done:      make(chan struct{}),
	}
}

// Phase returns the current phase.
func (t *Task) Phase() proto.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Done is closed when the task reaches a terminal phase.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel requests cooperative cancellation of the task.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Decide submits the approval decision for a task in awaiting_approval.
func (t *Task) Decide(approved bool) error {
	t.mu.Lock()
	phase := t.phase
	t.mu.Unlock()

	if phase != proto.PhaseAwaitingApproval {
		return fmt.Errorf("task %s is %s, not awaiting approval", t.ID, phase)
	}
	select {
	case t.decision <- approved:
		return nil
	default:
		return fmt.Errorf("task %s already has a pending decision", t.ID)
	}
}

// Snapshot returns the task state for the REST surface.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ID:         t.ID,
		Task:       t.Request.Task,
		Phase:      t.phase,
		Summary:    t.summary,
		Plan:       append([]proto.PlanStep(nil), t.plan...),
		Changes:    []proto.StagedChangeData{},
		Error:      t.errData,
		CreatedAt:  t.createdAt,
		FinishedAt: t.finishedAt,
	}
	if t.changes != nil {
		snap.Changes = t.changes.ToWire()
	}
	return snap
}

func (t *Task) setPhase(phase proto.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	if phase.IsTerminal() {
		now := time.Now().UTC()
		t.finishedAt = &now
	}
}

func (t *Task) setSummary(summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary = summary
}

func (t *Task) setPlan(plan []proto.PlanStep) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plan = plan
}

func (t *Task) setChanges(cm *changes.Manager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = cm
}

func (t *Task) setError(data *proto.ErrorData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errData = data
}

func (t *Task) setApplyCounts(applied, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = applied
	t.failed = failed
}

func (t *Task) applyCounts() (applied, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applied, t.failed
}

func (t *Task) setCancel(cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}
