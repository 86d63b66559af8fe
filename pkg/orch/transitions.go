// Package orch contains the task orchestrator: the phase state machine, plan
// parsing, and the controller that drives a task from request to terminal
// phase.
package orch

import (
	"fmt"

	"agentd/pkg/proto"
)

// ErrInvalidTransition is returned when a phase change is not in the table.
var ErrInvalidTransition = fmt.Errorf("invalid phase transition")

// validTransitions is the authoritative transition table. The error phase is
// additionally reachable from every non-terminal phase.
var validTransitions = map[proto.Phase][]proto.Phase{
	proto.PhaseIdle:             {proto.PhaseCloning, proto.PhaseUnderstanding},
	proto.PhaseCloning:          {proto.PhaseUnderstanding},
	proto.PhaseUnderstanding:    {proto.PhasePlanning},
	proto.PhasePlanning:         {proto.PhaseExecuting},
	proto.PhaseExecuting:        {proto.PhaseAwaitingApproval, proto.PhaseComplete},
	proto.PhaseAwaitingApproval: {proto.PhaseComplete},
	proto.PhaseComplete:         {},
	proto.PhaseError:            {},
}

// CanTransition reports whether moving from one phase to another is legal.
func CanTransition(from, to proto.Phase) bool {
	if to == proto.PhaseError {
		return !from.IsTerminal()
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
