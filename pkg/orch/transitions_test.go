package orch

import (
	"testing"

	"agentd/pkg/proto"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to proto.Phase
		want     bool
	}{
		{proto.PhaseIdle, proto.PhaseUnderstanding, true},
		{proto.PhaseIdle, proto.PhaseCloning, true},
		{proto.PhaseCloning, proto.PhaseUnderstanding, true},
		{proto.PhaseUnderstanding, proto.PhasePlanning, true},
		{proto.PhasePlanning, proto.PhaseExecuting, true},
		{proto.PhaseExecuting, proto.PhaseAwaitingApproval, true},
		{proto.PhaseExecuting, proto.PhaseComplete, true},
		{proto.PhaseAwaitingApproval, proto.PhaseComplete, true},

		// Error is reachable from every non-terminal phase.
		{proto.PhaseIdle, proto.PhaseError, true},
		{proto.PhaseExecuting, proto.PhaseError, true},
		{proto.PhaseAwaitingApproval, proto.PhaseError, true},
		{proto.PhaseComplete, proto.PhaseError, false},
		{proto.PhaseError, proto.PhaseError, false},

		// Skips and reversals are rejected.
		{proto.PhaseIdle, proto.PhaseExecuting, false},
		{proto.PhaseUnderstanding, proto.PhaseExecuting, false},
		{proto.PhasePlanning, proto.PhaseUnderstanding, false},
		{proto.PhaseComplete, proto.PhaseUnderstanding, false},
		{proto.PhaseAwaitingApproval, proto.PhaseExecuting, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
