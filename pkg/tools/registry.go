package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentd/pkg/logx"
	"agentd/pkg/proto"
)

// DefaultValidationBudget is how many malformed calls per tool name per phase
// the registry tolerates before the loop fails fatally.
const DefaultValidationBudget = 3

// Registry holds the tools available to one task and enforces phase
// eligibility, argument validation, and correction budgets before dispatch.
type Registry struct {
	logger *logx.Logger

	mu               sync.Mutex
	tools            map[string]Tool
	validationBudget int
	corrections      map[string]int // "name/phase" -> malformed calls so far
}

// NewRegistry creates an empty registry with the given correction budget.
// A budget of zero or less uses DefaultValidationBudget.
func NewRegistry(validationBudget int) *Registry {
	if validationBudget <= 0 {
		validationBudget = DefaultValidationBudget
	}
	return &Registry{
		logger:           logx.NewLogger("tools"),
		tools:            make(map[string]Tool),
		validationBudget: validationBudget,
		corrections:      make(map[string]int),
	}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// MustRegister is Register but panics on error. Use during wiring.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a registered tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}

// Definitions returns the definitions of all tools eligible in phase, sorted
// by name. This is what gets advertised to the model for that phase's loop.
func (r *Registry) Definitions(phase proto.Phase) []ToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		def := tool.Definition()
		if def.EligibleIn(phase) {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch validates and executes one tool call for the given phase.
//
// Unknown tools, phase violations, and schema violations come back as
// synthetic tool-error results for the model to correct, charged against the
// per-tool-per-phase budget. When the budget is exhausted the returned error
// is a fatal TaskError with code validation_exhausted. Tool faults during
// execution are also returned as synthetic errors; they are not budgeted.
func (r *Registry) Dispatch(ctx context.Context, phase proto.Phase, name string, args map[string]any) (*ExecResult, error) {
	r.mu.Lock()
	tool, exists := r.tools[name]
	r.mu.Unlock()

	if !exists {
		return r.malformed(phase, name, fmt.Sprintf("Error: unknown tool %q", name))
	}

	def := tool.Definition()
	if !def.EligibleIn(phase) {
		return r.malformed(phase, name,
			fmt.Sprintf("Error: tool %q is not available during the %s phase", name, phase))
	}

	if err := ValidateArgs(def.InputSchema, args); err != nil {
		return r.malformed(phase, name, fmt.Sprintf("Error: %v", err))
	}

	result, err := tool.Exec(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("Tool %s failed: %v", name, err)
		return errorResult(fmt.Sprintf("Error executing %s: %v", name, err)), nil
	}
	return result, nil
}

// malformed records one budgeted violation and returns either a synthetic
// error result or, once the budget is spent, a fatal validation error.
func (r *Registry) malformed(phase proto.Phase, name, msg string) (*ExecResult, error) {
	r.mu.Lock()
	key := name + "/" + string(phase)
	r.corrections[key]++
	count := r.corrections[key]
	budget := r.validationBudget
	r.mu.Unlock()

	r.logger.Warn("Malformed call to %s in %s (%d/%d): %s", name, phase, count, budget, msg)
	if count >= budget {
		return nil, proto.NewTaskError(proto.ErrCodeValidationExhausted,
			"tool %s received %d malformed calls during %s; giving up", name, count, phase)
	}
	return errorResult(msg), nil
}
