// Package toolloop drives the LLM tool-use cycle for one phase: completion,
// tool dispatch, result feedback, until the model stops calling tools or the
// phase budget runs out.
package toolloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentd/pkg/agent/llm"
	"agentd/pkg/contextmgr"
	"agentd/pkg/events"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/proto"
	"agentd/pkg/tools"
)

// Config bounds one phase's loop.
type Config struct {
	Phase         proto.Phase
	MaxIterations int
	Timeout       time.Duration
	MaxTokens     int
	Temperature   float32
}

// Loop runs bounded tool-use cycles against one LLM client.
type Loop struct {
	client   llm.LLMClient
	registry *tools.Registry
	cm       *contextmgr.ContextManager
	emitter  events.Emitter
	recorder *metrics.Recorder
	logger   *logx.Logger
}

// New creates a loop. The emitter receives tool_call and tool_result events
// in strict operation order; recorder may be nil.
func New(client llm.LLMClient, registry *tools.Registry, cm *contextmgr.ContextManager,
	emitter events.Emitter, recorder *metrics.Recorder) *Loop {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Loop{
		client:   client,
		registry: registry,
		cm:       cm,
		emitter:  emitter,
		recorder: recorder,
		logger:   logx.NewLogger("toolloop"),
	}
}

// Run drives the loop until the model answers without tool calls, returning
// that final text. Exceeding the iteration cap or the wall-clock timeout is
// fatal with code loop_budget_exceeded.
func (l *Loop) Run(ctx context.Context, cfg Config) (string, error) {
	if cfg.MaxIterations <= 0 {
		return "", fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	defs := l.registry.Definitions(cfg.Phase)

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", l.classifyLoopError(ctx, cfg.Phase, err)
		}
		l.cm.CompactIfNeeded()

		req := llm.CompletionRequest{
			Messages:    l.cm.Messages(),
			Tools:       defs,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}

		start := time.Now()
		resp, err := l.client.Complete(ctx, req)
		l.recorder.ObserveLLMRequest(l.client.GetModelName(), time.Since(start), err)
		if err != nil {
			return "", l.classifyLoopError(ctx, cfg.Phase, err)
		}

		l.cm.AddAssistantMessage(resp.Content, resp.ToolCalls)

		if len(resp.ToolCalls) == 0 {
			l.logger.Debug("%s loop finished after %d iterations", cfg.Phase, iteration+1)
			return resp.Content, nil
		}

		results, err := l.dispatchCalls(ctx, cfg.Phase, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		l.cm.AddToolResults(results)
	}

	return "", proto.NewTaskError(proto.ErrCodeLoopBudget,
		"%s phase exceeded %d iterations", cfg.Phase, cfg.MaxIterations)
}

// dispatchCalls executes the model's tool calls sequentially in request
// order, emitting paired tool_call and tool_result events.
func (l *Loop) dispatchCalls(ctx context.Context, phase proto.Phase, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for i := range calls {
		// Cancellation is cooperative: checked between tool calls.
		if err := ctx.Err(); err != nil {
			return nil, classifyDispatchError(ctx, phase, calls[i].Name, err)
		}
		call := &calls[i]

		l.emitter.Emit(proto.MustEvent(proto.EventToolCall, proto.ToolCallData{
			Name: call.Name,
			Args: call.Parameters,
		}))

		start := time.Now()
		res, err := l.registry.Dispatch(ctx, phase, call.Name, call.Parameters)
		if err != nil {
			return nil, classifyDispatchError(ctx, phase, call.Name, err)
		}
		l.recorder.ObserveTool(call.Name, time.Since(start), res.IsError)

		l.emitter.Emit(proto.MustEvent(proto.EventToolResult, proto.ToolResultData{
			Name:   call.Name,
			Result: res.Content,
		}))

		results = append(results, llm.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    res.Content,
			IsError:    res.IsError,
		})
	}
	return results, nil
}

// classifyLoopError maps timeouts from the loop's own deadline to the budget
// error code; cancellation and already-coded errors pass through.
func (l *Loop) classifyLoopError(ctx context.Context, phase proto.Phase, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return proto.WrapTaskError(proto.ErrCodeLoopBudget, err,
			"%s phase exceeded its time budget", phase)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var te *proto.TaskError
	if errors.As(err, &te) {
		return err
	}
	return proto.WrapTaskError(proto.ErrCodeLLM, err, "language model request failed")
}

func classifyDispatchError(ctx context.Context, phase proto.Phase, tool string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return proto.WrapTaskError(proto.ErrCodeLoopBudget, err,
			"%s phase exceeded its time budget", phase)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var te *proto.TaskError
	if errors.As(err, &te) {
		return err
	}
	return proto.WrapTaskError(proto.ErrCodeToolExecution, err, "tool %s failed", tool)
}
