package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentd/pkg/agent"
	"agentd/pkg/agent/llm"
	"agentd/pkg/agent/toolloop"
	"agentd/pkg/changes"
	"agentd/pkg/config"
	"agentd/pkg/contextmgr"
	"agentd/pkg/events"
	execpkg "agentd/pkg/exec"
	"agentd/pkg/indexer"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/proto"
	"agentd/pkg/repo"
	"agentd/pkg/tools"
)

// ClientFactory builds an LLM client for a phase's model configuration.
// Swapped for a mock factory in tests.
type ClientFactory func(model config.ModelCfg) (llm.LLMClient, error)

// TaskRecord is what the archive keeps about a terminal task.
type TaskRecord struct {
	ID             string
	Description    string
	Phase          proto.Phase
	Summary        string
	ErrorCode      string
	ErrorMessage   string
	ChangesApplied int
	ChangesFailed  int
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// Archive persists terminal tasks. In-memory staging is never persisted
// pre-approval.
type Archive interface {
	SaveTask(ctx context.Context, rec TaskRecord) error
}

// Controller runs tasks through the phase state machine.
type Controller struct {
	cfg      config.Config
	clients  ClientFactory
	cloner   *repo.CloneManager
	recorder *metrics.Recorder
	archive  Archive
	logger   *logx.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewController creates a controller. recorder and archive may be nil.
func NewController(cfg config.Config, keys config.APIKeys, recorder *metrics.Recorder, archive Archive) *Controller {
	return &Controller{
		cfg: cfg,
		clients: func(model config.ModelCfg) (llm.LLMClient, error) {
			return agent.NewClient(model, keys)
		},
		cloner:   repo.NewCloneManager(execpkg.NewLocalExec(), cfg.WorkspaceDir),
		recorder: recorder,
		archive:  archive,
		logger:   logx.NewLogger("orchestrator"),
		tasks:    make(map[string]*Task),
	}
}

// SetClientFactory replaces the LLM client factory. Test hook.
func (c *Controller) SetClientFactory(f ClientFactory) {
	c.clients = f
}

// Get returns a live task by ID.
func (c *Controller) Get(id string) (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	return t, ok
}

// StartTask accepts a task request and runs it asynchronously, emitting
// events to emitter in operation order. The returned Task is live
// immediately; completion is signaled via Task.Done.
func (c *Controller) StartTask(ctx context.Context, req proto.TaskRequest, emitter events.Emitter) (*Task, error) {
	if req.Task == "" {
		return nil, fmt.Errorf("task description cannot be empty")
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	t := newTask(uuid.New().String(), req)
	runCtx, cancel := context.WithCancel(ctx)
	t.setCancel(cancel)

	c.mu.Lock()
	c.tasks[t.ID] = t
	c.mu.Unlock()

	c.recorder.TaskStarted()
	c.logger.Info("Task %s accepted: %q", t.ID, req.Task)

	go func() {
		defer cancel()
		defer close(t.done)
		c.run(runCtx, t, emitter)
		c.archiveTask(t)
	}()

	return t, nil
}

// run drives one task to a terminal phase.
func (c *Controller) run(ctx context.Context, t *Task, emitter events.Emitter) {
	applied, err := c.runPhases(ctx, t, emitter)
	if err != nil {
		c.fail(t, emitter, err)
		return
	}

	if err := c.transition(t, emitter, proto.PhaseComplete); err != nil {
		c.fail(t, emitter, err)
		return
	}
	if applied == nil {
		applied = []proto.StagedChangeData{}
	}
	emitter.Emit(proto.MustEvent(proto.EventComplete, proto.CompleteData{
		Phase:   proto.PhaseComplete,
		Changes: applied,
	}))
	c.recorder.TaskCompleted()
	c.logger.Info("Task %s complete (%d change(s))", t.ID, len(applied))
}

// runPhases executes the phase sequence and returns the applied changes.
func (c *Controller) runPhases(ctx context.Context, t *Task, emitter events.Emitter) ([]proto.StagedChangeData, error) {
	workspace, err := c.prepareWorkspace(ctx, t, emitter)
	if err != nil {
		return nil, err
	}

	cm := changes.NewManager(workspace)
	t.setChanges(cm)
	ix := indexer.New(workspace)
	registry := tools.NewRegistry(c.cfg.Budgets.ValidationBudget)
	tools.RegisterDefaults(registry, workspace, cm, ix, execpkg.NewLocalExec(), c.cfg.Budgets.CommandTimeout)

	summary, err := c.runUnderstanding(ctx, t, emitter, registry)
	if err != nil {
		return nil, err
	}

	plan, err := c.runPlanning(ctx, t, emitter, summary)
	if err != nil {
		return nil, err
	}

	if err := c.runExecuting(ctx, t, emitter, registry, summary, plan); err != nil {
		return nil, err
	}

	if cm.Len() == 0 {
		// Nothing staged: nothing to approve.
		return nil, nil
	}
	return c.awaitApproval(ctx, t, emitter, cm, ix)
}

func (c *Controller) prepareWorkspace(ctx context.Context, t *Task, emitter events.Emitter) (repo.Repo, error) {
	if t.Request.RepoURL == "" {
		return c.cloner.Workspace(t.ID)
	}

	if err := c.transition(t, emitter, proto.PhaseCloning); err != nil {
		return nil, err
	}
	start := time.Now()
	workspace, err := c.cloner.Clone(ctx, t.ID, t.Request.RepoURL, t.Request.Branch)
	c.recorder.ObservePhase(proto.PhaseCloning.String(), time.Since(start))
	if err != nil {
		return nil, proto.WrapTaskError(proto.ErrCodeCloneFailed, err,
			"failed to clone %s", t.Request.RepoURL)
	}
	return workspace, nil
}

func (c *Controller) runUnderstanding(ctx context.Context, t *Task, emitter events.Emitter, registry *tools.Registry) (string, error) {
	if err := c.transition(t, emitter, proto.PhaseUnderstanding); err != nil {
		return "", err
	}
	model := c.cfg.Models.Understanding
	client, err := c.clients(model)
	if err != nil {
		return "", proto.WrapTaskError(proto.ErrCodeLLM, err, "failed to create understanding model client")
	}

	cmgr := contextmgr.NewContextManager(model.Name)
	cmgr.SetSystemPrompt(understandingPrompt)
	cmgr.AddUserMessage(understandingUserMessage(t.Request.Task))

	start := time.Now()
	loop := toolloop.New(client, registry, cmgr, emitter, c.recorder)
	summary, err := loop.Run(ctx, toolloop.Config{
		Phase:         proto.PhaseUnderstanding,
		MaxIterations: c.cfg.Budgets.UnderstandingIterations,
		Timeout:       c.cfg.Budgets.PhaseTimeout,
		MaxTokens:     model.MaxTokens,
		Temperature:   model.Temperature,
	})
	c.recorder.ObservePhase(proto.PhaseUnderstanding.String(), time.Since(start))
	if err != nil {
		return "", err
	}

	t.setSummary(summary)
	emitter.Emit(proto.MustEvent(proto.EventSummary, proto.SummaryData{Text: summary}))
	return summary, nil
}

// runPlanning is a single generation without tools; unparsable output gets
// one corrective retry.
func (c *Controller) runPlanning(ctx context.Context, t *Task, emitter events.Emitter, summary string) ([]proto.PlanStep, error) {
	if err := c.transition(t, emitter, proto.PhasePlanning); err != nil {
		return nil, err
	}
	model := c.cfg.Models.Planning
	client, err := c.clients(model)
	if err != nil {
		return nil, proto.WrapTaskError(proto.ErrCodeLLM, err, "failed to create planning model client")
	}

	start := time.Now()
	defer func() {
		c.recorder.ObservePhase(proto.PhasePlanning.String(), time.Since(start))
	}()

	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(planningPrompt),
		llm.NewUserMessage(planningUserMessage(t.Request.Task, summary)),
	}

	var plan []proto.PlanStep
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.complete(ctx, client, model, messages)
		if err != nil {
			return nil, err
		}

		plan, parseErr = ParsePlan(resp.Content)
		if parseErr == nil {
			break
		}
		c.logger.Warn("Task %s plan unparsable (attempt %d): %v", t.ID, attempt+1, parseErr)
		messages = append(messages,
			llm.CompletionMessage{Role: llm.RoleAssistant, Content: resp.Content},
			llm.NewUserMessage(planCorrectionMessage),
		)
	}
	if parseErr != nil {
		return nil, proto.WrapTaskError(proto.ErrCodePlanParse, parseErr,
			"planning output had no parsable steps after retry")
	}

	t.setPlan(plan)
	emitter.Emit(proto.MustEvent(proto.EventPlan, proto.PlanData{Steps: plan}))
	return plan, nil
}

func (c *Controller) complete(ctx context.Context, client llm.LLMClient, model config.ModelCfg, messages []llm.CompletionMessage) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		MaxTokens:   model.MaxTokens,
		Temperature: model.Temperature,
	})
	c.recorder.ObserveLLMRequest(client.GetModelName(), time.Since(start), err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return llm.CompletionResponse{}, err
		}
		return llm.CompletionResponse{}, proto.WrapTaskError(proto.ErrCodeLLM, err, "language model request failed")
	}
	return resp, nil
}

func (c *Controller) runExecuting(ctx context.Context, t *Task, emitter events.Emitter, registry *tools.Registry, summary string, plan []proto.PlanStep) error {
	if err := c.transition(t, emitter, proto.PhaseExecuting); err != nil {
		return err
	}
	model := c.cfg.Models.Executing
	client, err := c.clients(model)
	if err != nil {
		return proto.WrapTaskError(proto.ErrCodeLLM, err, "failed to create executing model client")
	}

	cmgr := contextmgr.NewContextManager(model.Name)
	cmgr.SetSystemPrompt(executingPrompt)
	cmgr.AddUserMessage(executingUserMessage(t.Request.Task, summary, plan))

	start := time.Now()
	loop := toolloop.New(client, registry, cmgr, emitter, c.recorder)
	_, err = loop.Run(ctx, toolloop.Config{
		Phase:         proto.PhaseExecuting,
		MaxIterations: c.cfg.Budgets.ExecutingIterations,
		Timeout:       c.cfg.Budgets.PhaseTimeout,
		MaxTokens:     model.MaxTokens,
		Temperature:   model.Temperature,
	})
	c.recorder.ObservePhase(proto.PhaseExecuting.String(), time.Since(start))
	if err != nil {
		return err
	}

	for i := range plan {
		plan[i].Status = proto.StepComplete
	}
	t.setPlan(plan)
	return nil
}

// awaitApproval suspends the task until Decide is called, then applies or
// discards the changeset.
func (c *Controller) awaitApproval(ctx context.Context, t *Task, emitter events.Emitter, cm *changes.Manager, ix *indexer.Indexer) ([]proto.StagedChangeData, error) {
	if err := c.transition(t, emitter, proto.PhaseAwaitingApproval); err != nil {
		return nil, err
	}
	c.recorder.ObserveStagedChanges(cm.Len())
	c.logger.Info("Task %s awaiting approval: %s", t.ID, cm.Summary())

	var approved bool
	select {
	case approved = <-t.decision:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.recorder.ApprovalDecision(approved)
	if !approved {
		discarded := cm.Discard()
		c.logger.Info("Task %s rejected; discarded %d staged change(s)", t.ID, discarded)
		return nil, nil
	}

	staged := cm.ToWire()
	report, err := cm.Apply()
	if report != nil {
		t.setApplyCounts(len(report.Applied), len(report.Failed))
	}
	if err != nil {
		return nil, err
	}
	ix.Invalidate()
	return staged, nil
}

// transition moves the task to the next phase, emitting a phase event. An
// illegal transition is a programming error surfaced as an internal task
// failure.
func (c *Controller) transition(t *Task, emitter events.Emitter, to proto.Phase) error {
	from := t.Phase()
	if !CanTransition(from, to) {
		return proto.NewTaskError(proto.ErrCodeInternal,
			"illegal phase transition %s -> %s", from, to)
	}
	t.setPhase(to)
	emitter.Emit(proto.MustEvent(proto.EventPhase, proto.PhaseData{Phase: to, TaskID: t.ID}))
	c.logger.Info("Task %s: %s -> %s", t.ID, from, to)
	return nil
}

// fail moves the task to error and emits the terminal error event.
func (c *Controller) fail(t *Task, emitter events.Emitter, err error) {
	code := proto.CodeOf(err)
	message := err.Error()
	if errors.Is(err, context.Canceled) {
		code = proto.ErrCodeInternal
		message = "task cancelled"
	}

	data := &proto.ErrorData{Message: message, Code: code}
	t.setError(data)
	t.setPhase(proto.PhaseError)
	emitter.Emit(proto.MustEvent(proto.EventPhase, proto.PhaseData{Phase: proto.PhaseError, TaskID: t.ID}))
	emitter.Emit(proto.MustEvent(proto.EventError, *data))
	c.recorder.TaskErrored(string(code))
	c.logger.Error("Task %s failed (%s): %s", t.ID, code, message)
}

// archiveTask persists a terminal task to the archive, if one is configured.
func (c *Controller) archiveTask(t *Task) {
	if c.archive == nil {
		return
	}
	snap := t.Snapshot()
	rec := TaskRecord{
		ID:          snap.ID,
		Description: snap.Task,
		Phase:       snap.Phase,
		Summary:     snap.Summary,
		CreatedAt:   snap.CreatedAt,
	}
	if snap.FinishedAt != nil {
		rec.FinishedAt = *snap.FinishedAt
	}
	if snap.Error != nil {
		rec.ErrorCode = string(snap.Error.Code)
		rec.ErrorMessage = snap.Error.Message
	}
	rec.ChangesApplied, rec.ChangesFailed = t.applyCounts()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.archive.SaveTask(ctx, rec); err != nil {
		c.logger.Warn("Task %s: failed to archive: %v", t.ID, err)
	}
}
