// Package metrics provides Prometheus metrics for tasks, tools, and LLM
// requests. Collectors register on the default registry and are exposed at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the agentd metric collectors.
type Recorder struct {
	tasksStarted    prometheus.Counter
	tasksCompleted  prometheus.Counter
	tasksErrored    *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
	toolDuration    *prometheus.HistogramVec
	toolErrors      *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	stagedChanges   prometheus.Histogram
	approvalResults *prometheus.CounterVec
}

// NewRecorder creates and registers the agentd collectors.
func NewRecorder() *Recorder {
	return &Recorder{
		tasksStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentd_tasks_started_total",
			Help: "Total number of tasks accepted",
		}),
		tasksCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentd_tasks_completed_total",
			Help: "Total number of tasks that reached complete",
		}),
		tasksErrored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_tasks_errored_total",
			Help: "Total number of tasks that ended in error, by error code",
		}, []string{"code"}),
		phaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentd_phase_duration_seconds",
			Help:    "Wall-clock duration of each task phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		toolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentd_tool_duration_seconds",
			Help:    "Duration of tool executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		toolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_tool_errors_total",
			Help: "Total number of tool error results, including synthetic validation errors",
		}, []string{"tool"}),
		llmRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_llm_requests_total",
			Help: "Total number of LLM requests by model and status",
		}, []string{"model", "status"}),
		llmDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentd_llm_request_duration_seconds",
			Help:    "Duration of LLM requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		stagedChanges: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentd_staged_changes",
			Help:    "Number of staged changes per task reaching awaiting_approval",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		approvalResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_approvals_total",
			Help: "Approval decisions by outcome",
		}, []string{"decision"}),
	}
}

// TaskStarted records an accepted task.
func (r *Recorder) TaskStarted() {
	if r == nil {
		return
	}
	r.tasksStarted.Inc()
}

// TaskCompleted records a task reaching complete.
func (r *Recorder) TaskCompleted() {
	if r == nil {
		return
	}
	r.tasksCompleted.Inc()
}

// TaskErrored records a task ending in error with the given code.
func (r *Recorder) TaskErrored(code string) {
	if r == nil {
		return
	}
	r.tasksErrored.WithLabelValues(code).Inc()
}

// ObservePhase records how long a phase ran.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveTool records one tool execution.
func (r *Recorder) ObserveTool(tool string, d time.Duration, isError bool) {
	if r == nil {
		return
	}
	r.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
	if isError {
		r.toolErrors.WithLabelValues(tool).Inc()
	}
}

// ObserveLLMRequest records one LLM round trip.
func (r *Recorder) ObserveLLMRequest(model string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.llmRequests.WithLabelValues(model, status).Inc()
	r.llmDuration.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveStagedChanges records the changeset size at awaiting_approval.
func (r *Recorder) ObserveStagedChanges(n int) {
	if r == nil {
		return
	}
	r.stagedChanges.Observe(float64(n))
}

// ApprovalDecision records an approve or reject.
func (r *Recorder) ApprovalDecision(approved bool) {
	if r == nil {
		return
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	r.approvalResults.WithLabelValues(decision).Inc()
}
