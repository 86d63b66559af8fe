// Package server exposes agentd over HTTP: the websocket task channel, the
// REST re-query surface, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentd/pkg/logx"
	"agentd/pkg/orch"
	"agentd/pkg/persistence"
	"agentd/pkg/proto"
)

// Archive is the read side of the task archive backing /api/tasks and
// archived /api/task/{id} lookups.
type Archive interface {
	GetTask(ctx context.Context, id string) (orch.TaskRecord, error)
	RecentTasks(ctx context.Context, limit int) ([]orch.TaskRecord, error)
}

// Server wires the controller and archive into an HTTP handler.
type Server struct {
	controller *orch.Controller
	archive    Archive
	logger     *logx.Logger
	httpServer *http.Server
}

// New creates a server on addr. archive may be nil; the history endpoints
// then serve only live tasks.
func New(addr string, controller *orch.Controller, archive Archive) *Server {
	s := &Server{
		controller: controller,
		archive:    archive,
		logger:     logx.NewLogger("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/task", s.handleTaskSocket)
	mux.HandleFunc("GET /api/task/{id}", s.handleGetTask)
	mux.HandleFunc("POST /api/task/{id}/approve", s.handleApprove)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetTask serves the authoritative task state: phase, summary, plan,
// and changeset. Live tasks come from the controller, terminal ones from the
// archive.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if task, ok := s.controller.Get(id); ok {
		writeJSON(w, http.StatusOK, task.Snapshot())
		return
	}

	if s.archive != nil {
		rec, err := s.archive.GetTask(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, recordSnapshot(rec))
			return
		}
		if !isNotFound(err) {
			s.logger.Error("archive lookup failed for %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "archive lookup failed")
			return
		}
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("unknown task %s", id))
}

type approveRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, ok := s.controller.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown task %s", id))
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid approval body")
		return
	}

	if err := task.Decide(req.Approved); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": req.Approved})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []orch.TaskRecord{})
		return
	}
	records, err := s.archive.RecentTasks(r.Context(), 50)
	if err != nil {
		s.logger.Error("failed to list tasks: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if records == nil {
		records = []orch.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// recordSnapshot maps an archived record onto the snapshot shape so clients
// see one format regardless of where the task lives.
func recordSnapshot(rec orch.TaskRecord) orch.Snapshot {
	snap := orch.Snapshot{
		ID:        rec.ID,
		Task:      rec.Description,
		Phase:     rec.Phase,
		Summary:   rec.Summary,
		Changes:   []proto.StagedChangeData{},
		CreatedAt: rec.CreatedAt,
	}
	if !rec.FinishedAt.IsZero() {
		finished := rec.FinishedAt
		snap.FinishedAt = &finished
	}
	if rec.ErrorCode != "" {
		snap.Error = &proto.ErrorData{
			Code:    proto.ErrorCode(rec.ErrorCode),
			Message: rec.ErrorMessage,
		}
	}
	return snap
}

func isNotFound(err error) bool {
	return errors.Is(err, persistence.ErrNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
