// Package changes implements the staging area for proposed file mutations.
// Nothing here touches real storage until an approved changeset is applied;
// discard clears staged state without any filesystem interaction.
package changes

import (
	"fmt"
	"sort"
	"sync"

	"agentd/pkg/logx"
	"agentd/pkg/proto"
	"agentd/pkg/repo"
)

// ChangeType classifies a staged mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// StagedChange is one proposed file mutation held in memory.
// OriginalContent is nil iff the change creates a new file; it is captured at
// first staging and preserved across re-staging of the same path.
type StagedChange struct {
	Path            string
	Type            ChangeType
	OriginalContent *string
	NewContent      string
}

// ApplyFailure records one path that could not be applied.
type ApplyFailure struct {
	Path string
	Err  string
}

// ApplyReport describes the outcome of an apply: which paths were written and
// which failed. Partial application is surfaced, never hidden.
type ApplyReport struct {
	Applied []string
	Failed  []ApplyFailure
}

// Partial reports whether some, but not all, changes were applied.
func (r *ApplyReport) Partial() bool {
	return len(r.Failed) > 0 && len(r.Applied) > 0
}

// Manager is the per-task staging area. It is safe for concurrent use, though
// the orchestrator drives it from a single goroutine.
type Manager struct {
	repo   repo.Repo
	logger *logx.Logger

	mu     sync.Mutex
	staged map[string]*StagedChange
	order  []string // paths in first-staged order
}

// NewManager creates a change manager reading originals through r.
func NewManager(r repo.Repo) *Manager {
	return &Manager{
		repo:   r,
		logger: logx.NewLogger("changes"),
		staged: make(map[string]*StagedChange),
	}
}

// StageWrite stages a create or modify for path. Returns an acknowledgement
// string suitable as a tool result.
func (m *Manager) StageWrite(path, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.staged[path]; ok {
		existing.NewContent = content
		if existing.OriginalContent == nil {
			existing.Type = ChangeCreate
		} else {
			existing.Type = ChangeModify
		}
		return fmt.Sprintf("[STAGED] Updated staged change for %q (not yet applied)", path), nil
	}

	change := &StagedChange{Path: path, NewContent: content}
	original, ok, err := m.repo.Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read original content of %s: %w", path, err)
	}
	if ok {
		orig := string(original)
		change.OriginalContent = &orig
		change.Type = ChangeModify
	} else {
		change.Type = ChangeCreate
	}

	m.staged[path] = change
	m.order = append(m.order, path)
	m.logger.Debug("Staged %s for %s", change.Type, path)
	return fmt.Sprintf("[STAGED] Will %s %q (not yet applied)", change.Type, path), nil
}

// StageDelete stages a deletion for path. Deleting a path that exists neither
// in the repository nor in the staging area is an error. Deleting a change
// that was itself a staged create simply unstages it.
func (m *Manager) StageDelete(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.staged[path]; ok {
		if existing.OriginalContent == nil {
			// Created and deleted within the same task: net effect is nothing.
			delete(m.staged, path)
			m.removeFromOrder(path)
			return fmt.Sprintf("[STAGED] Unstaged pending create of %q", path), nil
		}
		existing.Type = ChangeDelete
		existing.NewContent = ""
		return fmt.Sprintf("[STAGED] Will delete %q (not yet applied)", path), nil
	}

	original, ok, err := m.repo.Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read original content of %s: %w", path, err)
	}
	if !ok {
		return "", fmt.Errorf("file %q does not exist", path)
	}

	orig := string(original)
	m.staged[path] = &StagedChange{
		Path:            path,
		Type:            ChangeDelete,
		OriginalContent: &orig,
	}
	m.order = append(m.order, path)
	m.logger.Debug("Staged delete for %s", path)
	return fmt.Sprintf("[STAGED] Will delete %q (not yet applied)", path), nil
}

func (m *Manager) removeFromOrder(path string) {
	for i, p := range m.order {
		if p == path {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// Staged returns the staged change for path, if any. Read tools use this to
// show the model its own pending edits instead of the on-disk content.
func (m *Manager) Staged(path string) (StagedChange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if change, ok := m.staged[path]; ok {
		return *change, true
	}
	return StagedChange{}, false
}

// ChangeSet returns the staged changes, deduplicated by path, in first-staged
// order. The returned slice is a copy.
func (m *Manager) ChangeSet() []StagedChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StagedChange, 0, len(m.order))
	for _, path := range m.order {
		if change, ok := m.staged[path]; ok {
			out = append(out, *change)
		}
	}
	return out
}

// Len returns the number of staged changes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged)
}

// Apply writes the staged changes to real storage in path order. A mid-run
// failure does not roll back earlier writes; the report says exactly which
// paths succeeded and which failed. The staging area is cleared afterwards.
func (m *Manager) Apply() (*ApplyReport, error) {
	m.mu.Lock()
	changeset := make([]*StagedChange, 0, len(m.staged))
	for _, change := range m.staged {
		changeset = append(changeset, change)
	}
	m.staged = make(map[string]*StagedChange)
	m.order = nil
	m.mu.Unlock()

	sort.Slice(changeset, func(i, j int) bool { return changeset[i].Path < changeset[j].Path })

	report := &ApplyReport{}
	for _, change := range changeset {
		var err error
		switch change.Type {
		case ChangeDelete:
			err = m.repo.Remove(change.Path)
		case ChangeCreate, ChangeModify:
			err = m.repo.Write(change.Path, []byte(change.NewContent))
		default:
			err = fmt.Errorf("unknown change type %q", change.Type)
		}
		if err != nil {
			m.logger.Error("Failed to apply %s to %s: %v", change.Type, change.Path, err)
			report.Failed = append(report.Failed, ApplyFailure{Path: change.Path, Err: err.Error()})
			continue
		}
		report.Applied = append(report.Applied, change.Path)
	}

	if len(report.Failed) > 0 {
		return report, proto.NewTaskError(proto.ErrCodePartialApply,
			"applied %d of %d changes; failed: %s",
			len(report.Applied), len(changeset), failurePaths(report.Failed))
	}
	m.logger.Info("Applied %d change(s)", len(report.Applied))
	return report, nil
}

// Discard clears all staged state without touching real storage. Returns the
// number of discarded changes.
func (m *Manager) Discard() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.staged)
	m.staged = make(map[string]*StagedChange)
	m.order = nil
	m.logger.Info("Discarded %d staged change(s)", count)
	return count
}

// Summary returns a brief human-readable description of the staging area.
func (m *Manager) Summary() string {
	changeset := m.ChangeSet()
	if len(changeset) == 0 {
		return "No staged changes."
	}

	counts := map[ChangeType]int{}
	for _, c := range changeset {
		counts[c.Type]++
	}
	var parts []string
	if n := counts[ChangeCreate]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s) to create", n))
	}
	if n := counts[ChangeModify]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s) to modify", n))
	}
	if n := counts[ChangeDelete]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s) to delete", n))
	}
	result := "Staged: " + parts[0]
	for _, p := range parts[1:] {
		result += ", " + p
	}
	return result
}

// ToWire converts the current changeset to its wire representation.
func (m *Manager) ToWire() []proto.StagedChangeData {
	changeset := m.ChangeSet()
	out := make([]proto.StagedChangeData, 0, len(changeset))
	for _, c := range changeset {
		out = append(out, proto.StagedChangeData{
			Path:            c.Path,
			ChangeType:      string(c.Type),
			OriginalContent: c.OriginalContent,
			NewContent:      c.NewContent,
		})
	}
	return out
}

func failurePaths(failures []ApplyFailure) string {
	s := ""
	for i, f := range failures {
		if i > 0 {
			s += ", "
		}
		s += f.Path
	}
	return s
}
