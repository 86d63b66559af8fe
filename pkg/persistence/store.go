// Package persistence provides the SQLite task archive. Only terminal tasks
// are persisted; in-memory staging never reaches storage before approval.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"agentd/pkg/logx"
	"agentd/pkg/orch"
	"agentd/pkg/proto"
)

// ErrNotFound is returned when a task ID is not in the archive.
var ErrNotFound = errors.New("task not found")

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	description     TEXT NOT NULL,
	phase           TEXT NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	error_code      TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	changes_applied INTEGER NOT NULL DEFAULT 0,
	changes_failed  INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	finished_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_finished_at ON tasks(finished_at DESC);
`

// Store is the SQLite-backed task archive. It implements orch.Archive.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (and if needed creates) the archive at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("Task archive opened: %s", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SaveTask upserts a terminal task record.
func (s *Store) SaveTask(ctx context.Context, rec orch.TaskRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
			(id, description, phase, summary, error_code, error_message,
			 changes_applied, changes_failed, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			summary = excluded.summary,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			changes_applied = excluded.changes_applied,
			changes_failed = excluded.changes_failed,
			finished_at = excluded.finished_at`,
		rec.ID, rec.Description, rec.Phase.String(), rec.Summary,
		rec.ErrorCode, rec.ErrorMessage, rec.ChangesApplied, rec.ChangesFailed,
		rec.CreatedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", rec.ID, err)
	}
	return nil
}

// GetTask returns one archived task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (orch.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, phase, summary, error_code, error_message,
		       changes_applied, changes_failed, created_at, finished_at
		FROM tasks WHERE id = ?`, id)

	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orch.TaskRecord{}, ErrNotFound
	}
	if err != nil {
		return orch.TaskRecord{}, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return rec, nil
}

// RecentTasks returns up to limit archived tasks, most recently finished
// first.
func (s *Store) RecentTasks(ctx context.Context, limit int) ([]orch.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, phase, summary, error_code, error_message,
		       changes_applied, changes_failed, created_at, finished_at
		FROM tasks ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tasks: %w", err)
	}
	defer rows.Close()

	var records []orch.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return records, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (orch.TaskRecord, error) {
	var rec orch.TaskRecord
	var phase string
	var createdAt, finishedAt time.Time
	err := row.Scan(&rec.ID, &rec.Description, &phase, &rec.Summary,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.ChangesApplied,
		&rec.ChangesFailed, &createdAt, &finishedAt)
	if err != nil {
		return orch.TaskRecord{}, err
	}
	rec.Phase = proto.Phase(phase)
	rec.CreatedAt = createdAt
	rec.FinishedAt = finishedAt
	return rec, nil
}
