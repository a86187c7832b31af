package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Task statuses. Unlike row progress, "uploaded" exists because a workbook
// can sit in the store before anyone starts processing it.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Schema for the tasks table. Applied by Store.Init.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	output_dir TEXT NOT NULL DEFAULT '',
	total_rows INTEGER NOT NULL DEFAULT 0,
	valid_count INTEGER NOT NULL DEFAULT 0,
	invalid_count INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
`

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Task is one uploaded workbook and its processing lifecycle.
type Task struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	FilePath     string     `json:"file_path"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	OutputDir    string     `json:"output_dir,omitempty"`
	TotalRows    int        `json:"total_rows"`
	ValidCount   int        `json:"valid_count"`
	InvalidCount int        `json:"invalid_count"`
	Error        string     `json:"error,omitempty"`
}

// Store persists tasks to SQLite.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Open opens (or creates) the task database at path and applies the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	s := NewStore(db, log)
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("apply task schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, filename, file_path, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Filename, t.FilePath, t.Status, t.CreatedAt.Unix())
	if err != nil {
		s.log.Error("task.create_failed", "task_id", t.ID, "error", err)
		return fmt.Errorf("create task: %w", err)
	}
	s.log.Info("task.created", "task_id", t.ID, "filename", t.Filename)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, file_path, status, created_at, started_at,
		       completed_at, output_dir, total_rows, valid_count, invalid_count, error
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, file_path, status, created_at, started_at,
		       completed_at, output_dir, total_rows, valid_count, invalid_count, error
		FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkProcessing records the start of a run and its output directory.
func (s *Store) MarkProcessing(ctx context.Context, id, outputDir string, totalRows int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, started_at = ?, output_dir = ?, total_rows = ?, error = ''
		WHERE id = ?`,
		StatusProcessing, time.Now().Unix(), outputDir, totalRows, id)
	return affected(res, err, id)
}

// MarkCompleted records the terminal success counts.
func (s *Store) MarkCompleted(ctx context.Context, id string, validCount, invalidCount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ?, valid_count = ?, invalid_count = ?
		WHERE id = ?`,
		StatusCompleted, time.Now().Unix(), validCount, invalidCount, id)
	return affected(res, err, id)
}

// MarkFailed records the terminal failure cause.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().Unix(), message, id)
	return affected(res, err, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return affected(res, err, id)
}

// CleanupIncomplete removes every task that is not completed. Run at
// startup: an interrupted processing run cannot be resumed, so its task
// row is stale.
func (s *Store) CleanupIncomplete(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status != ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("task.cleanup", "removed", n)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var (
		t                  Task
		created            int64
		started, completed sql.NullInt64
	)
	err := r.Scan(&t.ID, &t.Filename, &t.FilePath, &t.Status, &created,
		&started, &completed, &t.OutputDir, &t.TotalRows, &t.ValidCount,
		&t.InvalidCount, &t.Error)
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = time.Unix(created, 0)
	if started.Valid {
		ts := time.Unix(started.Int64, 0)
		t.StartedAt = &ts
	}
	if completed.Valid {
		ts := time.Unix(completed.Int64, 0)
		t.CompletedAt = &ts
	}
	return t, nil
}

func affected(res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
