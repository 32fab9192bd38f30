// Package store persists tasks, workspaces and the operation audit
// trail in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// timeLayout is fixed-width UTC so lexicographic order in SQLite matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements core.Store with SQLite storage.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB // Write connection
	readDB *sql.DB // Read-only connection
	mu     sync.RWMutex

	// Retry configuration for busy/locked errors
	maxRetries    int
	baseRetryWait time.Duration
	busyTimeoutMS int
}

// Option configures the store.
type Option func(*SQLiteStore)

// WithMaxRetries sets how often busy writes are retried.
func WithMaxRetries(n int) Option {
	return func(s *SQLiteStore) {
		s.maxRetries = n
	}
}

// WithBusyTimeout sets the SQLite busy_timeout pragma in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(s *SQLiteStore) {
		s.busyTimeoutMS = ms
	}
}

// New creates a SQLite-backed store at dbPath, creating the directory
// and running migrations as needed.
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		dbPath:        dbPath,
		maxRetries:    3,
		baseRetryWait: 100 * time.Millisecond,
		busyTimeoutMS: 5000,
	}
	for _, opt := range opts {
		opt(s)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// Single write connection with WAL mode; reads go through a
	// separate read-only pool.
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		dbPath, s.busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite", fmt.Sprintf(
		"%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&mode=ro&_pragma=busy_timeout(%d)",
		dbPath, s.busyTimeoutMS))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

// Close closes both database connections.
func (s *SQLiteStore) Close() error {
	var firstErr error
	if s.readDB != nil {
		firstErr = s.readDB.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// migrate runs pending migrations inside transactions.
func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1}
	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}

		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(timeLayout),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}

	return nil
}

// splitStatements splits a migration script into individual statements.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		lines := strings.Split(stmt, "\n")
		var sqlLines []string
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				sqlLines = append(sqlLines, line)
			}
		}
		if len(sqlLines) > 0 {
			statements = append(statements, strings.Join(sqlLines, "\n"))
		}
	}
	return statements
}

// retryWrite executes a write with exponential backoff on busy errors.
// Exhaustion surfaces as a storage-kind domain error.
func (s *SQLiteStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := fn(); err != nil {
			if isSQLiteBusy(err) {
				lastErr = err
				wait := s.baseRetryWait * time.Duration(1<<attempt)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
					continue
				}
			}
			return core.ErrStorage(fmt.Sprintf("%s: %v", operation, err)).WithCause(err)
		}
		return nil
	}
	return core.ErrStorage(fmt.Sprintf("%s failed after %d retries", operation, s.maxRetries)).WithCause(lastErr)
}

// isSQLiteBusy checks if an error is a SQLite busy/locked error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// SaveTask inserts a new task record.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errJSON, err := marshalTaskError(t.Error)
	if err != nil {
		return err
	}

	return s.retryWrite(ctx, "SaveTask", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (
				id, operation, params, workspace_id, status, progress,
				result, error, attempt, timeout_ms, created_at,
				started_at, completed_at, deadline
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID, t.Operation, nullableString([]byte(t.Params)),
			nullableString([]byte(t.WorkspaceID)), t.Status, t.Progress,
			nullableString([]byte(t.Result)), nullableString(errJSON),
			t.Attempt, t.Timeout.Milliseconds(), formatTime(t.CreatedAt),
			nullableTimePtr(t.StartedAt), nullableTimePtr(t.CompletedAt),
			nullableTime(t.Deadline),
		)
		return err
	})
}

// UpdateTask persists the full current state of an existing task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errJSON, err := marshalTaskError(t.Error)
	if err != nil {
		return err
	}

	return s.retryWrite(ctx, "UpdateTask", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET
				operation = ?, params = ?, workspace_id = ?, status = ?,
				progress = ?, result = ?, error = ?, attempt = ?,
				timeout_ms = ?, started_at = ?, completed_at = ?, deadline = ?
			WHERE id = ?
		`,
			t.Operation, nullableString([]byte(t.Params)),
			nullableString([]byte(t.WorkspaceID)), t.Status, t.Progress,
			nullableString([]byte(t.Result)), nullableString(errJSON),
			t.Attempt, t.Timeout.Milliseconds(),
			nullableTimePtr(t.StartedAt), nullableTimePtr(t.CompletedAt),
			nullableTime(t.Deadline), t.ID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrTaskNotFound(t.ID)
		}
		return nil
	})
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id core.TaskID) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, operation, params, workspace_id, status, progress,
		       result, error, attempt, timeout_ms, created_at,
		       started_at, completed_at, deadline
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrTaskNotFound(id)
	}
	if err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("loading task %s: %v", id, err)).WithCause(err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, f core.TaskFilter) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, operation, params, workspace_id, status, progress,
		       result, error, attempt, timeout_ms, created_at,
		       started_at, completed_at, deadline
		FROM tasks
	`
	var conds []string
	var args []interface{}

	if len(f.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Statuses)), ",")
		conds = append(conds, "status IN ("+placeholders+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.WorkspaceID != "" {
		conds = append(conds, "workspace_id = ?")
		args = append(args, f.WorkspaceID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("listing tasks: %v", err)).WithCause(err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, core.ErrStorage(fmt.Sprintf("scanning task: %v", err)).WithCause(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("iterating tasks: %v", err)).WithCause(err)
	}
	return tasks, nil
}

// DeleteTask removes a single task record regardless of state.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id core.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryWrite(ctx, "DeleteTask", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrTaskNotFound(id)
		}
		return nil
	})
}

// PurgeTasksBefore deletes terminal tasks whose completion predates
// cutoff. Returns the number of rows removed.
func (s *SQLiteStore) PurgeTasksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	err := s.retryWrite(ctx, "PurgeTasksBefore", func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM tasks
			WHERE status IN (?, ?, ?, ?)
			  AND completed_at IS NOT NULL
			  AND completed_at < ?
		`,
			core.TaskStatusCompleted, core.TaskStatusFailed,
			core.TaskStatusCancelled, core.TaskStatusTimedOut,
			formatTime(cutoff),
		)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

// RecoverInterrupted resolves tasks left RUNNING by a previous process.
// Idempotent operations are re-enqueued when requeueIdempotent is set;
// everything else is failed with a resubmit suggestion. Returns the
// number of requeued and failed tasks.
func (s *SQLiteStore) RecoverInterrupted(ctx context.Context, requeueIdempotent bool) (requeued, failed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type interrupted struct {
		id        string
		operation core.Operation
		timeoutMS int64
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, operation, timeout_ms FROM tasks WHERE status = ?",
		core.TaskStatusRunning)
	if err != nil {
		return 0, 0, core.ErrStorage(fmt.Sprintf("querying interrupted tasks: %v", err)).WithCause(err)
	}
	var found []interrupted
	for rows.Next() {
		var it interrupted
		if err := rows.Scan(&it.id, &it.operation, &it.timeoutMS); err != nil {
			_ = rows.Close()
			return 0, 0, core.ErrStorage(fmt.Sprintf("scanning interrupted task: %v", err)).WithCause(err)
		}
		found = append(found, it)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, 0, core.ErrStorage(fmt.Sprintf("iterating interrupted tasks: %v", err)).WithCause(err)
	}
	_ = rows.Close()

	if len(found) == 0 {
		return 0, 0, nil
	}

	now := time.Now()
	taskErr := &core.TaskError{
		Code:       core.CodeTaskExecutorError,
		Message:    "task interrupted by service restart",
		Suggestion: "resubmit the operation",
	}
	errJSON, merr := json.Marshal(taskErr)
	if merr != nil {
		return 0, 0, fmt.Errorf("marshaling recovery error: %w", merr)
	}

	err = s.retryWrite(ctx, "RecoverInterrupted", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		requeued, failed = 0, 0
		for _, it := range found {
			if requeueIdempotent && it.operation.Idempotent() {
				deadline := now.Add(time.Duration(it.timeoutMS) * time.Millisecond)
				_, err := tx.ExecContext(ctx, `
					UPDATE tasks SET status = ?, progress = 0, started_at = NULL,
						result = NULL, error = NULL, deadline = ?
					WHERE id = ? AND status = ?
				`, core.TaskStatusQueued, formatTime(deadline), it.id, core.TaskStatusRunning)
				if err != nil {
					return err
				}
				requeued++
				continue
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE tasks SET status = ?, completed_at = ?, error = ?
				WHERE id = ? AND status = ?
			`, core.TaskStatusFailed, formatTime(now), string(errJSON), it.id, core.TaskStatusRunning)
			if err != nil {
				return err
			}
			failed++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, 0, err
	}
	return requeued, failed, nil
}

// ---------------------------------------------------------------------------
// Workspaces
// ---------------------------------------------------------------------------

// SaveWorkspace inserts a new workspace record.
func (s *SQLiteStore) SaveWorkspace(ctx context.Context, w *core.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryWrite(ctx, "SaveWorkspace", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO workspaces (
				id, path, repo_url, size_bytes, dirty, created_at, last_used_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			w.ID, w.Path, nullableString([]byte(w.RepoURL)), w.SizeBytes,
			boolToInt(w.Dirty), formatTime(w.CreatedAt), formatTime(w.LastUsedAt),
		)
		return err
	})
}

// UpdateWorkspace persists the full current state of a workspace.
func (s *SQLiteStore) UpdateWorkspace(ctx context.Context, w *core.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryWrite(ctx, "UpdateWorkspace", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE workspaces SET
				path = ?, repo_url = ?, size_bytes = ?, dirty = ?, last_used_at = ?
			WHERE id = ?
		`,
			w.Path, nullableString([]byte(w.RepoURL)), w.SizeBytes,
			boolToInt(w.Dirty), formatTime(w.LastUsedAt), w.ID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrWorkspaceNotFound(w.ID)
		}
		return nil
	})
}

// GetWorkspace retrieves a workspace by ID.
func (s *SQLiteStore) GetWorkspace(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, path, repo_url, size_bytes, dirty, created_at, last_used_at
		FROM workspaces WHERE id = ?
	`, id)

	w, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrWorkspaceNotFound(id)
	}
	if err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("loading workspace %s: %v", id, err)).WithCause(err)
	}
	return w, nil
}

// ListWorkspaces returns all workspaces, least recently used first.
func (s *SQLiteStore) ListWorkspaces(ctx context.Context) ([]*core.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, path, repo_url, size_bytes, dirty, created_at, last_used_at
		FROM workspaces
		ORDER BY last_used_at ASC, id ASC
	`)
	if err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("listing workspaces: %v", err)).WithCause(err)
	}
	defer rows.Close()

	var workspaces []*core.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, core.ErrStorage(fmt.Sprintf("scanning workspace: %v", err)).WithCause(err)
		}
		workspaces = append(workspaces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("iterating workspaces: %v", err)).WithCause(err)
	}
	return workspaces, nil
}

// DeleteWorkspace removes a workspace record.
func (s *SQLiteStore) DeleteWorkspace(ctx context.Context, id core.WorkspaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryWrite(ctx, "DeleteWorkspace", func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM workspaces WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrWorkspaceNotFound(id)
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Operation logs
// ---------------------------------------------------------------------------

// AppendOperationLog records one completed operation.
func (s *SQLiteStore) AppendOperationLog(ctx context.Context, entry *core.OperationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return s.retryWrite(ctx, "AppendOperationLog", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO operation_logs (
				task_id, workspace_id, operation, status, error_code,
				duration_ms, detail, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.TaskID, nullableString([]byte(entry.WorkspaceID)),
			entry.Operation, entry.Status, entry.ErrorCode,
			entry.Duration.Milliseconds(), nullableString([]byte(entry.Detail)),
			formatTime(entry.CreatedAt),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
}

// ListOperationLogs returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListOperationLogs(ctx context.Context, f core.OpLogFilter) ([]*core.OperationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, task_id, workspace_id, operation, status, error_code,
		       duration_ms, detail, created_at
		FROM operation_logs
	`
	var conds []string
	var args []interface{}

	if f.TaskID != "" {
		conds = append(conds, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.WorkspaceID != "" {
		conds = append(conds, "workspace_id = ?")
		args = append(args, f.WorkspaceID)
	}
	if f.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, f.Operation)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("listing operation logs: %v", err)).WithCause(err)
	}
	defer rows.Close()

	var entries []*core.OperationLog
	for rows.Next() {
		entry, err := scanOperationLog(rows)
		if err != nil {
			return nil, core.ErrStorage(fmt.Sprintf("scanning operation log: %v", err)).WithCause(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrStorage(fmt.Sprintf("iterating operation logs: %v", err)).WithCause(err)
	}
	return entries, nil
}

// PurgeOperationLogsBefore deletes audit entries older than cutoff.
func (s *SQLiteStore) PurgeOperationLogsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	err := s.retryWrite(ctx, "PurgeOperationLogsBefore", func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM operation_logs WHERE created_at < ?", formatTime(cutoff))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

// Ping verifies the database is reachable on both connections.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.ErrStorage(fmt.Sprintf("pinging write connection: %v", err)).WithCause(err)
	}
	var one int
	if err := s.readDB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return core.ErrStorage(fmt.Sprintf("pinging read connection: %v", err)).WithCause(err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*core.Task, error) {
	var t core.Task
	var params, workspaceID, result, errJSON sql.NullString
	var timeoutMS int64
	var createdAt string
	var startedAt, completedAt, deadline sql.NullString

	err := row.Scan(
		&t.ID, &t.Operation, &params, &workspaceID, &t.Status, &t.Progress,
		&result, &errJSON, &t.Attempt, &timeoutMS, &createdAt,
		&startedAt, &completedAt, &deadline,
	)
	if err != nil {
		return nil, err
	}

	if params.Valid {
		t.Params = json.RawMessage(params.String)
	}
	if workspaceID.Valid {
		t.WorkspaceID = core.WorkspaceID(workspaceID.String)
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	if errJSON.Valid && errJSON.String != "" {
		t.Error = &core.TaskError{}
		if err := json.Unmarshal([]byte(errJSON.String), t.Error); err != nil {
			return nil, fmt.Errorf("unmarshaling task error: %w", err)
		}
	}
	t.Timeout = time.Duration(timeoutMS) * time.Millisecond

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if startedAt.Valid {
		ts, err := parseTime(startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		t.CompletedAt = &ts
	}
	if deadline.Valid {
		if t.Deadline, err = parseTime(deadline.String); err != nil {
			return nil, fmt.Errorf("parsing deadline: %w", err)
		}
	}

	return &t, nil
}

func scanWorkspace(row scanner) (*core.Workspace, error) {
	var w core.Workspace
	var repoURL sql.NullString
	var dirty int
	var createdAt, lastUsedAt string

	err := row.Scan(&w.ID, &w.Path, &repoURL, &w.SizeBytes, &dirty, &createdAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}

	if repoURL.Valid {
		w.RepoURL = repoURL.String
	}
	w.Dirty = dirty != 0
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.LastUsedAt, err = parseTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parsing last_used_at: %w", err)
	}
	return &w, nil
}

func scanOperationLog(row scanner) (*core.OperationLog, error) {
	var entry core.OperationLog
	var workspaceID, detail sql.NullString
	var durationMS int64
	var createdAt string

	err := row.Scan(
		&entry.ID, &entry.TaskID, &workspaceID, &entry.Operation,
		&entry.Status, &entry.ErrorCode, &durationMS, &detail, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if workspaceID.Valid {
		entry.WorkspaceID = core.WorkspaceID(workspaceID.String)
	}
	if detail.Valid {
		entry.Detail = detail.String
	}
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &entry, nil
}

// ---------------------------------------------------------------------------
// Nullable helpers
// ---------------------------------------------------------------------------

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func marshalTaskError(te *core.TaskError) ([]byte, error) {
	if te == nil {
		return nil, nil
	}
	b, err := json.Marshal(te)
	if err != nil {
		return nil, fmt.Errorf("marshaling task error: %w", err)
	}
	return b, nil
}

// Verify that SQLiteStore implements core.Store.
var _ core.Store = (*SQLiteStore)(nil)
