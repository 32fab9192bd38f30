package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskID uniquely identifies a scheduled operation.
type TaskID string

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusTimedOut  TaskStatus = "timed_out"
)

// TaskError is the persisted error envelope on a failed task.
type TaskError struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// NewTaskError builds the persisted envelope from a domain error, dropping
// the cause chain so wrapped internals never cross the tool boundary.
func NewTaskError(err error) *TaskError {
	d := AsDomain(err)
	if d == nil {
		return nil
	}
	return &TaskError{
		Code:       d.Code,
		Message:    d.Message,
		Suggestion: d.Suggestion,
		Context:    d.Context,
	}
}

// Task is the unit of scheduling, cancellation, retention and reporting.
type Task struct {
	ID          TaskID          `json:"id"`
	Operation   Operation       `json:"operation"`
	Params      json.RawMessage `json:"params,omitempty"`
	WorkspaceID WorkspaceID     `json:"workspace_id,omitempty"` // empty for workspace-less operations
	Status      TaskStatus      `json:"status"`
	Progress    int             `json:"progress"` // 0..100, monotone while running
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *TaskError      `json:"error,omitempty"`
	Attempt     int             `json:"attempt"` // starts at 1, bumped per retry re-enqueue
	Timeout     time.Duration   `json:"timeout"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Deadline    time.Time       `json:"deadline"`
}

// NewTask creates a queued task with its deadline derived from the timeout.
func NewTask(id TaskID, op Operation, params json.RawMessage, timeout time.Duration) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Operation: op,
		Params:    params,
		Status:    TaskStatusQueued,
		Attempt:   1,
		Timeout:   timeout,
		CreatedAt: now,
		Deadline:  now.Add(timeout),
	}
}

// WithWorkspace binds the task to a workspace.
func (t *Task) WithWorkspace(id WorkspaceID) *Task {
	t.WorkspaceID = id
	return t
}

// MarkRunning transitions queued → running.
func (t *Task) MarkRunning() error {
	if t.Status != TaskStatusQueued {
		return fmt.Errorf("cannot start task in %s state", t.Status)
	}
	t.Status = TaskStatusRunning
	now := time.Now()
	t.StartedAt = &now
	return nil
}

// MarkCompleted transitions running → completed and pins progress at 100.
func (t *Task) MarkCompleted(result json.RawMessage) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot complete task in %s state", t.Status)
	}
	t.Status = TaskStatusCompleted
	t.Result = result
	t.Progress = 100
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions running → failed with the error envelope.
func (t *Task) MarkFailed(err error) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot fail task in %s state", t.Status)
	}
	t.Status = TaskStatusFailed
	t.Error = NewTaskError(err)
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkCancelled transitions queued or running → cancelled. Cancelling a
// queued task is how removal-from-queue is expressed: the record turns
// terminal and workers skip it on dequeue.
func (t *Task) MarkCancelled() error {
	if t.IsTerminal() {
		return fmt.Errorf("cannot cancel task in %s state", t.Status)
	}
	t.Status = TaskStatusCancelled
	t.Error = &TaskError{Code: CodeTaskCancelled, Message: "task cancelled by request"}
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkTimedOut transitions running → timed_out.
func (t *Task) MarkTimedOut() error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot time out task in %s state", t.Status)
	}
	t.Status = TaskStatusTimedOut
	t.Error = &TaskError{
		Code:       CodeTaskTimeout,
		Message:    fmt.Sprintf("task exceeded its %s deadline", t.Timeout),
		Suggestion: "raise the timeout override or split the operation",
	}
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// SetProgress records a progress report. Values below the current one are
// dropped so progress never regresses; reports outside running are ignored.
func (t *Task) SetProgress(p int) {
	if t.Status != TaskStatusRunning {
		return
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > t.Progress {
		t.Progress = p
	}
}

// CanRetry reports whether another execution attempt is allowed.
func (t *Task) CanRetry(maxRetries int) bool {
	return t.Attempt < maxRetries
}

// PrepareRetry resets a failed task for re-enqueue: bumps the attempt,
// clears the previous outcome, and moves the deadline relative to now so
// backoff delay does not eat the execution window.
func (t *Task) PrepareRetry() error {
	if t.Status != TaskStatusFailed && t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot retry task in %s state", t.Status)
	}
	t.Attempt++
	t.Status = TaskStatusQueued
	t.Error = nil
	t.Result = nil
	t.Progress = 0
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Deadline = time.Now().Add(t.Timeout)
	return nil
}

// Validate checks task invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrValidation(CodeMissingRequiredParam, "task ID cannot be empty")
	}
	if !t.Operation.Known() {
		return ErrValidation(CodeInvalidParamValue, fmt.Sprintf("unknown operation: %s", t.Operation))
	}
	if t.Progress < 0 || t.Progress > 100 {
		return ErrInternal(fmt.Sprintf("progress out of range: %d", t.Progress))
	}
	return nil
}

// Duration returns elapsed execution time.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

// IsTerminal returns true once the task reached a final state.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimedOut:
		return true
	}
	return false
}

// IsSuccess returns true if the task completed successfully.
func (t *Task) IsSuccess() bool {
	return t.Status == TaskStatusCompleted
}

// Expired reports whether the deadline passed at the given instant.
func (t *Task) Expired(now time.Time) bool {
	return now.After(t.Deadline)
}
