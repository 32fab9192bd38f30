package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewTaskQueuedEvent(t *testing.T) {
	t.Parallel()

	e := NewTaskQueuedEvent("task-1", "clone", "ws-1", 1)

	if e.EventType() != TypeTaskQueued {
		t.Errorf("type = %s, want %s", e.EventType(), TypeTaskQueued)
	}
	if e.TaskID() != "task-1" {
		t.Errorf("task id = %s, want task-1", e.TaskID())
	}
	if e.Operation != "clone" {
		t.Errorf("operation = %s, want clone", e.Operation)
	}
	if e.WorkspaceID != "ws-1" {
		t.Errorf("workspace id = %s, want ws-1", e.WorkspaceID)
	}
	if e.Timestamp().IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestNewTaskRetryingEvent(t *testing.T) {
	t.Parallel()

	e := NewTaskRetryingEvent("task-1", 2, 3, 750*time.Millisecond, errors.New("connection refused"))

	if e.Attempt != 2 || e.MaxRetries != 3 {
		t.Errorf("attempt = %d/%d, want 2/3", e.Attempt, e.MaxRetries)
	}
	if e.DelayMS != 750 {
		t.Errorf("delay = %dms, want 750ms", e.DelayMS)
	}
	if e.Error != "connection refused" {
		t.Errorf("error = %q", e.Error)
	}
}

func TestNewTaskFailedEvent_NilError(t *testing.T) {
	t.Parallel()

	e := NewTaskFailedEvent("task-1", "push", 3201, nil, false)

	if e.Error != "" {
		t.Errorf("error = %q, want empty", e.Error)
	}
	if e.Code != 3201 {
		t.Errorf("code = %d, want 3201", e.Code)
	}
}

func TestNewWorkspaceQuarantinedEvent(t *testing.T) {
	t.Parallel()

	e := NewWorkspaceQuarantinedEvent("task-1", "ws-1", "task timed out mid mutation")

	if e.EventType() != TypeWorkspaceQuarantined {
		t.Errorf("type = %s, want %s", e.EventType(), TypeWorkspaceQuarantined)
	}
	if e.TaskID() != "task-1" {
		t.Errorf("task id = %s, want task-1", e.TaskID())
	}
	if e.WorkspaceID != "ws-1" {
		t.Errorf("workspace id = %s, want ws-1", e.WorkspaceID)
	}
}

func TestNewWorkspaceCreatedEvent_NoTask(t *testing.T) {
	t.Parallel()

	e := NewWorkspaceCreatedEvent("ws-1", "https://github.com/org/repo.git")

	if e.TaskID() != "" {
		t.Errorf("task id = %s, want empty", e.TaskID())
	}
	if e.RemoteURL != "https://github.com/org/repo.git" {
		t.Errorf("remote url = %s", e.RemoteURL)
	}
}
