package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTask_StateTransitions(t *testing.T) {
	task := NewTask("t1", OpClone, nil, time.Minute)

	if task.Status != TaskStatusQueued {
		t.Fatalf("new task status = %s, want %s", task.Status, TaskStatusQueued)
	}
	if task.Attempt != 1 {
		t.Fatalf("new task attempt = %d, want 1", task.Attempt)
	}

	if err := task.MarkCompleted(nil); err == nil {
		t.Fatalf("expected error completing from queued")
	}

	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if task.StartedAt == nil {
		t.Fatalf("expected StartedAt to be set")
	}
	if err := task.MarkRunning(); err == nil {
		t.Fatalf("expected error starting from running")
	}

	result := json.RawMessage(`{"commit":"abc"}`)
	if err := task.MarkCompleted(result); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if task.Status != TaskStatusCompleted {
		t.Fatalf("status = %s, want %s", task.Status, TaskStatusCompleted)
	}
	if task.Progress != 100 {
		t.Fatalf("progress after completion = %d, want 100", task.Progress)
	}
	if task.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set")
	}
	if !task.IsSuccess() {
		t.Fatalf("expected IsSuccess() after completion")
	}
}

func TestTask_Failure(t *testing.T) {
	task := NewTask("t1", OpPush, nil, time.Minute)
	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := task.MarkFailed(ErrAuth("authentication failed for origin")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if task.Status != TaskStatusFailed {
		t.Fatalf("status = %s, want %s", task.Status, TaskStatusFailed)
	}
	if task.Error == nil {
		t.Fatalf("expected error envelope on failed task")
	}
	if task.Error.Code != CodeAuthFailed {
		t.Fatalf("error code = %d, want %d", task.Error.Code, CodeAuthFailed)
	}
	if task.Error.Suggestion == "" {
		t.Fatalf("expected suggestion to be carried into the envelope")
	}
}

func TestTask_CancelQueued(t *testing.T) {
	task := NewTask("t1", OpFetch, nil, time.Minute)
	if err := task.MarkCancelled(); err != nil {
		t.Fatalf("MarkCancelled() from queued error = %v", err)
	}
	if task.Status != TaskStatusCancelled {
		t.Fatalf("status = %s, want %s", task.Status, TaskStatusCancelled)
	}
	if task.Error == nil || task.Error.Code != CodeTaskCancelled {
		t.Fatalf("expected cancelled error envelope, got %+v", task.Error)
	}
	if err := task.MarkCancelled(); err == nil {
		t.Fatalf("expected error cancelling a terminal task")
	}
}

func TestTask_CancelRunning(t *testing.T) {
	task := NewTask("t1", OpPull, nil, time.Minute)
	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := task.MarkCancelled(); err != nil {
		t.Fatalf("MarkCancelled() from running error = %v", err)
	}
	if !task.IsTerminal() {
		t.Fatalf("expected cancelled task to be terminal")
	}
}

func TestTask_Timeout(t *testing.T) {
	task := NewTask("t1", OpClone, nil, 30*time.Second)
	if err := task.MarkTimedOut(); err == nil {
		t.Fatalf("expected error timing out a queued task")
	}
	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := task.MarkTimedOut(); err != nil {
		t.Fatalf("MarkTimedOut() error = %v", err)
	}
	if task.Status != TaskStatusTimedOut {
		t.Fatalf("status = %s, want %s", task.Status, TaskStatusTimedOut)
	}
	if task.Error == nil || task.Error.Code != CodeTaskTimeout {
		t.Fatalf("expected timeout error envelope, got %+v", task.Error)
	}
}

func TestTask_Progress(t *testing.T) {
	task := NewTask("t1", OpClone, nil, time.Minute)

	task.SetProgress(50)
	if task.Progress != 0 {
		t.Fatalf("progress before running = %d, want 0", task.Progress)
	}

	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	task.SetProgress(40)
	if task.Progress != 40 {
		t.Fatalf("progress = %d, want 40", task.Progress)
	}
	task.SetProgress(25)
	if task.Progress != 40 {
		t.Fatalf("progress regressed to %d, want 40", task.Progress)
	}
	task.SetProgress(250)
	if task.Progress != 100 {
		t.Fatalf("progress = %d, want clamp at 100", task.Progress)
	}
}

func TestTask_Retry(t *testing.T) {
	task := NewTask("t1", OpPush, nil, time.Minute)
	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := task.MarkFailed(ErrNetwork("connection reset")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	if !task.CanRetry(3) {
		t.Fatalf("expected first attempt to be retryable with budget 3")
	}

	before := task.Deadline
	time.Sleep(5 * time.Millisecond)
	if err := task.PrepareRetry(); err != nil {
		t.Fatalf("PrepareRetry() error = %v", err)
	}
	if task.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", task.Attempt)
	}
	if task.Status != TaskStatusQueued {
		t.Fatalf("status after retry = %s, want %s", task.Status, TaskStatusQueued)
	}
	if task.Error != nil || task.Result != nil || task.Progress != 0 {
		t.Fatalf("expected outcome to be cleared on retry")
	}
	if task.StartedAt != nil || task.CompletedAt != nil {
		t.Fatalf("expected timestamps to be cleared on retry")
	}
	if !task.Deadline.After(before) {
		t.Fatalf("expected deadline to move forward on retry")
	}

	task.Attempt = 3
	if task.CanRetry(3) {
		t.Fatalf("expected attempt 3 not retryable with budget 3")
	}

	if err := task.PrepareRetry(); err == nil {
		t.Fatalf("expected error retrying a queued task")
	}
}

func TestTask_Validate(t *testing.T) {
	valid := NewTask("t1", OpClone, nil, time.Minute)
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	missingID := NewTask("", OpClone, nil, time.Minute)
	if err := missingID.Validate(); err == nil {
		t.Fatalf("expected error for missing ID")
	}

	unknownOp := NewTask("t1", Operation("teleport"), nil, time.Minute)
	if err := unknownOp.Validate(); err == nil {
		t.Fatalf("expected error for unknown operation")
	}
}

func TestTask_Expired(t *testing.T) {
	task := NewTask("t1", OpClone, nil, time.Minute)
	now := time.Now()
	if task.Expired(now) {
		t.Fatalf("fresh task should not be expired")
	}
	if !task.Expired(now.Add(2 * time.Minute)) {
		t.Fatalf("task past its deadline should be expired")
	}
}

func TestNewTaskError_DropsCause(t *testing.T) {
	cause := ErrStorage("disk I/O error").WithCause(errTest("raw sqlite detail"))
	envelope := NewTaskError(cause)
	if envelope == nil {
		t.Fatalf("expected envelope for domain error")
	}
	if envelope.Code != CodeStorage {
		t.Fatalf("code = %d, want %d", envelope.Code, CodeStorage)
	}
	if envelope.Message != "disk I/O error" {
		t.Fatalf("message = %q, want the domain message only", envelope.Message)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
