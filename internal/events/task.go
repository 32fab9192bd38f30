package events

import "time"

// Event type constants for task lifecycle events.
const (
	TypeTaskQueued    = "task_queued"
	TypeTaskStarted   = "task_started"
	TypeTaskProgress  = "task_progress"
	TypeTaskRetrying  = "task_retrying"
	TypeTaskCompleted = "task_completed"
	TypeTaskFailed    = "task_failed"
	TypeTaskCancelled = "task_cancelled"
	TypeTaskTimedOut  = "task_timed_out"
)

// TaskQueuedEvent is emitted when a task is accepted and enqueued.
type TaskQueuedEvent struct {
	BaseEvent
	Operation   string `json:"operation"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Attempt     int    `json:"attempt"`
}

// NewTaskQueuedEvent creates a task queued event.
func NewTaskQueuedEvent(taskID, operation, workspaceID string, attempt int) TaskQueuedEvent {
	return TaskQueuedEvent{
		BaseEvent:   newBaseEvent(TypeTaskQueued, taskID),
		Operation:   operation,
		WorkspaceID: workspaceID,
		Attempt:     attempt,
	}
}

// TaskStartedEvent is emitted when a worker picks a task up.
type TaskStartedEvent struct {
	BaseEvent
	Operation   string `json:"operation"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Attempt     int    `json:"attempt"`
}

// NewTaskStartedEvent creates a task started event.
func NewTaskStartedEvent(taskID, operation, workspaceID string, attempt int) TaskStartedEvent {
	return TaskStartedEvent{
		BaseEvent:   newBaseEvent(TypeTaskStarted, taskID),
		Operation:   operation,
		WorkspaceID: workspaceID,
		Attempt:     attempt,
	}
}

// TaskProgressEvent is emitted as a running task reports progress.
type TaskProgressEvent struct {
	BaseEvent
	Progress int `json:"progress"`
}

// NewTaskProgressEvent creates a task progress event.
func NewTaskProgressEvent(taskID string, progress int) TaskProgressEvent {
	return TaskProgressEvent{
		BaseEvent: newBaseEvent(TypeTaskProgress, taskID),
		Progress:  progress,
	}
}

// TaskRetryingEvent is emitted when a failed attempt is requeued.
type TaskRetryingEvent struct {
	BaseEvent
	Attempt    int    `json:"attempt"`
	MaxRetries int    `json:"max_retries"`
	DelayMS    int64  `json:"delay_ms"`
	Error      string `json:"error"`
}

// NewTaskRetryingEvent creates a task retrying event.
func NewTaskRetryingEvent(taskID string, attempt, maxRetries int, delay time.Duration, err error) TaskRetryingEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return TaskRetryingEvent{
		BaseEvent:  newBaseEvent(TypeTaskRetrying, taskID),
		Attempt:    attempt,
		MaxRetries: maxRetries,
		DelayMS:    delay.Milliseconds(),
		Error:      errStr,
	}
}

// TaskCompletedEvent is emitted when a task finishes successfully.
type TaskCompletedEvent struct {
	BaseEvent
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
}

// NewTaskCompletedEvent creates a task completed event.
func NewTaskCompletedEvent(taskID, operation string, duration time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent: newBaseEvent(TypeTaskCompleted, taskID),
		Operation: operation,
		Duration:  duration,
	}
}

// TaskFailedEvent is emitted when a task fails permanently.
type TaskFailedEvent struct {
	BaseEvent
	Operation string `json:"operation"`
	Code      int    `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// NewTaskFailedEvent creates a task failed event.
func NewTaskFailedEvent(taskID, operation string, code int, err error, retryable bool) TaskFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return TaskFailedEvent{
		BaseEvent: newBaseEvent(TypeTaskFailed, taskID),
		Operation: operation,
		Code:      code,
		Error:     errStr,
		Retryable: retryable,
	}
}

// TaskCancelledEvent is emitted once a cancelled task reaches its terminal
// state.
type TaskCancelledEvent struct {
	BaseEvent
	Operation string `json:"operation"`
}

// NewTaskCancelledEvent creates a task cancelled event.
func NewTaskCancelledEvent(taskID, operation string) TaskCancelledEvent {
	return TaskCancelledEvent{
		BaseEvent: newBaseEvent(TypeTaskCancelled, taskID),
		Operation: operation,
	}
}

// TaskTimedOutEvent is emitted when a task crosses its deadline.
type TaskTimedOutEvent struct {
	BaseEvent
	Operation string `json:"operation"`
}

// NewTaskTimedOutEvent creates a task timed out event.
func NewTaskTimedOutEvent(taskID, operation string) TaskTimedOutEvent {
	return TaskTimedOutEvent{
		BaseEvent: newBaseEvent(TypeTaskTimedOut, taskID),
		Operation: operation,
	}
}
