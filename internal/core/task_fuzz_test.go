//go:build go1.18

package core

import (
	"testing"
	"time"
)

// FuzzTaskStateTransitions tests task state machine invariants.
func FuzzTaskStateTransitions(f *testing.F) {
	// Seed with common transition sequences
	// 0=MarkRunning, 1=MarkCompleted, 2=MarkFailed, 3=MarkCancelled, 4=MarkTimedOut
	f.Add([]byte{0})       // Just start
	f.Add([]byte{0, 1})    // Start then complete
	f.Add([]byte{0, 2})    // Start then fail
	f.Add([]byte{3})       // Cancel while queued
	f.Add([]byte{0, 3})    // Cancel while running
	f.Add([]byte{0, 4})    // Time out while running
	f.Add([]byte{0, 0})    // Double start
	f.Add([]byte{1, 0, 1}) // Complete without starting
	f.Add([]byte{0, 1, 2}) // Fail after complete (must be rejected)

	f.Fuzz(func(t *testing.T, sequence []byte) {
		task := NewTask("fuzz", OpClone, nil, time.Minute)

		if task.Status != TaskStatusQueued {
			t.Fatalf("new task should be queued, got %s", task.Status)
		}
		if task.StartedAt != nil || task.CompletedAt != nil {
			t.Fatal("new task should carry no timestamps")
		}

		for _, op := range sequence {
			previous := task.Status

			switch op % 5 {
			case 0:
				_ = task.MarkRunning()
			case 1:
				_ = task.MarkCompleted(nil)
			case 2:
				_ = task.MarkFailed(ErrNetwork("fuzz"))
			case 3:
				_ = task.MarkCancelled()
			case 4:
				_ = task.MarkTimedOut()
			}

			assertTaskInvariants(t, task, previous)
		}
	})
}

// FuzzTaskProgress tests that progress stays monotone and bounded.
func FuzzTaskProgress(f *testing.F) {
	f.Add([]byte{10, 20, 30})
	f.Add([]byte{90, 10, 95})
	f.Add([]byte{0, 0, 0})
	f.Add([]byte{255, 1})

	f.Fuzz(func(t *testing.T, reports []byte) {
		task := NewTask("fuzz", OpFetch, nil, time.Minute)
		_ = task.MarkRunning()

		last := 0
		for _, p := range reports {
			task.SetProgress(int(p))
			if task.Progress < last {
				t.Fatalf("progress regressed from %d to %d", last, task.Progress)
			}
			if task.Progress < 0 || task.Progress > 100 {
				t.Fatalf("progress out of bounds: %d", task.Progress)
			}
			last = task.Progress
		}
	})
}

// FuzzTaskRetryLogic tests the attempt budget.
func FuzzTaskRetryLogic(f *testing.F) {
	f.Add(1, 3)
	f.Add(3, 3)
	f.Add(10, 3)
	f.Add(1, 0)
	f.Add(1, 10)

	f.Fuzz(func(t *testing.T, attempt int, maxRetries int) {
		task := NewTask("fuzz", OpPush, nil, time.Minute)
		if attempt > 0 {
			task.Attempt = attempt
		}

		_ = task.MarkRunning()
		_ = task.MarkFailed(ErrNetwork("fuzz"))

		if task.Attempt >= maxRetries && task.CanRetry(maxRetries) {
			t.Errorf("attempt %d should not be retryable with budget %d", task.Attempt, maxRetries)
		}
		if task.CanRetry(maxRetries) != task.CanRetry(maxRetries) {
			t.Error("CanRetry should be deterministic")
		}
	})
}

// assertTaskInvariants checks that task state invariants hold.
func assertTaskInvariants(t *testing.T, task *Task, previous TaskStatus) {
	t.Helper()

	valid := map[TaskStatus]bool{
		TaskStatusQueued:    true,
		TaskStatusRunning:   true,
		TaskStatusCompleted: true,
		TaskStatusFailed:    true,
		TaskStatusCancelled: true,
		TaskStatusTimedOut:  true,
	}
	if !valid[task.Status] {
		t.Fatalf("invalid status: %s", task.Status)
	}

	if task.Status == TaskStatusRunning && task.StartedAt == nil {
		t.Fatalf("StartedAt should be set when status is %s", task.Status)
	}

	if task.IsTerminal() && task.CompletedAt == nil {
		t.Fatalf("CompletedAt should be set when status is %s", task.Status)
	}

	// Terminal states are sticky; only PrepareRetry may leave failed.
	if isTerminalStatus(previous) && task.Status != previous {
		t.Fatalf("terminal status changed from %s to %s", previous, task.Status)
	}

	if task.Status == TaskStatusCancelled || task.Status == TaskStatusTimedOut {
		if task.Error == nil {
			t.Fatalf("status %s should carry an error envelope", task.Status)
		}
	}
}

func isTerminalStatus(status TaskStatus) bool {
	return status == TaskStatusCompleted ||
		status == TaskStatusFailed ||
		status == TaskStatusCancelled ||
		status == TaskStatusTimedOut
}
