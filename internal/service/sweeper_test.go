package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/service"
)

// staleRunningTask fabricates a RUNNING record whose deadline has already
// passed, as left behind by a process that died mid execution.
func staleRunningTask(t *testing.T, id core.TaskID) *core.Task {
	t.Helper()
	task := core.NewTask(id, core.OpClone, nil, time.Second)
	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	task.Deadline = time.Now().Add(-time.Second)
	return task
}

func TestManager_SweepTimeoutsSettlesStaleRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, baseConfig(t), okRunner(`{}`))
	ch := h.bus.Subscribe(events.TypeTaskTimedOut)

	stale := staleRunningTask(t, "stale-1")
	if err := h.store.SaveTask(context.Background(), stale); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	swept, err := h.mgr.SweepTimeouts(context.Background())
	if err != nil {
		t.Fatalf("SweepTimeouts() error = %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	got, err := h.store.GetTask(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != core.TaskStatusTimedOut {
		t.Errorf("Status = %s, want %s", got.Status, core.TaskStatusTimedOut)
	}
	if got.Error == nil || got.Error.Code != core.CodeTaskTimeout {
		t.Errorf("Error = %+v, want code %d", got.Error, core.CodeTaskTimeout)
	}

	logs, err := h.mgr.Logs(context.Background(), core.OpLogFilter{TaskID: stale.ID})
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != core.TaskStatusTimedOut {
		t.Errorf("logs = %+v, want one timed_out entry", logs)
	}

	ev := waitEvent(t, ch, events.TypeTaskTimedOut)
	if ev.TaskID() != string(stale.ID) {
		t.Errorf("event TaskID = %s, want %s", ev.TaskID(), stale.ID)
	}
}

func TestManager_SweepSkipsActivelyRunning(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)
	// Ignores cancellation until released, so the pool keeps the task
	// registered through the whole grace window.
	stubborn := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		<-release
		return nil, ctx.Err()
	})

	cfg := baseConfig(t)
	cfg.Worker.CancelGraceSeconds = 5
	h := newHarness(t, cfg, stubborn)
	h.startPool(t)

	task, err := h.mgr.Submit(context.Background(), core.OpClone, nil,
		service.TaskOptions{RemoteURL: "https://example.com/r.git", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitForStatus(t, h.store, task.ID, core.TaskStatusRunning)

	// Let the deadline pass while the runner still holds the task.
	time.Sleep(100 * time.Millisecond)

	swept, err := h.mgr.SweepTimeouts(context.Background())
	if err != nil {
		t.Fatalf("SweepTimeouts() error = %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0 while the pool owns the task", swept)
	}
	got, err := h.store.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != core.TaskStatusRunning {
		t.Errorf("Status = %s, want %s", got.Status, core.TaskStatusRunning)
	}
}

func TestManager_SweepSkipsUnexpiredRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, baseConfig(t), okRunner(`{}`))

	fresh := core.NewTask("fresh-1", core.OpFetch, nil, time.Hour)
	if err := fresh.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := h.store.SaveTask(context.Background(), fresh); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	swept, err := h.mgr.SweepTimeouts(context.Background())
	if err != nil {
		t.Fatalf("SweepTimeouts() error = %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0", swept)
	}
}

func TestManager_PurgeExpiredRemovesOldRecords(t *testing.T) {
	t.Parallel()
	h := newHarness(t, baseConfig(t), okRunner(`{}`))
	ctx := context.Background()

	old := core.NewTask("old-1", core.OpClone, nil, time.Minute)
	if err := old.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := old.MarkCompleted(nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	old.CompletedAt = &past
	if err := h.store.SaveTask(ctx, old); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	recent := core.NewTask("recent-1", core.OpClone, nil, time.Minute)
	if err := h.store.SaveTask(ctx, recent); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	if err := h.store.AppendOperationLog(ctx, &core.OperationLog{
		Operation: core.OpClone,
		Status:    core.TaskStatusCompleted,
		CreatedAt: past,
	}); err != nil {
		t.Fatalf("AppendOperationLog() error = %v", err)
	}
	if err := h.store.AppendOperationLog(ctx, &core.OperationLog{
		Operation: core.OpStatus,
		Status:    core.TaskStatusCompleted,
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendOperationLog() error = %v", err)
	}

	tasks, logs, err := h.mgr.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if tasks != 1 || logs != 1 {
		t.Errorf("PurgeExpired() = (%d, %d), want (1, 1)", tasks, logs)
	}

	if _, err := h.store.GetTask(ctx, old.ID); err == nil {
		t.Error("expired task survived the purge")
	}
	if _, err := h.store.GetTask(ctx, recent.ID); err != nil {
		t.Errorf("recent task was purged: %v", err)
	}
	if got := h.store.OpLogCount(); got != 1 {
		t.Errorf("OpLogCount() = %d, want 1", got)
	}
}

func TestManager_PurgeDisabledKeepsRecords(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(t)
	cfg.Store.ResultRetentionSeconds = 0
	h := newHarness(t, cfg, okRunner(`{}`))

	old := core.NewTask("old-1", core.OpClone, nil, time.Minute)
	if err := old.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := old.MarkCompleted(nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	old.CompletedAt = &past
	if err := h.store.SaveTask(context.Background(), old); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	tasks, logs, err := h.mgr.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if tasks != 0 || logs != 0 {
		t.Errorf("PurgeExpired() = (%d, %d), want (0, 0)", tasks, logs)
	}
	if h.store.TaskCount() != 1 {
		t.Errorf("TaskCount() = %d, want 1", h.store.TaskCount())
	}
}

func TestManager_RunMaintenanceStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, baseConfig(t), okRunner(`{}`))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.mgr.RunMaintenance(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunMaintenance() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunMaintenance() did not stop after cancel")
	}
}
