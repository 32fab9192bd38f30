package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/testutil"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/worker"
)

// fakeSpaces satisfies worker.Workspaces with lease and quarantine
// bookkeeping the tests can assert on.
type fakeSpaces struct {
	mu          sync.Mutex
	records     map[core.WorkspaceID]*core.Workspace
	leases      map[core.WorkspaceID]int
	quarantined map[core.WorkspaceID]string
	acquireErr  error
}

func newFakeSpaces(records ...*core.Workspace) *fakeSpaces {
	f := &fakeSpaces{
		records:     make(map[core.WorkspaceID]*core.Workspace),
		leases:      make(map[core.WorkspaceID]int),
		quarantined: make(map[core.WorkspaceID]string),
	}
	for _, w := range records {
		f.records[w.ID] = w
	}
	return f
}

func (f *fakeSpaces) Acquire(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	w, ok := f.records[id]
	if !ok {
		return nil, core.ErrWorkspaceNotFound(id)
	}
	f.leases[id]++
	return w, nil
}

func (f *fakeSpaces) Release(id core.WorkspaceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leases[id]--
}

func (f *fakeSpaces) Quarantine(ctx context.Context, id core.WorkspaceID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quarantined[id] = reason
	return nil
}

func (f *fakeSpaces) leaseCount(id core.WorkspaceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leases[id]
}

func (f *fakeSpaces) quarantineReason(id core.WorkspaceID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quarantined[id]
}

type harness struct {
	pool   *worker.Pool
	queue  *queue.Queue
	store  *testutil.MockStore
	spaces *fakeSpaces
	bus    *events.Bus
}

func newHarness(t *testing.T, cfg config.WorkerConfig, runner core.Runner, spaces *fakeSpaces) *harness {
	t.Helper()
	if spaces == nil {
		spaces = newFakeSpaces()
	}
	h := &harness{
		queue:  queue.New(config.QueueConfig{Capacity: 100}),
		store:  testutil.NewMockStore(),
		spaces: spaces,
		bus:    events.New(64),
	}
	h.pool = worker.New(cfg, h.queue, h.store, runner, spaces, h.bus, nil)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.pool.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.pool.Stop(ctx)
		h.bus.Close()
	})
}

func (h *harness) submit(t *testing.T, task *core.Task) {
	t.Helper()
	ctx := context.Background()
	if err := h.store.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if err := h.queue.Enqueue(ctx, task.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func waitForStatus(t *testing.T, store *testutil.MockStore, id core.TaskID, want core.TaskStatus) *core.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.GetTask(context.Background(), id)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := store.GetTask(context.Background(), id)
	if task != nil {
		t.Fatalf("task %s stuck in %s, want %s", id, task.Status, want)
	}
	t.Fatalf("task %s never reached %s", id, want)
	return nil
}

func baseConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Count:              2,
		MaxConcurrentTasks: 4,
		MaxRetries:         3,
		CancelGraceSeconds: 1,
		RetryBaseMS:        1,
		RetryMaxMS:         10,
	}
}

func TestPool_CompletesTask(t *testing.T) {
	payload := json.RawMessage(`{"ok":true}`)
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		progress(40)
		return payload, nil
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	task := testutil.NewTestTask(testutil.WithID("task-ok"), testutil.WithOperation(core.OpFetch))
	h.submit(t, task)

	done := waitForStatus(t, h.store, "task-ok", core.TaskStatusCompleted)
	if done.Progress != 100 {
		t.Errorf("progress = %d, want 100", done.Progress)
	}
	if string(done.Result) != string(payload) {
		t.Errorf("result = %s, want %s", done.Result, payload)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("StartedAt and CompletedAt must be set")
	}
	if h.store.OpLogCount() != 1 {
		t.Errorf("op log count = %d, want 1", h.store.OpLogCount())
	}
}

func TestPool_NonRetryableFailure(t *testing.T) {
	var calls atomic.Int32
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		calls.Add(1)
		return nil, core.ErrGit(core.CodeMergeConflict, "merge conflict in 2 files")
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	task := testutil.NewTestTask(testutil.WithID("task-conflict"), testutil.WithOperation(core.OpMerge))
	h.submit(t, task)

	failed := waitForStatus(t, h.store, "task-conflict", core.TaskStatusFailed)
	if failed.Error == nil {
		t.Fatal("expected error envelope")
	}
	if failed.Error.Code != core.CodeMergeConflict {
		t.Errorf("code = %d, want %d", failed.Error.Code, core.CodeMergeConflict)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("runner calls = %d, want 1", got)
	}
}

func TestPool_RetryThenComplete(t *testing.T) {
	var calls atomic.Int32
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		if calls.Add(1) < 3 {
			return nil, core.ErrNetwork("connection reset by peer")
		}
		return json.RawMessage(`{}`), nil
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	task := testutil.NewTestTask(testutil.WithID("task-flaky"), testutil.WithOperation(core.OpPush))
	h.submit(t, task)

	done := waitForStatus(t, h.store, "task-flaky", core.TaskStatusCompleted)
	if done.Attempt != 3 {
		t.Errorf("attempt = %d, want 3", done.Attempt)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("runner calls = %d, want 3", got)
	}
}

func TestPool_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		calls.Add(1)
		return nil, core.ErrNetwork("could not resolve host")
	})
	cfg := baseConfig()
	cfg.MaxRetries = 2
	h := newHarness(t, cfg, runner, nil)
	h.start(t)

	task := testutil.NewTestTask(testutil.WithID("task-down"), testutil.WithOperation(core.OpFetch))
	h.submit(t, task)

	failed := waitForStatus(t, h.store, "task-down", core.TaskStatusFailed)
	if failed.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", failed.Attempt)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("runner calls = %d, want 2", got)
	}
	if failed.Error == nil || failed.Error.Code != core.CodeNetworkError {
		t.Errorf("error envelope = %+v, want network error", failed.Error)
	}
}

func TestPool_CancelQueuedTask(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		return nil, nil
	})
	// Pool never started: the task stays queued.
	h := newHarness(t, baseConfig(), runner, nil)

	task := testutil.NewTestTask(testutil.WithID("task-waiting"))
	h.submit(t, task)

	ctx := context.Background()
	cancelled, err := h.pool.Cancel(ctx, "task-waiting")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("first cancel should report true")
	}

	got, err := h.store.GetTask(ctx, "task-waiting")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != core.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	again, err := h.pool.Cancel(ctx, "task-waiting")
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if again {
		t.Error("second cancel should report false")
	}
}

func TestPool_CancelRunningTask(t *testing.T) {
	started := make(chan struct{})
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ws := testutil.NewTestWorkspace("ws-1", "/tmp/ws-1")
	spaces := newFakeSpaces(ws)
	h := newHarness(t, baseConfig(), runner, spaces)
	if err := h.store.SaveWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}
	h.start(t)

	task := testutil.NewTestTask(
		testutil.WithID("task-live"),
		testutil.WithOperation(core.OpCommit),
		testutil.WithTaskWorkspace("ws-1"),
	)
	h.submit(t, task)

	<-started
	cancelled, err := h.pool.Cancel(context.Background(), "task-live")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("cancel of running task should report true")
	}

	done := waitForStatus(t, h.store, "task-live", core.TaskStatusCancelled)
	if done.Error == nil || done.Error.Code != core.CodeTaskCancelled {
		t.Errorf("error envelope = %+v, want cancelled code", done.Error)
	}

	// Commit is not idempotent, so the interrupted workspace must be dirty.
	got, err := h.store.GetWorkspace(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if !got.Dirty {
		t.Error("workspace should be marked dirty after mid-mutation cancel")
	}
	if reason := spaces.quarantineReason("ws-1"); reason != "" {
		t.Errorf("workspace should not be quarantined, got %q", reason)
	}

	// Terminal now, so another cancel is a no-op.
	again, err := h.pool.Cancel(context.Background(), "task-live")
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if again {
		t.Error("cancel after terminal state should report false")
	}

	// The lease is released after the terminal state is persisted, so
	// allow the worker a moment to finish.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && spaces.leaseCount("ws-1") != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if leases := spaces.leaseCount("ws-1"); leases != 0 {
		t.Errorf("lease count = %d, want 0", leases)
	}
}

func TestPool_CancelledCloneMarksWorkspaceDirty(t *testing.T) {
	started := make(chan struct{})
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ws := testutil.NewTestWorkspace("ws-clone", "/tmp/ws-clone")
	spaces := newFakeSpaces(ws)
	h := newHarness(t, baseConfig(), runner, spaces)
	if err := h.store.SaveWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}
	h.start(t)

	task := testutil.NewTestTask(
		testutil.WithID("task-clone"),
		testutil.WithOperation(core.OpClone),
		testutil.WithTaskWorkspace("ws-clone"),
	)
	h.submit(t, task)

	<-started
	cancelled, err := h.pool.Cancel(context.Background(), "task-clone")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("cancel of running task should report true")
	}
	waitForStatus(t, h.store, "task-clone", core.TaskStatusCancelled)

	// Clone reruns safely only into an empty directory; the partial
	// checkout left behind must not be handed out for reuse.
	got, err := h.store.GetWorkspace(context.Background(), "ws-clone")
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if !got.Dirty {
		t.Error("workspace should be marked dirty after interrupted clone")
	}
}

func TestPool_CancelledFetchKeepsWorkspaceClean(t *testing.T) {
	started := make(chan struct{})
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ws := testutil.NewTestWorkspace("ws-fetch", "/tmp/ws-fetch")
	spaces := newFakeSpaces(ws)
	h := newHarness(t, baseConfig(), runner, spaces)
	if err := h.store.SaveWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}
	h.start(t)

	task := testutil.NewTestTask(
		testutil.WithID("task-fetch"),
		testutil.WithOperation(core.OpFetch),
		testutil.WithTaskWorkspace("ws-fetch"),
	)
	h.submit(t, task)

	<-started
	if _, err := h.pool.Cancel(context.Background(), "task-fetch"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForStatus(t, h.store, "task-fetch", core.TaskStatusCancelled)

	// Fetch only adds objects; an interrupted one reruns safely.
	got, err := h.store.GetWorkspace(context.Background(), "ws-fetch")
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Dirty {
		t.Error("workspace should stay clean after interrupted fetch")
	}
}

func TestPool_TimeoutMarksTimedOut(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, core.ErrTimeout("operation timed out")
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	task := testutil.NewTestTask(
		testutil.WithID("task-slow"),
		testutil.WithOperation(core.OpFetch),
		testutil.WithTimeout(50*time.Millisecond),
	)
	h.submit(t, task)

	done := waitForStatus(t, h.store, "task-slow", core.TaskStatusTimedOut)
	if done.Error == nil || done.Error.Code != core.CodeTaskTimeout {
		t.Errorf("error envelope = %+v, want timeout code", done.Error)
	}
}

func TestPool_GraceExpiryQuarantinesWorkspace(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		// Ignores cancellation: simulates a wedged child process.
		<-release
		return nil, ctx.Err()
	})
	ws := testutil.NewTestWorkspace("ws-stuck", "/tmp/ws-stuck")
	spaces := newFakeSpaces(ws)
	h := newHarness(t, baseConfig(), runner, spaces)
	if err := h.store.SaveWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}
	h.start(t)

	task := testutil.NewTestTask(
		testutil.WithID("task-wedged"),
		testutil.WithOperation(core.OpPull),
		testutil.WithTaskWorkspace("ws-stuck"),
		testutil.WithTimeout(50*time.Millisecond),
	)
	h.submit(t, task)

	done := waitForStatus(t, h.store, "task-wedged", core.TaskStatusTimedOut)
	if done.Error == nil || done.Error.Code != core.CodeTaskTimeout {
		t.Errorf("error envelope = %+v, want timeout code", done.Error)
	}
	if reason := spaces.quarantineReason("ws-stuck"); reason == "" {
		t.Error("workspace should be quarantined after grace expiry")
	}
}

func TestPool_PanicFailsTaskWorkerSurvives(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		if task.ID == "task-boom" {
			panic("unexpected state")
		}
		return json.RawMessage(`{}`), nil
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	h.submit(t, testutil.NewTestTask(testutil.WithID("task-boom")))
	failed := waitForStatus(t, h.store, "task-boom", core.TaskStatusFailed)
	if failed.Error == nil || failed.Error.Code != core.CodeInternal {
		t.Errorf("error envelope = %+v, want internal code", failed.Error)
	}

	// The pool keeps serving after the panic.
	h.submit(t, testutil.NewTestTask(testutil.WithID("task-after")))
	waitForStatus(t, h.store, "task-after", core.TaskStatusCompleted)
}

func TestPool_ProgressReachesStoreWhileRunning(t *testing.T) {
	release := make(chan struct{})
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		progress(42)
		<-release
		return json.RawMessage(`{}`), nil
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	task := testutil.NewTestTask(testutil.WithID("task-progress"), testutil.WithOperation(core.OpClone))
	h.submit(t, task)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.store.GetTask(context.Background(), "task-progress")
		if err == nil && got.Progress == 42 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, err := h.store.GetTask(context.Background(), "task-progress")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Progress != 42 {
		t.Fatalf("progress = %d, want 42 persisted mid-run", got.Progress)
	}

	close(release)
	waitForStatus(t, h.store, "task-progress", core.TaskStatusCompleted)
}

func TestPool_ConcurrencyCeiling(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		n := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return json.RawMessage(`{}`), nil
	})
	cfg := baseConfig()
	cfg.Count = 4
	cfg.MaxConcurrentTasks = 2
	h := newHarness(t, cfg, runner, nil)
	h.start(t)

	ids := []core.TaskID{"c1", "c2", "c3", "c4", "c5", "c6"}
	for _, id := range ids {
		h.submit(t, testutil.NewTestTask(testutil.WithID(id)))
	}
	for _, id := range ids {
		waitForStatus(t, h.store, id, core.TaskStatusCompleted)
	}

	if got := maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent executions = %d, want <= 2", got)
	}
}

func TestPool_SkipsTaskCancelledWhileQueued(t *testing.T) {
	var calls atomic.Int32
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		calls.Add(1)
		return nil, nil
	})
	h := newHarness(t, baseConfig(), runner, nil)

	task := testutil.NewTestTask(testutil.WithID("task-gone"))
	h.submit(t, task)

	// Cancelled between enqueue and pickup.
	if _, err := h.pool.Cancel(context.Background(), "task-gone"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	h.start(t)
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("runner calls = %d, want 0 for cancelled task", got)
	}
	got, err := h.store.GetTask(context.Background(), "task-gone")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != core.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestPool_StopDrainsBacklog(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		time.Sleep(10 * time.Millisecond)
		return json.RawMessage(`{}`), nil
	})
	cfg := baseConfig()
	cfg.Count = 1
	h := newHarness(t, cfg, runner, nil)
	h.pool.Start(context.Background())

	ids := []core.TaskID{"d1", "d2", "d3"}
	for _, id := range ids {
		h.submit(t, testutil.NewTestTask(testutil.WithID(id)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, id := range ids {
		got, err := h.store.GetTask(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTask(%s): %v", id, err)
		}
		if got.Status != core.TaskStatusCompleted {
			t.Errorf("task %s status = %s, want completed after drain", id, got.Status)
		}
	}
}

func TestPool_WorkspaceAcquireFailureFailsTask(t *testing.T) {
	var calls atomic.Int32
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		calls.Add(1)
		return nil, nil
	})
	spaces := newFakeSpaces() // no records: every acquire fails
	h := newHarness(t, baseConfig(), runner, spaces)
	h.start(t)

	task := testutil.NewTestTask(
		testutil.WithID("task-nows"),
		testutil.WithTaskWorkspace("ws-missing"),
	)
	h.submit(t, task)

	failed := waitForStatus(t, h.store, "task-nows", core.TaskStatusFailed)
	if failed.Error == nil {
		t.Fatal("expected error envelope")
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("runner calls = %d, want 0 when acquire fails", got)
	}
}

func TestPool_ActiveCount(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{}`), nil
	})
	h := newHarness(t, baseConfig(), runner, nil)
	h.start(t)

	if got := h.pool.ActiveCount(); got != 0 {
		t.Errorf("idle active count = %d, want 0", got)
	}

	h.submit(t, testutil.NewTestTask(testutil.WithID("task-act")))
	<-started
	if got := h.pool.ActiveCount(); got != 1 {
		t.Errorf("active count = %d, want 1", got)
	}

	close(release)
	waitForStatus(t, h.store, "task-act", core.TaskStatusCompleted)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.pool.ActiveCount() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.pool.ActiveCount(); got != 0 {
		t.Errorf("post-completion active count = %d, want 0", got)
	}
}

func TestPool_PublishesLifecycleEvents(t *testing.T) {
	runner := core.RunnerFunc(func(ctx context.Context, task *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	h := newHarness(t, baseConfig(), runner, nil)
	ch := h.bus.Subscribe(events.TypeTaskStarted, events.TypeTaskCompleted)
	h.start(t)

	h.submit(t, testutil.NewTestTask(testutil.WithID("task-ev"), testutil.WithOperation(core.OpFetch)))
	waitForStatus(t, h.store, "task-ev", core.TaskStatusCompleted)

	want := map[string]bool{events.TypeTaskStarted: false, events.TypeTaskCompleted: false}
	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			if ev.TaskID() != "task-ev" {
				t.Errorf("event task id = %s, want task-ev", ev.TaskID())
			}
			want[ev.EventType()] = true
		case <-timeout:
			t.Fatal("timeout waiting for lifecycle events")
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("missing %s event", typ)
		}
	}
}
