// Package worker executes queued tasks against the git adapter. A fixed
// set of workers pulls task IDs off the queue, drives each execution
// through its lifecycle transitions, and persists every state change so
// the record in the store is always the source of truth. In-flight
// cancellation, deadline enforcement, retry with backoff, and workspace
// quarantine on abandoned runs all live here.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
)

const (
	defaultWorkers     = 4
	defaultCancelGrace = 10 * time.Second
	defaultRetryBase   = 500 * time.Millisecond
	defaultRetryMax    = 30 * time.Second

	// progressPersistEvery bounds how often a running task's progress is
	// written to the store. Reports between writes still advance the
	// in-memory counter.
	progressPersistEvery = 250 * time.Millisecond
)

// Workspaces is the slice of workspace management the pool needs: leasing
// around execution and fencing off directories left in an unknown state.
type Workspaces interface {
	Acquire(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error)
	Release(id core.WorkspaceID)
	Quarantine(ctx context.Context, id core.WorkspaceID, reason string) error
}

// runningTask tracks one in-flight execution so Cancel can reach it.
type runningTask struct {
	cancel    context.CancelFunc
	signalled bool
}

// exec bundles the mutable state of one execution. Its mutex serializes
// the progress sink against the terminal transition; both mutate the task.
type exec struct {
	mu   sync.Mutex
	task *core.Task
	ws   *core.Workspace
	log  *logging.Logger
}

// outcome is what the runner goroutine reports back.
type outcome struct {
	payload json.RawMessage
	err     error
}

// Pool owns the worker goroutines. Transitions out of QUEUED are
// serialized through the pool mutex so a worker claiming a task and a
// Cancel call can never both win.
type Pool struct {
	queue  *queue.Queue
	store  core.Store
	runner core.Runner
	spaces Workspaces
	bus    *events.Bus
	log    *logging.Logger

	workers    int
	maxRetries int
	grace      time.Duration
	retryBase  time.Duration
	retryMax   time.Duration

	sem chan struct{} // concurrency permits, capacity = max concurrent tasks

	mu      sync.Mutex
	running map[core.TaskID]*runningTask

	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a pool. Zero or negative config values fall back to safe
// defaults; MaxRetries of zero disables retries.
func New(cfg config.WorkerConfig, q *queue.Queue, store core.Store, runner core.Runner, spaces Workspaces, bus *events.Bus, log *logging.Logger) *Pool {
	if log == nil {
		log = logging.NewNop()
	}
	if bus == nil {
		bus = events.New(1)
	}
	workers := cfg.Count
	if workers <= 0 {
		workers = defaultWorkers
	}
	permits := cfg.MaxConcurrentTasks
	if permits <= 0 {
		permits = workers
	}
	grace := cfg.CancelGrace()
	if grace <= 0 {
		grace = defaultCancelGrace
	}
	retryBase := cfg.RetryBase()
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	retryMax := cfg.RetryMax()
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}
	return &Pool{
		queue:      q,
		store:      store,
		runner:     runner,
		spaces:     spaces,
		bus:        bus,
		log:        log.WithComponent("worker"),
		workers:    workers,
		maxRetries: cfg.MaxRetries,
		grace:      grace,
		retryBase:  retryBase,
		retryMax:   retryMax,
		sem:        make(chan struct{}, permits),
		running:    make(map[core.TaskID]*runningTask),
	}
}

// Start launches the workers. Each one is supervised: a worker that dies
// outside the per-task recovery is restarted until shutdown.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancelRun = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.supervise(runCtx, i)
	}
	p.log.Info("worker pool started", "workers", p.workers, "max_concurrent", cap(p.sem))
}

// Stop closes the queue so workers drain the backlog and exit. If ctx
// expires before the drain completes, in-flight work is cancelled and the
// wait resumes until every worker acknowledges.
func (p *Pool) Stop(ctx context.Context) error {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancelRun != nil {
			p.cancelRun()
		}
		p.log.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		if p.cancelRun != nil {
			p.cancelRun()
		}
		<-done
		p.log.Warn("worker pool stopped before drain completed")
		return ctx.Err()
	}
}

// Cancel requests cancellation of a task. A queued task turns terminal
// immediately; a running task is signalled and turns terminal when the
// adapter returns. Repeat calls and calls on finished tasks report false.
func (p *Pool) Cancel(ctx context.Context, id core.TaskID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rt, ok := p.running[id]; ok {
		if rt.signalled {
			return false, nil
		}
		rt.signalled = true
		rt.cancel()
		return true, nil
	}

	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	if task.IsTerminal() {
		return false, nil
	}
	if task.Status == core.TaskStatusQueued {
		if err := task.MarkCancelled(); err != nil {
			return false, err
		}
		if err := p.store.UpdateTask(ctx, task); err != nil {
			return false, err
		}
		p.appendOpLog(task)
		p.bus.Publish(events.NewTaskCancelledEvent(string(id), string(task.Operation)))
		p.log.Info("queued task cancelled", "task_id", string(id))
		return true, nil
	}
	// Running in the store but not registered here: left over from an
	// interrupted process. Nothing to signal.
	return false, nil
}

// ActiveCount returns how many tasks are currently registered as running.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Running reports whether the pool is executing the task right now. A
// store record saying RUNNING without a registration here belongs to an
// interrupted process and is fair game for the timeout sweeper.
func (p *Pool) Running(id core.TaskID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[id]
	return ok
}

func (p *Pool) supervise(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		if p.runWorker(ctx, n) {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.log.Warn("worker exited unexpectedly, restarting", "worker", n)
	}
}

// runWorker is one worker's dequeue loop. It reports true only on a clean
// exit; a panic escaping the per-task recovery leaves it false so the
// supervisor restarts the worker.
func (p *Pool) runWorker(ctx context.Context, n int) (clean bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panicked",
				"worker", n,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	for {
		id, ok := p.queue.Dequeue(ctx)
		if !ok {
			return true
		}
		p.execute(ctx, id)
	}
}

func (p *Pool) execute(ctx context.Context, id core.TaskID) {
	// The permit comes first so the running count never exceeds the
	// configured ceiling.
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		// Shutdown while waiting. The task stays queued in the store and
		// boot-time recovery requeues it.
		return
	}
	defer func() { <-p.sem }()

	task, taskCtx, ok := p.begin(ctx, id)
	if !ok {
		return
	}
	defer p.unregister(id)

	p.runTask(taskCtx, &exec{
		task: task,
		log:  p.log.WithTask(string(id)).WithOperation(string(task.Operation)),
	})
}

// begin claims a queued task: it flips the record to RUNNING and registers
// the cancellation handle, all under the pool mutex so Cancel observes
// either the queued record or the registered handle, never neither.
func (p *Pool) begin(ctx context.Context, id core.TaskID) (*core.Task, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		p.log.Warn("dequeued unknown task", "task_id", string(id), "error", err)
		return nil, nil, false
	}
	if task.Status != core.TaskStatusQueued {
		// Cancelled while waiting, or a stale re-enqueue. Skip silently.
		return nil, nil, false
	}
	if err := task.MarkRunning(); err != nil {
		return nil, nil, false
	}
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.log.Error("cannot persist running transition", "task_id", string(id), "error", err)
		return nil, nil, false
	}

	taskCtx, cancel := context.WithDeadline(ctx, task.Deadline)
	p.running[id] = &runningTask{cancel: cancel}

	p.bus.Publish(events.NewTaskStartedEvent(string(id), string(task.Operation), string(task.WorkspaceID), task.Attempt))
	return task, taskCtx, true
}

func (p *Pool) runTask(taskCtx context.Context, e *exec) {
	if e.task.WorkspaceID != "" {
		ws, err := p.spaces.Acquire(taskCtx, e.task.WorkspaceID)
		if err != nil {
			p.settle(taskCtx, e, outcome{err: err})
			return
		}
		e.ws = ws
		defer p.spaces.Release(e.task.WorkspaceID)
	}

	resCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("task panicked",
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				resCh <- outcome{err: core.ErrInternal("task execution panicked").WithCause(fmt.Errorf("%v", r))}
			}
		}()
		payload, err := p.runner.Run(taskCtx, e.task, e.ws, p.progressSink(e))
		resCh <- outcome{payload: payload, err: err}
	}()

	select {
	case res := <-resCh:
		p.settle(taskCtx, e, res)
	case <-taskCtx.Done():
		// Deadline or cancel fired. The adapter kills its child process on
		// context cancellation, so it normally returns well inside the
		// grace window.
		select {
		case res := <-resCh:
			p.settle(taskCtx, e, res)
		case <-time.After(p.grace):
			p.abandon(e)
		}
	}
}

// settle drives the task to its terminal state once the runner returned,
// or requeues it when the failure is retryable.
func (p *Pool) settle(taskCtx context.Context, e *exec, res outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.task

	if t.Status != core.TaskStatusRunning {
		return
	}

	switch {
	case res.err == nil:
		if err := t.MarkCompleted(res.payload); err != nil {
			e.log.Error("cannot complete task", "error", err)
			return
		}
		p.persist(t, e.log)
		p.appendOpLog(t)
		p.bus.Publish(events.NewTaskCompletedEvent(string(t.ID), string(t.Operation), t.Duration()))
		e.log.Info("task completed", "duration_ms", t.Duration().Milliseconds(), "attempt", t.Attempt)
		return

	case taskCtx.Err() == context.DeadlineExceeded:
		p.markDirty(e, "deadline crossed mid operation")
		_ = t.MarkTimedOut()
		p.persist(t, e.log)
		p.appendOpLog(t)
		p.bus.Publish(events.NewTaskTimedOutEvent(string(t.ID), string(t.Operation)))
		e.log.Warn("task timed out", "timeout", t.Timeout.String(), "attempt", t.Attempt)
		return

	case taskCtx.Err() == context.Canceled:
		p.markDirty(e, "cancelled mid operation")
		_ = t.MarkCancelled()
		p.persist(t, e.log)
		p.appendOpLog(t)
		p.bus.Publish(events.NewTaskCancelledEvent(string(t.ID), string(t.Operation)))
		e.log.Info("task cancelled", "attempt", t.Attempt)
		return
	}

	if core.IsRetryable(res.err) && t.CanRetry(p.maxRetries) {
		if err := t.PrepareRetry(); err == nil {
			delay := p.backoff(t.Attempt)
			p.persist(t, e.log)
			p.bus.Publish(events.NewTaskRetryingEvent(string(t.ID), t.Attempt, p.maxRetries, delay, res.err))
			e.log.Warn("task failed, retrying",
				"attempt", t.Attempt,
				"max_retries", p.maxRetries,
				"delay_ms", delay.Milliseconds(),
				"error", res.err)
			p.requeueAfter(t.ID, delay)
			return
		}
	}

	ferr := res.err
	if core.AsDomain(ferr) == nil {
		ferr = core.ErrInternal("unexpected execution error").WithCause(res.err)
	}
	p.markDirty(e, "operation failed mid mutation")
	_ = t.MarkFailed(ferr)
	p.persist(t, e.log)
	p.appendOpLog(t)

	code, retryable := 0, false
	if d := core.AsDomain(ferr); d != nil {
		code, retryable = d.Code, d.Retryable
	}
	p.bus.Publish(events.NewTaskFailedEvent(string(t.ID), string(t.Operation), code, ferr, retryable))
	e.log.Error("task failed", "attempt", t.Attempt, "code", code, "error", ferr)
}

// abandon handles an adapter that ignored cancellation past the grace
// window. The runner goroutine is left behind and the workspace is fenced
// off because its on-disk state is unknown.
func (p *Pool) abandon(e *exec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.task

	if t.Status == core.TaskStatusRunning {
		if t.Expired(time.Now()) {
			_ = t.MarkTimedOut()
			p.bus.Publish(events.NewTaskTimedOutEvent(string(t.ID), string(t.Operation)))
		} else {
			_ = t.MarkCancelled()
			p.bus.Publish(events.NewTaskCancelledEvent(string(t.ID), string(t.Operation)))
		}
		p.persist(t, e.log)
		p.appendOpLog(t)
	}

	if e.ws != nil {
		reason := fmt.Sprintf("task %s did not stop within the %s grace window", t.ID, p.grace)
		if err := p.spaces.Quarantine(context.Background(), e.ws.ID, reason); err != nil {
			e.log.Error("cannot quarantine workspace", "workspace_id", string(e.ws.ID), "error", err)
		}
		p.bus.Publish(events.NewWorkspaceQuarantinedEvent(string(t.ID), string(e.ws.ID), reason))
	}
	e.log.Error("task abandoned after grace window", "grace", p.grace.String())
}

// markDirty flags the workspace when a non-idempotent operation ended in
// an unknown on-disk state. Idempotent operations rerun safely so their
// workspace stays clean — except clone, which is only rerunnable into an
// empty directory: an interrupted clone leaves a partial checkout that
// must not be handed out for reuse.
func (p *Pool) markDirty(e *exec, reason string) {
	if e.ws == nil {
		return
	}
	if e.task.Operation.Idempotent() && e.task.Operation != core.OpClone {
		return
	}
	e.ws.MarkDirty()
	if err := p.store.UpdateWorkspace(context.Background(), e.ws); err != nil {
		e.log.Warn("cannot mark workspace dirty", "workspace_id", string(e.ws.ID), "error", err)
	} else {
		e.log.Warn("workspace marked dirty", "workspace_id", string(e.ws.ID), "reason", reason)
	}
}

// progressSink returns the callback handed to the runner. Reports advance
// the in-memory counter on every call and reach the store at most once per
// persistence interval.
func (p *Pool) progressSink(e *exec) core.ProgressFunc {
	var last time.Time
	return func(percent int) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.task.Status != core.TaskStatusRunning {
			return
		}
		e.task.SetProgress(percent)

		now := time.Now()
		if now.Sub(last) < progressPersistEvery {
			return
		}
		last = now
		if err := p.store.UpdateTask(context.Background(), e.task); err != nil {
			e.log.Warn("cannot persist progress", "error", err)
			return
		}
		p.bus.Publish(events.NewTaskProgressEvent(string(e.task.ID), e.task.Progress))
	}
}

// persist writes the task's current state. Terminal transitions must reach
// the store even when the worker context is already cancelled, so this
// deliberately does not use the task context.
func (p *Pool) persist(t *core.Task, log *logging.Logger) {
	if err := p.store.UpdateTask(context.Background(), t); err != nil {
		log.Error("cannot persist task state", "status", string(t.Status), "error", err)
	}
}

func (p *Pool) appendOpLog(t *core.Task) {
	entry := &core.OperationLog{
		TaskID:      t.ID,
		WorkspaceID: t.WorkspaceID,
		Operation:   t.Operation,
		Status:      t.Status,
		Duration:    t.Duration(),
		CreatedAt:   time.Now().UTC(),
	}
	if t.Error != nil {
		entry.ErrorCode = t.Error.Code
		entry.Detail = t.Error.Message
	}
	if err := p.store.AppendOperationLog(context.Background(), entry); err != nil {
		p.log.Warn("cannot append operation log", "task_id", string(t.ID), "error", err)
	}
}

// requeueAfter re-enqueues a retry once its backoff delay elapsed. The
// enqueue can fail only when the queue closed for shutdown; the task then
// stays queued in the store for boot-time recovery.
func (p *Pool) requeueAfter(id core.TaskID, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := p.queue.Enqueue(context.Background(), id); err != nil {
			p.log.Warn("cannot requeue task for retry", "task_id", string(id), "error", err)
		}
	})
}

// backoff returns the delay before the given attempt: exponential growth
// from the base with 25% jitter either way, capped at the maximum.
func (p *Pool) backoff(attempt int) time.Duration {
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	if exp > 20 {
		exp = 20
	}
	d := p.retryBase * time.Duration(1<<uint(exp))
	d = time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
	if d > p.retryMax {
		d = p.retryMax
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (p *Pool) unregister(id core.TaskID) {
	p.mu.Lock()
	rt, ok := p.running[id]
	delete(p.running, id)
	p.mu.Unlock()
	if ok {
		rt.cancel()
	}
}
