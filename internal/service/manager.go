// Package service exposes the task manager facade. Every external
// surface (MCP tool handlers, the HTTP API, the CLI) submits, queries and
// cancels work through it; nothing above this package touches the queue,
// the pool or the store directly. The facade owns admission control
// (rate limiting, queue backpressure) and the background maintenance
// sweeps, while execution itself belongs to the worker pool.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/worker"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/workspace"
)

const (
	// defaultSyncTimeout bounds inline operations, which are expected to
	// finish in about a second. Long transfers belong on the queue.
	defaultSyncTimeout = 60 * time.Second

	// maxTimeout is the ceiling on caller-supplied timeout overrides.
	maxTimeout = 24 * time.Hour
)

// TaskOptions carries the per-request knobs a tool handler may set.
type TaskOptions struct {
	// WorkspaceID targets an existing workspace. Empty is allowed only
	// for repository-creating operations, which allocate a fresh one.
	WorkspaceID core.WorkspaceID

	// RemoteURL labels an auto-allocated workspace. Ignored when
	// WorkspaceID is set. Credentials embedded in the URL are stripped
	// before anything is persisted.
	RemoteURL string

	// Timeout overrides the configured default. Zero keeps the default.
	Timeout time.Duration
}

// Manager is the task manager facade.
type Manager struct {
	store   core.Store
	queue   *queue.Queue
	pool    *worker.Pool
	spaces  *workspace.Manager
	runner  core.Runner
	bus     *events.Bus
	log     *logging.Logger

	// dynMu guards the fields config hot reload may swap while the
	// facade is serving requests.
	dynMu     sync.Mutex
	limiter   *RateLimiter
	retention time.Duration

	defaultTimeout time.Duration
	syncTimeout    time.Duration
	timeoutEvery   time.Duration
	purgeEvery     time.Duration
}

// New wires the facade over its collaborators. Rate limiting is disabled
// when the config says so; every other zero value falls back to the
// documented default.
func New(cfg config.Config, store core.Store, q *queue.Queue, pool *worker.Pool, spaces *workspace.Manager, runner core.Runner, bus *events.Bus, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	if bus == nil {
		bus = events.New(1)
	}
	var limiter *RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = NewRateLimiter(cfg.RateLimit)
	}
	defaultTimeout := cfg.Worker.TaskTimeout()
	if defaultTimeout <= 0 {
		defaultTimeout = 300 * time.Second
	}
	timeoutEvery := cfg.Worker.TimeoutCheck()
	if timeoutEvery <= 0 {
		timeoutEvery = 5 * time.Second
	}
	purgeEvery := cfg.Store.PurgeInterval()
	if purgeEvery <= 0 {
		purgeEvery = time.Minute
	}
	return &Manager{
		store:          store,
		queue:          q,
		pool:           pool,
		spaces:         spaces,
		runner:         runner,
		bus:            bus,
		log:            log.WithComponent("service"),
		limiter:        limiter,
		defaultTimeout: defaultTimeout,
		syncTimeout:    defaultSyncTimeout,
		retention:      cfg.Store.ResultRetention(),
		timeoutEvery:   timeoutEvery,
		purgeEvery:     purgeEvery,
	}
}

// admit takes one rate-limit token. A nil limiter admits everything.
func (m *Manager) admit() bool {
	m.dynMu.Lock()
	limiter := m.limiter
	m.dynMu.Unlock()
	return limiter == nil || limiter.TryAcquire()
}

// retentionHorizon returns the current result retention window.
func (m *Manager) retentionHorizon() time.Duration {
	m.dynMu.Lock()
	defer m.dynMu.Unlock()
	return m.retention
}

// Reconfigure applies the dynamic subset of a reloaded configuration:
// the rate limiter and the result retention window. Everything else
// (worker count, queue capacity, workspace root) requires a restart.
func (m *Manager) Reconfigure(cfg config.Config) {
	m.dynMu.Lock()
	defer m.dynMu.Unlock()
	if cfg.RateLimit.Enabled {
		m.limiter = NewRateLimiter(cfg.RateLimit)
	} else {
		m.limiter = nil
	}
	m.retention = cfg.Store.ResultRetention()
	m.log.Info("dynamic configuration applied",
		"rate_limit_enabled", cfg.RateLimit.Enabled,
		"result_retention", cfg.Store.ResultRetention().String())
}

// Submit admits a task: rate limit, workspace resolution, durable QUEUED
// record, queue slot. The task is returned as persisted; execution
// happens on the pool. A submission that fails queue admission leaves no
// trace behind.
func (m *Manager) Submit(ctx context.Context, op core.Operation, params json.RawMessage, opts TaskOptions) (*core.Task, error) {
	if !op.Known() {
		return nil, core.ErrValidation(core.CodeInvalidParamValue, fmt.Sprintf("unknown operation: %s", op))
	}
	if !m.admit() {
		m.log.Warn("submission rate limited", "operation", string(op))
		return nil, core.ErrRateLimited("submission rate limit exceeded")
	}
	timeout, err := resolveTimeout(opts.Timeout, m.defaultTimeout)
	if err != nil {
		return nil, err
	}
	wsID, allocated, err := m.resolveWorkspace(ctx, op, opts)
	if err != nil {
		return nil, err
	}

	t := core.NewTask(core.TaskID(uuid.NewString()), op, params, timeout).WithWorkspace(wsID)
	if err := m.store.SaveTask(ctx, t); err != nil {
		m.unwind(nil, allocated)
		return nil, err
	}
	if err := m.queue.Enqueue(ctx, t.ID); err != nil {
		m.unwind(t, allocated)
		return nil, err
	}

	m.spaces.TriggerEvict()
	if allocated != nil {
		m.bus.Publish(events.NewWorkspaceCreatedEvent(string(allocated.ID), allocated.RepoURL))
	}
	m.bus.Publish(events.NewTaskQueuedEvent(string(t.ID), string(op), string(wsID), t.Attempt))
	m.log.Info("task submitted",
		"task_id", string(t.ID),
		"operation", string(op),
		"workspace_id", string(wsID))
	return t, nil
}

// RunSync executes an operation inline, bypassing the queue. It holds the
// workspace lease for the duration and applies the same dirty-workspace
// contract as the pool: a failed non-idempotent operation quarantines the
// tree from reuse.
func (m *Manager) RunSync(ctx context.Context, op core.Operation, params json.RawMessage, opts TaskOptions) (json.RawMessage, error) {
	if !op.Known() {
		return nil, core.ErrValidation(core.CodeInvalidParamValue, fmt.Sprintf("unknown operation: %s", op))
	}
	if !m.admit() {
		m.log.Warn("submission rate limited", "operation", string(op))
		return nil, core.ErrRateLimited("submission rate limit exceeded")
	}
	timeout, err := resolveTimeout(opts.Timeout, m.syncTimeout)
	if err != nil {
		return nil, err
	}
	wsID, allocated, err := m.resolveWorkspace(ctx, op, opts)
	if err != nil {
		return nil, err
	}
	ws, err := m.spaces.Acquire(ctx, wsID)
	if err != nil {
		m.unwind(nil, allocated)
		return nil, err
	}

	t := core.NewTask(core.TaskID(uuid.NewString()), op, params, timeout).WithWorkspace(wsID)
	_ = t.MarkRunning()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	start := time.Now()
	payload, runErr := m.invoke(runCtx, t, ws)
	cancel()
	elapsed := time.Since(start)

	if runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			runErr = core.ErrTask(core.CodeTaskTimeout, fmt.Sprintf("operation exceeded its %s timeout", timeout)).
				WithSuggestion("raise the timeout override or submit the operation as a task")
		}
		if allocated == nil && !op.Idempotent() {
			m.markDirty(ws)
		}
		m.spaces.Release(wsID)
		m.appendSyncLog(op, wsID, core.TaskStatusFailed, elapsed, runErr)
		// A workspace allocated for this call holds nothing worth keeping.
		m.unwind(nil, allocated)
		m.log.Warn("operation failed",
			"operation", string(op),
			"workspace_id", string(wsID),
			"error", runErr)
		return nil, runErr
	}

	m.spaces.Release(wsID)
	m.appendSyncLog(op, wsID, core.TaskStatusCompleted, elapsed, nil)
	if allocated != nil {
		m.bus.Publish(events.NewWorkspaceCreatedEvent(string(allocated.ID), allocated.RepoURL))
	}
	m.log.Info("operation completed",
		"operation", string(op),
		"workspace_id", string(wsID),
		"duration_ms", elapsed.Milliseconds())
	return payload, nil
}

// invoke runs the operation with panic containment so a runner bug cannot
// take down the caller's request loop.
func (m *Manager) invoke(ctx context.Context, t *core.Task, ws *core.Workspace) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("operation panicked",
				"operation", string(t.Operation),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()))
			err = core.ErrInternal("operation panicked").WithCause(fmt.Errorf("%v", r))
		}
	}()
	return m.runner.Run(ctx, t, ws, func(int) {})
}

// Status returns the persisted task record.
func (m *Manager) Status(ctx context.Context, id core.TaskID) (*core.Task, error) {
	return m.store.GetTask(ctx, id)
}

// Cancel requests cancellation. Queued tasks turn terminal immediately,
// running ones when the adapter returns. Repeat calls and calls on
// finished tasks report false.
func (m *Manager) Cancel(ctx context.Context, id core.TaskID) (bool, error) {
	return m.pool.Cancel(ctx, id)
}

// List returns tasks matching the filter, newest first.
func (m *Manager) List(ctx context.Context, f core.TaskFilter) ([]*core.Task, error) {
	return m.store.ListTasks(ctx, f)
}

// Logs returns audit entries matching the filter, newest first.
func (m *Manager) Logs(ctx context.Context, f core.OpLogFilter) ([]*core.OperationLog, error) {
	return m.store.ListOperationLogs(ctx, f)
}

// AllocateWorkspace creates an empty workspace for later operations.
func (m *Manager) AllocateWorkspace(ctx context.Context, remoteURL string) (*core.Workspace, error) {
	ws, err := m.spaces.Allocate(ctx, core.StripURLCredentials(remoteURL))
	if err != nil {
		return nil, err
	}
	m.bus.Publish(events.NewWorkspaceCreatedEvent(string(ws.ID), ws.RepoURL))
	return ws, nil
}

// GetWorkspace returns one workspace record.
func (m *Manager) GetWorkspace(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error) {
	return m.spaces.Get(ctx, id)
}

// ListWorkspaces returns all workspace records, least recently used first.
func (m *Manager) ListWorkspaces(ctx context.Context) ([]*core.Workspace, error) {
	return m.spaces.List(ctx)
}

// DeleteWorkspace removes a workspace directory and record. Leased
// workspaces are refused.
func (m *Manager) DeleteWorkspace(ctx context.Context, id core.WorkspaceID) error {
	if err := m.spaces.Delete(ctx, id); err != nil {
		return err
	}
	m.bus.Publish(events.NewWorkspaceDeletedEvent(string(id)))
	return nil
}

// ClearQuarantine lifts the dirty flag so a workspace can be acquired
// again after operator inspection.
func (m *Manager) ClearQuarantine(ctx context.Context, id core.WorkspaceID) error {
	return m.spaces.ClearQuarantine(ctx, id)
}

// DiskSpace reports filesystem capacity under the workspace root.
func (m *Manager) DiskSpace(ctx context.Context) (*workspace.DiskSpace, error) {
	return m.spaces.DiskSpace(ctx)
}

// WorkspaceUsage returns the tracked byte total across all workspaces.
func (m *Manager) WorkspaceUsage(ctx context.Context) (int64, error) {
	return m.spaces.Usage(ctx)
}

// resolveWorkspace validates the target workspace, allocating a fresh one
// for repository-creating operations submitted without one. The second
// return value is non-nil only when this call allocated.
func (m *Manager) resolveWorkspace(ctx context.Context, op core.Operation, opts TaskOptions) (core.WorkspaceID, *core.Workspace, error) {
	if opts.WorkspaceID != "" {
		if _, err := m.spaces.Get(ctx, opts.WorkspaceID); err != nil {
			return "", nil, err
		}
		return opts.WorkspaceID, nil, nil
	}
	if op != core.OpClone && op != core.OpInit {
		return "", nil, core.ErrValidation(core.CodeMissingRequiredParam,
			fmt.Sprintf("workspace_id is required for %s", op))
	}
	ws, err := m.spaces.Allocate(ctx, core.StripURLCredentials(opts.RemoteURL))
	if err != nil {
		return "", nil, err
	}
	return ws.ID, ws, nil
}

// unwind rolls back the side effects of a failed admission. It runs on a
// fresh context so a cancelled caller cannot leak records: an orphaned
// QUEUED row would be re-enqueued by the next boot's recovery pass.
func (m *Manager) unwind(t *core.Task, allocated *core.Workspace) {
	ctx := context.Background()
	if t != nil {
		if err := m.store.DeleteTask(ctx, t.ID); err != nil {
			m.log.Warn("cannot unwind task record", "task_id", string(t.ID), "error", err)
		}
	}
	if allocated != nil {
		if err := m.spaces.Delete(ctx, allocated.ID); err != nil {
			m.log.Warn("cannot unwind allocated workspace", "workspace_id", string(allocated.ID), "error", err)
		}
	}
}

// markDirty flags the workspace after a failed non-idempotent mutation so
// it cannot be reused until an operator clears it.
func (m *Manager) markDirty(ws *core.Workspace) {
	ws.MarkDirty()
	if err := m.store.UpdateWorkspace(context.Background(), ws); err != nil {
		m.log.Warn("cannot mark workspace dirty", "workspace_id", string(ws.ID), "error", err)
	}
}

// appendSyncLog records the audit row for an inline operation. Inline
// runs have no task record, so the task id stays empty.
func (m *Manager) appendSyncLog(op core.Operation, wsID core.WorkspaceID, status core.TaskStatus, d time.Duration, runErr error) {
	entry := &core.OperationLog{
		WorkspaceID: wsID,
		Operation:   op,
		Status:      status,
		Duration:    d,
		CreatedAt:   time.Now().UTC(),
	}
	if dom := core.AsDomain(runErr); dom != nil {
		entry.ErrorCode = dom.Code
		entry.Detail = dom.Message
	}
	if err := m.store.AppendOperationLog(context.Background(), entry); err != nil {
		m.log.Warn("cannot append operation log", "operation", string(op), "error", err)
	}
}

// resolveTimeout applies the fallback and bounds caller overrides.
func resolveTimeout(requested, fallback time.Duration) (time.Duration, error) {
	if requested == 0 {
		return fallback, nil
	}
	if requested < 0 {
		return 0, core.ErrValidation(core.CodeInvalidTimeout, "timeout cannot be negative")
	}
	if requested > maxTimeout {
		return 0, core.ErrValidation(core.CodeInvalidTimeout, fmt.Sprintf("timeout exceeds the %s ceiling", maxTimeout))
	}
	return requested, nil
}
