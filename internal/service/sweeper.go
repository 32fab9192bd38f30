package service

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
)

// RunMaintenance drives the periodic sweeps until the context ends:
// settling tasks stuck past their deadline and purging terminal records
// past the retention horizon. Intended to run under the server's
// errgroup next to the pool and the workspace sweeper.
func (m *Manager) RunMaintenance(ctx context.Context) error {
	timeoutTick := time.NewTicker(m.timeoutEvery)
	defer timeoutTick.Stop()
	purgeTick := time.NewTicker(m.purgeEvery)
	defer purgeTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutTick.C:
			if _, err := m.SweepTimeouts(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("timeout sweep failed", "error", err)
			}
		case <-purgeTick.C:
			if _, _, err := m.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("retention purge failed", "error", err)
			}
		}
	}
}

// SweepTimeouts settles RUNNING records whose deadline passed without a
// live execution behind them, which happens when a previous process died
// mid-task. Tasks the pool is actively running are skipped; the pool's
// own deadline handling settles those. Returns the number swept.
func (m *Manager) SweepTimeouts(ctx context.Context) (int, error) {
	tasks, err := m.store.ListTasks(ctx, core.TaskFilter{
		Statuses: []core.TaskStatus{core.TaskStatusRunning},
	})
	if err != nil {
		return 0, err
	}

	now := time.Now()
	swept := 0
	for _, t := range tasks {
		if !t.Expired(now) || m.pool.Running(t.ID) {
			continue
		}
		if err := t.MarkTimedOut(); err != nil {
			continue
		}
		if err := m.store.UpdateTask(ctx, t); err != nil {
			m.log.Warn("cannot persist swept task", "task_id", string(t.ID), "error", err)
			continue
		}
		m.appendTaskLog(t)
		m.bus.Publish(events.NewTaskTimedOutEvent(string(t.ID), string(t.Operation)))
		m.log.Warn("stale running task timed out",
			"task_id", string(t.ID),
			"operation", string(t.Operation))
		swept++
	}
	return swept, nil
}

// PurgeExpired removes terminal tasks and audit entries older than the
// result retention horizon. A non-positive retention keeps records
// forever. Returns the rows removed from each table.
func (m *Manager) PurgeExpired(ctx context.Context) (tasks, logs int, err error) {
	retention := m.retentionHorizon()
	if retention <= 0 {
		return 0, 0, nil
	}
	cutoff := time.Now().Add(-retention)
	tasks, err = m.store.PurgeTasksBefore(ctx, cutoff)
	if err != nil {
		return tasks, 0, err
	}
	logs, err = m.store.PurgeOperationLogsBefore(ctx, cutoff)
	if err != nil {
		return tasks, logs, err
	}
	if tasks > 0 || logs > 0 {
		m.log.Debug("retention purge", "tasks", tasks, "op_logs", logs)
	}
	return tasks, logs, nil
}

// appendTaskLog records the audit row for a task the sweeper settled.
func (m *Manager) appendTaskLog(t *core.Task) {
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
	if err := m.store.AppendOperationLog(context.Background(), entry); err != nil {
		m.log.Warn("cannot append operation log", "task_id", string(t.ID), "error", err)
	}
}
