package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// MockStore is an in-memory core.Store. Records are copied on the way in
// and out so tests observe only persisted state, the same way the real
// store behaves.
type MockStore struct {
	mu         sync.Mutex
	tasks      map[core.TaskID]*core.Task
	workspaces map[core.WorkspaceID]*core.Workspace
	opLogs     []*core.OperationLog
	nextLogID  int64

	saveTaskErr   error
	updateTaskErr error
	pingErr       error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks:      make(map[core.TaskID]*core.Task),
		workspaces: make(map[core.WorkspaceID]*core.Workspace),
	}
}

// WithSaveTaskError makes SaveTask fail.
func (s *MockStore) WithSaveTaskError(err error) *MockStore {
	s.saveTaskErr = err
	return s
}

// WithUpdateTaskError makes UpdateTask fail.
func (s *MockStore) WithUpdateTaskError(err error) *MockStore {
	s.updateTaskErr = err
	return s
}

// WithPingError makes Ping fail.
func (s *MockStore) WithPingError(err error) *MockStore {
	s.pingErr = err
	return s
}

// SaveTask inserts a task record.
func (s *MockStore) SaveTask(ctx context.Context, t *core.Task) error {
	if s.saveTaskErr != nil {
		return s.saveTaskErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return core.ErrInternal(fmt.Sprintf("duplicate task %s", t.ID))
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// UpdateTask overwrites an existing task record.
func (s *MockStore) UpdateTask(ctx context.Context, t *core.Task) error {
	if s.updateTaskErr != nil {
		return s.updateTaskErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return core.ErrTaskNotFound(t.ID)
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// GetTask returns a copy of the stored task.
func (s *MockStore) GetTask(ctx context.Context, id core.TaskID) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, core.ErrTaskNotFound(id)
	}
	return cloneTask(t), nil
}

// ListTasks returns matching tasks newest first.
func (s *MockStore) ListTasks(ctx context.Context, f core.TaskFilter) ([]*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[core.TaskStatus]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = true
	}

	out := make([]*core.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if len(statuses) > 0 && !statuses[t.Status] {
			continue
		}
		if f.Operation != "" && t.Operation != f.Operation {
			continue
		}
		if f.WorkspaceID != "" && t.WorkspaceID != f.WorkspaceID {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteTask removes a single task record.
func (s *MockStore) DeleteTask(ctx context.Context, id core.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return core.ErrTaskNotFound(id)
	}
	delete(s.tasks, id)
	return nil
}

// PurgeTasksBefore removes terminal tasks completed before the cutoff.
func (s *MockStore) PurgeTasksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, t := range s.tasks {
		if t.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// SaveWorkspace inserts a workspace record.
func (s *MockStore) SaveWorkspace(ctx context.Context, w *core.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[w.ID]; ok {
		return core.ErrInternal(fmt.Sprintf("duplicate workspace %s", w.ID))
	}
	s.workspaces[w.ID] = cloneWorkspace(w)
	return nil
}

// UpdateWorkspace overwrites an existing workspace record.
func (s *MockStore) UpdateWorkspace(ctx context.Context, w *core.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[w.ID]; !ok {
		return core.ErrWorkspaceNotFound(w.ID)
	}
	s.workspaces[w.ID] = cloneWorkspace(w)
	return nil
}

// GetWorkspace returns a copy of the stored workspace.
func (s *MockStore) GetWorkspace(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok {
		return nil, core.ErrWorkspaceNotFound(id)
	}
	return cloneWorkspace(w), nil
}

// ListWorkspaces returns workspaces least recently used first.
func (s *MockStore) ListWorkspaces(ctx context.Context) ([]*core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, cloneWorkspace(w))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.Before(out[j].LastUsedAt)
	})
	return out, nil
}

// DeleteWorkspace removes a workspace record.
func (s *MockStore) DeleteWorkspace(ctx context.Context, id core.WorkspaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[id]; !ok {
		return core.ErrWorkspaceNotFound(id)
	}
	delete(s.workspaces, id)
	return nil
}

// AppendOperationLog records an audit entry.
func (s *MockStore) AppendOperationLog(ctx context.Context, entry *core.OperationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	e := *entry
	e.ID = s.nextLogID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.opLogs = append(s.opLogs, &e)
	return nil
}

// ListOperationLogs returns matching audit entries newest first.
func (s *MockStore) ListOperationLogs(ctx context.Context, f core.OpLogFilter) ([]*core.OperationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.OperationLog, 0, len(s.opLogs))
	for _, e := range s.opLogs {
		if f.TaskID != "" && e.TaskID != f.TaskID {
			continue
		}
		if f.WorkspaceID != "" && e.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.Operation != "" && e.Operation != f.Operation {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// PurgeOperationLogsBefore deletes audit entries older than cutoff.
func (s *MockStore) PurgeOperationLogsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.opLogs[:0]
	removed := 0
	for _, e := range s.opLogs {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.opLogs = kept
	return removed, nil
}

// Ping reports the injected ping error, if any.
func (s *MockStore) Ping(ctx context.Context) error {
	return s.pingErr
}

// Close is a no-op.
func (s *MockStore) Close() error {
	return nil
}

// TaskCount returns how many task records exist, for test assertions.
func (s *MockStore) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// OpLogCount returns how many audit entries exist, for test assertions.
func (s *MockStore) OpLogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opLogs)
}

func cloneTask(t *core.Task) *core.Task {
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	return &c
}

func cloneWorkspace(w *core.Workspace) *core.Workspace {
	c := *w
	return &c
}

var _ core.Store = (*MockStore)(nil)
