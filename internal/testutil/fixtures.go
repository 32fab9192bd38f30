package testutil

import (
	"encoding/json"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// NewTestTask creates a queued task with sensible defaults. Use functional
// options to override specific fields.
func NewTestTask(opts ...func(*core.Task)) *core.Task {
	t := core.NewTask("task-test", core.OpStatus, json.RawMessage(`{}`), 30*time.Second)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithID overrides the task ID.
func WithID(id core.TaskID) func(*core.Task) {
	return func(t *core.Task) { t.ID = id }
}

// WithOperation overrides the operation.
func WithOperation(op core.Operation) func(*core.Task) {
	return func(t *core.Task) { t.Operation = op }
}

// WithParams overrides the raw parameters.
func WithParams(params string) func(*core.Task) {
	return func(t *core.Task) { t.Params = json.RawMessage(params) }
}

// WithTaskWorkspace binds the task to a workspace.
func WithTaskWorkspace(id core.WorkspaceID) func(*core.Task) {
	return func(t *core.Task) { t.WorkspaceID = id }
}

// WithTimeout overrides the timeout and recomputes the deadline.
func WithTimeout(d time.Duration) func(*core.Task) {
	return func(t *core.Task) {
		t.Timeout = d
		t.Deadline = t.CreatedAt.Add(d)
	}
}

// NewTestWorkspace creates a workspace record rooted at path.
func NewTestWorkspace(id core.WorkspaceID, path string) *core.Workspace {
	return core.NewWorkspace(id, path, "https://example.com/org/repo.git")
}
