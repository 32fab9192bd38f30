package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// handleListTasks returns tasks newest first, narrowed by the status,
// operation, workspace_id, limit and offset query parameters.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f, err := taskFilterFromQuery(r)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	tasks, err := s.mgr.List(r.Context(), f)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*core.Task{}
	}

	respondJSON(w, http.StatusOK, struct {
		Tasks []*core.Task `json:"tasks"`
		Count int          `json:"count"`
	}{Tasks: tasks, Count: len(tasks)})
}

// handleGetTask returns a single task record.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	task, err := s.mgr.Status(r.Context(), core.TaskID(id))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// handleGetTaskLogs returns the audit entries recorded for one task.
func (s *Server) handleGetTaskLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	if _, err := s.mgr.Status(r.Context(), core.TaskID(id)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	logs, err := s.mgr.Logs(r.Context(), core.OpLogFilter{TaskID: core.TaskID(id)})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if logs == nil {
		logs = []*core.OperationLog{}
	}

	respondJSON(w, http.StatusOK, struct {
		Logs  []*core.OperationLog `json:"logs"`
		Count int                  `json:"count"`
	}{Logs: logs, Count: len(logs)})
}

func taskFilterFromQuery(r *http.Request) (core.TaskFilter, error) {
	q := r.URL.Query()
	f := core.TaskFilter{
		WorkspaceID: core.WorkspaceID(q.Get("workspace_id")),
	}

	if raw := q.Get("status"); raw != "" {
		switch st := core.TaskStatus(raw); st {
		case core.TaskStatusQueued, core.TaskStatusRunning, core.TaskStatusCompleted,
			core.TaskStatusFailed, core.TaskStatusCancelled, core.TaskStatusTimedOut:
			f.Statuses = []core.TaskStatus{st}
		default:
			return f, core.ErrValidation(core.CodeInvalidParamValue,
				"status must be queued, running, completed, failed, cancelled or timed_out")
		}
	}

	if raw := q.Get("operation"); raw != "" {
		op := core.Operation(raw)
		if !op.Known() {
			return f, core.ErrValidation(core.CodeInvalidParamValue,
				fmt.Sprintf("unknown operation %q", raw))
		}
		f.Operation = op
	}

	var err error
	if f.Limit, err = intQueryParam(q.Get("limit"), defaultListLimit, "limit"); err != nil {
		return f, err
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset, err = intQueryParam(q.Get("offset"), 0, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intQueryParam(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, core.ErrValidation(core.CodeInvalidParamValue,
			name+" must be a non-negative integer")
	}
	return n, nil
}
