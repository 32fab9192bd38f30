package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

const (
	defaultTaskListLimit = 50
	maxTaskListLimit     = 500
)

func (h *Handlers) registerTaskTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_get_task",
		Description: "Fetch a task by ID: status, progress, result or error. Optionally include its audit log entries.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"task_id":      stringProp("Task ID returned by an asynchronous tool."),
			"include_logs": boolProp("Also return the audit log entries recorded for this task."),
		}, "task_id"),
	}, h.handleGetTask)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_list_tasks",
		Description: "List tasks newest first, optionally filtered by status, operation or workspace.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"status":       enumProp("Only return tasks in this state.", "queued", "running", "completed", "failed", "cancelled", "timed_out"),
			"operation":    stringProp("Only return tasks for this operation, e.g. clone or push."),
			"workspace_id": stringProp("Only return tasks bound to this workspace."),
			"limit":        intProp("Maximum number of tasks to return (default 50, max 500)."),
			"offset":       intProp("Number of tasks to skip, for paging."),
		}),
	}, h.handleListTasks)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_cancel_task",
		Description: "Cancel a queued or running task. Cancellation of a running task is cooperative and may take a moment.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"task_id": stringProp("Task ID to cancel."),
		}, "task_id"),
	}, h.handleCancelTask)
}

func (h *Handlers) handleGetTask(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		TaskID      string `json:"task_id"`
		IncludeLogs bool   `json:"include_logs"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.TaskID == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "task_id is required")), nil
	}
	task, err := h.mgr.Status(ctx, core.TaskID(in.TaskID))
	if err != nil {
		return h.errorResult(err), nil
	}
	out := struct {
		Task *core.Task           `json:"task"`
		Logs []*core.OperationLog `json:"logs,omitempty"`
	}{Task: task}
	if in.IncludeLogs {
		logs, err := h.mgr.Logs(ctx, core.OpLogFilter{TaskID: task.ID})
		if err != nil {
			return h.errorResult(err), nil
		}
		out.Logs = logs
	}
	return h.jsonResult(out)
}

func (h *Handlers) handleListTasks(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		Status      string `json:"status"`
		Operation   string `json:"operation"`
		WorkspaceID string `json:"workspace_id"`
		Limit       int    `json:"limit"`
		Offset      int    `json:"offset"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Limit < 0 || in.Offset < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue, "limit and offset cannot be negative")), nil
	}
	f := core.TaskFilter{
		WorkspaceID: core.WorkspaceID(in.WorkspaceID),
		Limit:       in.Limit,
		Offset:      in.Offset,
	}
	if in.Status != "" {
		switch s := core.TaskStatus(in.Status); s {
		case core.TaskStatusQueued, core.TaskStatusRunning, core.TaskStatusCompleted,
			core.TaskStatusFailed, core.TaskStatusCancelled, core.TaskStatusTimedOut:
			f.Statuses = []core.TaskStatus{s}
		default:
			return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
				"status must be queued, running, completed, failed, cancelled or timed_out")), nil
		}
	}
	if in.Operation != "" {
		op := core.Operation(in.Operation)
		if !op.Known() {
			return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
				fmt.Sprintf("unknown operation %q", in.Operation))), nil
		}
		f.Operation = op
	}
	if in.Limit == 0 {
		f.Limit = defaultTaskListLimit
	}
	if f.Limit > maxTaskListLimit {
		f.Limit = maxTaskListLimit
	}
	tasks, err := h.mgr.List(ctx, f)
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(struct {
		Tasks []*core.Task `json:"tasks"`
		Count int          `json:"count"`
	}{Tasks: tasks, Count: len(tasks)})
}

func (h *Handlers) handleCancelTask(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		TaskID string `json:"task_id"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.TaskID == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "task_id is required")), nil
	}
	cancelled, err := h.mgr.Cancel(ctx, core.TaskID(in.TaskID))
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(struct {
		TaskID    string `json:"task_id"`
		Cancelled bool   `json:"cancelled"`
	}{TaskID: in.TaskID, Cancelled: cancelled})
}
