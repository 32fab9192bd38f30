package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerWorkspaceTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name: "git_allocate_workspace",
		Description: "Allocate an empty managed workspace directory. Returns its ID and path. " +
			"Most callers can skip this: git_clone and git_init allocate one automatically.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"repo_url": stringProp("Repository URL the workspace is intended for, used as an eviction label"),
		}),
	}, h.handleAllocateWorkspace)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_get_workspace",
		Description: "Look up one workspace: path, source URL, size, dirty flag and usage timestamps.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id": workspaceIDProp(),
		}, "workspace_id"),
	}, h.handleGetWorkspace)

	srv.RegisterTool(mcp.Tool{
		Name: "git_release_workspace",
		Description: "Delete a workspace directory and its record. Fails while the workspace is " +
			"leased by a running task.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id": workspaceIDProp(),
		}, "workspace_id"),
	}, h.handleReleaseWorkspace)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_list_workspaces",
		Description: "List all managed workspaces, least recently used first.",
		InputSchema: objectSchema(nil),
	}, h.handleListWorkspaces)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_disk_space",
		Description: "Report filesystem capacity under the workspace root and the tracked workspace byte total.",
		InputSchema: objectSchema(nil),
	}, h.handleDiskSpace)
}

func (h *Handlers) handleAllocateWorkspace(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		RepoURL string `json:"repo_url"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.RepoURL != "" {
		if err := core.ValidateRemoteURL(in.RepoURL, h.allowFileURLs); err != nil {
			return h.errorResult(err), nil
		}
	}
	ws, err := h.mgr.AllocateWorkspace(ctx, core.StripURLCredentials(in.RepoURL))
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(ws)
}

func (h *Handlers) handleGetWorkspace(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.WorkspaceID == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "workspace_id is required")), nil
	}
	ws, err := h.mgr.GetWorkspace(ctx, core.WorkspaceID(in.WorkspaceID))
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(ws)
}

func (h *Handlers) handleReleaseWorkspace(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.WorkspaceID == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "workspace_id is required")), nil
	}
	if err := h.mgr.DeleteWorkspace(ctx, core.WorkspaceID(in.WorkspaceID)); err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(struct {
		WorkspaceID string `json:"workspace_id"`
		Released    bool   `json:"released"`
	}{WorkspaceID: in.WorkspaceID, Released: true})
}

func (h *Handlers) handleListWorkspaces(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	workspaces, err := h.mgr.ListWorkspaces(ctx)
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(struct {
		Workspaces []*core.Workspace `json:"workspaces"`
		Count      int               `json:"count"`
	}{Workspaces: workspaces, Count: len(workspaces)})
}

func (h *Handlers) handleDiskSpace(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	space, err := h.mgr.DiskSpace(ctx)
	if err != nil {
		return h.errorResult(err), nil
	}
	used, err := h.mgr.WorkspaceUsage(ctx)
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(struct {
		Path           string  `json:"path"`
		TotalBytes     uint64  `json:"total_bytes"`
		FreeBytes      uint64  `json:"free_bytes"`
		UsedBytes      uint64  `json:"used_bytes"`
		UsedPercent    float64 `json:"used_percent"`
		WorkspaceBytes int64   `json:"workspace_bytes"`
	}{
		Path:           space.Path,
		TotalBytes:     space.TotalBytes,
		FreeBytes:      space.FreeBytes,
		UsedBytes:      space.UsedBytes,
		UsedPercent:    space.UsedPercent,
		WorkspaceBytes: used,
	})
}
