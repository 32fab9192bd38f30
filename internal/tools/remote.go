package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerRemoteTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_list_remotes",
		Description: "List the remotes configured in a repository with their fetch and push URLs.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleListRemotes)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_add_remote",
		Description: "Add a named remote to a repository.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"name":            stringProp("Remote name, e.g. origin or upstream."),
			"url":             stringProp("Remote URL (https, ssh or git protocol)."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "name", "url"),
	}, h.handleAddRemote)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_remove_remote",
		Description: "Remove a named remote from a repository.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"name":            stringProp("Remote name to remove."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "name"),
	}, h.handleRemoveRemote)
}

func (h *Handlers) handleListRemotes(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpRemoteList, struct{}{}, in.target)
}

func (h *Handlers) handleAddRemote(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRemoteName(in.Name); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRemoteURL(in.URL, h.allowFileURLs); err != nil {
		return h.errorResult(err), nil
	}
	params := remoteAddParams{
		Name: in.Name,
		URL:  core.StripURLCredentials(in.URL),
	}
	return h.runSync(ctx, core.OpRemoteAdd, params, in.target)
}

func (h *Handlers) handleRemoveRemote(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		Name string `json:"name"`
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRemoteName(in.Name); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpRemoteRemove, remoteRemoveParams{Name: in.Name}, in.target)
}
