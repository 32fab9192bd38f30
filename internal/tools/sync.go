package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerSyncTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name: "git_push",
		Description: "Push commits to a remote as a background task. Returns a task ID to poll " +
			"with git_get_task.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":     workspaceIDProp(),
			"remote":           stringProp("Remote to push to; defaults to the configured remote"),
			"ref":              stringProp("Branch, tag or refspec source to push"),
			"force":            boolProp("Overwrite the remote ref unconditionally"),
			"force_with_lease": boolProp("Overwrite only when the remote ref is where we last saw it"),
			"set_upstream":     boolProp("Record the pushed branch as upstream"),
			"tags":             boolProp("Push all tags"),
			"delete":           boolProp("Delete the ref on the remote instead of updating it"),
			"timeout_seconds":  timeoutProp(),
		}, "workspace_id"),
	}, h.handlePush)

	srv.RegisterTool(mcp.Tool{
		Name: "git_pull",
		Description: "Fetch and integrate remote changes as a background task. Merge by default, " +
			"rebase or fast-forward-only on request.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"remote":          stringProp("Remote to pull from; defaults to the configured remote"),
			"branch":          stringProp("Remote branch to integrate; defaults to the tracked branch"),
			"rebase":          boolProp("Rebase the local branch instead of merging"),
			"ff_only":         boolProp("Refuse integration that is not a fast-forward"),
			"prune":           boolProp("Prune deleted remote-tracking refs while fetching"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handlePull)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_fetch",
		Description: "Download refs and objects from a remote as a background task, without touching the working tree.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"remote":          stringProp("Remote to fetch from; defaults to the configured remote"),
			"all":             boolProp("Fetch every configured remote"),
			"prune":           boolProp("Prune deleted remote-tracking refs"),
			"tags":            boolProp("Fetch all tags"),
			"depth":           intProp("Deepen or shallow the history to this depth"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleFetch)
}

func (h *Handlers) handlePush(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.PushOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Force && in.ForceWithLease {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"force and force_with_lease are mutually exclusive")), nil
	}
	if in.Delete && in.Ref == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam,
			"delete requires ref")), nil
	}
	if in.Remote != "" {
		if err := core.ValidateRemoteName(in.Remote); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.Ref != "" {
		if err := core.ValidateCommitish(in.Ref); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.submit(ctx, core.OpPush, in.PushOptions, in.target.options())
}

func (h *Handlers) handlePull(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.PullOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Rebase && in.FFOnly {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"rebase and ff_only are mutually exclusive")), nil
	}
	if in.Remote != "" {
		if err := core.ValidateRemoteName(in.Remote); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.Branch != "" {
		if err := core.ValidateRefName("branch", in.Branch); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.submit(ctx, core.OpPull, in.PullOptions, in.target.options())
}

func (h *Handlers) handleFetch(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.FetchOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.All && in.Remote != "" {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"remote and all are mutually exclusive")), nil
	}
	if in.Remote != "" {
		if err := core.ValidateRemoteName(in.Remote); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.Depth < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"depth cannot be negative")), nil
	}
	return h.submit(ctx, core.OpFetch, in.FetchOptions, in.target.options())
}
