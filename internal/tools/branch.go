package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerBranchTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_list_branches",
		Description: "List branches with their tip commit, upstream and current marker.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"include_remote":  boolProp("Also list remote-tracking branches"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleListBranches)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_create_branch",
		Description: "Create a branch, optionally from a start point, optionally checking it out.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"name":            stringProp("Name of the branch to create"),
			"start_point":     stringProp("Commit the branch starts from; defaults to HEAD"),
			"checkout":        boolProp("Switch to the branch after creating it"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "name"),
	}, h.handleCreateBranch)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_delete_branch",
		Description: "Delete a branch. Unmerged branches need force.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"name":            stringProp("Name of the branch to delete"),
			"force":           boolProp("Delete even when the branch is not merged"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "name"),
	}, h.handleDeleteBranch)

	srv.RegisterTool(mcp.Tool{
		Name: "git_merge",
		Description: "Merge a ref into the current branch as a background task. Conflicts fail the " +
			"task with the conflicting file list and leave the workspace quarantined.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"ref":             stringProp("Branch or commit to merge into HEAD"),
			"no_ff":           boolProp("Always create a merge commit"),
			"ff_only":         boolProp("Refuse merges that are not fast-forwards"),
			"squash":          boolProp("Squash the merged history into the index"),
			"message":         stringProp("Merge commit message override"),
			"strategy":        enumProp("Merge strategy", "ort", "recursive", "resolve", "octopus", "ours", "subtree"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "ref"),
	}, h.handleMerge)

	srv.RegisterTool(mcp.Tool{
		Name: "git_rebase",
		Description: "Rebase the current branch onto an upstream as a background task. Conflicts " +
			"abort the rebase and fail the task with the conflicting files.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"upstream":        stringProp("Upstream the branch is replayed onto"),
			"onto":            stringProp("Replay onto this ref instead of the upstream tip"),
			"autostash":       boolProp("Stash local changes around the rebase"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "upstream"),
	}, h.handleRebase)
}

func (h *Handlers) handleListBranches(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		branchListParams
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpBranchList, in.branchListParams, in.target)
}

func (h *Handlers) handleCreateBranch(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.BranchCreateOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRefName("branch", in.Name); err != nil {
		return h.errorResult(err), nil
	}
	if in.StartPoint != "" {
		if err := core.ValidateCommitish(in.StartPoint); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.runSync(ctx, core.OpBranchCreate, in.BranchCreateOptions, in.target)
}

func (h *Handlers) handleDeleteBranch(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.BranchDeleteOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRefName("branch", in.Name); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpBranchDelete, in.BranchDeleteOptions, in.target)
}

func (h *Handlers) handleMerge(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.MergeOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateCommitish(in.Ref); err != nil {
		return h.errorResult(err), nil
	}
	if in.NoFastForward && in.FFOnly {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"no_ff and ff_only are mutually exclusive")), nil
	}
	if in.Squash && in.FFOnly {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"squash and ff_only are mutually exclusive")), nil
	}
	switch in.Strategy {
	case "", "ort", "recursive", "resolve", "octopus", "ours", "subtree":
	default:
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"unknown merge strategy")), nil
	}
	if in.Message != "" {
		if err := core.ValidateCommitMessage(in.Message); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.submit(ctx, core.OpMerge, in.MergeOptions, in.target.options())
}

func (h *Handlers) handleRebase(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.RebaseOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateCommitish(in.Upstream); err != nil {
		return h.errorResult(err), nil
	}
	if in.Onto != "" {
		if err := core.ValidateCommitish(in.Onto); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.submit(ctx, core.OpRebase, in.RebaseOptions, in.target.options())
}
