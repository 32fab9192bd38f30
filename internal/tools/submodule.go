package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerSubmoduleTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_sparse_checkout",
		Description: "Manage sparse checkout for a repository: init, set or add path patterns, list the active ones, or disable sparsity.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"action":          enumProp("Sparse-checkout subcommand to run.", "init", "set", "add", "list", "disable"),
			"paths":           stringArrayProp("Path patterns for set and add."),
			"cone":            boolProp("Use cone mode (directory prefixes only, faster)."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "action"),
	}, h.handleSparseCheckout)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_submodule_add",
		Description: "Add a submodule to a repository. Returns a task ID; poll with git_get_task.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"url":             stringProp("Submodule repository URL."),
			"path":            stringProp("Workspace-relative path to place the submodule at."),
			"branch":          stringProp("Branch of the submodule to track."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "url", "path"),
	}, h.handleSubmoduleAdd)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_submodule_update",
		Description: "Update submodules to their recorded commits. Returns a task ID; poll with git_get_task.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"init":            boolProp("Initialize submodules before updating."),
			"recursive":       boolProp("Recurse into nested submodules."),
			"remote":          boolProp("Update to the latest remote commit instead of the recorded one."),
			"paths":           stringArrayProp("Limit the update to these submodule paths."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleSubmoduleUpdate)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_submodule_deinit",
		Description: "Unregister submodules and clear their working trees.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"paths":           stringArrayProp("Submodule paths to deinitialize."),
			"all":             boolProp("Deinitialize every submodule."),
			"force":           boolProp("Discard local changes in the submodule working trees."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleSubmoduleDeinit)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_submodule_list",
		Description: "List the submodules registered in a repository with their state.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleSubmoduleList)
}

func (h *Handlers) handleSparseCheckout(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.SparseCheckoutOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	switch in.Action {
	case core.SparseInit, core.SparseSet, core.SparseAdd, core.SparseList, core.SparseDisable:
	default:
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue, "action must be init, set, add, list or disable")), nil
	}
	if (in.Action == core.SparseSet || in.Action == core.SparseAdd) && len(in.Paths) == 0 {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "set and add require paths")), nil
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpSparseCheckout, in.SparseCheckoutOptions, in.target)
}

func (h *Handlers) handleSubmoduleAdd(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.SubmoduleAddOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRemoteURL(in.URL, h.allowFileURLs); err != nil {
		return h.errorResult(err), nil
	}
	if in.Path == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "path is required")), nil
	}
	if err := core.ValidatePaths([]string{in.Path}); err != nil {
		return h.errorResult(err), nil
	}
	if in.Branch != "" {
		if err := core.ValidateRefName("branch", in.Branch); err != nil {
			return h.errorResult(err), nil
		}
	}
	params := in.SubmoduleAddOptions
	params.URL = core.StripURLCredentials(in.URL)
	return h.submit(ctx, core.OpSubmoduleAdd, params, in.target.options())
}

func (h *Handlers) handleSubmoduleUpdate(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.SubmoduleUpdateOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.submit(ctx, core.OpSubmoduleUpd, in.SubmoduleUpdateOptions, in.target.options())
}

func (h *Handlers) handleSubmoduleDeinit(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.SubmoduleDeinitOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if !in.All && len(in.Paths) == 0 {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "provide paths, or set all")), nil
	}
	if in.All && len(in.Paths) > 0 {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict, "paths and all are mutually exclusive")), nil
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpSubmoduleDeinit, in.SubmoduleDeinitOptions, in.target)
}

func (h *Handlers) handleSubmoduleList(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpSubmoduleList, struct{}{}, in.target)
}
