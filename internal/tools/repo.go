package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerRepoTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name: "git_clone",
		Description: "Clone a repository into a workspace as a background task. Returns a task ID " +
			"to poll with git_get_task. Allocates a workspace when none is given. Credentials in " +
			"the URL are stripped; authentication comes from the configured credential methods.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"url":             stringProp("Repository URL (https, ssh, git or scp-like)"),
			"workspace_id":    stringProp("Existing workspace to clone into; omit to allocate one"),
			"branch":          stringProp("Branch to check out after cloning"),
			"depth":           intProp("Shallow clone depth; 0 applies the configured default"),
			"filter":          stringProp("Partial clone filter spec, e.g. blob:none or tree:0"),
			"single_branch":   boolProp("Fetch only the selected branch"),
			"recursive":       boolProp("Initialize submodules after cloning"),
			"sparse_paths":    stringArrayProp("Restrict the working tree to these paths (partial clone)"),
			"lfs":             boolProp("Pull LFS objects after cloning"),
			"bare":            boolProp("Create a bare repository"),
			"timeout_seconds": timeoutProp(),
		}, "url"),
	}, h.handleClone)

	srv.RegisterTool(mcp.Tool{
		Name: "git_init",
		Description: "Initialize an empty repository in a workspace. Allocates a workspace when " +
			"none is given and reports its ID in the result.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    stringProp("Existing workspace to initialize; omit to allocate one"),
			"bare":            boolProp("Create a bare repository"),
			"initial_branch":  stringProp("Name of the initial branch"),
			"timeout_seconds": timeoutProp(),
		}),
	}, h.handleInit)
}

func (h *Handlers) handleClone(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.CloneOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRemoteURL(in.URL, h.allowFileURLs); err != nil {
		return h.errorResult(err), nil
	}
	if in.Branch != "" {
		if err := core.ValidateRefName("branch", in.Branch); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.Depth < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue, "depth cannot be negative")), nil
	}
	if err := core.ValidateCloneFilter(in.Filter); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidatePaths(in.SparsePaths); err != nil {
		return h.errorResult(err), nil
	}

	params := in.CloneOptions
	params.URL = core.StripURLCredentials(in.URL)
	if params.Depth == 0 {
		params.Depth = h.cloneDepth
	}

	opts := in.target.options()
	opts.RemoteURL = params.URL
	return h.submit(ctx, core.OpClone, params, opts)
}

func (h *Handlers) handleInit(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.InitOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.InitialBranch != "" {
		if err := core.ValidateRefName("branch", in.InitialBranch); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.runSync(ctx, core.OpInit, in.InitOptions, in.target)
}
