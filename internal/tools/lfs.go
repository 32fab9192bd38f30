package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerLFSTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_install",
		Description: "Install Git LFS hooks in a repository.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleLFSInstall)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_init",
		Description: "Initialize Git LFS for a repository. Alias of git_lfs_install.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleLFSInit)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_track",
		Description: "Track file patterns with Git LFS. Updates .gitattributes.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"patterns":        stringArrayProp("Glob patterns to track, e.g. *.bin or assets/**."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "patterns"),
	}, h.handleLFSTrack)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_untrack",
		Description: "Stop tracking file patterns with Git LFS.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"patterns":        stringArrayProp("Glob patterns to untrack."),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "patterns"),
	}, h.handleLFSUntrack)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_status",
		Description: "Show tracked LFS patterns and the LFS files in the working tree.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleLFSStatus)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_pull",
		Description: "Download LFS objects for the current checkout. Returns a task ID; poll with git_get_task.",
		InputSchema: h.lfsTransferSchema(),
	}, h.handleLFSPull)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_push",
		Description: "Upload LFS objects to a remote. Returns a task ID; poll with git_get_task.",
		InputSchema: h.lfsTransferSchema(),
	}, h.handleLFSPush)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_lfs_fetch",
		Description: "Fetch LFS objects from a remote without checking them out. Returns a task ID; poll with git_get_task.",
		InputSchema: h.lfsTransferSchema(),
	}, h.handleLFSFetch)
}

func (h *Handlers) lfsTransferSchema() *mcp.InputSchema {
	return objectSchema(map[string]*mcp.PropertySchema{
		"workspace_id":    workspaceIDProp(),
		"remote":          stringProp("Remote to transfer against. Defaults to the repository default."),
		"include":         stringArrayProp("Only transfer objects whose paths match these patterns."),
		"exclude":         stringArrayProp("Skip objects whose paths match these patterns."),
		"timeout_seconds": timeoutProp(),
	}, "workspace_id")
}

func (h *Handlers) handleLFSInstall(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpLFSInstall, struct{}{}, in.target)
}

func (h *Handlers) handleLFSInit(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpLFSInit, struct{}{}, in.target)
}

func (h *Handlers) handleLFSTrack(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	in, res := h.decodeLFSPatterns(args)
	if res != nil {
		return res, nil
	}
	return h.runSync(ctx, core.OpLFSTrack, lfsPatternParams{Patterns: in.Patterns}, in.target)
}

func (h *Handlers) handleLFSUntrack(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	in, res := h.decodeLFSPatterns(args)
	if res != nil {
		return res, nil
	}
	return h.runSync(ctx, core.OpLFSUntrack, lfsPatternParams{Patterns: in.Patterns}, in.target)
}

type lfsPatternArgs struct {
	target
	Patterns []string `json:"patterns"`
}

func (h *Handlers) decodeLFSPatterns(args json.RawMessage) (lfsPatternArgs, *mcp.ToolCallResult) {
	var in lfsPatternArgs
	if err := decode(args, &in); err != nil {
		return in, h.errorResult(err)
	}
	if len(in.Patterns) == 0 {
		return in, h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "patterns cannot be empty"))
	}
	if err := core.ValidatePaths(in.Patterns); err != nil {
		return in, h.errorResult(err)
	}
	return in, nil
}

func (h *Handlers) handleLFSStatus(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpLFSStatus, struct{}{}, in.target)
}

func (h *Handlers) handleLFSPull(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	return h.submitLFSTransfer(ctx, core.OpLFSPull, args)
}

func (h *Handlers) handleLFSPush(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	return h.submitLFSTransfer(ctx, core.OpLFSPush, args)
}

func (h *Handlers) handleLFSFetch(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	return h.submitLFSTransfer(ctx, core.OpLFSFetch, args)
}

func (h *Handlers) submitLFSTransfer(ctx context.Context, op core.Operation, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.LFSTransferOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Remote != "" {
		if err := core.ValidateRemoteName(in.Remote); err != nil {
			return h.errorResult(err), nil
		}
	}
	if err := core.ValidatePaths(in.Include); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidatePaths(in.Exclude); err != nil {
		return h.errorResult(err), nil
	}
	return h.submit(ctx, op, in.LFSTransferOptions, in.target.options())
}
