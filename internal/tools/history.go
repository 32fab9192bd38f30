package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

// defaultLogCount bounds history listings when the caller does not ask
// for a specific count.
const (
	defaultLogCount = 50
	maxLogCount     = 1000
)

func (h *Handlers) registerHistoryTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_log",
		Description: "List commit history, newest first. Bounded count with author, message and path filters.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"ref":             stringProp("Start listing from this revision instead of HEAD"),
			"max_count":       intProp("Maximum commits to return (default 50, max 1000)"),
			"skip":            intProp("Commits to skip before listing"),
			"since":           stringProp("Only commits after this date (git approxidate)"),
			"until":           stringProp("Only commits before this date"),
			"author":          stringProp("Filter by author substring"),
			"grep":            stringProp("Filter by commit message pattern"),
			"path":            stringProp("Only commits touching this path"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleLog)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_show",
		Description: "Show one commit: metadata, message and patch, optionally with a diffstat.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"ref":             stringProp("Commit, tag or ref to show"),
			"stat":            boolProp("Include a diffstat summary"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "ref"),
	}, h.handleShow)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_diff",
		Description: "Diff the working tree, the index or two revisions. Returns per-file stats and the patch.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"base":            stringProp("Base revision; defaults to the working tree comparison"),
			"head":            stringProp("Head revision to compare against base"),
			"staged":          boolProp("Diff the index instead of the working tree"),
			"name_only":       boolProp("List changed paths without patch text"),
			"paths":           stringArrayProp("Limit the diff to these paths"),
			"unified":         intProp("Lines of context around each hunk"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleDiff)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_blame",
		Description: "Annotate a file's lines with the commit and author that last changed them.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"path":            stringProp("File to annotate, relative to the workspace root"),
			"ref":             stringProp("Annotate as of this revision instead of HEAD"),
			"line_start":      intProp("First line of the span to annotate (1-based)"),
			"line_end":        intProp("Last line of the span to annotate"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "path"),
	}, h.handleBlame)
}

func (h *Handlers) handleLog(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.LogOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Ref != "" {
		if err := core.ValidateCommitish(in.Ref); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.MaxCount < 0 || in.Skip < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"max_count and skip cannot be negative")), nil
	}
	if in.MaxCount > maxLogCount {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"max_count exceeds the listing bound")), nil
	}
	if in.Path != "" {
		if err := core.ValidatePaths([]string{in.Path}); err != nil {
			return h.errorResult(err), nil
		}
	}
	params := in.LogOptions
	if params.MaxCount == 0 {
		params.MaxCount = defaultLogCount
	}
	return h.runSync(ctx, core.OpLog, params, in.target)
}

func (h *Handlers) handleShow(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.ShowOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateCommitish(in.Ref); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpShow, in.ShowOptions, in.target)
}

func (h *Handlers) handleDiff(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.DiffOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	for _, ref := range []string{in.Base, in.Head} {
		if ref == "" {
			continue
		}
		if err := core.ValidateCommitish(ref); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.Unified < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"unified cannot be negative")), nil
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpDiff, in.DiffOptions, in.target)
}

func (h *Handlers) handleBlame(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.BlameOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Path == "" {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam, "path is required")), nil
	}
	if err := core.ValidatePaths([]string{in.Path}); err != nil {
		return h.errorResult(err), nil
	}
	if in.Ref != "" {
		if err := core.ValidateCommitish(in.Ref); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.LineStart < 0 || in.LineEnd < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"line numbers cannot be negative")), nil
	}
	if in.LineEnd > 0 && in.LineStart > in.LineEnd {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"line_start cannot exceed line_end")), nil
	}
	return h.runSync(ctx, core.OpBlame, in.BlameOptions, in.target)
}
