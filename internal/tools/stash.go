package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerStashTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_stash",
		Description: "Save, reapply or drop working tree changes. Action push saves, pop and apply restore, drop discards.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":      workspaceIDProp(),
			"action":            enumProp("Stash action; defaults to push", "push", "pop", "apply", "drop"),
			"message":           stringProp("Label for a pushed stash"),
			"include_untracked": boolProp("Include untracked files when pushing"),
			"index":             intProp("Stash entry to pop, apply or drop (0 is the newest)"),
			"timeout_seconds":   timeoutProp(),
		}, "workspace_id"),
	}, h.handleStash)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_list_stash",
		Description: "List saved stash entries with their index, message and source branch.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleListStash)
}

func (h *Handlers) handleStash(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.StashOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Action == "" {
		in.Action = core.StashPush
	}
	switch in.Action {
	case core.StashPush, core.StashPop, core.StashApply, core.StashDrop:
	default:
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"action must be push, pop, apply or drop")), nil
	}
	if in.Index < 0 {
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"index cannot be negative")), nil
	}
	if in.Message != "" {
		if err := core.ValidateCommitMessage(in.Message); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.runSync(ctx, core.OpStash, in.StashOptions, in.target)
}

func (h *Handlers) handleListStash(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpStashList, struct{}{}, in.target)
}
