package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerTagTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_list_tags",
		Description: "List tags with their target commit and annotation message.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleListTags)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_create_tag",
		Description: "Create a tag at a ref. A message makes the tag annotated.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"name":            stringProp("Name of the tag to create"),
			"ref":             stringProp("Commit the tag points at; defaults to HEAD"),
			"message":         stringProp("Annotation message; omit for a lightweight tag"),
			"force":           boolProp("Replace the tag if it already exists"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "name"),
	}, h.handleCreateTag)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_delete_tag",
		Description: "Delete a local tag.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"name":            stringProp("Name of the tag to delete"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "name"),
	}, h.handleDeleteTag)
}

func (h *Handlers) handleListTags(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpTagList, struct{}{}, in.target)
}

func (h *Handlers) handleCreateTag(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.TagCreateOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRefName("tag", in.Name); err != nil {
		return h.errorResult(err), nil
	}
	if in.Ref != "" {
		if err := core.ValidateCommitish(in.Ref); err != nil {
			return h.errorResult(err), nil
		}
	}
	if in.Message != "" {
		if err := core.ValidateCommitMessage(in.Message); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.runSync(ctx, core.OpTagCreate, in.TagCreateOptions, in.target)
}

func (h *Handlers) handleDeleteTag(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		tagDeleteParams
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := core.ValidateRefName("tag", in.Name); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpTagDelete, in.tagDeleteParams, in.target)
}
