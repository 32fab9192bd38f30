package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
)

func (h *Handlers) registerWorktreeTools(srv *mcp.Server) {
	srv.RegisterTool(mcp.Tool{
		Name:        "git_status",
		Description: "Report the current branch, ahead/behind counts and staged, unstaged, untracked and conflicted files.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleStatus)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_stage",
		Description: "Stage files for the next commit. Provide explicit paths, or set all/update for bulk staging.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"paths":           stringArrayProp("Paths to stage, relative to the workspace root"),
			"all":             boolProp("Stage every change including untracked files"),
			"update":          boolProp("Stage modified tracked files only"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleStage)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_commit",
		Description: "Record the staged changes as a commit. Returns the new commit hash and change stats.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"message":         stringProp("Commit message"),
			"author_name":     stringProp("Override the author name for this commit"),
			"author_email":    stringProp("Override the author email for this commit"),
			"allow_empty":     boolProp("Permit a commit with no staged changes"),
			"amend":           boolProp("Amend the previous commit instead of creating a new one"),
			"sign_off":        boolProp("Append a Signed-off-by trailer"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "message"),
	}, h.handleCommit)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_checkout",
		Description: "Switch to a branch or commit, optionally creating the branch, or restore specific paths from a ref.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"ref":             stringProp("Branch, tag or commit to check out"),
			"create":          boolProp("Create the branch before switching"),
			"start_point":     stringProp("Commit the created branch starts from"),
			"force":           boolProp("Discard local modifications that block the switch"),
			"paths":           stringArrayProp("Restore only these paths from the ref"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "ref"),
	}, h.handleCheckout)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_reset",
		Description: "Move HEAD to a ref (soft/mixed/hard) or unstage the given paths.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"mode":            enumProp("Reset mode; defaults to mixed", "soft", "mixed", "hard"),
			"ref":             stringProp("Target revision; defaults to HEAD"),
			"paths":           stringArrayProp("Unstage only these paths instead of moving HEAD"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleReset)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_clean",
		Description: "Remove untracked files from the working tree. Use dry_run to preview what would go.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"directories":     boolProp("Also remove untracked directories"),
			"ignored":         boolProp("Also remove ignored files"),
			"dry_run":         boolProp("List removals without deleting anything"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id"),
	}, h.handleClean)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_cherry_pick",
		Description: "Apply existing commits on top of HEAD. Conflicts abort the pick and report the conflicting files.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"commits":         stringArrayProp("Commits to apply, in order"),
			"no_commit":       boolProp("Stage the changes without committing"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "commits"),
	}, h.handleCherryPick)

	srv.RegisterTool(mcp.Tool{
		Name:        "git_revert",
		Description: "Create commits that undo existing ones. Conflicts abort the revert and report the conflicting files.",
		InputSchema: objectSchema(map[string]*mcp.PropertySchema{
			"workspace_id":    workspaceIDProp(),
			"commits":         stringArrayProp("Commits to revert, in order"),
			"no_commit":       boolProp("Stage the inverse changes without committing"),
			"timeout_seconds": timeoutProp(),
		}, "workspace_id", "commits"),
	}, h.handleRevert)
}

func (h *Handlers) handleStatus(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpStatus, struct{}{}, in.target)
}

func (h *Handlers) handleStage(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.StageOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if !in.All && !in.Update && len(in.Paths) == 0 {
		return h.errorResult(core.ErrValidation(core.CodeMissingRequiredParam,
			"provide paths, or set all or update")), nil
	}
	if in.All && len(in.Paths) > 0 {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"paths and all are mutually exclusive")), nil
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpAdd, in.StageOptions, in.target)
}

func (h *Handlers) handleCommit(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.CommitOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Message == "" && !in.AllowEmpty && !in.Amend {
		return h.errorResult(core.ErrValidation(core.CodeInvalidCommitMessage,
			"commit message is required")), nil
	}
	if in.Message != "" {
		if err := core.ValidateCommitMessage(in.Message); err != nil {
			return h.errorResult(err), nil
		}
	}
	return h.runSync(ctx, core.OpCommit, in.CommitOptions, in.target)
}

func (h *Handlers) handleCheckout(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.CheckoutOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if in.Create {
		if err := core.ValidateRefName("branch", in.Ref); err != nil {
			return h.errorResult(err), nil
		}
	} else if err := core.ValidateCommitish(in.Ref); err != nil {
		return h.errorResult(err), nil
	}
	if in.StartPoint != "" {
		if err := core.ValidateCommitish(in.StartPoint); err != nil {
			return h.errorResult(err), nil
		}
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpCheckout, in.CheckoutOptions, in.target)
}

func (h *Handlers) handleReset(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.ResetOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	switch in.Mode {
	case "", core.ResetSoft, core.ResetMixed, core.ResetHard:
	default:
		return h.errorResult(core.ErrValidation(core.CodeInvalidParamValue,
			"mode must be soft, mixed or hard")), nil
	}
	if in.Mode == core.ResetHard && len(in.Paths) > 0 {
		return h.errorResult(core.ErrValidation(core.CodeParameterConflict,
			"a hard reset cannot target individual paths")), nil
	}
	if in.Ref != "" {
		if err := core.ValidateCommitish(in.Ref); err != nil {
			return h.errorResult(err), nil
		}
	}
	if err := core.ValidatePaths(in.Paths); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpReset, in.ResetOptions, in.target)
}

func (h *Handlers) handleClean(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.CleanOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpClean, in.CleanOptions, in.target)
}

func (h *Handlers) handleCherryPick(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.CherryPickOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := validateCommitList(in.Commits); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpCherryPick, in.CherryPickOptions, in.target)
}

func (h *Handlers) handleRevert(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var in struct {
		target
		core.RevertOptions
	}
	if err := decode(args, &in); err != nil {
		return h.errorResult(err), nil
	}
	if err := validateCommitList(in.Commits); err != nil {
		return h.errorResult(err), nil
	}
	return h.runSync(ctx, core.OpRevert, in.RevertOptions, in.target)
}

func validateCommitList(commits []string) error {
	if len(commits) == 0 {
		return core.ErrValidation(core.CodeMissingRequiredParam, "commits cannot be empty")
	}
	for _, c := range commits {
		if err := core.ValidateCommitish(c); err != nil {
			return err
		}
	}
	return nil
}
