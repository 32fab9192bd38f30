package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// conflicted reports whether a failed integration stopped on conflicts.
// Git prints CONFLICT markers to stdout and "could not apply" to stderr.
func conflicted(out output) bool {
	combined := out.combined()
	return strings.Contains(combined, "CONFLICT") ||
		strings.Contains(combined, "could not apply") ||
		strings.Contains(combined, "Merge conflict")
}

// conflictFiles asks the index for unmerged paths, falling back to
// parsing the CONFLICT lines when the index query fails.
func (c *Client) conflictFiles(ctx context.Context, dir string, out output) []string {
	if unmerged, err := c.run(ctx, dir, "diff", "--name-only", "--diff-filter=U"); err == nil && unmerged != "" {
		return strings.Split(unmerged, "\n")
	}
	return parseConflictFiles(out.combined())
}

// Branches lists local branches, plus remote-tracking ones on request.
func (c *Client) Branches(ctx context.Context, dir string, includeRemote bool) ([]core.BranchInfo, error) {
	out, err := c.run(ctx, dir, "branch", "--format="+branchFormat)
	if err != nil {
		return nil, err
	}
	branches := parseBranches(out, false)
	if includeRemote {
		remoteOut, err := c.run(ctx, dir, "branch", "-r", "--format="+branchFormat)
		if err != nil {
			return nil, err
		}
		branches = append(branches, parseBranches(remoteOut, true)...)
	}
	if branches == nil {
		branches = []core.BranchInfo{}
	}
	return branches, nil
}

// CreateBranch creates a branch, optionally checking it out.
func (c *Client) CreateBranch(ctx context.Context, dir string, opts core.BranchCreateOptions) error {
	var args []string
	if opts.Checkout {
		args = []string{"checkout", "-b", opts.Name}
	} else {
		args = []string{"branch", opts.Name}
	}
	if opts.StartPoint != "" {
		args = append(args, opts.StartPoint)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// DeleteBranch deletes a local branch. Force discards unmerged work.
func (c *Client) DeleteBranch(ctx context.Context, dir string, opts core.BranchDeleteOptions) error {
	flag := "-d"
	if opts.Force {
		flag = "-D"
	}
	_, err := c.run(ctx, dir, "branch", flag, opts.Name)
	return err
}

// Merge integrates a ref into the current branch. Conflicts surface as a
// merge-conflict error carrying the unmerged paths; the merge is left in
// place for inspection or AbortMerge.
func (c *Client) Merge(ctx context.Context, dir string, opts core.MergeOptions) (*core.MergeResult, error) {
	args := []string{"merge"}
	if opts.NoFastForward {
		args = append(args, "--no-ff")
	}
	if opts.FFOnly {
		args = append(args, "--ff-only")
	}
	if opts.Squash {
		args = append(args, "--squash")
	}
	if opts.Message != "" {
		args = append(args, "-m", opts.Message)
	} else if !opts.Squash {
		args = append(args, "--no-edit")
	}
	if opts.Strategy != "" {
		args = append(args, "-s", opts.Strategy)
	}
	args = append(args, opts.Ref)

	out, err := c.exec(ctx, dir, nil, nil, args...)
	if err != nil {
		if conflicted(out) {
			return nil, core.ErrMergeConflict(core.CodeMergeConflict, c.conflictFiles(ctx, dir, out))
		}
		return nil, err
	}

	result := &core.MergeResult{
		FastForward:     strings.Contains(out.stdout, "Fast-forward"),
		AlreadyUpToDate: strings.Contains(out.stdout, "Already up to date"),
		Squashed:        opts.Squash,
	}
	if !opts.Squash && !result.AlreadyUpToDate {
		result.Commit = c.head(ctx, dir)
	}
	return result, nil
}

// AbortMerge restores the pre-merge state.
func (c *Client) AbortMerge(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "merge", "--abort")
	return err
}

// Rebase replays the current branch onto an upstream. Conflicts surface
// as a rebase-conflict error; the rebase stays in progress for
// AbortRebase.
func (c *Client) Rebase(ctx context.Context, dir string, opts core.RebaseOptions, auth core.Auth) (*core.RebaseResult, error) {
	args := []string{"rebase"}
	if opts.Autostash {
		args = append(args, "--autostash")
	}
	if opts.Onto != "" {
		args = append(args, "--onto", opts.Onto)
	}
	args = append(args, opts.Upstream)

	out, err := c.exec(ctx, dir, auth, nil, args...)
	if err != nil {
		if conflicted(out) {
			return nil, core.ErrMergeConflict(core.CodeRebaseConflict, c.conflictFiles(ctx, dir, out))
		}
		return nil, err
	}
	return &core.RebaseResult{HeadCommit: c.head(ctx, dir)}, nil
}

// AbortRebase restores the pre-rebase state.
func (c *Client) AbortRebase(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "rebase", "--abort")
	return err
}

// CherryPick applies existing commits onto the current branch.
func (c *Client) CherryPick(ctx context.Context, dir string, opts core.CherryPickOptions) (*core.CommitResult, error) {
	args := []string{"cherry-pick"}
	if opts.NoCommit {
		args = append(args, "-n")
	}
	args = append(args, opts.Commits...)

	out, err := c.exec(ctx, dir, nil, nil, args...)
	if err != nil {
		if conflicted(out) {
			return nil, core.ErrMergeConflict(core.CodeMergeConflict, c.conflictFiles(ctx, dir, out))
		}
		return nil, err
	}
	if opts.NoCommit {
		return c.stagedResult(ctx, dir)
	}
	return c.commitResult(ctx, dir, "HEAD")
}

// Revert creates commits undoing existing ones.
func (c *Client) Revert(ctx context.Context, dir string, opts core.RevertOptions) (*core.CommitResult, error) {
	args := []string{"revert", "--no-edit"}
	if opts.NoCommit {
		args = append(args, "-n")
	}
	args = append(args, opts.Commits...)

	out, err := c.exec(ctx, dir, nil, nil, args...)
	if err != nil {
		if conflicted(out) {
			return nil, core.ErrMergeConflict(core.CodeMergeConflict, c.conflictFiles(ctx, dir, out))
		}
		return nil, err
	}
	if opts.NoCommit {
		return c.stagedResult(ctx, dir)
	}
	return c.commitResult(ctx, dir, "HEAD")
}

// stagedResult summarizes the index for --no-commit flows where no new
// commit exists yet.
func (c *Client) stagedResult(ctx context.Context, dir string) (*core.CommitResult, error) {
	stat, err := c.run(ctx, dir, "diff", "--cached", "--shortstat")
	if err != nil {
		return nil, err
	}
	files, ins, del := parseShortStat(stat)
	return &core.CommitResult{FilesChanged: files, Insertions: ins, Deletions: del}, nil
}

// Log lists commit history.
func (c *Client) Log(ctx context.Context, dir string, opts core.LogOptions) ([]core.CommitInfo, error) {
	args := []string{"log", "--format=" + logFormat}
	if opts.MaxCount > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", opts.MaxCount))
	}
	if opts.Skip > 0 {
		args = append(args, fmt.Sprintf("--skip=%d", opts.Skip))
	}
	if opts.Since != "" {
		args = append(args, "--since", opts.Since)
	}
	if opts.Until != "" {
		args = append(args, "--until", opts.Until)
	}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.Grep != "" {
		args = append(args, "--grep", opts.Grep)
	}
	if opts.Ref != "" {
		args = append(args, opts.Ref)
	}
	if opts.Path != "" {
		args = append(args, "--", opts.Path)
	}
	out, err := c.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	commits := parseLog(out)
	if commits == nil {
		commits = []core.CommitInfo{}
	}
	return commits, nil
}

// Show returns one commit's metadata with its patch or stat summary.
func (c *Client) Show(ctx context.Context, dir string, opts core.ShowOptions) (*core.ShowResult, error) {
	metaOut, err := c.run(ctx, dir, "show", "-s", "--format="+logFormat, opts.Ref)
	if err != nil {
		return nil, err
	}
	commits := parseLog(metaOut)
	if len(commits) == 0 {
		return nil, core.ErrGit(core.CodeGitCommandFailed, "cannot parse commit "+opts.Ref)
	}

	patchArgs := []string{"show", "--format="}
	if opts.Stat {
		patchArgs = append(patchArgs, "--stat")
	}
	patchArgs = append(patchArgs, opts.Ref)
	patch, err := c.run(ctx, dir, patchArgs...)
	if err != nil {
		return nil, err
	}
	return &core.ShowResult{CommitInfo: commits[0], Patch: patch}, nil
}

// Diff compares trees, the index, or the working tree.
func (c *Client) Diff(ctx context.Context, dir string, opts core.DiffOptions) (*core.DiffResult, error) {
	base := []string{"diff"}
	if opts.Staged {
		base = append(base, "--cached")
	}
	var refs []string
	if opts.Base != "" {
		refs = append(refs, opts.Base)
	}
	if opts.Head != "" {
		refs = append(refs, opts.Head)
	}
	var paths []string
	if len(opts.Paths) > 0 {
		paths = append([]string{"--"}, opts.Paths...)
	}
	assemble := func(extra ...string) []string {
		args := append([]string{}, base...)
		args = append(args, extra...)
		args = append(args, refs...)
		args = append(args, paths...)
		return args
	}

	numstatOut, err := c.run(ctx, dir, assemble("--numstat")...)
	if err != nil {
		return nil, err
	}
	files := parseNumstat(numstatOut)
	if files == nil {
		files = []core.FileDiff{}
	}
	statusOut, err := c.run(ctx, dir, assemble("--name-status")...)
	if err != nil {
		return nil, err
	}
	statuses := parseNameStatus(statusOut)
	for i := range files {
		files[i].Status = statuses[files[i].Path]
	}

	result := &core.DiffResult{Files: files}
	if !opts.NameOnly {
		var extra []string
		if opts.Unified > 0 {
			extra = append(extra, fmt.Sprintf("-U%d", opts.Unified))
		}
		patch, err := c.run(ctx, dir, assemble(extra...)...)
		if err != nil {
			return nil, err
		}
		result.Patch = patch
	}
	return result, nil
}

// Blame annotates a line span with its last modifying commits.
func (c *Client) Blame(ctx context.Context, dir string, opts core.BlameOptions) (*core.BlameResult, error) {
	args := []string{"blame", "--porcelain"}
	if opts.LineStart > 0 {
		end := opts.LineEnd
		if end < opts.LineStart {
			end = opts.LineStart
		}
		args = append(args, fmt.Sprintf("-L%d,%d", opts.LineStart, end))
	}
	if opts.Ref != "" {
		args = append(args, opts.Ref)
	}
	args = append(args, "--", opts.Path)

	out, err := c.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	lines := parseBlamePorcelain(out)
	if lines == nil {
		lines = []core.BlameLine{}
	}
	return &core.BlameResult{Path: opts.Path, Lines: lines}, nil
}

// Stash runs one stash action. Pushing with a clean tree fails with a
// no-changes error rather than silently saving nothing.
func (c *Client) Stash(ctx context.Context, dir string, opts core.StashOptions) (*core.StashResult, error) {
	ref := fmt.Sprintf("stash@{%d}", opts.Index)
	var args []string
	switch opts.Action {
	case core.StashPush:
		args = []string{"stash", "push"}
		if opts.IncludeUntracked {
			args = append(args, "-u")
		}
		if opts.Message != "" {
			args = append(args, "-m", opts.Message)
		}
	case core.StashPop:
		args = []string{"stash", "pop", ref}
	case core.StashApply:
		args = []string{"stash", "apply", ref}
	case core.StashDrop:
		args = []string{"stash", "drop", ref}
	default:
		return nil, core.ErrValidation(core.CodeInvalidParamValue,
			fmt.Sprintf("unknown stash action %q", opts.Action))
	}

	out, err := c.exec(ctx, dir, nil, nil, args...)
	if err != nil {
		if conflicted(out) {
			return nil, core.ErrMergeConflict(core.CodeMergeConflict, c.conflictFiles(ctx, dir, out))
		}
		return nil, err
	}
	if opts.Action == core.StashPush && strings.Contains(out.stdout, "No local changes to save") {
		return nil, core.ErrGit(core.CodeGitNoChanges, "no local changes to stash")
	}

	result := &core.StashResult{Action: opts.Action}
	switch opts.Action {
	case core.StashPush:
		result.Entry = "stash@{0}"
	case core.StashPop, core.StashApply:
		result.Entry = ref
		result.Applied = true
	case core.StashDrop:
		result.Entry = ref
	}
	return result, nil
}

// StashList returns saved stashes, newest first.
func (c *Client) StashList(ctx context.Context, dir string) ([]core.StashEntry, error) {
	out, err := c.run(ctx, dir, "stash", "list", "--format="+stashFormat)
	if err != nil {
		return nil, err
	}
	entries := parseStashList(out)
	if entries == nil {
		entries = []core.StashEntry{}
	}
	return entries, nil
}

// Tags lists all tags.
func (c *Client) Tags(ctx context.Context, dir string) ([]core.TagInfo, error) {
	out, err := c.run(ctx, dir, "tag", "--list", "--format="+tagFormat)
	if err != nil {
		return nil, err
	}
	tags := parseTags(out)
	if tags == nil {
		tags = []core.TagInfo{}
	}
	return tags, nil
}

// CreateTag creates a tag; a message makes it annotated.
func (c *Client) CreateTag(ctx context.Context, dir string, opts core.TagCreateOptions) error {
	args := []string{"tag"}
	if opts.Force {
		args = append(args, "-f")
	}
	if opts.Message != "" {
		args = append(args, "-a", "-m", opts.Message)
	}
	args = append(args, opts.Name)
	if opts.Ref != "" {
		args = append(args, opts.Ref)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// DeleteTag removes a local tag.
func (c *Client) DeleteTag(ctx context.Context, dir string, name string) error {
	_, err := c.run(ctx, dir, "tag", "-d", name)
	return err
}

// Remotes lists configured remotes.
func (c *Client) Remotes(ctx context.Context, dir string) ([]core.RemoteInfo, error) {
	out, err := c.run(ctx, dir, "remote", "-v")
	if err != nil {
		return nil, err
	}
	remotes := parseRemotes(out)
	if remotes == nil {
		remotes = []core.RemoteInfo{}
	}
	return remotes, nil
}

// AddRemote registers a remote.
func (c *Client) AddRemote(ctx context.Context, dir string, name, url string) error {
	_, err := c.run(ctx, dir, "remote", "add", name, url)
	return err
}

// RemoveRemote unregisters a remote.
func (c *Client) RemoveRemote(ctx context.Context, dir string, name string) error {
	_, err := c.run(ctx, dir, "remote", "remove", name)
	return err
}

// SparseCheckout manages partial working trees. Mutating actions return
// the resulting pattern set.
func (c *Client) SparseCheckout(ctx context.Context, dir string, opts core.SparseCheckoutOptions) (*core.SparseCheckoutResult, error) {
	result := &core.SparseCheckoutResult{Action: opts.Action, Enabled: true}
	switch opts.Action {
	case core.SparseInit:
		args := []string{"sparse-checkout", "init"}
		if opts.Cone {
			args = append(args, "--cone")
		}
		if _, err := c.run(ctx, dir, args...); err != nil {
			return nil, err
		}
	case core.SparseSet:
		args := []string{"sparse-checkout", "set"}
		if opts.Cone {
			args = append(args, "--cone")
		}
		args = append(args, "--")
		args = append(args, opts.Paths...)
		if _, err := c.run(ctx, dir, args...); err != nil {
			return nil, err
		}
	case core.SparseAdd:
		args := append([]string{"sparse-checkout", "add", "--"}, opts.Paths...)
		if _, err := c.run(ctx, dir, args...); err != nil {
			return nil, err
		}
	case core.SparseList:
		// handled below
	case core.SparseDisable:
		if _, err := c.run(ctx, dir, "sparse-checkout", "disable"); err != nil {
			return nil, err
		}
		result.Enabled = false
		result.Patterns = []string{}
		return result, nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidParamValue,
			fmt.Sprintf("unknown sparse-checkout action %q", opts.Action))
	}

	out, err := c.run(ctx, dir, "sparse-checkout", "list")
	if err != nil {
		return nil, err
	}
	result.Patterns = []string{}
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result.Patterns = append(result.Patterns, line)
		}
	}
	return result, nil
}
