package tools

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
)

// Workspaces exposes the workspace-manager operations the runner needs:
// size refresh after operations that change the disk footprint, and
// containment-checked resolution of caller-supplied paths.
// *workspace.Manager satisfies it.
type Workspaces interface {
	RefreshSize(ctx context.Context, id core.WorkspaceID) (int64, error)
	ResolvePath(ws *core.Workspace, rel string) (string, error)
}

// Runner executes queued and inline tasks against the git adapter. It
// owns the operation dispatch table: params decoding, credential handle
// lifecycle and result serialization for every operation in the closed
// set.
type Runner struct {
	git           core.GitAdapter
	creds         core.CredentialResolver
	spaces        Workspaces
	defaultRemote string
	log           *logging.Logger
}

// NewRunner wires the git adapter, the credential resolver and the
// workspace manager into a task runner. A nil spaces skips size
// refreshes and falls back to lexical path checks; a nil creds runs
// every operation anonymously.
func NewRunner(git core.GitAdapter, creds core.CredentialResolver, spaces Workspaces, defaultRemote string, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	if defaultRemote == "" {
		defaultRemote = "origin"
	}
	return &Runner{
		git:           git,
		creds:         creds,
		spaces:        spaces,
		defaultRemote: defaultRemote,
		log:           log.WithComponent("runner"),
	}
}

// Run implements core.Runner. The credential handle is resolved before
// dispatch and released on every exit path; secret material never
// outlives the operation.
func (r *Runner) Run(ctx context.Context, t *core.Task, ws *core.Workspace, progress core.ProgressFunc) (json.RawMessage, error) {
	if ws == nil {
		return nil, core.ErrInternal("task reached the runner without a workspace")
	}

	var auth core.Auth
	if t.Operation.NeedsCredential() && r.creds != nil {
		var err error
		auth, err = r.creds.Resolve(ctx, t.Operation, r.credentialURL(ctx, t, ws))
		if err != nil {
			return nil, err
		}
		defer r.creds.Release(auth)
	}

	payload, err := r.dispatch(ctx, t, ws, auth, progress)
	if err != nil {
		return nil, err
	}
	r.refreshSize(ctx, t.Operation, ws)
	return payload, nil
}

// credentialURL picks the remote URL whose host selects the credential.
// Operations carrying a full URL use it directly; the rest name a
// remote, resolved against the workspace's configured remotes with the
// allocation URL as fallback. Malformed params are reported by dispatch,
// not here.
func (r *Runner) credentialURL(ctx context.Context, t *core.Task, ws *core.Workspace) string {
	var p struct {
		URL    string `json:"url"`
		Remote string `json:"remote"`
	}
	if len(t.Params) > 0 {
		_ = json.Unmarshal(t.Params, &p)
	}
	if p.URL != "" {
		return p.URL
	}
	name := p.Remote
	if name == "" {
		name = r.defaultRemote
	}
	if remotes, err := r.git.Remotes(ctx, ws.Path); err == nil {
		for _, rem := range remotes {
			if rem.Name != name {
				continue
			}
			if t.Operation == core.OpPush && rem.PushURL != "" {
				return rem.PushURL
			}
			return rem.FetchURL
		}
	}
	return ws.RepoURL
}

// containPaths re-checks caller-supplied paths against the workspace
// boundary right before the git invocation. Submission-time validation
// is lexical only; resolving against the live workspace directory also
// catches symlinked escapes. Empty entries mean "whole tree" and pass.
func (r *Runner) containPaths(ws *core.Workspace, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if r.spaces == nil {
			if err := core.ValidatePaths([]string{p}); err != nil {
				return err
			}
			continue
		}
		if _, err := r.spaces.ResolvePath(ws, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, t *core.Task, ws *core.Workspace, auth core.Auth, progress core.ProgressFunc) (json.RawMessage, error) {
	dir := ws.Path
	switch t.Operation {
	case core.OpClone:
		opts, err := decodeParams[core.CloneOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Clone(ctx, dir, opts, auth, progress)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpInit:
		opts, err := decodeParams[core.InitOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.Init(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(initAck{
			WorkspaceID:   ws.ID,
			Path:          ws.Path,
			Initialized:   true,
			Bare:          opts.Bare,
			InitialBranch: opts.InitialBranch,
		})

	case core.OpStatus:
		res, err := r.git.Status(ctx, dir)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpAdd:
		opts, err := decodeParams[core.StageOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		if err := r.git.Stage(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(stageAck{Staged: true, Paths: opts.Paths, All: opts.All, Update: opts.Update})

	case core.OpCommit:
		opts, err := decodeParams[core.CommitOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Commit(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpCheckout:
		opts, err := decodeParams[core.CheckoutOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		if err := r.git.Checkout(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(checkoutAck{Ref: opts.Ref, Created: opts.Create})

	case core.OpReset:
		opts, err := decodeParams[core.ResetOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		if err := r.git.Reset(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(resetAck{Mode: opts.Mode, Ref: opts.Ref})

	case core.OpClean:
		opts, err := decodeParams[core.CleanOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Clean(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpPush:
		opts, err := decodeParams[core.PushOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Push(ctx, dir, opts, auth, progress)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpPull:
		opts, err := decodeParams[core.PullOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Pull(ctx, dir, opts, auth, progress)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpFetch:
		opts, err := decodeParams[core.FetchOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Fetch(ctx, dir, opts, auth, progress)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpBranchList:
		opts, err := decodeParams[branchListParams](t)
		if err != nil {
			return nil, err
		}
		branches, err := r.git.Branches(ctx, dir, opts.IncludeRemote)
		if err != nil {
			return nil, err
		}
		return marshalResult(branchListResult{Branches: branches})

	case core.OpBranchCreate:
		opts, err := decodeParams[core.BranchCreateOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.CreateBranch(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(branchAck{Name: opts.Name, CheckedOut: opts.Checkout})

	case core.OpBranchDelete:
		opts, err := decodeParams[core.BranchDeleteOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.DeleteBranch(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(branchAck{Name: opts.Name, Deleted: true})

	case core.OpMerge:
		opts, err := decodeParams[core.MergeOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Merge(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpRebase:
		opts, err := decodeParams[core.RebaseOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Rebase(ctx, dir, opts, auth)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpCherryPick:
		opts, err := decodeParams[core.CherryPickOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.CherryPick(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpRevert:
		opts, err := decodeParams[core.RevertOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Revert(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpLog:
		opts, err := decodeParams[core.LogOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Path); err != nil {
			return nil, err
		}
		commits, err := r.git.Log(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(logResult{Commits: commits})

	case core.OpShow:
		opts, err := decodeParams[core.ShowOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Show(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpDiff:
		opts, err := decodeParams[core.DiffOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		res, err := r.git.Diff(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpBlame:
		opts, err := decodeParams[core.BlameOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Path); err != nil {
			return nil, err
		}
		res, err := r.git.Blame(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpStash:
		opts, err := decodeParams[core.StashOptions](t)
		if err != nil {
			return nil, err
		}
		res, err := r.git.Stash(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpStashList:
		entries, err := r.git.StashList(ctx, dir)
		if err != nil {
			return nil, err
		}
		return marshalResult(stashListResult{Entries: entries})

	case core.OpTagList:
		tags, err := r.git.Tags(ctx, dir)
		if err != nil {
			return nil, err
		}
		return marshalResult(tagListResult{Tags: tags})

	case core.OpTagCreate:
		opts, err := decodeParams[core.TagCreateOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.CreateTag(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(tagAck{Name: opts.Name, Annotated: opts.Message != ""})

	case core.OpTagDelete:
		opts, err := decodeParams[tagDeleteParams](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.DeleteTag(ctx, dir, opts.Name); err != nil {
			return nil, err
		}
		return marshalResult(tagAck{Name: opts.Name, Deleted: true})

	case core.OpRemoteList:
		remotes, err := r.git.Remotes(ctx, dir)
		if err != nil {
			return nil, err
		}
		// Remotes configured outside this service may carry userinfo.
		for i := range remotes {
			remotes[i].FetchURL = core.StripURLCredentials(remotes[i].FetchURL)
			remotes[i].PushURL = core.StripURLCredentials(remotes[i].PushURL)
		}
		return marshalResult(remoteListResult{Remotes: remotes})

	case core.OpRemoteAdd:
		opts, err := decodeParams[remoteAddParams](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.AddRemote(ctx, dir, opts.Name, opts.URL); err != nil {
			return nil, err
		}
		return marshalResult(remoteAck{Name: opts.Name, URL: opts.URL})

	case core.OpRemoteRemove:
		opts, err := decodeParams[remoteRemoveParams](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.RemoveRemote(ctx, dir, opts.Name); err != nil {
			return nil, err
		}
		return marshalResult(remoteAck{Name: opts.Name, Removed: true})

	case core.OpSparseCheckout:
		opts, err := decodeParams[core.SparseCheckoutOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		res, err := r.git.SparseCheckout(ctx, dir, opts)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpSubmoduleAdd:
		opts, err := decodeParams[core.SubmoduleAddOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Path); err != nil {
			return nil, err
		}
		if err := r.git.SubmoduleAdd(ctx, dir, opts, auth, progress); err != nil {
			return nil, err
		}
		return marshalResult(submoduleAck{Path: opts.Path, URL: opts.URL})

	case core.OpSubmoduleUpd:
		opts, err := decodeParams[core.SubmoduleUpdateOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		if err := r.git.SubmoduleUpdate(ctx, dir, opts, auth, progress); err != nil {
			return nil, err
		}
		return marshalResult(submoduleAck{Paths: opts.Paths, Updated: true})

	case core.OpSubmoduleDeinit:
		opts, err := decodeParams[core.SubmoduleDeinitOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.containPaths(ws, opts.Paths...); err != nil {
			return nil, err
		}
		if err := r.git.SubmoduleDeinit(ctx, dir, opts); err != nil {
			return nil, err
		}
		return marshalResult(submoduleAck{Paths: opts.Paths, Deinitialized: true})

	case core.OpSubmoduleList:
		subs, err := r.git.Submodules(ctx, dir)
		if err != nil {
			return nil, err
		}
		return marshalResult(submoduleListResult{Submodules: subs})

	case core.OpLFSInstall, core.OpLFSInit:
		if err := r.git.LFSInstall(ctx, dir); err != nil {
			return nil, err
		}
		return marshalResult(lfsAck{Action: "install", Done: true})

	case core.OpLFSTrack:
		opts, err := decodeParams[lfsPatternParams](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.LFSTrack(ctx, dir, opts.Patterns); err != nil {
			return nil, err
		}
		return marshalResult(lfsAck{Action: "track", Done: true, Patterns: opts.Patterns})

	case core.OpLFSUntrack:
		opts, err := decodeParams[lfsPatternParams](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.LFSUntrack(ctx, dir, opts.Patterns); err != nil {
			return nil, err
		}
		return marshalResult(lfsAck{Action: "untrack", Done: true, Patterns: opts.Patterns})

	case core.OpLFSStatus:
		res, err := r.git.LFSStatus(ctx, dir)
		if err != nil {
			return nil, err
		}
		return marshalResult(res)

	case core.OpLFSPull:
		opts, err := decodeParams[core.LFSTransferOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.LFSPull(ctx, dir, opts, auth, progress); err != nil {
			return nil, err
		}
		return marshalResult(lfsAck{Action: "pull", Done: true, Remote: opts.Remote})

	case core.OpLFSPush:
		opts, err := decodeParams[core.LFSTransferOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.LFSPush(ctx, dir, opts, auth, progress); err != nil {
			return nil, err
		}
		return marshalResult(lfsAck{Action: "push", Done: true, Remote: opts.Remote})

	case core.OpLFSFetch:
		opts, err := decodeParams[core.LFSTransferOptions](t)
		if err != nil {
			return nil, err
		}
		if err := r.git.LFSFetch(ctx, dir, opts, auth, progress); err != nil {
			return nil, err
		}
		return marshalResult(lfsAck{Action: "fetch", Done: true, Remote: opts.Remote})

	default:
		return nil, core.ErrInternal("operation " + string(t.Operation) + " has no runner dispatch")
	}
}

// sizeRefreshOps are the operations that can grow a workspace on disk.
var sizeRefreshOps = map[core.Operation]bool{
	core.OpClone:        true,
	core.OpPull:         true,
	core.OpFetch:        true,
	core.OpSubmoduleAdd: true,
	core.OpSubmoduleUpd: true,
	core.OpLFSPull:      true,
	core.OpLFSFetch:     true,
}

// refreshSize updates the tracked workspace size after transfers. Quota
// accounting tolerates a stale reading, so failures only warn.
func (r *Runner) refreshSize(ctx context.Context, op core.Operation, ws *core.Workspace) {
	if r.spaces == nil || !sizeRefreshOps[op] {
		return
	}
	if _, err := r.spaces.RefreshSize(ctx, ws.ID); err != nil {
		r.log.Warn("workspace size refresh failed",
			"workspace_id", string(ws.ID), "error", err)
	}
}

// decodeParams unmarshals task params into the operation's option
// struct. Missing params decode to the zero value.
func decodeParams[T any](t *core.Task) (T, error) {
	var opts T
	if len(t.Params) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(t.Params, &opts); err != nil {
		var zero T
		return zero, core.ErrValidation(core.CodeInvalidParamValue,
			"parameters for "+string(t.Operation)+" are malformed").WithCause(err)
	}
	return opts, nil
}

func marshalResult(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, core.ErrInternal("encode operation result").WithCause(err)
	}
	return b, nil
}

// Param shapes for operations whose adapter call takes loose arguments
// instead of an options struct.
type branchListParams struct {
	IncludeRemote bool `json:"include_remote,omitempty"`
}

type tagDeleteParams struct {
	Name string `json:"name"`
}

type remoteAddParams struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type remoteRemoveParams struct {
	Name string `json:"name"`
}

type lfsPatternParams struct {
	Patterns []string `json:"patterns"`
}

// List envelopes keep array results self-describing at the tool
// boundary.
type branchListResult struct {
	Branches []core.BranchInfo `json:"branches"`
}

type logResult struct {
	Commits []core.CommitInfo `json:"commits"`
}

type stashListResult struct {
	Entries []core.StashEntry `json:"entries"`
}

type tagListResult struct {
	Tags []core.TagInfo `json:"tags"`
}

type remoteListResult struct {
	Remotes []core.RemoteInfo `json:"remotes"`
}

type submoduleListResult struct {
	Submodules []core.SubmoduleInfo `json:"submodules"`
}

// Acks for operations whose adapter call returns no payload. Init also
// reports the workspace so callers that let the facade allocate one
// learn where their repository lives.
type initAck struct {
	WorkspaceID   core.WorkspaceID `json:"workspace_id"`
	Path          string           `json:"path"`
	Initialized   bool             `json:"initialized"`
	Bare          bool             `json:"bare,omitempty"`
	InitialBranch string           `json:"initial_branch,omitempty"`
}

type stageAck struct {
	Staged bool     `json:"staged"`
	Paths  []string `json:"paths,omitempty"`
	All    bool     `json:"all,omitempty"`
	Update bool     `json:"update,omitempty"`
}

type checkoutAck struct {
	Ref     string `json:"ref"`
	Created bool   `json:"created,omitempty"`
}

type resetAck struct {
	Mode core.ResetMode `json:"mode,omitempty"`
	Ref  string         `json:"ref,omitempty"`
}

type branchAck struct {
	Name       string `json:"name"`
	Deleted    bool   `json:"deleted,omitempty"`
	CheckedOut bool   `json:"checked_out,omitempty"`
}

type tagAck struct {
	Name      string `json:"name"`
	Annotated bool   `json:"annotated,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

type remoteAck struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

type submoduleAck struct {
	Path          string   `json:"path,omitempty"`
	URL           string   `json:"url,omitempty"`
	Paths         []string `json:"paths,omitempty"`
	Updated       bool     `json:"updated,omitempty"`
	Deinitialized bool     `json:"deinitialized,omitempty"`
}

type lfsAck struct {
	Action   string   `json:"action"`
	Done     bool     `json:"done"`
	Remote   string   `json:"remote,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}
