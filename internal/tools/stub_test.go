package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// stubGit implements core.GitAdapter with per-method overrides. Methods
// without an override fail, so a test notices when the runner reaches
// for an adapter call it did not expect.
type stubGit struct {
	cloneFn           func(ctx context.Context, dir string, opts core.CloneOptions, auth core.Auth, progress core.ProgressFunc) (*core.CloneResult, error)
	initFn            func(ctx context.Context, dir string, opts core.InitOptions) error
	statusFn          func(ctx context.Context, dir string) (*core.StatusResult, error)
	stageFn           func(ctx context.Context, dir string, opts core.StageOptions) error
	commitFn          func(ctx context.Context, dir string, opts core.CommitOptions) (*core.CommitResult, error)
	checkoutFn        func(ctx context.Context, dir string, opts core.CheckoutOptions) error
	resetFn           func(ctx context.Context, dir string, opts core.ResetOptions) error
	cleanFn           func(ctx context.Context, dir string, opts core.CleanOptions) (*core.CleanResult, error)
	pushFn            func(ctx context.Context, dir string, opts core.PushOptions, auth core.Auth, progress core.ProgressFunc) (*core.PushResult, error)
	pullFn            func(ctx context.Context, dir string, opts core.PullOptions, auth core.Auth, progress core.ProgressFunc) (*core.PullResult, error)
	fetchFn           func(ctx context.Context, dir string, opts core.FetchOptions, auth core.Auth, progress core.ProgressFunc) (*core.FetchResult, error)
	branchesFn        func(ctx context.Context, dir string, includeRemote bool) ([]core.BranchInfo, error)
	createBranchFn    func(ctx context.Context, dir string, opts core.BranchCreateOptions) error
	deleteBranchFn    func(ctx context.Context, dir string, opts core.BranchDeleteOptions) error
	mergeFn           func(ctx context.Context, dir string, opts core.MergeOptions) (*core.MergeResult, error)
	abortMergeFn      func(ctx context.Context, dir string) error
	rebaseFn          func(ctx context.Context, dir string, opts core.RebaseOptions, auth core.Auth) (*core.RebaseResult, error)
	abortRebaseFn     func(ctx context.Context, dir string) error
	cherryPickFn      func(ctx context.Context, dir string, opts core.CherryPickOptions) (*core.CommitResult, error)
	revertFn          func(ctx context.Context, dir string, opts core.RevertOptions) (*core.CommitResult, error)
	logFn             func(ctx context.Context, dir string, opts core.LogOptions) ([]core.CommitInfo, error)
	showFn            func(ctx context.Context, dir string, opts core.ShowOptions) (*core.ShowResult, error)
	diffFn            func(ctx context.Context, dir string, opts core.DiffOptions) (*core.DiffResult, error)
	blameFn           func(ctx context.Context, dir string, opts core.BlameOptions) (*core.BlameResult, error)
	stashFn           func(ctx context.Context, dir string, opts core.StashOptions) (*core.StashResult, error)
	stashListFn       func(ctx context.Context, dir string) ([]core.StashEntry, error)
	tagsFn            func(ctx context.Context, dir string) ([]core.TagInfo, error)
	createTagFn       func(ctx context.Context, dir string, opts core.TagCreateOptions) error
	deleteTagFn       func(ctx context.Context, dir string, name string) error
	remotesFn         func(ctx context.Context, dir string) ([]core.RemoteInfo, error)
	addRemoteFn       func(ctx context.Context, dir string, name, url string) error
	removeRemoteFn    func(ctx context.Context, dir string, name string) error
	sparseCheckoutFn  func(ctx context.Context, dir string, opts core.SparseCheckoutOptions) (*core.SparseCheckoutResult, error)
	submoduleAddFn    func(ctx context.Context, dir string, opts core.SubmoduleAddOptions, auth core.Auth, progress core.ProgressFunc) error
	submoduleUpdateFn func(ctx context.Context, dir string, opts core.SubmoduleUpdateOptions, auth core.Auth, progress core.ProgressFunc) error
	submoduleDeinitFn func(ctx context.Context, dir string, opts core.SubmoduleDeinitOptions) error
	submodulesFn      func(ctx context.Context, dir string) ([]core.SubmoduleInfo, error)
	lfsInstallFn      func(ctx context.Context, dir string) error
	lfsTrackFn        func(ctx context.Context, dir string, patterns []string) error
	lfsUntrackFn      func(ctx context.Context, dir string, patterns []string) error
	lfsStatusFn       func(ctx context.Context, dir string) (*core.LFSStatusResult, error)
	lfsPullFn         func(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error
	lfsPushFn         func(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error
	lfsFetchFn        func(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error
	versionFn         func(ctx context.Context) (string, error)
}

func errStub(method string) error {
	return fmt.Errorf("unexpected adapter call %s", method)
}

func (s *stubGit) Clone(ctx context.Context, dir string, opts core.CloneOptions, auth core.Auth, progress core.ProgressFunc) (*core.CloneResult, error) {
	if s.cloneFn != nil {
		return s.cloneFn(ctx, dir, opts, auth, progress)
	}
	return nil, errStub("Clone")
}

func (s *stubGit) Init(ctx context.Context, dir string, opts core.InitOptions) error {
	if s.initFn != nil {
		return s.initFn(ctx, dir, opts)
	}
	return errStub("Init")
}

func (s *stubGit) Status(ctx context.Context, dir string) (*core.StatusResult, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, dir)
	}
	return nil, errStub("Status")
}

func (s *stubGit) Stage(ctx context.Context, dir string, opts core.StageOptions) error {
	if s.stageFn != nil {
		return s.stageFn(ctx, dir, opts)
	}
	return errStub("Stage")
}

func (s *stubGit) Commit(ctx context.Context, dir string, opts core.CommitOptions) (*core.CommitResult, error) {
	if s.commitFn != nil {
		return s.commitFn(ctx, dir, opts)
	}
	return nil, errStub("Commit")
}

func (s *stubGit) Checkout(ctx context.Context, dir string, opts core.CheckoutOptions) error {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, dir, opts)
	}
	return errStub("Checkout")
}

func (s *stubGit) Reset(ctx context.Context, dir string, opts core.ResetOptions) error {
	if s.resetFn != nil {
		return s.resetFn(ctx, dir, opts)
	}
	return errStub("Reset")
}

func (s *stubGit) Clean(ctx context.Context, dir string, opts core.CleanOptions) (*core.CleanResult, error) {
	if s.cleanFn != nil {
		return s.cleanFn(ctx, dir, opts)
	}
	return nil, errStub("Clean")
}

func (s *stubGit) Push(ctx context.Context, dir string, opts core.PushOptions, auth core.Auth, progress core.ProgressFunc) (*core.PushResult, error) {
	if s.pushFn != nil {
		return s.pushFn(ctx, dir, opts, auth, progress)
	}
	return nil, errStub("Push")
}

func (s *stubGit) Pull(ctx context.Context, dir string, opts core.PullOptions, auth core.Auth, progress core.ProgressFunc) (*core.PullResult, error) {
	if s.pullFn != nil {
		return s.pullFn(ctx, dir, opts, auth, progress)
	}
	return nil, errStub("Pull")
}

func (s *stubGit) Fetch(ctx context.Context, dir string, opts core.FetchOptions, auth core.Auth, progress core.ProgressFunc) (*core.FetchResult, error) {
	if s.fetchFn != nil {
		return s.fetchFn(ctx, dir, opts, auth, progress)
	}
	return nil, errStub("Fetch")
}

func (s *stubGit) Branches(ctx context.Context, dir string, includeRemote bool) ([]core.BranchInfo, error) {
	if s.branchesFn != nil {
		return s.branchesFn(ctx, dir, includeRemote)
	}
	return nil, errStub("Branches")
}

func (s *stubGit) CreateBranch(ctx context.Context, dir string, opts core.BranchCreateOptions) error {
	if s.createBranchFn != nil {
		return s.createBranchFn(ctx, dir, opts)
	}
	return errStub("CreateBranch")
}

func (s *stubGit) DeleteBranch(ctx context.Context, dir string, opts core.BranchDeleteOptions) error {
	if s.deleteBranchFn != nil {
		return s.deleteBranchFn(ctx, dir, opts)
	}
	return errStub("DeleteBranch")
}

func (s *stubGit) Merge(ctx context.Context, dir string, opts core.MergeOptions) (*core.MergeResult, error) {
	if s.mergeFn != nil {
		return s.mergeFn(ctx, dir, opts)
	}
	return nil, errStub("Merge")
}

func (s *stubGit) AbortMerge(ctx context.Context, dir string) error {
	if s.abortMergeFn != nil {
		return s.abortMergeFn(ctx, dir)
	}
	return errStub("AbortMerge")
}

func (s *stubGit) Rebase(ctx context.Context, dir string, opts core.RebaseOptions, auth core.Auth) (*core.RebaseResult, error) {
	if s.rebaseFn != nil {
		return s.rebaseFn(ctx, dir, opts, auth)
	}
	return nil, errStub("Rebase")
}

func (s *stubGit) AbortRebase(ctx context.Context, dir string) error {
	if s.abortRebaseFn != nil {
		return s.abortRebaseFn(ctx, dir)
	}
	return errStub("AbortRebase")
}

func (s *stubGit) CherryPick(ctx context.Context, dir string, opts core.CherryPickOptions) (*core.CommitResult, error) {
	if s.cherryPickFn != nil {
		return s.cherryPickFn(ctx, dir, opts)
	}
	return nil, errStub("CherryPick")
}

func (s *stubGit) Revert(ctx context.Context, dir string, opts core.RevertOptions) (*core.CommitResult, error) {
	if s.revertFn != nil {
		return s.revertFn(ctx, dir, opts)
	}
	return nil, errStub("Revert")
}

func (s *stubGit) Log(ctx context.Context, dir string, opts core.LogOptions) ([]core.CommitInfo, error) {
	if s.logFn != nil {
		return s.logFn(ctx, dir, opts)
	}
	return nil, errStub("Log")
}

func (s *stubGit) Show(ctx context.Context, dir string, opts core.ShowOptions) (*core.ShowResult, error) {
	if s.showFn != nil {
		return s.showFn(ctx, dir, opts)
	}
	return nil, errStub("Show")
}

func (s *stubGit) Diff(ctx context.Context, dir string, opts core.DiffOptions) (*core.DiffResult, error) {
	if s.diffFn != nil {
		return s.diffFn(ctx, dir, opts)
	}
	return nil, errStub("Diff")
}

func (s *stubGit) Blame(ctx context.Context, dir string, opts core.BlameOptions) (*core.BlameResult, error) {
	if s.blameFn != nil {
		return s.blameFn(ctx, dir, opts)
	}
	return nil, errStub("Blame")
}

func (s *stubGit) Stash(ctx context.Context, dir string, opts core.StashOptions) (*core.StashResult, error) {
	if s.stashFn != nil {
		return s.stashFn(ctx, dir, opts)
	}
	return nil, errStub("Stash")
}

func (s *stubGit) StashList(ctx context.Context, dir string) ([]core.StashEntry, error) {
	if s.stashListFn != nil {
		return s.stashListFn(ctx, dir)
	}
	return nil, errStub("StashList")
}

func (s *stubGit) Tags(ctx context.Context, dir string) ([]core.TagInfo, error) {
	if s.tagsFn != nil {
		return s.tagsFn(ctx, dir)
	}
	return nil, errStub("Tags")
}

func (s *stubGit) CreateTag(ctx context.Context, dir string, opts core.TagCreateOptions) error {
	if s.createTagFn != nil {
		return s.createTagFn(ctx, dir, opts)
	}
	return errStub("CreateTag")
}

func (s *stubGit) DeleteTag(ctx context.Context, dir string, name string) error {
	if s.deleteTagFn != nil {
		return s.deleteTagFn(ctx, dir, name)
	}
	return errStub("DeleteTag")
}

func (s *stubGit) Remotes(ctx context.Context, dir string) ([]core.RemoteInfo, error) {
	if s.remotesFn != nil {
		return s.remotesFn(ctx, dir)
	}
	return nil, errStub("Remotes")
}

func (s *stubGit) AddRemote(ctx context.Context, dir string, name, url string) error {
	if s.addRemoteFn != nil {
		return s.addRemoteFn(ctx, dir, name, url)
	}
	return errStub("AddRemote")
}

func (s *stubGit) RemoveRemote(ctx context.Context, dir string, name string) error {
	if s.removeRemoteFn != nil {
		return s.removeRemoteFn(ctx, dir, name)
	}
	return errStub("RemoveRemote")
}

func (s *stubGit) SparseCheckout(ctx context.Context, dir string, opts core.SparseCheckoutOptions) (*core.SparseCheckoutResult, error) {
	if s.sparseCheckoutFn != nil {
		return s.sparseCheckoutFn(ctx, dir, opts)
	}
	return nil, errStub("SparseCheckout")
}

func (s *stubGit) SubmoduleAdd(ctx context.Context, dir string, opts core.SubmoduleAddOptions, auth core.Auth, progress core.ProgressFunc) error {
	if s.submoduleAddFn != nil {
		return s.submoduleAddFn(ctx, dir, opts, auth, progress)
	}
	return errStub("SubmoduleAdd")
}

func (s *stubGit) SubmoduleUpdate(ctx context.Context, dir string, opts core.SubmoduleUpdateOptions, auth core.Auth, progress core.ProgressFunc) error {
	if s.submoduleUpdateFn != nil {
		return s.submoduleUpdateFn(ctx, dir, opts, auth, progress)
	}
	return errStub("SubmoduleUpdate")
}

func (s *stubGit) SubmoduleDeinit(ctx context.Context, dir string, opts core.SubmoduleDeinitOptions) error {
	if s.submoduleDeinitFn != nil {
		return s.submoduleDeinitFn(ctx, dir, opts)
	}
	return errStub("SubmoduleDeinit")
}

func (s *stubGit) Submodules(ctx context.Context, dir string) ([]core.SubmoduleInfo, error) {
	if s.submodulesFn != nil {
		return s.submodulesFn(ctx, dir)
	}
	return nil, errStub("Submodules")
}

func (s *stubGit) LFSInstall(ctx context.Context, dir string) error {
	if s.lfsInstallFn != nil {
		return s.lfsInstallFn(ctx, dir)
	}
	return errStub("LFSInstall")
}

func (s *stubGit) LFSTrack(ctx context.Context, dir string, patterns []string) error {
	if s.lfsTrackFn != nil {
		return s.lfsTrackFn(ctx, dir, patterns)
	}
	return errStub("LFSTrack")
}

func (s *stubGit) LFSUntrack(ctx context.Context, dir string, patterns []string) error {
	if s.lfsUntrackFn != nil {
		return s.lfsUntrackFn(ctx, dir, patterns)
	}
	return errStub("LFSUntrack")
}

func (s *stubGit) LFSStatus(ctx context.Context, dir string) (*core.LFSStatusResult, error) {
	if s.lfsStatusFn != nil {
		return s.lfsStatusFn(ctx, dir)
	}
	return nil, errStub("LFSStatus")
}

func (s *stubGit) LFSPull(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error {
	if s.lfsPullFn != nil {
		return s.lfsPullFn(ctx, dir, opts, auth, progress)
	}
	return errStub("LFSPull")
}

func (s *stubGit) LFSPush(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error {
	if s.lfsPushFn != nil {
		return s.lfsPushFn(ctx, dir, opts, auth, progress)
	}
	return errStub("LFSPush")
}

func (s *stubGit) LFSFetch(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error {
	if s.lfsFetchFn != nil {
		return s.lfsFetchFn(ctx, dir, opts, auth, progress)
	}
	return errStub("LFSFetch")
}

func (s *stubGit) Version(ctx context.Context) (string, error) {
	if s.versionFn != nil {
		return s.versionFn(ctx)
	}
	return "", errStub("Version")
}

// fakeAuth satisfies core.Auth without carrying secret material.
type fakeAuth struct{}

func (fakeAuth) Method() core.AuthMethod    { return core.AuthToken }
func (fakeAuth) Env(base []string) []string { return base }

// recordingCreds counts resolve and release calls and remembers the URL
// the runner selected the credential for.
type recordingCreds struct {
	mu       sync.Mutex
	resolved []string
	released int
	auth     core.Auth
	err      error
}

func (c *recordingCreds) Resolve(ctx context.Context, op core.Operation, remoteURL string) (core.Auth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = append(c.resolved, remoteURL)
	if c.err != nil {
		return nil, c.err
	}
	return c.auth, nil
}

func (c *recordingCreds) Release(a core.Auth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
}

// recordingSizer remembers which workspaces had their size refreshed
// and resolves paths with the same containment rules as the real
// workspace manager.
type recordingSizer struct {
	mu  sync.Mutex
	ids []core.WorkspaceID
}

func (s *recordingSizer) RefreshSize(ctx context.Context, id core.WorkspaceID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return 42, nil
}

func (s *recordingSizer) ResolvePath(ws *core.Workspace, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.Contains(filepath.ToSlash(rel), "..") {
		return "", core.ErrPathEscape(rel)
	}
	return filepath.Join(ws.Path, rel), nil
}

func (s *recordingSizer) refreshed() []core.WorkspaceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.WorkspaceID(nil), s.ids...)
}
