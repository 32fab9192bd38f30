package core

import (
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// Store Port
// =============================================================================

// Store defines the contract for durable task, workspace, and operation-log
// persistence. All methods are safe for concurrent use.
type Store interface {
	// SaveTask inserts a new task record.
	SaveTask(ctx context.Context, t *Task) error

	// UpdateTask persists the full current state of an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID. Returns a task-not-found error when
	// no record exists.
	GetTask(ctx context.Context, id TaskID) (*Task, error)

	// ListTasks returns tasks matching the filter, newest first.
	ListTasks(ctx context.Context, f TaskFilter) ([]*Task, error)

	// DeleteTask removes a single task record regardless of state. Used to
	// unwind a submission whose queue admission failed.
	DeleteTask(ctx context.Context, id TaskID) error

	// PurgeTasksBefore deletes terminal tasks whose completion predates
	// cutoff. Returns the number of rows removed.
	PurgeTasksBefore(ctx context.Context, cutoff time.Time) (int, error)

	// SaveWorkspace inserts a new workspace record.
	SaveWorkspace(ctx context.Context, w *Workspace) error

	// UpdateWorkspace persists the full current state of a workspace.
	UpdateWorkspace(ctx context.Context, w *Workspace) error

	// GetWorkspace retrieves a workspace by ID.
	GetWorkspace(ctx context.Context, id WorkspaceID) (*Workspace, error)

	// ListWorkspaces returns all workspace records ordered by last use,
	// least recently used first.
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)

	// DeleteWorkspace removes a workspace record.
	DeleteWorkspace(ctx context.Context, id WorkspaceID) error

	// AppendOperationLog records one completed operation for the audit
	// trail.
	AppendOperationLog(ctx context.Context, entry *OperationLog) error

	// ListOperationLogs returns audit entries matching the filter, newest
	// first.
	ListOperationLogs(ctx context.Context, f OpLogFilter) ([]*OperationLog, error)

	// PurgeOperationLogsBefore deletes audit entries older than cutoff.
	PurgeOperationLogsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Ping verifies the underlying storage is reachable and writable.
	Ping(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	Statuses    []TaskStatus
	Operation   Operation
	WorkspaceID WorkspaceID
	Limit       int
	Offset      int
}

// OpLogFilter narrows ListOperationLogs results.
type OpLogFilter struct {
	TaskID      TaskID
	WorkspaceID WorkspaceID
	Operation   Operation
	Since       time.Time
	Limit       int
}

// OperationLog is one immutable audit record: which operation ran where,
// how it ended, and how long it took.
type OperationLog struct {
	ID          int64         `json:"id"`
	TaskID      TaskID        `json:"task_id,omitempty"`
	WorkspaceID WorkspaceID   `json:"workspace_id,omitempty"`
	Operation   Operation     `json:"operation"`
	Status      TaskStatus    `json:"status"`
	ErrorCode   int           `json:"error_code,omitempty"`
	Duration    time.Duration `json:"duration"`
	Detail      string        `json:"detail,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// =============================================================================
// Credential Port
// =============================================================================

// Auth carries resolved credential material into one git invocation. A nil
// Auth means anonymous access. Implementations must never expose secret
// material through String or GoString. Material flows exclusively through
// the child process environment so no secret reaches a command line or a
// file inside the workspace.
type Auth interface {
	// Method identifies the authentication mechanism.
	Method() AuthMethod

	// Env extends a child process environment with the variables the
	// method requires (askpass plumbing, GIT_SSH_COMMAND, agent socket).
	Env(base []string) []string
}

// CredentialResolver hands out refcounted credential handles for remote
// operations and takes them back on every exit path.
type CredentialResolver interface {
	// Resolve selects the credential for the operation and remote host.
	// A nil Auth with nil error means no credential is configured for the
	// host; the operation proceeds anonymously.
	Resolve(ctx context.Context, op Operation, remoteURL string) (Auth, error)

	// Release returns a handle obtained from Resolve. Secret material is
	// zeroized when the last reference is released. Nil handles are
	// ignored.
	Release(a Auth)
}

// =============================================================================
// Git Adapter Port
// =============================================================================

// ProgressFunc receives percentage updates (0-100) while a long transfer
// runs. Implementations must be cheap; callers may invoke it often.
type ProgressFunc func(percent int)

// GitAdapter defines the contract for executing git operations inside a
// workspace directory. Implementations shell out to the git binary; every
// method honors context cancellation by killing the child process.
type GitAdapter interface {
	// Repository lifecycle
	Clone(ctx context.Context, dir string, opts CloneOptions, auth Auth, progress ProgressFunc) (*CloneResult, error)
	Init(ctx context.Context, dir string, opts InitOptions) error

	// Working tree
	Status(ctx context.Context, dir string) (*StatusResult, error)
	Stage(ctx context.Context, dir string, opts StageOptions) error
	Commit(ctx context.Context, dir string, opts CommitOptions) (*CommitResult, error)
	Checkout(ctx context.Context, dir string, opts CheckoutOptions) error
	Reset(ctx context.Context, dir string, opts ResetOptions) error
	Clean(ctx context.Context, dir string, opts CleanOptions) (*CleanResult, error)

	// Remote transfer
	Push(ctx context.Context, dir string, opts PushOptions, auth Auth, progress ProgressFunc) (*PushResult, error)
	Pull(ctx context.Context, dir string, opts PullOptions, auth Auth, progress ProgressFunc) (*PullResult, error)
	Fetch(ctx context.Context, dir string, opts FetchOptions, auth Auth, progress ProgressFunc) (*FetchResult, error)

	// Branches
	Branches(ctx context.Context, dir string, includeRemote bool) ([]BranchInfo, error)
	CreateBranch(ctx context.Context, dir string, opts BranchCreateOptions) error
	DeleteBranch(ctx context.Context, dir string, opts BranchDeleteOptions) error

	// History integration
	Merge(ctx context.Context, dir string, opts MergeOptions) (*MergeResult, error)
	AbortMerge(ctx context.Context, dir string) error
	Rebase(ctx context.Context, dir string, opts RebaseOptions, auth Auth) (*RebaseResult, error)
	AbortRebase(ctx context.Context, dir string) error
	CherryPick(ctx context.Context, dir string, opts CherryPickOptions) (*CommitResult, error)
	Revert(ctx context.Context, dir string, opts RevertOptions) (*CommitResult, error)

	// Inspection
	Log(ctx context.Context, dir string, opts LogOptions) ([]CommitInfo, error)
	Show(ctx context.Context, dir string, opts ShowOptions) (*ShowResult, error)
	Diff(ctx context.Context, dir string, opts DiffOptions) (*DiffResult, error)
	Blame(ctx context.Context, dir string, opts BlameOptions) (*BlameResult, error)

	// Stash
	Stash(ctx context.Context, dir string, opts StashOptions) (*StashResult, error)
	StashList(ctx context.Context, dir string) ([]StashEntry, error)

	// Tags
	Tags(ctx context.Context, dir string) ([]TagInfo, error)
	CreateTag(ctx context.Context, dir string, opts TagCreateOptions) error
	DeleteTag(ctx context.Context, dir string, name string) error

	// Remotes
	Remotes(ctx context.Context, dir string) ([]RemoteInfo, error)
	AddRemote(ctx context.Context, dir string, name, url string) error
	RemoveRemote(ctx context.Context, dir string, name string) error

	// Partial checkouts
	SparseCheckout(ctx context.Context, dir string, opts SparseCheckoutOptions) (*SparseCheckoutResult, error)

	// Submodules
	SubmoduleAdd(ctx context.Context, dir string, opts SubmoduleAddOptions, auth Auth, progress ProgressFunc) error
	SubmoduleUpdate(ctx context.Context, dir string, opts SubmoduleUpdateOptions, auth Auth, progress ProgressFunc) error
	SubmoduleDeinit(ctx context.Context, dir string, opts SubmoduleDeinitOptions) error
	Submodules(ctx context.Context, dir string) ([]SubmoduleInfo, error)

	// Large file support
	LFSInstall(ctx context.Context, dir string) error
	LFSTrack(ctx context.Context, dir string, patterns []string) error
	LFSUntrack(ctx context.Context, dir string, patterns []string) error
	LFSStatus(ctx context.Context, dir string) (*LFSStatusResult, error)
	LFSPull(ctx context.Context, dir string, opts LFSTransferOptions, auth Auth, progress ProgressFunc) error
	LFSPush(ctx context.Context, dir string, opts LFSTransferOptions, auth Auth, progress ProgressFunc) error
	LFSFetch(ctx context.Context, dir string, opts LFSTransferOptions, auth Auth, progress ProgressFunc) error

	// Version reports the git binary version, for diagnostics.
	Version(ctx context.Context) (string, error)
}

// CloneOptions configures a repository clone.
type CloneOptions struct {
	URL          string   `json:"url"`
	Branch       string   `json:"branch,omitempty"`
	Depth        int      `json:"depth,omitempty"`
	Filter       string   `json:"filter,omitempty"` // partial clone spec, e.g. blob:none
	SingleBranch bool     `json:"single_branch,omitempty"`
	Recursive    bool     `json:"recursive,omitempty"` // initialize submodules
	SparsePaths  []string `json:"sparse_paths,omitempty"`
	LFS          bool     `json:"lfs,omitempty"`
	Bare         bool     `json:"bare,omitempty"`
}

// CloneResult reports the outcome of a clone.
type CloneResult struct {
	Branch    string `json:"branch"`
	Commit    string `json:"commit"`
	SizeBytes int64  `json:"size_bytes"`
}

// InitOptions configures repository initialization.
type InitOptions struct {
	Bare          bool   `json:"bare,omitempty"`
	InitialBranch string `json:"initial_branch,omitempty"`
}

// FileChange is one path in the working tree with its short status code.
type FileChange struct {
	Path   string `json:"path"`
	Status string `json:"status"` // M, A, D, R, C, U
}

// StatusResult mirrors `git status` for one workspace.
type StatusResult struct {
	Branch    string       `json:"branch"`
	Commit    string       `json:"commit,omitempty"`
	Ahead     int          `json:"ahead"`
	Behind    int          `json:"behind"`
	Staged    []FileChange `json:"staged"`
	Unstaged  []FileChange `json:"unstaged"`
	Untracked []string     `json:"untracked"`
	Conflicts []string     `json:"conflicts,omitempty"`
	Clean     bool         `json:"clean"`
}

// StageOptions selects paths for the index.
type StageOptions struct {
	Paths  []string `json:"paths,omitempty"`
	All    bool     `json:"all,omitempty"`    // stage everything, including untracked
	Update bool     `json:"update,omitempty"` // stage modified tracked files only
}

// CommitOptions configures commit creation.
type CommitOptions struct {
	Message     string `json:"message"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
	AllowEmpty  bool   `json:"allow_empty,omitempty"`
	Amend       bool   `json:"amend,omitempty"`
	SignOff     bool   `json:"sign_off,omitempty"`
}

// CommitResult reports a created commit.
type CommitResult struct {
	Commit       string `json:"commit"`
	FilesChanged int    `json:"files_changed"`
	Insertions   int    `json:"insertions"`
	Deletions    int    `json:"deletions"`
}

// CheckoutOptions switches branches or restores paths.
type CheckoutOptions struct {
	Ref        string   `json:"ref"`
	Create     bool     `json:"create,omitempty"`
	StartPoint string   `json:"start_point,omitempty"`
	Force      bool     `json:"force,omitempty"`
	Paths      []string `json:"paths,omitempty"`
}

// ResetMode selects how far reset unwinds state.
type ResetMode string

const (
	ResetSoft  ResetMode = "soft"
	ResetMixed ResetMode = "mixed"
	ResetHard  ResetMode = "hard"
)

// ResetOptions configures `git reset`.
type ResetOptions struct {
	Mode  ResetMode `json:"mode,omitempty"`
	Ref   string    `json:"ref,omitempty"`
	Paths []string  `json:"paths,omitempty"`
}

// CleanOptions configures removal of untracked files.
type CleanOptions struct {
	Directories bool `json:"directories,omitempty"`
	Ignored     bool `json:"ignored,omitempty"`
	DryRun      bool `json:"dry_run,omitempty"`
}

// CleanResult lists what clean removed (or would remove).
type CleanResult struct {
	Removed []string `json:"removed"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// PushOptions configures a push.
type PushOptions struct {
	Remote         string `json:"remote,omitempty"`
	Ref            string `json:"ref,omitempty"`
	Force          bool   `json:"force,omitempty"`
	ForceWithLease bool   `json:"force_with_lease,omitempty"`
	SetUpstream    bool   `json:"set_upstream,omitempty"`
	Tags           bool   `json:"tags,omitempty"`
	Delete         bool   `json:"delete,omitempty"`
}

// PushResult reports a push outcome.
type PushResult struct {
	Remote   string `json:"remote"`
	Ref      string `json:"ref"`
	UpToDate bool   `json:"up_to_date,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
}

// PullOptions configures a pull.
type PullOptions struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
	Rebase bool   `json:"rebase,omitempty"`
	FFOnly bool   `json:"ff_only,omitempty"`
	Prune  bool   `json:"prune,omitempty"`
}

// PullResult reports a pull outcome.
type PullResult struct {
	Before       string `json:"before"`
	After        string `json:"after"`
	FilesChanged int    `json:"files_changed"`
	FastForward  bool   `json:"fast_forward,omitempty"`
	UpToDate     bool   `json:"up_to_date,omitempty"`
}

// FetchOptions configures a fetch.
type FetchOptions struct {
	Remote string `json:"remote,omitempty"`
	All    bool   `json:"all,omitempty"`
	Prune  bool   `json:"prune,omitempty"`
	Tags   bool   `json:"tags,omitempty"`
	Depth  int    `json:"depth,omitempty"`
}

// FetchResult reports refs updated by a fetch.
type FetchResult struct {
	Remote      string   `json:"remote"`
	UpdatedRefs []string `json:"updated_refs"`
}

// BranchInfo describes one branch.
type BranchInfo struct {
	Name     string `json:"name"`
	Commit   string `json:"commit"`
	Current  bool   `json:"current,omitempty"`
	Remote   bool   `json:"remote,omitempty"`
	Upstream string `json:"upstream,omitempty"`
}

// BranchCreateOptions configures branch creation.
type BranchCreateOptions struct {
	Name       string `json:"name"`
	StartPoint string `json:"start_point,omitempty"`
	Checkout   bool   `json:"checkout,omitempty"`
}

// BranchDeleteOptions configures branch deletion.
type BranchDeleteOptions struct {
	Name  string `json:"name"`
	Force bool   `json:"force,omitempty"`
}

// MergeOptions configures a merge.
type MergeOptions struct {
	Ref           string `json:"ref"`
	NoFastForward bool   `json:"no_ff,omitempty"`
	FFOnly        bool   `json:"ff_only,omitempty"`
	Squash        bool   `json:"squash,omitempty"`
	Message       string `json:"message,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}

// MergeResult reports a completed merge. Conflicted merges surface as a
// merge-conflict error carrying the conflicting paths instead.
type MergeResult struct {
	Commit          string `json:"commit,omitempty"`
	FastForward     bool   `json:"fast_forward,omitempty"`
	AlreadyUpToDate bool   `json:"already_up_to_date,omitempty"`
	Squashed        bool   `json:"squashed,omitempty"`
}

// RebaseOptions configures a rebase.
type RebaseOptions struct {
	Upstream  string `json:"upstream"`
	Onto      string `json:"onto,omitempty"`
	Autostash bool   `json:"autostash,omitempty"`
}

// RebaseResult reports a completed rebase.
type RebaseResult struct {
	HeadCommit string `json:"head_commit"`
}

// CherryPickOptions configures cherry-picking.
type CherryPickOptions struct {
	Commits  []string `json:"commits"`
	NoCommit bool     `json:"no_commit,omitempty"`
}

// RevertOptions configures commit reversion.
type RevertOptions struct {
	Commits  []string `json:"commits"`
	NoCommit bool     `json:"no_commit,omitempty"`
}

// LogOptions narrows history listing.
type LogOptions struct {
	Ref      string `json:"ref,omitempty"`
	MaxCount int    `json:"max_count,omitempty"`
	Skip     int    `json:"skip,omitempty"`
	Since    string `json:"since,omitempty"`
	Until    string `json:"until,omitempty"`
	Author   string `json:"author,omitempty"`
	Grep     string `json:"grep,omitempty"`
	Path     string `json:"path,omitempty"`
}

// CommitInfo is one history entry.
type CommitInfo struct {
	Commit      string    `json:"commit"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Date        time.Time `json:"date"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body,omitempty"`
}

// ShowOptions selects an object to display.
type ShowOptions struct {
	Ref  string `json:"ref"`
	Stat bool   `json:"stat,omitempty"`
}

// ShowResult combines commit metadata with its patch.
type ShowResult struct {
	CommitInfo
	Patch string `json:"patch,omitempty"`
}

// DiffOptions configures diff generation.
type DiffOptions struct {
	Base     string   `json:"base,omitempty"`
	Head     string   `json:"head,omitempty"`
	Staged   bool     `json:"staged,omitempty"`
	NameOnly bool     `json:"name_only,omitempty"`
	Paths    []string `json:"paths,omitempty"`
	Unified  int      `json:"unified,omitempty"`
}

// FileDiff summarizes changes to one file.
type FileDiff struct {
	Path       string `json:"path"`
	Status     string `json:"status"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// DiffResult carries the patch plus per-file stats.
type DiffResult struct {
	Files []FileDiff `json:"files"`
	Patch string     `json:"patch,omitempty"`
}

// BlameOptions selects the file and line span to annotate.
type BlameOptions struct {
	Path      string `json:"path"`
	Ref       string `json:"ref,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
}

// BlameLine attributes one line to its last modifying commit.
type BlameLine struct {
	Line    int       `json:"line"`
	Commit  string    `json:"commit"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Content string    `json:"content"`
}

// BlameResult is the annotated span.
type BlameResult struct {
	Path  string      `json:"path"`
	Lines []BlameLine `json:"lines"`
}

// StashAction selects the stash subcommand.
type StashAction string

const (
	StashPush  StashAction = "push"
	StashPop   StashAction = "pop"
	StashApply StashAction = "apply"
	StashDrop  StashAction = "drop"
)

// StashOptions configures one stash action.
type StashOptions struct {
	Action           StashAction `json:"action"`
	Message          string      `json:"message,omitempty"`
	IncludeUntracked bool        `json:"include_untracked,omitempty"`
	Index            int         `json:"index,omitempty"`
}

// StashResult reports a stash action outcome.
type StashResult struct {
	Action  StashAction `json:"action"`
	Entry   string      `json:"entry,omitempty"`
	Applied bool        `json:"applied,omitempty"`
}

// StashEntry is one saved stash.
type StashEntry struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
	Branch  string `json:"branch,omitempty"`
}

// TagInfo describes one tag.
type TagInfo struct {
	Name      string `json:"name"`
	Commit    string `json:"commit"`
	Annotated bool   `json:"annotated,omitempty"`
	Message   string `json:"message,omitempty"`
}

// TagCreateOptions configures tag creation. A non-empty message makes the
// tag annotated.
type TagCreateOptions struct {
	Name    string `json:"name"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// RemoteInfo describes one configured remote.
type RemoteInfo struct {
	Name     string `json:"name"`
	FetchURL string `json:"fetch_url"`
	PushURL  string `json:"push_url,omitempty"`
}

// SparseAction selects the sparse-checkout subcommand.
type SparseAction string

const (
	SparseInit    SparseAction = "init"
	SparseSet     SparseAction = "set"
	SparseAdd     SparseAction = "add"
	SparseList    SparseAction = "list"
	SparseDisable SparseAction = "disable"
)

// SparseCheckoutOptions configures partial working trees.
type SparseCheckoutOptions struct {
	Action SparseAction `json:"action"`
	Paths  []string     `json:"paths,omitempty"`
	Cone   bool         `json:"cone,omitempty"`
}

// SparseCheckoutResult reports the active sparse patterns.
type SparseCheckoutResult struct {
	Action   SparseAction `json:"action"`
	Patterns []string     `json:"patterns,omitempty"`
	Enabled  bool         `json:"enabled"`
}

// SubmoduleAddOptions registers a new submodule.
type SubmoduleAddOptions struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
}

// SubmoduleUpdateOptions configures submodule sync.
type SubmoduleUpdateOptions struct {
	Init      bool     `json:"init,omitempty"`
	Recursive bool     `json:"recursive,omitempty"`
	Remote    bool     `json:"remote,omitempty"`
	Paths     []string `json:"paths,omitempty"`
}

// SubmoduleDeinitOptions unregisters submodules.
type SubmoduleDeinitOptions struct {
	Paths []string `json:"paths,omitempty"`
	All   bool     `json:"all,omitempty"`
	Force bool     `json:"force,omitempty"`
}

// SubmoduleInfo describes one registered submodule.
type SubmoduleInfo struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Commit string `json:"commit"`
	Status string `json:"status"` // "-" uninitialized, "+" out of sync, " " clean
}

// LFSFile is one large file tracked by git-lfs.
type LFSFile struct {
	Name      string `json:"name"`
	OID       string `json:"oid,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Status    string `json:"status,omitempty"`
}

// LFSStatusResult reports tracked patterns and pending transfers.
type LFSStatusResult struct {
	Patterns []string  `json:"patterns"`
	Files    []LFSFile `json:"files"`
}

// LFSTransferOptions configures lfs pull/push/fetch.
type LFSTransferOptions struct {
	Remote  string   `json:"remote,omitempty"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// =============================================================================
// Execution Port
// =============================================================================

// Runner executes one queued task inside its workspace and returns the
// serialized result. Implementations dispatch on the task operation and
// decode its params.
type Runner interface {
	Run(ctx context.Context, t *Task, ws *Workspace, progress ProgressFunc) (json.RawMessage, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, t *Task, ws *Workspace, progress ProgressFunc) (json.RawMessage, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, t *Task, ws *Workspace, progress ProgressFunc) (json.RawMessage, error) {
	return f(ctx, t, ws, progress)
}
