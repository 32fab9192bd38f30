package core

import "sort"

// Operation is the symbolic name of a Git capability, drawn from a closed
// set fixed at compile time. Tool names map onto operations one-to-one at
// the handler boundary.
type Operation string

const (
	OpClone           Operation = "clone"
	OpInit            Operation = "init"
	OpStatus          Operation = "status"
	OpAdd             Operation = "add"
	OpCommit          Operation = "commit"
	OpPush            Operation = "push"
	OpPull            Operation = "pull"
	OpFetch           Operation = "fetch"
	OpCheckout        Operation = "checkout"
	OpBranchList      Operation = "branch-list"
	OpBranchCreate    Operation = "branch-create"
	OpBranchDelete    Operation = "branch-delete"
	OpMerge           Operation = "merge"
	OpRebase          Operation = "rebase"
	OpLog             Operation = "log"
	OpShow            Operation = "show"
	OpDiff            Operation = "diff"
	OpBlame           Operation = "blame"
	OpStash           Operation = "stash"
	OpStashList       Operation = "stash-list"
	OpTagList         Operation = "tag-list"
	OpTagCreate       Operation = "tag-create"
	OpTagDelete       Operation = "tag-delete"
	OpRemoteList      Operation = "remote-list"
	OpRemoteAdd       Operation = "remote-add"
	OpRemoteRemove    Operation = "remote-remove"
	OpReset           Operation = "reset"
	OpCherryPick      Operation = "cherry-pick"
	OpRevert          Operation = "revert"
	OpClean           Operation = "clean"
	OpSparseCheckout  Operation = "sparse-checkout"
	OpSubmoduleAdd    Operation = "submodule-add"
	OpSubmoduleUpd    Operation = "submodule-update"
	OpSubmoduleDeinit Operation = "submodule-deinit"
	OpSubmoduleList   Operation = "submodule-list"
	OpLFSInstall      Operation = "lfs-install"
	OpLFSInit         Operation = "lfs-init"
	OpLFSTrack        Operation = "lfs-track"
	OpLFSUntrack      Operation = "lfs-untrack"
	OpLFSStatus       Operation = "lfs-status"
	OpLFSPull         Operation = "lfs-pull"
	OpLFSPush         Operation = "lfs-push"
	OpLFSFetch        Operation = "lfs-fetch"
)

// OpClass groups operations by execution profile.
type OpClass int

const (
	// ClassLocal operations are synchronous and touch no network.
	ClassLocal OpClass = iota
	// ClassRemote operations are long-running and network-bound.
	ClassRemote
	// ClassMerge operations may stop on conflicts and report them.
	ClassMerge
)

type opTraits struct {
	class      OpClass
	async      bool // scheduled through the queue instead of run inline
	remote     bool // needs a credential handle
	idempotent bool // safe to re-enqueue after a crash
}

var operationTable = map[Operation]opTraits{
	OpClone:           {class: ClassRemote, async: true, remote: true, idempotent: true},
	OpInit:            {class: ClassLocal},
	OpStatus:          {class: ClassLocal, idempotent: true},
	OpAdd:             {class: ClassLocal},
	OpCommit:          {class: ClassLocal},
	OpPush:            {class: ClassRemote, async: true, remote: true},
	OpPull:            {class: ClassRemote, async: true, remote: true},
	OpFetch:           {class: ClassRemote, async: true, remote: true, idempotent: true},
	OpCheckout:        {class: ClassLocal},
	OpBranchList:      {class: ClassLocal},
	OpBranchCreate:    {class: ClassLocal},
	OpBranchDelete:    {class: ClassLocal},
	OpMerge:           {class: ClassMerge, async: true},
	OpRebase:          {class: ClassMerge, async: true, remote: true},
	OpLog:             {class: ClassLocal, idempotent: true},
	OpShow:            {class: ClassLocal},
	OpDiff:            {class: ClassLocal, idempotent: true},
	OpBlame:           {class: ClassLocal, idempotent: true},
	OpStash:           {class: ClassLocal},
	OpStashList:       {class: ClassLocal},
	OpTagList:         {class: ClassLocal},
	OpTagCreate:       {class: ClassLocal},
	OpTagDelete:       {class: ClassLocal},
	OpRemoteList:      {class: ClassLocal},
	OpRemoteAdd:       {class: ClassLocal},
	OpRemoteRemove:    {class: ClassLocal},
	OpReset:           {class: ClassLocal},
	OpCherryPick:      {class: ClassLocal},
	OpRevert:          {class: ClassLocal},
	OpClean:           {class: ClassLocal},
	OpSparseCheckout:  {class: ClassLocal},
	OpSubmoduleAdd:    {class: ClassRemote, async: true, remote: true},
	OpSubmoduleUpd:    {class: ClassRemote, async: true, remote: true},
	OpSubmoduleDeinit: {class: ClassLocal},
	OpSubmoduleList:   {class: ClassLocal},
	OpLFSInstall:      {class: ClassLocal},
	OpLFSInit:         {class: ClassLocal},
	OpLFSTrack:        {class: ClassLocal},
	OpLFSUntrack:      {class: ClassLocal},
	OpLFSStatus:       {class: ClassLocal},
	OpLFSPull:         {class: ClassRemote, async: true, remote: true},
	OpLFSPush:         {class: ClassRemote, async: true, remote: true},
	OpLFSFetch:        {class: ClassRemote, async: true, remote: true, idempotent: true},
}

// Known reports whether the operation belongs to the closed set.
func (o Operation) Known() bool {
	_, ok := operationTable[o]
	return ok
}

// Class returns the execution profile of the operation.
func (o Operation) Class() OpClass {
	return operationTable[o].class
}

// IsAsync reports whether the operation is scheduled through the queue.
// Local operations run inline on the caller's request path.
func (o Operation) IsAsync() bool {
	return operationTable[o].async
}

// NeedsCredential reports whether the operation contacts a remote and
// therefore resolves a credential handle before execution.
func (o Operation) NeedsCredential() bool {
	return operationTable[o].remote
}

// Idempotent reports whether a crashed execution may be re-enqueued
// without risking repository corruption.
func (o Operation) Idempotent() bool {
	return operationTable[o].idempotent
}

// Operations returns the closed set sorted by name, for catalogs and
// suggestion matching.
func Operations() []Operation {
	ops := make([]Operation, 0, len(operationTable))
	for op := range operationTable {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
