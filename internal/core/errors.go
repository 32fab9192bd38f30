package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors for retry and surfacing decisions.
type ErrorKind string

const (
	ErrKindValidation ErrorKind = "validation" // Invalid tool parameters
	ErrKindGit        ErrorKind = "git"        // Git operation failure
	ErrKindRepoAccess ErrorKind = "repo"       // Repository reachability/permissions
	ErrKindNetwork    ErrorKind = "network"    // Network connectivity
	ErrKindAuth       ErrorKind = "auth"       // Authentication failure
	ErrKindSystem     ErrorKind = "system"     // Filesystem/OS/storage failure
	ErrKindTask       ErrorKind = "task"       // Task lifecycle failure
	ErrKindInternal   ErrorKind = "internal"   // Panic or invariant violation
)

// Numeric error codes surfaced across the tool boundary. Grouped in
// contiguous ranges by kind so clients can switch on the thousand band.
const (
	CodeInvalidRepoPath      = 40001
	CodeInvalidRemoteURL     = 40002
	CodeInvalidBranchName    = 40003
	CodeInvalidCommitMessage = 40004
	CodeInvalidTimeout       = 40005
	CodeInvalidTargetPath    = 40006
	CodeMissingRequiredParam = 40007
	CodeParameterConflict    = 40008
	CodeInvalidParamValue    = 40009

	CodeGitCommandFailed = 40100
	CodeGitNotARepo      = 40101
	CodeGitNoChanges     = 40102
	CodeGitDetachedHead  = 40103
	CodeMergeConflict    = 40104
	CodeRebaseConflict   = 40105
	CodeGitUpToDate      = 40106
	CodePushRejected     = 40107

	CodeRepoAccessDenied = 40200
	CodeRepoNotFound     = 40201
	CodeRepoLocked       = 40202

	CodeNetworkError = 40300
	CodeTimeout      = 40301
	CodeAuthFailed   = 40302

	CodeSystemError       = 40400
	CodePermissionDenied  = 40401
	CodeResourceExhausted = 40402
	CodePathEscape        = 40403
	CodeStorage           = 40404
	CodeStorageFull       = 40405

	CodeTaskNotFound      = 40501
	CodeTaskCancelled     = 40502
	CodeTaskTimeout       = 40503
	CodeTaskExecutorError = 40504
	CodeQueueFull         = 40505
	CodeRateLimited       = 40506
	CodeWorkspaceNotFound = 40507

	CodeInternal = 40600
)

// DomainError is the single error envelope crossing component boundaries.
type DomainError struct {
	Kind       ErrorKind
	Code       int
	Message    string
	Suggestion string
	Retryable  bool
	Cause      error
	Context    map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%d] %s (%v)", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%d] %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on kind and code, ignoring message and context.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithSuggestion attaches a user-facing remediation hint.
func (e *DomainError) WithSuggestion(s string) *DomainError {
	e.Suggestion = s
	return e
}

// WithContext adds contextual information.
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ErrValidation creates a parameter validation error. Never retried.
func ErrValidation(code int, message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrGit creates a git operation error.
func ErrGit(code int, message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindGit,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrMergeConflict creates a conflict error carrying the conflicting paths.
func ErrMergeConflict(code int, files []string) *DomainError {
	op := "merge"
	if code == CodeRebaseConflict {
		op = "rebase"
	}
	return &DomainError{
		Kind:       ErrKindGit,
		Code:       code,
		Message:    fmt.Sprintf("%s stopped on conflicts in %d file(s)", op, len(files)),
		Suggestion: "resolve the conflicts manually or abort the operation",
		Retryable:  false,
		Context:    map[string]interface{}{"conflict_files": files},
	}
}

// ErrRepoAccess creates a repository access error.
func ErrRepoAccess(code int, message string) *DomainError {
	e := &DomainError{
		Kind:      ErrKindRepoAccess,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
	if code == CodeRepoAccessDenied {
		e.Suggestion = "verify the configured credential grants access to this repository"
	}
	return e
}

// ErrNetwork creates a network error. Retryable by default.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindNetwork,
		Code:      CodeNetworkError,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error. Retryable.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindNetwork,
		Code:      CodeTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrAuth creates an authentication error. Retryable: transient token or
// agent hiccups resolve on a later attempt; persistent failures exhaust
// the retry budget and surface with the credential suggestion.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Kind:       ErrKindAuth,
		Code:       CodeAuthFailed,
		Message:    message,
		Suggestion: "check GIT_TOKEN / SSH key configuration and repository permissions",
		Retryable:  true,
	}
}

// ErrSystem creates a system error.
func ErrSystem(code int, message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindSystem,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrPathEscape creates the security error for paths resolving outside
// their workspace.
func ErrPathEscape(path string) *DomainError {
	return &DomainError{
		Kind:       ErrKindSystem,
		Code:       CodePathEscape,
		Message:    fmt.Sprintf("path escapes workspace boundary: %s", path),
		Suggestion: "use a path relative to the workspace without .. components",
		Retryable:  false,
	}
}

// ErrStorage creates a persistent-store error. Retried internally by the
// store layer; not retried by workers.
func ErrStorage(message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindSystem,
		Code:      CodeStorage,
		Message:   message,
		Retryable: false,
	}
}

// ErrTask creates a task lifecycle error.
func ErrTask(code int, message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindTask,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTaskNotFound creates a not-found error for an unknown task id.
func ErrTaskNotFound(id TaskID) *DomainError {
	return &DomainError{
		Kind:      ErrKindTask,
		Code:      CodeTaskNotFound,
		Message:   fmt.Sprintf("task not found: %s", id),
		Retryable: false,
	}
}

// ErrWorkspaceNotFound creates a not-found error for an unknown workspace id.
func ErrWorkspaceNotFound(id WorkspaceID) *DomainError {
	return &DomainError{
		Kind:      ErrKindTask,
		Code:      CodeWorkspaceNotFound,
		Message:   fmt.Sprintf("workspace not found: %s", id),
		Retryable: false,
	}
}

// ErrQueueFull creates the backpressure error for a saturated queue.
func ErrQueueFull(capacity int) *DomainError {
	return &DomainError{
		Kind:       ErrKindTask,
		Code:       CodeQueueFull,
		Message:    fmt.Sprintf("task queue is full (capacity %d)", capacity),
		Suggestion: "retry after in-flight tasks drain, or raise queue_capacity",
		Retryable:  false,
	}
}

// ErrRateLimited creates the submit throttling error.
func ErrRateLimited(message string) *DomainError {
	return &DomainError{
		Kind:       ErrKindTask,
		Code:       CodeRateLimited,
		Message:    message,
		Suggestion: "reduce request rate or raise rate_limit_requests",
		Retryable:  false,
	}
}

// ErrInternal creates an internal error wrapping a panic or invariant
// violation.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Kind:      ErrKindInternal,
		Code:      CodeInternal,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// KindOf extracts the error kind, defaulting to internal.
func KindOf(err error) ErrorKind {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Kind
	}
	return ErrKindInternal
}

// CodeOf extracts the numeric code, defaulting to CodeInternal.
func CodeOf(err error) int {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return CodeInternal
}

// IsKind checks if an error belongs to a kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// AsDomain converts any error into a DomainError, wrapping foreign errors
// as internal so a typed envelope always reaches the tool boundary.
func AsDomain(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr
	}
	return ErrInternal(err.Error()).WithCause(err)
}
