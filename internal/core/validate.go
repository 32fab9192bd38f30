// Package core defines the domain model shared by every layer: tasks,
// workspaces, credentials, the closed operation set, and the validation
// rules that keep untrusted tool parameters away from the git command line.
package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input ceilings. Requests beyond these are rejected before any process
// is spawned.
const (
	MaxURLLength     = 2048
	MaxRefLength     = 255
	MaxMessageLength = 65536
	MaxPathsPerCall  = 1000
	MaxPatternLength = 512
)

// Log levels
const (
	LogDebug = "debug"
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// LogLevels is the ordered list of log levels.
var LogLevels = []string{LogDebug, LogInfo, LogWarn, LogError}

// Log formats
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LogFormats is the ordered list of log formats.
var LogFormats = []string{LogFormatAuto, LogFormatText, LogFormatJSON}

// Eviction policies for the workspace manager.
const (
	EvictionLRU  = "lru"
	EvictionFIFO = "fifo"
)

// EvictionPolicies is the ordered list of supported eviction policies.
var EvictionPolicies = []string{EvictionLRU, EvictionFIFO}

// allowedURLSchemes are the remote transports the service will talk to.
// file:// is gated separately and ext:: is never allowed.
var allowedURLSchemes = map[string]bool{
	"https":   true,
	"http":    true,
	"ssh":     true,
	"git":     true,
	"git+ssh": true,
}

// scpLikeRE matches the scp-style remote syntax git accepts without a
// scheme, e.g. git@github.com:owner/repo.git.
var scpLikeRE = regexp.MustCompile(`^[A-Za-z0-9._~-]+@[A-Za-z0-9.-]+:[^/].*$`)

// ValidateRemoteURL rejects URLs the service must never hand to git:
// unknown transports, the ext:: remote helper, and oversized or
// option-shaped values. file:// URLs pass only when allowFile is set.
func ValidateRemoteURL(raw string, allowFile bool) error {
	if raw == "" {
		return ErrValidation(CodeInvalidRemoteURL, "repository url cannot be empty")
	}
	if len(raw) > MaxURLLength {
		return ErrValidation(CodeInvalidRemoteURL, fmt.Sprintf("repository url exceeds %d characters", MaxURLLength))
	}
	if strings.HasPrefix(raw, "-") {
		return ErrValidation(CodeInvalidRemoteURL, "repository url cannot start with a dash")
	}
	if containsControl(raw) {
		return ErrValidation(CodeInvalidRemoteURL, "repository url contains control characters")
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "ext::") {
		return ErrValidation(CodeInvalidRemoteURL, "ext:: transport is not allowed")
	}
	if strings.HasPrefix(lower, "file://") {
		if !allowFile {
			return ErrValidation(CodeInvalidRemoteURL, "file:// urls are disabled").
				WithSuggestion("set workspace.allow_file_urls to enable local clones")
		}
		return nil
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		if !allowedURLSchemes[strings.ToLower(u.Scheme)] {
			return ErrValidation(CodeInvalidRemoteURL, fmt.Sprintf("unsupported url scheme %q", u.Scheme))
		}
		return nil
	}
	if scpLikeRE.MatchString(raw) {
		return nil
	}
	return ErrValidation(CodeInvalidRemoteURL, "repository url is not a recognized git remote")
}

// StripURLCredentials removes userinfo from a remote URL so the result is
// safe to persist and log. Non-URL remotes (scp-like syntax, local paths)
// pass through unchanged; they carry no password segment.
func StripURLCredentials(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

// TransportOf classifies a remote URL by the authentication surface it
// exposes: "https" (token or password auth), "ssh" (agent or key), or ""
// for transports that take no credentials (git://, file://, local paths).
func TransportOf(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return "https"
	case strings.HasPrefix(lower, "ssh://"), strings.HasPrefix(lower, "git+ssh://"):
		return "ssh"
	case scpLikeRE.MatchString(raw):
		return "ssh"
	default:
		return ""
	}
}

// HostOf extracts the host component for credential matching. Returns ""
// when the URL carries no host (e.g. file://).
func HostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	if m := scpLikeRE.FindString(raw); m != "" {
		at := strings.Index(raw, "@")
		colon := strings.Index(raw, ":")
		if at >= 0 && colon > at {
			return strings.ToLower(raw[at+1 : colon])
		}
	}
	return ""
}

// ValidateRefName enforces git's ref-format rules plus the service's own
// safety constraints. kind names the field in error messages ("branch",
// "tag", "ref").
func ValidateRefName(kind, name string) error {
	if name == "" {
		return ErrValidation(CodeInvalidBranchName, kind+" name cannot be empty")
	}
	if len(name) > MaxRefLength {
		return ErrValidation(CodeInvalidBranchName, fmt.Sprintf("%s name exceeds %d characters", kind, MaxRefLength))
	}
	if containsControl(name) {
		return ErrValidation(CodeInvalidBranchName, kind+" name contains control characters")
	}
	switch {
	case strings.HasPrefix(name, "-"),
		strings.HasPrefix(name, "."),
		strings.HasPrefix(name, "/"):
		return ErrValidation(CodeInvalidBranchName, kind+" name has an invalid leading character")
	case strings.HasSuffix(name, "/"),
		strings.HasSuffix(name, "."),
		strings.HasSuffix(name, ".lock"):
		return ErrValidation(CodeInvalidBranchName, kind+" name has an invalid trailing sequence")
	case name == "@":
		return ErrValidation(CodeInvalidBranchName, kind+` name cannot be "@"`)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") || strings.Contains(name, "@{") {
		return ErrValidation(CodeInvalidBranchName, kind+" name contains a forbidden sequence")
	}
	if strings.ContainsAny(name, " ~^:?*[\\") {
		return ErrValidation(CodeInvalidBranchName, kind+" name contains a forbidden character")
	}
	switch name {
	case "HEAD", "FETCH_HEAD", "ORIG_HEAD", "MERGE_HEAD":
		return ErrValidation(CodeInvalidBranchName, kind+" name "+name+" is reserved")
	}
	return nil
}

// ValidateRemoteName restricts remote names to the conservative charset
// git itself recommends.
var remoteNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func ValidateRemoteName(name string) error {
	if name == "" {
		return ErrValidation(CodeMissingRequiredParam, "remote name cannot be empty")
	}
	if !remoteNameRE.MatchString(name) {
		return ErrValidation(CodeInvalidParamValue, fmt.Sprintf("invalid remote name %q", name))
	}
	return nil
}

// ValidatePaths rejects pathspecs that could escape the workspace or be
// parsed as options. Paths are always passed after a "--" separator as
// well; this check is the first line, not the only one.
func ValidatePaths(paths []string) error {
	if len(paths) > MaxPathsPerCall {
		return ErrValidation(CodeInvalidTargetPath, fmt.Sprintf("too many paths in one call (max %d)", MaxPathsPerCall))
	}
	for _, p := range paths {
		if p == "" {
			return ErrValidation(CodeInvalidTargetPath, "path cannot be empty")
		}
		if strings.HasPrefix(p, "-") {
			return ErrValidation(CodeInvalidTargetPath, fmt.Sprintf("path %q cannot start with a dash", p))
		}
		if strings.ContainsRune(p, 0) || containsControl(p) {
			return ErrValidation(CodeInvalidTargetPath, "path contains control characters")
		}
		// Absolute and ..-traversing paths are boundary violations, not
		// shape errors: they surface with the escape code.
		if strings.HasPrefix(p, "/") {
			return ErrPathEscape(p)
		}
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return ErrPathEscape(p)
			}
		}
	}
	return nil
}

// cloneFilterRE matches the specs `git clone --filter` accepts: blob:none,
// blob:limit=<n>, tree:<depth>, object:type=<t>, sparse:oid=<ref>, and
// combine:<spec>+<spec>.
var cloneFilterRE = regexp.MustCompile(`^[a-z]+:[A-Za-z0-9:=+/._-]+$`)

// ValidateCloneFilter checks a partial-clone filter spec before it is
// handed to git verbatim. Empty means full clone and is always valid.
func ValidateCloneFilter(spec string) error {
	if spec == "" {
		return nil
	}
	if len(spec) > MaxPatternLength {
		return ErrValidation(CodeInvalidParamValue, fmt.Sprintf("filter spec exceeds %d characters", MaxPatternLength))
	}
	if !cloneFilterRE.MatchString(spec) {
		return ErrValidation(CodeInvalidParamValue, fmt.Sprintf("invalid partial clone filter %q", spec))
	}
	return nil
}

// ValidateCommitMessage limits message size and strips the NUL byte git
// cannot store.
func ValidateCommitMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return ErrValidation(CodeInvalidCommitMessage, "commit message cannot be empty")
	}
	if len(msg) > MaxMessageLength {
		return ErrValidation(CodeInvalidCommitMessage, fmt.Sprintf("commit message exceeds %d bytes", MaxMessageLength))
	}
	if strings.ContainsRune(msg, 0) {
		return ErrValidation(CodeInvalidCommitMessage, "commit message contains a NUL byte")
	}
	return nil
}

// ValidateCommitish accepts anything git rev-parse would, minus option
// injection and control characters.
func ValidateCommitish(ref string) error {
	if ref == "" {
		return ErrValidation(CodeMissingRequiredParam, "revision cannot be empty")
	}
	if len(ref) > MaxRefLength {
		return ErrValidation(CodeInvalidParamValue, fmt.Sprintf("revision exceeds %d characters", MaxRefLength))
	}
	if strings.HasPrefix(ref, "-") {
		return ErrValidation(CodeInvalidParamValue, "revision cannot start with a dash")
	}
	if containsControl(ref) || strings.ContainsAny(ref, " \\") {
		return ErrValidation(CodeInvalidParamValue, "revision contains a forbidden character")
	}
	return nil
}

func containsControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
