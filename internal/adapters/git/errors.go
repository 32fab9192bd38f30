package git

import (
	"strings"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// stderrRule maps a git stderr fragment to a taxonomy constructor. Rules
// are checked in order; the first match wins, so more specific fragments
// come first.
type stderrRule struct {
	fragment string
	build    func(stderr string) *core.DomainError
}

var stderrRules = []stderrRule{
	// Authentication. "Permission denied (publickey" must precede the
	// generic filesystem "Permission denied".
	{"authentication failed", func(string) *core.DomainError {
		return core.ErrAuth("remote rejected the provided credentials")
	}},
	{"could not read username", func(string) *core.DomainError {
		return core.ErrAuth("remote requires a username and none is configured")
	}},
	{"could not read password", func(string) *core.DomainError {
		return core.ErrAuth("remote requires a password and none is configured")
	}},
	{"permission denied (publickey", func(string) *core.DomainError {
		return core.ErrAuth("SSH key was rejected by the remote")
	}},
	{"invalid username or password", func(string) *core.DomainError {
		return core.ErrAuth("remote rejected the provided credentials")
	}},
	{"terminal prompts disabled", func(string) *core.DomainError {
		return core.ErrAuth("remote asked for interactive credentials")
	}},
	{"host key verification failed", func(string) *core.DomainError {
		return core.ErrAuth("SSH host key verification failed").
			WithSuggestion("add the remote host to known_hosts")
	}},

	// Repository reachability.
	{"repository not found", func(string) *core.DomainError {
		return core.ErrRepoAccess(core.CodeRepoNotFound, "remote repository not found").
			WithSuggestion("check the repository URL and access permissions")
	}},
	{"does not appear to be a git repository", func(string) *core.DomainError {
		return core.ErrRepoAccess(core.CodeRepoNotFound, "remote is not a git repository").
			WithSuggestion("check the repository URL")
	}},

	// Conflicts surface with the conflicting paths attached.
	{"conflict", func(stderr string) *core.DomainError {
		return core.ErrMergeConflict(core.CodeMergeConflict, parseConflictFiles(stderr))
	}},

	// Push rejection.
	{"non-fast-forward", func(string) *core.DomainError {
		return pushRejected()
	}},
	{"fetch first", func(string) *core.DomainError {
		return pushRejected()
	}},
	{"[rejected]", func(string) *core.DomainError {
		return pushRejected()
	}},
	{"stale info", func(string) *core.DomainError {
		return core.ErrGit(core.CodePushRejected, "push rejected: remote ref moved since last fetch").
			WithSuggestion("fetch and retry, or push without --force-with-lease")
	}},

	// Network.
	{"could not resolve host", func(string) *core.DomainError {
		return core.ErrNetwork("cannot resolve remote host")
	}},
	{"unable to access", func(string) *core.DomainError {
		return core.ErrNetwork("cannot reach the remote repository")
	}},
	{"connection refused", func(string) *core.DomainError {
		return core.ErrNetwork("connection to the remote was refused")
	}},
	{"connection timed out", func(string) *core.DomainError {
		return core.ErrTimeout("connection to the remote timed out")
	}},
	{"operation timed out", func(string) *core.DomainError {
		return core.ErrTimeout("network operation timed out")
	}},
	{"early eof", func(string) *core.DomainError {
		return core.ErrNetwork("remote hung up during transfer")
	}},
	{"the remote end hung up", func(string) *core.DomainError {
		return core.ErrNetwork("remote hung up during transfer")
	}},

	// Local repository state.
	{"not a git repository", func(string) *core.DomainError {
		return core.ErrGit(core.CodeGitNotARepo, "directory is not a git repository").
			WithSuggestion("clone or init a repository in this workspace first")
	}},
	{"nothing to commit", func(string) *core.DomainError {
		return noChanges()
	}},
	{"no changes added to commit", func(string) *core.DomainError {
		return noChanges()
	}},
	{"you are not currently on a branch", func(string) *core.DomainError {
		return detachedHead()
	}},
	{"head detached", func(string) *core.DomainError {
		return detachedHead()
	}},

	// Filesystem permissions, after the publickey rule above.
	{"permission denied", func(string) *core.DomainError {
		return core.ErrSystem(core.CodePermissionDenied, "filesystem permission denied")
	}},
	{"no space left on device", func(string) *core.DomainError {
		return core.ErrSystem(core.CodeStorageFull, "no space left on device").
			WithSuggestion("free disk space or lower workspace quotas")
	}},
}

func pushRejected() *core.DomainError {
	return core.ErrGit(core.CodePushRejected, "push rejected: remote contains work not present locally").
		WithSuggestion("pull or fetch the remote changes first, or force-push deliberately")
}

func noChanges() *core.DomainError {
	return core.ErrGit(core.CodeGitNoChanges, "nothing to commit").
		WithSuggestion("stage changes first, or pass allow_empty")
}

func detachedHead() *core.DomainError {
	return core.ErrGit(core.CodeGitDetachedHead, "HEAD is detached").
		WithSuggestion("checkout a branch before this operation")
}

// mapGitError classifies a failed invocation by its stderr. The fallback
// is a generic git failure carrying the first stderr line.
func mapGitError(stderr string, cause error) *core.DomainError {
	lower := strings.ToLower(stderr)
	for _, rule := range stderrRules {
		if strings.Contains(lower, rule.fragment) {
			return rule.build(stderr).WithCause(cause)
		}
	}
	msg := firstLine(stderr)
	if msg == "" {
		msg = "git command failed"
	}
	return core.ErrGit(core.CodeGitCommandFailed, msg).WithCause(cause)
}

// parseConflictFiles extracts paths from "CONFLICT (...): ... in <path>"
// lines emitted by merge, rebase, and cherry-pick.
func parseConflictFiles(out string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "CONFLICT") {
			continue
		}
		// "CONFLICT (content): Merge conflict in path/to/file"
		// "CONFLICT (modify/delete): path deleted in HEAD and modified in ..."
		var path string
		if i := strings.LastIndex(line, " in "); i >= 0 && !strings.HasPrefix(line[i+4:], "HEAD") {
			path = line[i+4:]
		} else if i := strings.Index(line, "): "); i >= 0 {
			rest := line[i+3:]
			if j := strings.Index(rest, " "); j > 0 {
				path = rest[:j]
			} else {
				path = rest
			}
		}
		path = strings.TrimSuffix(strings.TrimSpace(path), ".")
		if path != "" && !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	return files
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
