package core

import (
	"strings"
	"time"
)

// WorkspaceID identifies an allocated working directory.
type WorkspaceID string

// NewWorkspaceID validates and wraps a raw workspace identifier.
func NewWorkspaceID(id string) (WorkspaceID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrValidation(CodeMissingRequiredParam, "workspace id cannot be empty")
	}
	return WorkspaceID(id), nil
}

func (id WorkspaceID) String() string { return string(id) }

// Workspace is an isolated directory under the managed root in which git
// operations run. Lease accounting lives in the workspace manager, not on
// the record itself.
type Workspace struct {
	ID         WorkspaceID `json:"id"`
	Path       string      `json:"path"`
	RepoURL    string      `json:"repo_url,omitempty"`
	SizeBytes  int64       `json:"size_bytes"`
	Dirty      bool        `json:"dirty"`
	CreatedAt  time.Time   `json:"created_at"`
	LastUsedAt time.Time   `json:"last_used_at"`
}

// NewWorkspace builds a workspace record rooted at path. The repo URL is
// recorded when the workspace is allocated for a clone so operators can
// tell workspaces apart.
func NewWorkspace(id WorkspaceID, path, repoURL string) *Workspace {
	now := time.Now().UTC()
	return &Workspace{
		ID:         id,
		Path:       path,
		RepoURL:    repoURL,
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

// Touch refreshes the last-used timestamp. Eviction order and TTL expiry
// both key off this value.
func (w *Workspace) Touch() {
	w.LastUsedAt = time.Now().UTC()
}

// MarkDirty flags the workspace as possibly inconsistent after a cancelled
// or crashed mutation. Dirty workspaces are quarantined from reuse until
// an operator releases them.
func (w *Workspace) MarkDirty() {
	w.Dirty = true
}

// Expired reports whether the workspace has outlived ttl as of now.
// A zero ttl disables expiry.
func (w *Workspace) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(w.LastUsedAt) > ttl
}

// Validate checks structural integrity before persisting.
func (w *Workspace) Validate() error {
	if w.ID == "" {
		return ErrValidation(CodeMissingRequiredParam, "workspace id cannot be empty")
	}
	if w.Path == "" {
		return ErrValidation(CodeMissingRequiredParam, "workspace path cannot be empty")
	}
	return nil
}
