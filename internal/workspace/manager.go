// Package workspace manages the isolated directories git operations run
// in: allocation under a single root, lease accounting so one running
// task owns a directory at a time, TTL cleanup, and quota eviction.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/fsutil"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
)

const (
	// quarantineMarker is dropped inside a workspace whose last mutation
	// did not finish cleanly. The record's dirty flag is authoritative;
	// the marker lets an operator see why from the filesystem alone.
	quarantineMarker = ".gitmcp-quarantine.json"

	// minWorkspaceCap floors the per-workspace size cap so small total
	// quotas do not make every clone fail.
	minWorkspaceCap = int64(1) << 30
)

// evictHysteresis stops eviction at 90% of quota so one allocation does
// not immediately re-trigger it.
const evictHysteresis = 0.9

// DiskSpace reports capacity of the filesystem hosting the workspace root.
type DiskSpace struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Manager owns every directory under the workspace root and the lease
// bookkeeping on top of them. All methods are safe for concurrent use.
type Manager struct {
	root     string // absolute, symlink-resolved
	store    core.Store
	log      *logging.Logger
	cfg      config.WorkspaceConfig
	strategy string

	mu     sync.Mutex
	leases map[core.WorkspaceID]int

	evictCh chan struct{}
}

// NewManager creates the workspace root if needed and returns a manager
// over it.
func NewManager(cfg config.WorkspaceConfig, store core.Store, log *logging.Logger) (*Manager, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if err := fsutil.EnsureDir(cfg.Root, 0o700); err != nil {
		return nil, core.ErrSystem(core.CodeSystemError, "cannot create workspace root").
			WithCause(err).WithContext("root", cfg.Root)
	}
	root, err := filepath.EvalSymlinks(cfg.Root)
	if err != nil {
		return nil, core.ErrSystem(core.CodeSystemError, "cannot resolve workspace root").
			WithCause(err).WithContext("root", cfg.Root)
	}
	return &Manager{
		root:     root,
		store:    store,
		log:      log.WithComponent("workspace"),
		cfg:      cfg,
		strategy: cfg.CleanupStrategy,
		leases:   make(map[core.WorkspaceID]int),
		evictCh:  make(chan struct{}, 1),
	}, nil
}

// Root returns the resolved workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Allocate creates a fresh directory under the root and persists its
// record before returning. Fails with STORAGE_FULL when recorded usage
// already exceeds the total quota; an eviction pass is triggered so a
// later attempt can succeed.
func (m *Manager) Allocate(ctx context.Context, repoURL string) (*core.Workspace, error) {
	usage, err := m.usage(ctx)
	if err != nil {
		return nil, err
	}
	if m.cfg.TotalQuotaBytes > 0 && usage > m.cfg.TotalQuotaBytes {
		m.TriggerEvict()
		return nil, core.ErrSystem(core.CodeStorageFull,
			fmt.Sprintf("workspace quota exhausted: %d of %d bytes in use", usage, m.cfg.TotalQuotaBytes)).
			WithSuggestion("release or delete workspaces, or raise workspace.total_quota_bytes")
	}

	id := core.WorkspaceID(uuid.NewString())
	dir := filepath.Join(m.root, string(id))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, core.ErrSystem(core.CodeSystemError, "cannot create workspace directory").
			WithCause(err).WithContext("path", dir)
	}

	ws := core.NewWorkspace(id, dir, repoURL)
	if err := m.store.SaveWorkspace(ctx, ws); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	m.log.Info("workspace allocated", "workspace_id", string(id), "path", dir)
	return ws, nil
}

// Acquire takes the lease on a workspace for one running task. It
// re-verifies path containment, rejects quarantined workspaces, reaps
// records whose directory vanished, and bumps the recency timestamp.
func (m *Manager) Acquire(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error) {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.verifyContained(ws.Path); err != nil {
		return nil, err
	}
	if !fsutil.Exists(ws.Path) {
		m.reap(ctx, ws)
		return nil, core.ErrWorkspaceNotFound(id)
	}
	if ws.Dirty {
		return nil, core.ErrRepoAccess(core.CodeRepoLocked,
			"workspace is quarantined after an interrupted operation").
			WithContext("workspace_id", string(id)).
			WithSuggestion("inspect the directory, then delete the workspace or clear its dirty flag")
	}

	m.mu.Lock()
	if m.leases[id] > 0 {
		m.mu.Unlock()
		return nil, core.ErrRepoAccess(core.CodeRepoLocked, "workspace is leased by another task").
			WithContext("workspace_id", string(id))
	}
	m.leases[id] = 1
	m.mu.Unlock()

	ws.Touch()
	if err := m.store.UpdateWorkspace(ctx, ws); err != nil {
		m.Release(id)
		return nil, err
	}
	return ws, nil
}

// Release returns the lease. Safe to call on every exit path, including
// paths where Acquire failed.
func (m *Manager) Release(id core.WorkspaceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases[id] > 0 {
		m.leases[id]--
		if m.leases[id] == 0 {
			delete(m.leases, id)
		}
	}
}

// Leased reports whether a running task currently holds the workspace.
func (m *Manager) Leased(id core.WorkspaceID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases[id] > 0
}

// Get returns one workspace record, reaping it first if the directory
// was removed behind the manager's back.
func (m *Manager) Get(ctx context.Context, id core.WorkspaceID) (*core.Workspace, error) {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	if !fsutil.Exists(ws.Path) && !m.Leased(id) {
		m.reap(ctx, ws)
		return nil, core.ErrWorkspaceNotFound(id)
	}
	return ws, nil
}

// List returns all workspace records ordered least recently used first,
// dropping records whose directories no longer exist.
func (m *Manager) List(ctx context.Context) ([]*core.Workspace, error) {
	all, err := m.store.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, ws := range all {
		if !fsutil.Exists(ws.Path) && !m.Leased(ws.ID) {
			m.reap(ctx, ws)
			continue
		}
		live = append(live, ws)
	}
	return live, nil
}

// Touch refreshes the recency timestamp, keeping the workspace out of
// TTL cleanup for another retention window.
func (m *Manager) Touch(ctx context.Context, id core.WorkspaceID) error {
	ws, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	ws.Touch()
	return m.store.UpdateWorkspace(ctx, ws)
}

// RefreshSize recomputes the on-disk size of a workspace and persists
// it. A workspace larger than the per-workspace cap (a tenth of the
// total quota, at least 1 GiB) fails with RESOURCE_EXHAUSTED after the
// size is recorded.
func (m *Manager) RefreshSize(ctx context.Context, id core.WorkspaceID) (int64, error) {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return 0, err
	}
	size, err := fsutil.DirSize(ws.Path)
	if err != nil {
		return 0, core.ErrSystem(core.CodeSystemError, "cannot measure workspace size").
			WithCause(err).WithContext("workspace_id", string(id))
	}
	ws.SizeBytes = size
	if err := m.store.UpdateWorkspace(ctx, ws); err != nil {
		return size, err
	}
	if limit := m.perWorkspaceCap(); limit > 0 && size > limit {
		return size, core.ErrSystem(core.CodeResourceExhausted,
			fmt.Sprintf("workspace exceeds per-workspace cap: %d > %d bytes", size, limit)).
			WithContext("workspace_id", string(id)).
			WithSuggestion("use a shallower clone, sparse checkout, or delete the workspace")
	}
	return size, nil
}

// Delete removes the directory and its record. Leased workspaces cannot
// be deleted.
func (m *Manager) Delete(ctx context.Context, id core.WorkspaceID) error {
	if m.Leased(id) {
		return core.ErrRepoAccess(core.CodeRepoLocked, "workspace is leased by a running task").
			WithContext("workspace_id", string(id)).
			WithSuggestion("cancel the task or wait for it to finish")
	}
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if err := m.verifyContained(ws.Path); err != nil {
		return err
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		return core.ErrSystem(core.CodeSystemError, "cannot remove workspace directory").
			WithCause(err).WithContext("path", ws.Path)
	}
	if err := m.store.DeleteWorkspace(ctx, id); err != nil {
		return err
	}
	m.log.Info("workspace deleted", "workspace_id", string(id))
	return nil
}

// Quarantine marks a workspace dirty and drops a marker file explaining
// why. Quarantined workspaces refuse Acquire until the flag is cleared.
func (m *Manager) Quarantine(ctx context.Context, id core.WorkspaceID, reason string) error {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	ws.MarkDirty()
	if err := m.store.UpdateWorkspace(ctx, ws); err != nil {
		return err
	}
	marker, _ := json.Marshal(map[string]string{
		"reason": reason,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err := fsutil.AtomicWriteFile(filepath.Join(ws.Path, quarantineMarker), marker, 0o600); err != nil {
		// The record is already authoritative; a missing marker only
		// costs operator context.
		m.log.Warn("cannot write quarantine marker", "workspace_id", string(id), "error", err)
	}
	m.log.Warn("workspace quarantined", "workspace_id", string(id), "reason", reason)
	return nil
}

// ClearQuarantine lifts the dirty flag and removes the marker so the
// workspace can be acquired again.
func (m *Manager) ClearQuarantine(ctx context.Context, id core.WorkspaceID) error {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	ws.Dirty = false
	if err := m.store.UpdateWorkspace(ctx, ws); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(ws.Path, quarantineMarker)); err != nil && !os.IsNotExist(err) {
		m.log.Warn("cannot remove quarantine marker", "workspace_id", string(id), "error", err)
	}
	return nil
}

// CleanupExpired removes workspaces idle past the retention window.
// Leased workspaces are never touched. Returns the number removed.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	retention := m.cfg.Retention()
	if retention <= 0 {
		return 0, nil
	}
	all, err := m.store.ListWorkspaces(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	removed := 0
	for _, ws := range all {
		if !ws.Expired(retention, now) || m.Leased(ws.ID) {
			continue
		}
		if err := m.remove(ctx, ws); err != nil {
			m.log.Warn("cleanup failed for workspace", "workspace_id", string(ws.ID), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.log.Info("expired workspaces removed", "count", removed)
	}
	return removed, nil
}

// EvictUntilUnderQuota removes workspaces one at a time until recorded
// usage drops to 90% of the quota. Order follows the configured strategy:
// lru removes the least recently used first, fifo the oldest created.
// Leased workspaces are skipped; ties break by id.
func (m *Manager) EvictUntilUnderQuota(ctx context.Context) (int, error) {
	if m.cfg.TotalQuotaBytes <= 0 {
		return 0, nil
	}
	all, err := m.store.ListWorkspaces(ctx)
	if err != nil {
		return 0, err
	}
	var usage int64
	for _, ws := range all {
		usage += ws.SizeBytes
	}
	target := int64(float64(m.cfg.TotalQuotaBytes) * evictHysteresis)
	if usage <= target {
		return 0, nil
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		var ta, tb time.Time
		if m.strategy == core.EvictionFIFO {
			ta, tb = a.CreatedAt, b.CreatedAt
		} else {
			ta, tb = a.LastUsedAt, b.LastUsedAt
		}
		if ta.Equal(tb) {
			return a.ID < b.ID
		}
		return ta.Before(tb)
	})

	evicted := 0
	for _, ws := range all {
		if usage <= target {
			break
		}
		if m.Leased(ws.ID) {
			continue
		}
		if err := m.remove(ctx, ws); err != nil {
			m.log.Warn("eviction failed for workspace", "workspace_id", string(ws.ID), "error", err)
			continue
		}
		usage -= ws.SizeBytes
		evicted++
	}
	if evicted > 0 {
		m.log.Info("workspaces evicted for quota", "count", evicted, "usage_bytes", usage)
	}
	return evicted, nil
}

// DiskSpace reports total and free bytes of the filesystem hosting the
// workspace root.
func (m *Manager) DiskSpace(ctx context.Context) (*DiskSpace, error) {
	usage, err := disk.UsageWithContext(ctx, m.root)
	if err != nil {
		return nil, core.ErrSystem(core.CodeSystemError, "cannot stat workspace filesystem").
			WithCause(err).WithContext("root", m.root)
	}
	return &DiskSpace{
		Path:        m.root,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedBytes:   usage.Used,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// Usage returns the recorded byte usage across all workspaces.
func (m *Manager) Usage(ctx context.Context) (int64, error) {
	return m.usage(ctx)
}

// TriggerEvict schedules a quota eviction pass without blocking. The
// sweeper coalesces repeated triggers.
func (m *Manager) TriggerEvict() {
	select {
	case m.evictCh <- struct{}{}:
	default:
	}
}

// RunSweeper owns the background maintenance loop: TTL cleanup on every
// tick and quota eviction on tick or trigger. It returns when the
// context is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) error {
	interval := m.cfg.SweepInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.CleanupExpired(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("workspace cleanup pass failed", "error", err)
			}
			if _, err := m.EvictUntilUnderQuota(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("workspace eviction pass failed", "error", err)
			}
		case <-m.evictCh:
			if _, err := m.EvictUntilUnderQuota(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("workspace eviction pass failed", "error", err)
			}
		}
	}
}

// ResolvePath resolves a caller-supplied relative path against a
// workspace directory, rejecting any traversal or symlink escape before
// the path reaches any I/O. ResolveWithin clamps lexical traversal
// rather than failing, so absolute and ..-carrying inputs are rejected
// up front: a clamped path silently names the wrong file.
func (m *Manager) ResolvePath(ws *core.Workspace, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", core.ErrPathEscape(rel).WithContext("workspace_id", string(ws.ID))
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", core.ErrPathEscape(rel).WithContext("workspace_id", string(ws.ID))
		}
	}
	resolved, err := fsutil.ResolveWithin(ws.Path, rel)
	if err != nil {
		return "", core.ErrPathEscape(rel).WithCause(err).
			WithContext("workspace_id", string(ws.ID))
	}
	return resolved, nil
}

func (m *Manager) usage(ctx context.Context) (int64, error) {
	all, err := m.store.ListWorkspaces(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, ws := range all {
		total += ws.SizeBytes
	}
	return total, nil
}

func (m *Manager) perWorkspaceCap() int64 {
	if m.cfg.TotalQuotaBytes <= 0 {
		return 0
	}
	cap := m.cfg.TotalQuotaBytes / 10
	if cap < minWorkspaceCap {
		cap = minWorkspaceCap
	}
	return cap
}

// remove deletes directory and record for maintenance passes. Containment
// is re-verified so a poisoned record can never point deletion elsewhere.
func (m *Manager) remove(ctx context.Context, ws *core.Workspace) error {
	if err := m.verifyContained(ws.Path); err != nil {
		return err
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		return err
	}
	return m.store.DeleteWorkspace(ctx, ws.ID)
}

// reap drops the record of a workspace whose directory disappeared
// externally. Best effort: the next list repeats it if the store write
// fails.
func (m *Manager) reap(ctx context.Context, ws *core.Workspace) {
	if err := m.store.DeleteWorkspace(ctx, ws.ID); err != nil {
		m.log.Warn("cannot reap vanished workspace", "workspace_id", string(ws.ID), "error", err)
		return
	}
	m.log.Info("reaped workspace with missing directory", "workspace_id", string(ws.ID), "path", ws.Path)
}

// verifyContained checks that a recorded path still descends from the
// workspace root after resolving symlinks.
func (m *Manager) verifyContained(path string) error {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return core.ErrPathEscape(path)
	}
	if _, err := fsutil.ResolveWithin(m.root, rel); err != nil {
		return core.ErrPathEscape(path).WithCause(err)
	}
	return nil
}
