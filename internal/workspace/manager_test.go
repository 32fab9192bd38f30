package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

func newTestManager(t *testing.T, cfg config.WorkspaceConfig) (*Manager, core.Store) {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = filepath.Join(t.TempDir(), "workspaces")
	}
	s, err := store.New(filepath.Join(t.TempDir(), "gitmcp.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	m, err := NewManager(cfg, s, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, s
}

func TestManager_AllocateCreatesDirAndRecord(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if ws.RepoURL != "https://example.com/repo.git" {
		t.Errorf("RepoURL = %q, want the clone URL", ws.RepoURL)
	}

	info, err := os.Stat(ws.Path)
	if err != nil {
		t.Fatalf("workspace directory missing: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("workspace path is not a directory")
	}
	if got := filepath.Dir(ws.Path); got != m.Root() {
		t.Errorf("workspace parent = %q, want root %q", got, m.Root())
	}

	got, err := m.Get(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != ws.ID {
		t.Errorf("Get() ID = %q, want %q", got.ID, ws.ID)
	}
}

func TestManager_AllocateFailsOverQuota(t *testing.T) {
	m, s := newTestManager(t, config.WorkspaceConfig{TotalQuotaBytes: 1000})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/a.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	ws.SizeBytes = 2000
	if err := s.UpdateWorkspace(ctx, ws); err != nil {
		t.Fatalf("UpdateWorkspace() error = %v", err)
	}

	_, err = m.Allocate(ctx, "https://example.com/b.git")
	if err == nil {
		t.Fatal("Allocate() over quota succeeded, want STORAGE_FULL")
	}
	if core.CodeOf(err) != core.CodeStorageFull {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodeStorageFull)
	}
}

func TestManager_AcquireRelease(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	acquired, err := m.Acquire(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if acquired.ID != ws.ID {
		t.Errorf("Acquire() ID = %q, want %q", acquired.ID, ws.ID)
	}
	if !m.Leased(ws.ID) {
		t.Error("Leased() = false after Acquire")
	}

	// A second acquire while leased must fail with REPO_LOCKED.
	if _, err := m.Acquire(ctx, ws.ID); err == nil {
		t.Fatal("second Acquire() succeeded, want REPO_LOCKED")
	} else if core.CodeOf(err) != core.CodeRepoLocked {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodeRepoLocked)
	}

	m.Release(ws.ID)
	if m.Leased(ws.ID) {
		t.Error("Leased() = true after Release")
	}
	if _, err := m.Acquire(ctx, ws.ID); err != nil {
		t.Fatalf("Acquire() after Release error = %v", err)
	}
}

func TestManager_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})

	m.Release("never-acquired")
	if m.Leased("never-acquired") {
		t.Error("Leased() = true for id that was never acquired")
	}
}

func TestManager_AcquireMissingWorkspace(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})

	_, err := m.Acquire(context.Background(), "no-such-id")
	if err == nil {
		t.Fatal("Acquire() on unknown id succeeded")
	}
	if core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodeWorkspaceNotFound)
	}
}

func TestManager_AcquireReapsVanishedDirectory(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Acquire(ctx, ws.ID); err == nil {
		t.Fatal("Acquire() on vanished directory succeeded")
	} else if core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodeWorkspaceNotFound)
	}

	// The record must have been reaped.
	all, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() returned %d workspaces, want 0 after reap", len(all))
	}
}

func TestManager_QuarantineBlocksAcquire(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if err := m.Quarantine(ctx, ws.ID, "merge interrupted by cancel"); err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}

	// Marker file lands in the workspace.
	if _, err := os.Stat(filepath.Join(ws.Path, quarantineMarker)); err != nil {
		t.Errorf("quarantine marker missing: %v", err)
	}

	if _, err := m.Acquire(ctx, ws.ID); err == nil {
		t.Fatal("Acquire() on quarantined workspace succeeded")
	} else if core.CodeOf(err) != core.CodeRepoLocked {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodeRepoLocked)
	}

	if err := m.ClearQuarantine(ctx, ws.ID); err != nil {
		t.Fatalf("ClearQuarantine() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Path, quarantineMarker)); !os.IsNotExist(err) {
		t.Error("quarantine marker still present after clear")
	}
	if _, err := m.Acquire(ctx, ws.ID); err != nil {
		t.Fatalf("Acquire() after ClearQuarantine error = %v", err)
	}
}

func TestManager_DeleteRefusesLeased(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if _, err := m.Acquire(ctx, ws.ID); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := m.Delete(ctx, ws.ID); err == nil {
		t.Fatal("Delete() on leased workspace succeeded")
	} else if core.CodeOf(err) != core.CodeRepoLocked {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodeRepoLocked)
	}

	m.Release(ws.ID)
	if err := m.Delete(ctx, ws.ID); err != nil {
		t.Fatalf("Delete() after release error = %v", err)
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Error("workspace directory still exists after Delete")
	}
	if _, err := m.Get(ctx, ws.ID); core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Errorf("Get() after Delete code = %d, want %d", core.CodeOf(err), core.CodeWorkspaceNotFound)
	}
}

func TestManager_RefreshSizeRecordsBytes(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	payload := make([]byte, 4096)
	if err := os.WriteFile(filepath.Join(ws.Path, "blob"), payload, 0o600); err != nil {
		t.Fatal(err)
	}

	size, err := m.RefreshSize(ctx, ws.ID)
	if err != nil {
		t.Fatalf("RefreshSize() error = %v", err)
	}
	if size < int64(len(payload)) {
		t.Errorf("size = %d, want at least %d", size, len(payload))
	}

	got, err := m.Get(ctx, ws.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SizeBytes != size {
		t.Errorf("persisted SizeBytes = %d, want %d", got.SizeBytes, size)
	}
}

func TestManager_CleanupExpiredSkipsLeased(t *testing.T) {
	m, s := newTestManager(t, config.WorkspaceConfig{RetentionSeconds: 60})
	ctx := context.Background()

	stale, err := m.Allocate(ctx, "https://example.com/stale.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	leased, err := m.Allocate(ctx, "https://example.com/leased.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	fresh, err := m.Allocate(ctx, "https://example.com/fresh.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	for _, ws := range []*core.Workspace{stale, leased} {
		ws.LastUsedAt = old
		if err := s.UpdateWorkspace(ctx, ws); err != nil {
			t.Fatalf("UpdateWorkspace() error = %v", err)
		}
	}
	if _, err := m.Acquire(ctx, leased.ID); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	removed, err := m.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := m.Get(ctx, stale.ID); core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Error("stale workspace survived cleanup")
	}
	if _, err := m.Get(ctx, leased.ID); err != nil {
		t.Errorf("leased workspace was removed: %v", err)
	}
	if _, err := m.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh workspace was removed: %v", err)
	}
}

func TestManager_EvictLRUStopsAtHysteresis(t *testing.T) {
	m, s := newTestManager(t, config.WorkspaceConfig{
		TotalQuotaBytes: 1000,
		CleanupStrategy: core.EvictionLRU,
	})
	ctx := context.Background()

	// Three workspaces of 400 bytes each: 1200 total, target is 900.
	// Evicting the least recently used one is enough.
	var all []*core.Workspace
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		ws, err := m.Allocate(ctx, "https://example.com/repo.git")
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		ws.SizeBytes = 400
		ws.LastUsedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.UpdateWorkspace(ctx, ws); err != nil {
			t.Fatalf("UpdateWorkspace() error = %v", err)
		}
		all = append(all, ws)
	}

	evicted, err := m.EvictUntilUnderQuota(ctx)
	if err != nil {
		t.Fatalf("EvictUntilUnderQuota() error = %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, err := m.Get(ctx, all[0].ID); core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Error("least recently used workspace survived eviction")
	}
	for _, ws := range all[1:] {
		if _, err := m.Get(ctx, ws.ID); err != nil {
			t.Errorf("workspace %s evicted out of order: %v", ws.ID, err)
		}
	}
}

func TestManager_EvictSkipsLeased(t *testing.T) {
	m, s := newTestManager(t, config.WorkspaceConfig{
		TotalQuotaBytes: 1000,
		CleanupStrategy: core.EvictionLRU,
	})
	ctx := context.Background()

	oldest, err := m.Allocate(ctx, "https://example.com/oldest.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	next, err := m.Allocate(ctx, "https://example.com/next.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	oldest.SizeBytes = 800
	oldest.LastUsedAt = time.Now().Add(-2 * time.Hour)
	next.SizeBytes = 800
	next.LastUsedAt = time.Now().Add(-time.Hour)
	for _, ws := range []*core.Workspace{oldest, next} {
		if err := s.UpdateWorkspace(ctx, ws); err != nil {
			t.Fatalf("UpdateWorkspace() error = %v", err)
		}
	}

	if _, err := m.Acquire(ctx, oldest.ID); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	evicted, err := m.EvictUntilUnderQuota(ctx)
	if err != nil {
		t.Fatalf("EvictUntilUnderQuota() error = %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, err := m.Get(ctx, oldest.ID); err != nil {
		t.Errorf("leased workspace was evicted: %v", err)
	}
	if _, err := m.Get(ctx, next.ID); core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Error("unleased workspace survived while over quota")
	}
}

func TestManager_EvictFIFOOrdersByCreation(t *testing.T) {
	m, s := newTestManager(t, config.WorkspaceConfig{
		TotalQuotaBytes: 1000,
		CleanupStrategy: core.EvictionFIFO,
	})
	ctx := context.Background()

	first, err := m.Allocate(ctx, "https://example.com/first.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := m.Allocate(ctx, "https://example.com/second.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	// Unused recency would fool LRU: the oldest created was used most
	// recently. FIFO must still evict it first.
	first.CreatedAt = time.Now().Add(-2 * time.Hour)
	first.LastUsedAt = time.Now()
	first.SizeBytes = 600
	second.CreatedAt = time.Now().Add(-time.Hour)
	second.LastUsedAt = time.Now().Add(-time.Hour)
	second.SizeBytes = 600
	for _, ws := range []*core.Workspace{first, second} {
		if err := s.UpdateWorkspace(ctx, ws); err != nil {
			t.Fatalf("UpdateWorkspace() error = %v", err)
		}
	}

	if _, err := m.EvictUntilUnderQuota(ctx); err != nil {
		t.Fatalf("EvictUntilUnderQuota() error = %v", err)
	}
	if _, err := m.Get(ctx, first.ID); core.CodeOf(err) != core.CodeWorkspaceNotFound {
		t.Error("oldest created workspace survived FIFO eviction")
	}
	if _, err := m.Get(ctx, second.ID); err != nil {
		t.Errorf("newer workspace evicted before older: %v", err)
	}
}

func TestManager_ResolvePathRejectsEscape(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"plain file", "README.md", false},
		{"nested file", "docs/guide.md", false},
		{"dot", ".", false},
		{"parent traversal", "../other", true},
		{"deep traversal", "a/../../etc/passwd", true},
		{"absolute", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ResolvePath(ws, tt.rel)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolvePath(%q) = %q, want error", tt.rel, got)
				}
				if core.CodeOf(err) != core.CodePathEscape {
					t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodePathEscape)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePath(%q) error = %v", tt.rel, err)
			}
			rel, relErr := filepath.Rel(ws.Path, got)
			if relErr != nil || rel == ".." || filepath.IsAbs(rel) {
				t.Errorf("ResolvePath(%q) = %q escapes workspace", tt.rel, got)
			}
		})
	}
}

func TestManager_ResolvePathRejectsSymlinkEscape(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	ws, err := m.Allocate(ctx, "https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	outside := t.TempDir()
	link := filepath.Join(ws.Path, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := m.ResolvePath(ws, "escape/secret"); err == nil {
		t.Fatal("ResolvePath() through symlink escape succeeded")
	} else if core.CodeOf(err) != core.CodePathEscape {
		t.Errorf("code = %d, want %d", core.CodeOf(err), core.CodePathEscape)
	}
}

func TestManager_UsageSumsRecordedSizes(t *testing.T) {
	m, s := newTestManager(t, config.WorkspaceConfig{})
	ctx := context.Background()

	for i, size := range []int64{100, 250} {
		ws, err := m.Allocate(ctx, "https://example.com/repo.git")
		if err != nil {
			t.Fatalf("Allocate() #%d error = %v", i, err)
		}
		ws.SizeBytes = size
		if err := s.UpdateWorkspace(ctx, ws); err != nil {
			t.Fatalf("UpdateWorkspace() error = %v", err)
		}
	}

	usage, err := m.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage != 350 {
		t.Errorf("Usage() = %d, want 350", usage)
	}
}

func TestManager_TriggerEvictCoalesces(t *testing.T) {
	m, _ := newTestManager(t, config.WorkspaceConfig{})

	// Repeated triggers must never block even with no sweeper running.
	for i := 0; i < 10; i++ {
		m.TriggerEvict()
	}
}
