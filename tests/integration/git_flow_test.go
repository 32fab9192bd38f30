//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/service"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/testutil"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/tools"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/worker"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/workspace"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// newGitStack wires the pipeline with the real CLI adapter instead of a
// stub runner. Anonymous credentials: every remote below is a local path.
func newGitStack(t *testing.T, cfg config.Config) *stack {
	t.Helper()
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(cfg.Queue)
	bus := events.New(64)
	t.Cleanup(bus.Close)

	spaces, err := workspace.NewManager(cfg.Workspace, st, nil)
	if err != nil {
		t.Fatalf("workspace.NewManager() error = %v", err)
	}
	runner := tools.NewRunner(git.New("git", nil), nil, spaces, "origin", nil)
	pool := worker.New(cfg.Worker, q, st, runner, spaces, bus, nil)
	mgr := service.New(cfg, st, q, pool, spaces, runner, bus, nil)
	return &stack{mgr: mgr, store: st, queue: q, pool: pool, spaces: spaces}
}

// seedRemote creates a bare repository holding one commit on main and
// returns its path.
func seedRemote(t *testing.T) string {
	t.Helper()
	src := testutil.NewGitRepo(t)
	src.WriteFile("README.md", "# fixture\n")
	src.Commit("initial commit")

	remote := testutil.CreateBareRemote(t)
	src.SetRemote("origin", remote)
	if out, err := src.Run("push", "origin", "main"); err != nil {
		t.Fatalf("seeding remote: %s: %v", out, err)
	}
	return remote
}

func TestIntegration_CloneCommitPush(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	remote := seedRemote(t)
	s := newGitStack(t, stackConfig(t))
	s.start(t)

	// Clone through the queue.
	cloneParams, _ := json.Marshal(core.CloneOptions{URL: remote, Branch: "main"})
	clone, err := s.mgr.Submit(ctx, core.OpClone, cloneParams, service.TaskOptions{RemoteURL: remote})
	if err != nil {
		t.Fatalf("Submit(clone) error = %v", err)
	}
	done := s.waitStatus(t, clone.ID, core.TaskStatusCompleted)

	var cloned core.CloneResult
	if err := json.Unmarshal(done.Result, &cloned); err != nil {
		t.Fatalf("decoding clone result: %v", err)
	}
	if cloned.Branch != "main" || cloned.Commit == "" {
		t.Fatalf("clone result = %+v, want main at a commit", cloned)
	}

	ws, err := s.spaces.Get(ctx, clone.WorkspaceID)
	if err != nil {
		t.Fatalf("Get(workspace) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Path, "README.md")); err != nil {
		t.Fatalf("cloned tree missing README.md: %v", err)
	}

	// Inline status on the fresh clone.
	payload, err := s.mgr.RunSync(ctx, core.OpStatus, nil, service.TaskOptions{WorkspaceID: ws.ID})
	if err != nil {
		t.Fatalf("RunSync(status) error = %v", err)
	}
	var status core.StatusResult
	if err := json.Unmarshal(payload, &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !status.Clean || status.Branch != "main" {
		t.Fatalf("fresh clone status = %+v, want clean main", status)
	}

	// Mutate, stage, commit.
	if err := os.WriteFile(filepath.Join(ws.Path, "feature.txt"), []byte("new feature\n"), 0o644); err != nil {
		t.Fatalf("writing change: %v", err)
	}
	if _, err := s.mgr.RunSync(ctx, core.OpAdd, json.RawMessage(`{"all":true}`),
		service.TaskOptions{WorkspaceID: ws.ID}); err != nil {
		t.Fatalf("RunSync(add) error = %v", err)
	}

	commitParams, _ := json.Marshal(core.CommitOptions{
		Message:     "add feature file",
		AuthorName:  "Test User",
		AuthorEmail: "test@example.com",
	})
	payload, err = s.mgr.RunSync(ctx, core.OpCommit, commitParams, service.TaskOptions{WorkspaceID: ws.ID})
	if err != nil {
		t.Fatalf("RunSync(commit) error = %v", err)
	}
	var committed core.CommitResult
	if err := json.Unmarshal(payload, &committed); err != nil {
		t.Fatalf("decoding commit result: %v", err)
	}
	if committed.Commit == "" || committed.Commit == cloned.Commit {
		t.Fatalf("commit result = %+v, want a new head", committed)
	}

	// Push back through the queue and verify the remote advanced.
	pushParams, _ := json.Marshal(core.PushOptions{Remote: "origin", Ref: "main"})
	push, err := s.mgr.Submit(ctx, core.OpPush, pushParams, service.TaskOptions{WorkspaceID: ws.ID})
	if err != nil {
		t.Fatalf("Submit(push) error = %v", err)
	}
	s.waitStatus(t, push.ID, core.TaskStatusCompleted)

	out, err := exec.Command("git", "--git-dir", remote, "rev-parse", "refs/heads/main").Output()
	if err != nil {
		t.Fatalf("reading remote head: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != committed.Commit {
		t.Errorf("remote head = %s, want %s", got, committed.Commit)
	}

	// The size tracker ran after the mutating operations.
	if ws2, err := s.spaces.Get(ctx, ws.ID); err != nil {
		t.Errorf("Get(workspace) error = %v", err)
	} else if ws2.SizeBytes <= 0 {
		t.Errorf("workspace size = %d, want a refreshed positive size", ws2.SizeBytes)
	}
}

func TestIntegration_CloneFailureIsReported(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	s := newGitStack(t, stackConfig(t))
	s.start(t)

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	params, _ := json.Marshal(core.CloneOptions{URL: missing})
	task, err := s.mgr.Submit(ctx, core.OpClone, params,
		service.TaskOptions{RemoteURL: missing, Timeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("Submit(clone) error = %v", err)
	}

	done := s.waitStatus(t, task.ID, core.TaskStatusFailed)
	if done.Error == nil {
		t.Fatal("failed clone carries no error envelope")
	}
	if done.Error.Message == "" {
		t.Error("failure envelope has no message")
	}
}
