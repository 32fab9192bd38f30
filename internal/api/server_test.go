package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/service"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/testutil"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/worker"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/workspace"
)

type testEnv struct {
	mgr   *service.Manager
	bus   *events.Bus
	store *testutil.MockStore
}

func newTestServer(t *testing.T) (*Server, *testEnv) {
	t.Helper()

	cfg := config.Config{
		Queue: config.QueueConfig{Capacity: 10},
		Worker: config.WorkerConfig{
			Count:               2,
			MaxConcurrentTasks:  4,
			TaskTimeoutSeconds:  30,
			MaxRetries:          2,
			CancelGraceSeconds:  1,
			RetryBaseMS:         1,
			RetryMaxMS:          10,
			TimeoutCheckSeconds: 1,
		},
		Workspace: config.WorkspaceConfig{
			Root:            t.TempDir(),
			TotalQuotaBytes: 1 << 30,
			CleanupStrategy: "lru",
		},
		Store: config.StoreConfig{
			ResultRetentionSeconds: 3600,
			PurgeIntervalSeconds:   60,
		},
		Git: config.GitConfig{DefaultRemote: "origin"},
	}

	store := testutil.NewMockStore()
	q := queue.New(cfg.Queue)
	bus := events.New(64)
	spaces, err := workspace.NewManager(cfg.Workspace, store, nil)
	if err != nil {
		t.Fatalf("workspace.NewManager() error = %v", err)
	}
	runner := core.RunnerFunc(func(context.Context, *core.Task, *core.Workspace, core.ProgressFunc) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	pool := worker.New(cfg.Worker, q, store, runner, spaces, bus, nil)
	mgr := service.New(cfg, store, q, pool, spaces, runner, bus, nil)
	t.Cleanup(bus.Close)

	srv := NewServer(config.ServerConfig{}, mgr, bus, logging.NewNop())
	return srv, &testEnv{mgr: mgr, bus: bus, store: store}
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func submitClone(t *testing.T, env *testEnv) *core.Task {
	t.Helper()
	task, err := env.mgr.Submit(context.Background(), core.OpClone,
		json.RawMessage(`{"url":"https://example.com/repo.git"}`), service.TaskOptions{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return task
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s, want healthy status", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "gitmcp_queue_depth") {
		t.Error("metrics exposition is missing the gitmcp collectors")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/api/v1/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestWriteMethodsRejected(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	// Give the listener a moment to come up before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("ListenAndServe() error = %v, want ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after context cancel")
	}
}
