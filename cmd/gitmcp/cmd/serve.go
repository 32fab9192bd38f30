package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/api"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/credential"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/metrics"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/service"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/tools"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/worker"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Run the git operations server. Tool calls are read from stdin and
answered on stdout using JSON-RPC; logs go to stderr.

The optional HTTP endpoint serves health, Prometheus metrics and
read-only task/workspace views for operators; it never mutates state.

Examples:
  # Serve over stdio (how MCP clients launch gitmcp)
  gitmcp serve

  # Also expose the monitoring API
  gitmcp serve --http --http-addr 127.0.0.1:7280`,
	RunE: runServe,
}

var (
	serveHTTP     bool
	serveHTTPAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveHTTP, "http", false,
		"enable the read-only HTTP monitoring API")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", "127.0.0.1:7280",
		"address for the monitoring API")

	_ = viper.BindPFlag("server.enabled", serveCmd.Flags().Lookup("http"))
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("http-addr"))
}

func runServe(cobraCmd *cobra.Command, _ []string) error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cobraCmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable state first: everything else hangs off the store.
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	requeued, failed, err := st.RecoverInterrupted(ctx, cfg.Store.RecoverRequeueIdempotent)
	if err != nil {
		return fmt.Errorf("recovering interrupted tasks: %w", err)
	}
	if requeued > 0 || failed > 0 {
		logger.Info("recovered tasks from previous run",
			"requeued", requeued, "failed", failed)
	}

	bus := events.New(256)
	defer bus.Close()

	spaces, err := workspace.NewManager(cfg.Workspace, st, logger)
	if err != nil {
		return fmt.Errorf("initializing workspace manager: %w", err)
	}

	creds, err := credential.FromConfig(cfg.Git, logger, logger.Sanitizer())
	if err != nil {
		return fmt.Errorf("initializing credentials: %w", err)
	}
	defer creds.Close()

	q := queue.New(cfg.Queue)
	gitClient := git.New(cfg.Git.Binary, logger)
	runner := tools.NewRunner(gitClient, creds, spaces, cfg.Git.DefaultRemote, logger)
	pool := worker.New(cfg.Worker, q, st, runner, spaces, bus, logger)
	mgr := service.New(*cfg, st, q, pool, spaces, runner, bus, logger)

	if err := resumeQueued(ctx, st, q, logger); err != nil {
		return err
	}

	srv := mcp.NewServer("gitmcp", appVersion,
		mcp.WithLogger(logger),
		mcp.WithInstructions("Git operations server. Long-running operations "+
			"(clone, push, pull, fetch, merge, rebase) return a task_id; poll it "+
			"with git_get_task and cancel it with git_cancel_task."))
	tools.NewHandlers(mgr, *cfg, logger).Register(srv)

	collector := metrics.NewCollector(bus, q, pool, st, 10*time.Second)
	collector.Start()
	defer collector.Stop()

	// Hot reload of the dynamic settings when a config file is in play.
	if path := loader.ConfigFile(); path != "" {
		watcher, werr := config.NewWatcher(path, func(next *config.Config) {
			logger.SetLevel(next.Log.Level)
			mgr.Reconfigure(*next)
		})
		if werr != nil {
			logger.Warn("config hot reload unavailable", "error", werr)
		} else {
			defer watcher.Close()
		}
	}

	pool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(mgr.RunMaintenance(gctx)) })
	g.Go(func() error { return ignoreCancel(spaces.RunSweeper(gctx)) })
	if cfg.Server.Enabled {
		apiSrv := api.NewServer(cfg.Server, mgr, bus, logger)
		g.Go(func() error {
			err := apiSrv.ListenAndServe(gctx, cfg.Server.Addr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		// stdin EOF means the client is gone; shut everything down.
		defer stop()
		return ignoreCancel(srv.Serve(gctx, os.Stdin, os.Stdout))
	})

	logger.Info("server started",
		"version", appVersion,
		"workers", cfg.Worker.Count,
		"queue_capacity", cfg.Queue.Capacity,
		"workspace_root", cfg.Workspace.Root,
		"http", cfg.Server.Enabled)

	serveErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(),
		cfg.Worker.CancelGrace()+5*time.Second)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		logger.Warn("worker pool shutdown incomplete", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("server stopped")
	return nil
}

// resumeQueued puts tasks that were QUEUED when the previous process
// exited back on the in-memory queue, oldest first.
func resumeQueued(ctx context.Context, st core.Store, q *queue.Queue, logger *logging.Logger) error {
	pending, err := st.ListTasks(ctx, core.TaskFilter{
		Statuses: []core.TaskStatus{core.TaskStatusQueued},
		Limit:    q.Capacity(),
	})
	if err != nil {
		return fmt.Errorf("listing queued tasks: %w", err)
	}
	// ListTasks returns newest first; enqueue in FIFO order.
	for i := len(pending) - 1; i >= 0; i-- {
		if err := q.Enqueue(ctx, pending[i].ID); err != nil {
			logger.Warn("could not resume queued task",
				"task_id", string(pending[i].ID), "error", err)
		}
	}
	if len(pending) > 0 {
		logger.Info("resumed queued tasks", "count", len(pending))
	}
	return nil
}

// ignoreCancel maps the expected shutdown error to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
