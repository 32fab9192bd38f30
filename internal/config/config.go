package config

import "time"

// Config holds all service configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Git       GitConfig       `mapstructure:"git"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	File      string `mapstructure:"file"`
	AddSource bool   `mapstructure:"add_source"`
	NoColor   bool   `mapstructure:"no_color"`
}

// ServerConfig configures the optional HTTP monitoring API. The primary
// surface is MCP over stdio; the HTTP server is read-only observability.
type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig configures task and workspace persistence.
type StoreConfig struct {
	Path                   string `mapstructure:"path"`
	ResultRetentionSeconds int    `mapstructure:"result_retention_seconds"`
	PurgeIntervalSeconds   int    `mapstructure:"purge_interval_seconds"`
	BusyTimeoutMS          int    `mapstructure:"busy_timeout_ms"`
	MaxRetries             int    `mapstructure:"max_retries"`
	// RecoverRequeueIdempotent re-enqueues idempotent operations found
	// RUNNING at startup instead of failing them.
	RecoverRequeueIdempotent bool `mapstructure:"recover_requeue_idempotent"`
}

// ResultRetention returns how long terminal task records are kept.
func (c StoreConfig) ResultRetention() time.Duration {
	return time.Duration(c.ResultRetentionSeconds) * time.Second
}

// PurgeInterval returns how often expired records are purged.
func (c StoreConfig) PurgeInterval() time.Duration {
	return time.Duration(c.PurgeIntervalSeconds) * time.Second
}

// QueueConfig configures the pending-task queue.
type QueueConfig struct {
	Capacity    int  `mapstructure:"capacity"`
	BlockOnFull bool `mapstructure:"block_on_full"`
}

// WorkerConfig configures the worker pool and task execution limits.
type WorkerConfig struct {
	Count               int `mapstructure:"count"`
	MaxConcurrentTasks  int `mapstructure:"max_concurrent_tasks"`
	TaskTimeoutSeconds  int `mapstructure:"task_timeout_seconds"`
	MaxRetries          int `mapstructure:"max_retries"`
	CancelGraceSeconds  int `mapstructure:"cancel_grace_seconds"`
	RetryBaseMS         int `mapstructure:"retry_base_ms"`
	RetryMaxMS          int `mapstructure:"retry_max_ms"`
	TimeoutCheckSeconds int `mapstructure:"timeout_check_seconds"`
}

// TaskTimeout returns the default per-task execution timeout.
func (c WorkerConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// CancelGrace returns how long a cancelled task may run before it is
// forcibly abandoned.
func (c WorkerConfig) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceSeconds) * time.Second
}

// RetryBase returns the first retry backoff delay.
func (c WorkerConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// RetryMax returns the backoff cap.
func (c WorkerConfig) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMS) * time.Millisecond
}

// TimeoutCheck returns how often the sweeper scans for tasks stuck past
// their deadline.
func (c WorkerConfig) TimeoutCheck() time.Duration {
	return time.Duration(c.TimeoutCheckSeconds) * time.Second
}

// WorkspaceConfig configures workspace allocation and cleanup.
type WorkspaceConfig struct {
	Root                 string `mapstructure:"root"`
	RetentionSeconds     int    `mapstructure:"retention_seconds"`
	TotalQuotaBytes      int64  `mapstructure:"total_quota_bytes"`
	CleanupStrategy      string `mapstructure:"cleanup_strategy"`
	SweepIntervalSeconds int    `mapstructure:"sweep_interval_seconds"`
	AllowFileURLs        bool   `mapstructure:"allow_file_urls"`
}

// Retention returns the idle TTL after which a workspace may be evicted.
// Zero disables TTL-based eviction.
func (c WorkspaceConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// SweepInterval returns how often the background sweeper runs.
func (c WorkspaceConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// GitConfig configures the git binary and default credentials. The
// credential fields are normally supplied through environment variables
// (GIT_TOKEN, GIT_SSH_KEY_PATH, GIT_USERNAME, GIT_PASSWORD,
// GIT_SSH_KEY_PASSPHRASE) and must never be logged.
type GitConfig struct {
	Binary            string `mapstructure:"binary"`
	DefaultCloneDepth int    `mapstructure:"default_clone_depth"`
	DefaultRemote     string `mapstructure:"default_remote"`
	LFS               bool   `mapstructure:"lfs"`
	Token             string `mapstructure:"token"`
	SSHKeyPath        string `mapstructure:"ssh_key_path"`
	SSHKeyPassphrase  string `mapstructure:"ssh_key_passphrase"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	// PreferredAuth overrides the automatic method selection order
	// (token > ssh_agent > ssh_key > username_password). Empty keeps the
	// automatic order.
	PreferredAuth string `mapstructure:"preferred_auth"`
}

// RateLimitConfig configures request rate limiting on tool submission.
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Requests      int  `mapstructure:"requests"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

// Window returns the rate limit window.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// DefaultConfigYAML is the commented configuration file written by
// `gitmcp config init`.
const DefaultConfigYAML = `# gitmcp configuration
#
# Values not specified here use built-in defaults. Every key can also be
# set through the environment with a GITMCP_ prefix and underscores, e.g.
# GITMCP_WORKER_COUNT=8 or GITMCP_WORKSPACE_TOTAL_QUOTA_BYTES=5368709120.

log:
  # debug | info | warn | error
  level: info
  # auto | text | json (auto picks text on a terminal, json otherwise)
  format: auto

workspace:
  # Root directory for managed clones. Defaults to the OS temp dir.
  #root: /tmp/gitmcp-workspaces
  # Idle seconds before a workspace becomes eligible for cleanup.
  retention_seconds: 3600
  # Total disk budget across all workspaces (bytes). Default 10 GiB.
  total_quota_bytes: 10737418240
  # lru | fifo
  cleanup_strategy: lru
  # Allow file:// clone URLs. Off by default.
  allow_file_urls: false

queue:
  capacity: 100
  # When true, submissions wait for queue space instead of failing fast.
  block_on_full: false

worker:
  count: 4
  max_concurrent_tasks: 10
  task_timeout_seconds: 300
  max_retries: 3
  cancel_grace_seconds: 10

store:
  # SQLite database holding tasks, workspaces and operation logs.
  path: .gitmcp/gitmcp.db
  result_retention_seconds: 3600

rate_limit:
  enabled: true
  requests: 100
  window_seconds: 60

git:
  binary: git
  default_clone_depth: 1
  default_remote: origin
  lfs: true
  # Credentials are read from GIT_TOKEN / GIT_SSH_KEY_PATH / GIT_USERNAME /
  # GIT_PASSWORD / GIT_SSH_KEY_PASSPHRASE. Do not put secrets in this file.
  # preferred_auth forces a method: token, ssh_agent, ssh_key, username_password.
  #preferred_auth: ""

server:
  # Optional read-only HTTP API (health, metrics, tasks, workspaces, events).
  enabled: false
  addr: 127.0.0.1:7280
`
