package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envAliases maps config keys to the bare environment variable names the
// service also honors, in addition to the GITMCP_-prefixed forms.
var envAliases = map[string]string{
	"log.level":                      "LOG_LEVEL",
	"workspace.root":                 "WORKSPACE_ROOT",
	"workspace.retention_seconds":    "WORKSPACE_RETENTION_SECONDS",
	"workspace.total_quota_bytes":    "WORKSPACE_TOTAL_QUOTA_BYTES",
	"workspace.cleanup_strategy":     "WORKSPACE_CLEANUP_STRATEGY",
	"queue.capacity":                 "QUEUE_CAPACITY",
	"worker.count":                   "WORKER_COUNT",
	"worker.max_concurrent_tasks":    "MAX_CONCURRENT_TASKS",
	"worker.task_timeout_seconds":    "TASK_TIMEOUT_SECONDS",
	"worker.max_retries":             "MAX_RETRIES",
	"worker.cancel_grace_seconds":    "CANCEL_GRACE_SECONDS",
	"store.result_retention_seconds": "RESULT_RETENTION_SECONDS",
	"rate_limit.requests":            "RATE_LIMIT_REQUESTS",
	"rate_limit.window_seconds":      "RATE_LIMIT_WINDOW_SECONDS",
	"git.default_clone_depth":        "DEFAULT_CLONE_DEPTH",
	"git.token":                      "GIT_TOKEN",
	"git.ssh_key_path":               "GIT_SSH_KEY_PATH",
	"git.ssh_key_passphrase":         "GIT_SSH_KEY_PASSPHRASE",
	"git.username":                   "GIT_USERNAME",
	"git.password":                   "GIT_PASSWORD",
	"git.preferred_auth":             "GIT_PREFERRED_AUTH",
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "GITMCP",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "GITMCP",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (GITMCP_* and the bare aliases, e.g. GIT_TOKEN)
// 3. Config file (gitmcp.yaml in cwd, or ~/.config/gitmcp/gitmcp.yaml)
// 4. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := l.envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := l.v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("gitmcp")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "gitmcp"))
		}
	}

	// A missing config file is fine; a malformed one is not.
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.file", "")
	l.v.SetDefault("log.add_source", false)
	l.v.SetDefault("log.no_color", false)

	// Server defaults: the HTTP API is opt-in, stdio MCP is the primary
	// surface.
	l.v.SetDefault("server.enabled", false)
	l.v.SetDefault("server.addr", "127.0.0.1:7280")
	l.v.SetDefault("server.allowed_origins", []string{"*"})

	// Store defaults
	l.v.SetDefault("store.path", filepath.Join(".gitmcp", "gitmcp.db"))
	l.v.SetDefault("store.result_retention_seconds", 3600)
	l.v.SetDefault("store.purge_interval_seconds", 60)
	l.v.SetDefault("store.busy_timeout_ms", 5000)
	l.v.SetDefault("store.max_retries", 3)
	l.v.SetDefault("store.recover_requeue_idempotent", false)

	// Queue defaults
	l.v.SetDefault("queue.capacity", 100)
	l.v.SetDefault("queue.block_on_full", false)

	// Worker defaults
	l.v.SetDefault("worker.count", 4)
	l.v.SetDefault("worker.max_concurrent_tasks", 10)
	l.v.SetDefault("worker.task_timeout_seconds", 300)
	l.v.SetDefault("worker.max_retries", 3)
	l.v.SetDefault("worker.cancel_grace_seconds", 10)
	l.v.SetDefault("worker.retry_base_ms", 500)
	l.v.SetDefault("worker.retry_max_ms", 30000)
	l.v.SetDefault("worker.timeout_check_seconds", 5)

	// Workspace defaults
	l.v.SetDefault("workspace.root", filepath.Join(os.TempDir(), "gitmcp-workspaces"))
	l.v.SetDefault("workspace.retention_seconds", 3600)
	l.v.SetDefault("workspace.total_quota_bytes", int64(10<<30))
	l.v.SetDefault("workspace.cleanup_strategy", "lru")
	l.v.SetDefault("workspace.sweep_interval_seconds", 60)
	l.v.SetDefault("workspace.allow_file_urls", false)

	// Git defaults
	l.v.SetDefault("git.binary", "git")
	l.v.SetDefault("git.default_clone_depth", 1)
	l.v.SetDefault("git.default_remote", "origin")
	l.v.SetDefault("git.lfs", true)
	l.v.SetDefault("git.token", "")
	l.v.SetDefault("git.ssh_key_path", "")
	l.v.SetDefault("git.ssh_key_passphrase", "")
	l.v.SetDefault("git.username", "")
	l.v.SetDefault("git.password", "")
	l.v.SetDefault("git.preferred_auth", "")

	// Rate limit defaults
	l.v.SetDefault("rate_limit.enabled", true)
	l.v.SetDefault("rate_limit.requests", 100)
	l.v.SetDefault("rate_limit.window_seconds", 60)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}
