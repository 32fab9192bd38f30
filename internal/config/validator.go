package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateStore(&cfg.Store)
	v.validateQueue(&cfg.Queue)
	v.validateWorker(&cfg.Worker)
	v.validateWorkspace(&cfg.Workspace)
	v.validateGit(&cfg.Git)
	v.validateRateLimit(&cfg.RateLimit)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !slices.Contains(core.LogLevels, cfg.Level) {
		v.addError("log.level", cfg.Level, "must be one of: "+strings.Join(core.LogLevels, ", "))
	}
	if !slices.Contains(core.LogFormats, cfg.Format) {
		v.addError("log.format", cfg.Format, "must be one of: "+strings.Join(core.LogFormats, ", "))
	}
	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "address required when server is enabled")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Path == "" {
		v.addError("store.path", cfg.Path, "path required")
	}
	if cfg.ResultRetentionSeconds < 0 {
		v.addError("store.result_retention_seconds", cfg.ResultRetentionSeconds, "must be non-negative")
	}
	if cfg.PurgeIntervalSeconds <= 0 {
		v.addError("store.purge_interval_seconds", cfg.PurgeIntervalSeconds, "must be positive")
	}
	if cfg.BusyTimeoutMS < 0 {
		v.addError("store.busy_timeout_ms", cfg.BusyTimeoutMS, "must be non-negative")
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError("store.max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}
}

func (v *Validator) validateQueue(cfg *QueueConfig) {
	if cfg.Capacity < 1 || cfg.Capacity > 100000 {
		v.addError("queue.capacity", cfg.Capacity, "must be between 1 and 100000")
	}
}

func (v *Validator) validateWorker(cfg *WorkerConfig) {
	if cfg.Count < 1 || cfg.Count > 256 {
		v.addError("worker.count", cfg.Count, "must be between 1 and 256")
	}
	if cfg.MaxConcurrentTasks < 1 {
		v.addError("worker.max_concurrent_tasks", cfg.MaxConcurrentTasks, "must be positive")
	}
	if cfg.TaskTimeoutSeconds < 1 {
		v.addError("worker.task_timeout_seconds", cfg.TaskTimeoutSeconds, "must be positive")
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError("worker.max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}
	if cfg.CancelGraceSeconds < 0 {
		v.addError("worker.cancel_grace_seconds", cfg.CancelGraceSeconds, "must be non-negative")
	}
	if cfg.RetryBaseMS < 1 {
		v.addError("worker.retry_base_ms", cfg.RetryBaseMS, "must be positive")
	}
	if cfg.RetryMaxMS < cfg.RetryBaseMS {
		v.addError("worker.retry_max_ms", cfg.RetryMaxMS, "must be >= worker.retry_base_ms")
	}
	if cfg.TimeoutCheckSeconds < 1 {
		v.addError("worker.timeout_check_seconds", cfg.TimeoutCheckSeconds, "must be positive")
	}
}

func (v *Validator) validateWorkspace(cfg *WorkspaceConfig) {
	if cfg.Root == "" {
		v.addError("workspace.root", cfg.Root, "root directory required")
	} else if !filepath.IsAbs(cfg.Root) {
		v.addError("workspace.root", cfg.Root, "must be an absolute path")
	}
	if cfg.RetentionSeconds < 0 {
		v.addError("workspace.retention_seconds", cfg.RetentionSeconds, "must be non-negative")
	}
	if cfg.TotalQuotaBytes < 1 {
		v.addError("workspace.total_quota_bytes", cfg.TotalQuotaBytes, "must be positive")
	}
	if !slices.Contains(core.EvictionPolicies, cfg.CleanupStrategy) {
		v.addError("workspace.cleanup_strategy", cfg.CleanupStrategy, "must be one of: "+strings.Join(core.EvictionPolicies, ", "))
	}
	if cfg.SweepIntervalSeconds <= 0 {
		v.addError("workspace.sweep_interval_seconds", cfg.SweepIntervalSeconds, "must be positive")
	}
}

func (v *Validator) validateGit(cfg *GitConfig) {
	if cfg.Binary == "" {
		v.addError("git.binary", cfg.Binary, "binary name required")
	}
	if cfg.DefaultCloneDepth < 0 {
		v.addError("git.default_clone_depth", cfg.DefaultCloneDepth, "must be non-negative (0 means full history)")
	}
	if cfg.DefaultRemote != "" {
		if err := core.ValidateRemoteName(cfg.DefaultRemote); err != nil {
			v.addError("git.default_remote", cfg.DefaultRemote, "invalid remote name")
		}
	}
	if cfg.SSHKeyPath != "" && !isValidPath(cfg.SSHKeyPath) {
		v.addError("git.ssh_key_path", cfg.SSHKeyPath, "invalid file path")
	}
	if cfg.Username != "" && cfg.Password == "" && cfg.Token == "" {
		v.addError("git.password", "", "password required when username is set")
	}
	if cfg.PreferredAuth != "" && !core.AuthMethod(cfg.PreferredAuth).Valid() {
		v.addError("git.preferred_auth", cfg.PreferredAuth, "must be one of: token, ssh_agent, ssh_key, username_password")
	}
}

func (v *Validator) validateRateLimit(cfg *RateLimitConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Requests < 1 {
		v.addError("rate_limit.requests", cfg.Requests, "must be positive")
	}
	if cfg.WindowSeconds < 1 {
		v.addError("rate_limit.window_seconds", cfg.WindowSeconds, "must be positive")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and
// validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
