package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
)

// loadConfig builds the effective configuration from defaults, the
// optional config file, environment variables and bound CLI flags.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Output goes to stderr: on the
// serve path stdout carries the MCP JSON-RPC stream.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
		NoColor:   cfg.Log.NoColor,
	})
}

// openStore opens the task store configured in cfg.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.New(cfg.Store.Path,
		store.WithMaxRetries(cfg.Store.MaxRetries),
		store.WithBusyTimeout(cfg.Store.BusyTimeoutMS),
	)
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTimestamp renders a nullable timestamp for table output.
func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatBytes renders a byte count in the nearest binary unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
