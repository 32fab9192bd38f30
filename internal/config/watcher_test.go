package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gitmcp.yaml")
	writeConfigFile(t, path, "log:\n  level: info\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "log:\n  level: debug\n")

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded Log.Level = %q, want %q", cfg.Log.Level, "debug")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcher_SkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gitmcp.yaml")
	writeConfigFile(t, path, "log:\n  level: info\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	// An edit that fails validation must not reach the callback.
	writeConfigFile(t, path, "log:\n  level: shouting\n")

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config delivered: level = %q", cfg.Log.Level)
	case <-time.After(1 * time.Second):
	}

	// A later valid edit still comes through.
	writeConfigFile(t, path, "log:\n  level: warn\n")

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "warn" {
			t.Errorf("reloaded Log.Level = %q, want %q", cfg.Log.Level, "warn")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recovery reload")
	}
}

func TestWatcher_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gitmcp.yaml")
	writeConfigFile(t, path, "worker:\n  count: 4\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	// Editors and atomic writers replace the file via rename.
	tmp := filepath.Join(dir, ".gitmcp.yaml.tmp")
	writeConfigFile(t, tmp, "worker:\n  count: 8\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Worker.Count != 8 {
			t.Errorf("reloaded Worker.Count = %d, want 8", cfg.Worker.Count)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload after rename")
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gitmcp.yaml")
	writeConfigFile(t, path, "log:\n  level: info\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", nil); err == nil {
		t.Fatal("NewWatcher(\"\") expected error")
	}
}
