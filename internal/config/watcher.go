package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the write+rename event bursts editors produce
// into a single reload.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and
// hands the reloaded Config to a callback. Only dynamic settings (log
// level, rate limits, retention) should be applied from a reload; static
// settings such as worker count or the workspace root require a restart.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu            sync.Mutex
	fsw           *fsnotify.Watcher
	debounceTimer *time.Timer
	stop          chan struct{}
	stopped       bool
}

// NewWatcher creates a watcher for the given config file. onChange is
// called from the watcher goroutine with each successfully reloaded and
// validated configuration; invalid edits are skipped so a typo cannot
// take down a running service.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher requires a file path")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	// Watch the directory, not the file: editors and atomic writers
	// replace the file by rename, which would orphan a file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		fsw:      fsw,
		stop:     make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.scheduleReload()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// scheduleReload debounces reloads so editor save bursts trigger one.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(watchDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := NewLoader().WithConfigFile(w.path).Load()
	if err != nil {
		return
	}
	if err := ValidateConfig(cfg); err != nil {
		return
	}
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stop)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	return w.fsw.Close()
}
