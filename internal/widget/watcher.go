package widget

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"jobcoach/internal/errors"
)

// OverridesWatcher reloads a widget overrides file when it changes and
// publishes the rebuilt registry through a RegistryHolder.
type OverridesWatcher struct {
	mu sync.Mutex

	path   string
	base   *Registry
	holder *RegistryHolder

	// lastStat is the overrides file as last loaded; nil until known.
	lastStat os.FileInfo

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	onReload func(*Registry, error)
	logger   *errors.Logger

	running bool
}

// NewOverridesWatcher creates a watcher. base is the registry overrides
// are applied to; onReload, if set, is called after each reload attempt
// with the new registry or the error that kept the old one.
func NewOverridesWatcher(path string, base *Registry, holder *RegistryHolder, debounceDelay time.Duration, onReload func(*Registry, error), logger *errors.Logger) *OverridesWatcher {
	if debounceDelay <= 0 {
		debounceDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = errors.Discard()
	}
	return &OverridesWatcher{
		path:          path,
		base:          base,
		holder:        holder,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		onReload:      onReload,
		logger:        logger,
	}
}

// Start begins watching the overrides file.
func (w *OverridesWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("widget overrides watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsWatcher = watcher

	if stat, err := os.Stat(w.path); err == nil {
		w.lastStat = stat
	}

	// Watch the directory so atomic renames and late creation are seen.
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		if closeErr := w.fsWatcher.Close(); closeErr != nil {
			w.logger.LogError(closeErr, "Failed to close file watcher during cleanup")
		}
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.running = true
	go w.watchLoop()

	w.logger.Info("Widget overrides watcher started",
		"file", w.path,
		"debounce_delay", w.debounceDelay)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *OverridesWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopChan)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.running = false

	if err := w.fsWatcher.Close(); err != nil {
		w.logger.LogError(err, "Failed to close file system watcher")
		return err
	}

	w.logger.Info("Widget overrides watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is running.
func (w *OverridesWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Reload reads the overrides file and publishes the resulting registry.
// On error the current registry stays in place.
func (w *OverridesWatcher) Reload() error {
	next, err := w.reload()
	if w.onReload != nil {
		w.onReload(next, err)
	}
	return err
}

func (w *OverridesWatcher) reload() (*Registry, error) {
	o, err := LoadOverrides(w.path)
	if err != nil {
		return nil, err
	}
	next, warnings, err := w.base.WithOverrides(o)
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		w.logger.Warn("Widget override skipped", "reason", warning, "file", w.path)
	}

	w.holder.Store(next)
	w.logger.Info("Widget overrides reloaded", "file", w.path, "widgets", len(o.Widgets))
	return next, nil
}

func (w *OverridesWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.shouldProcessEvent(event) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.LogError(err, "File watcher error")

		case <-w.reloadChan:
			if !w.hasFileChanged() {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.LogError(err, "Failed to reload widget overrides, keeping current registry")
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *OverridesWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *OverridesWatcher) hasFileChanged() bool {
	stat, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if !fileChanged(w.lastStat, stat) {
		return false
	}
	w.lastStat = stat
	return true
}

// fileChanged reports whether cur differs from prev. A file renamed into
// place counts as changed even when its mtime is older.
func fileChanged(prev, cur os.FileInfo) bool {
	if prev == nil {
		return true
	}
	return !os.SameFile(prev, cur) || !cur.ModTime().Equal(prev.ModTime()) || cur.Size() != prev.Size()
}

func (w *OverridesWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		select {
		case w.reloadChan <- struct{}{}:
		default:
		}
	})
}
