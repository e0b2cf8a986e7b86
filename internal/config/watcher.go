package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	onReload func(*Config, error)
	logger   *log.Logger

	mu      sync.RWMutex
	current *Config
	reloads atomic.Uint32

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	// reloadMu guards the debounce timer and closed, and is held for the
	// whole of a reload so Close waits for one in flight.
	reloadMu sync.Mutex
	timer    *time.Timer
	closed   bool
}

// NewWatcher loads path once and starts watching it. onReload is called from
// the watcher goroutine after every reload attempt; on failure the previous
// snapshot is kept and the error is passed along with a nil config.
func NewWatcher(path string, logger *log.Logger, onReload func(*Config, error)) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors often replace the file instead of writing it, so watch the
	// parent directory and filter by name.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		logger:   logger,
		current:  &cfg,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.watch()

	return w, nil
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "err", err)
		}
	}
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounce, w.reload)
}

func (w *Watcher) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	if w.closed {
		return
	}

	count := w.reloads.Add(1)
	w.logger.Info("Reloading config file", "path", w.path, "count", count)

	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("Failed to reload config", "err", err)
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}

	w.mu.Lock()
	w.current = &cfg
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "count", count)
	if w.onReload != nil {
		w.onReload(&cfg, nil)
	}
}

// Snapshot returns the most recently loaded config.
func (w *Watcher) Snapshot() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current
}

// ReloadCount returns the number of reload attempts so far.
func (w *Watcher) ReloadCount() uint32 {
	return w.reloads.Load()
}

// Close stops watching. A pending reload is canceled and one already running
// finishes first, so onReload is never called after Close returns.
func (w *Watcher) Close() error {
	w.reloadMu.Lock()
	if w.closed {
		w.reloadMu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.reloadMu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
