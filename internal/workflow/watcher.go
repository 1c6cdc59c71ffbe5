package workflow

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the registry when definition files in a directory change.
// A failed reload keeps the previous definitions and logs the error.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *slog.Logger
	debounce time.Duration

	fsw  *fsnotify.Watcher
	done chan struct{}

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

func NewWatcher(dir string, registry *Registry, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		registry: registry,
		logger:   logger,
		debounce: defaultDebounce,
	}
}

// SetDebounce overrides the reload debounce interval.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching. It loads the directory once before returning so
// the registry is populated even if no change ever arrives.
func (w *Watcher) Start() error {
	defs, err := LoadDir(w.dir)
	if err != nil {
		return err
	}
	w.registry.Replace(defs)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw
	w.done = make(chan struct{})

	go w.loop()
	return nil
}

func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workflow watcher error", "error", err)
		}
	}
}

func isDefinitionFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// scheduleReload coalesces bursts of file events into one reload.
func (w *Watcher) scheduleReload(trigger string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		w.reload(trigger)
	})
}

func (w *Watcher) reload(trigger string) {
	defs, err := LoadDir(w.dir)
	if err != nil {
		w.logger.Warn("workflow reload failed, keeping previous definitions",
			"trigger", filepath.Base(trigger), "error", err)
		return
	}
	w.registry.Replace(defs)
	w.logger.Info("workflow definitions reloaded",
		"trigger", filepath.Base(trigger), "workflows", len(defs))
}
