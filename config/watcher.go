package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/thinker/model"
)

// defaultDebounce is how long to wait for more writes before reloading.
// Editors and deploy tools often rewrite a file with several operations.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the config file on change and merges the model section
// into a live registry. Only the models section is hot-reloaded; server and
// pipeline settings require a restart.
type Watcher struct {
	path     string
	registry *model.Registry
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	pendingMu sync.Mutex
	pending   bool
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, registry *model.Registry, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		registry: registry,
		watcher:  fsw,
		logger:   logger,
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic rename-replace writes are seen.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Config watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending reloads the file once per debounce window. A reload that
// fails to parse keeps the previous registry contents.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()
	if !pending {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous models", "path", w.path, "error", err)
		return
	}

	w.registry.Merge(&cfg.Models)
	w.logger.Info("Reloaded model configuration",
		"path", w.path,
		"endpoints", len(cfg.Models.Endpoints),
		"capabilities", len(cfg.Models.Capabilities))
}
