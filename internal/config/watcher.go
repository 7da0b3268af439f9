package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// ConnectorWatcher hot-reloads the connectors YAML when it changes on disk,
// so rotated credentials are picked up without a restart.
type ConnectorWatcher struct {
	path     string
	logger   logger.Logger
	mu       sync.RWMutex
	watchers []func([]models.Connector)
	stopCh   chan struct{}
}

func NewConnectorWatcher(path string, log logger.Logger) *ConnectorWatcher {
	return &ConnectorWatcher{
		path:     path,
		logger:   log,
		watchers: make([]func([]models.Connector), 0),
		stopCh:   make(chan struct{}),
	}
}

// Start blocks watching for file changes until ctx is done or Stop is
// called. Reload failures keep the previous connectors in effect.
func (w *ConnectorWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch connectors file: %w", err)
	}

	w.logger.Info("connector watcher started", "path", w.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				w.logger.Info("connectors file changed, reloading", "file", event.Name)
				connectors, err := LoadConnectors(w.path)
				if err != nil {
					w.logger.Error("failed to reload connectors; keeping previous set", "error", err)
					continue
				}
				w.notify(connectors)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("connector watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("connector watcher stopping")
			return nil

		case <-w.stopCh:
			w.logger.Info("connector watcher stopped")
			return nil
		}
	}
}

// OnReload registers a callback invoked with the new connector set after a
// successful reload.
func (w *ConnectorWatcher) OnReload(fn func([]models.Connector)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchers = append(w.watchers, fn)
}

func (w *ConnectorWatcher) Stop() {
	close(w.stopCh)
}

func (w *ConnectorWatcher) notify(connectors []models.Connector) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, fn := range w.watchers {
		fn(connectors)
	}
}
