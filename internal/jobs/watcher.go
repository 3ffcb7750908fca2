package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"worktrack/internal/store"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of editor writes into one reload.
const DefaultDebounce = 500 * time.Millisecond

// ApplyFunc receives a freshly loaded job set.
type ApplyFunc func(ctx context.Context, jobs []store.Job)

// Watcher reloads the jobs file when it changes, writes the result to the
// registry and hands it to apply.
type Watcher struct {
	path     string
	registry store.JobRegistry
	apply    ApplyFunc
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for path. apply may be nil.
func NewWatcher(path string, registry store.JobRegistry, apply ApplyFunc, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		registry: registry,
		apply:    apply,
		logger:   logger.With("component", "jobs", "path", path),
		debounce: DefaultDebounce,
	}
}

// Reload loads the file once. An invalid file leaves the registry unchanged.
func (w *Watcher) Reload(ctx context.Context) ([]store.Job, error) {
	jobs, err := LoadFile(w.path)
	if err != nil {
		return nil, err
	}
	if err := w.registry.ReplaceJobs(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to store jobs: %w", err)
	}
	if w.apply != nil {
		w.apply(ctx, jobs)
	}
	w.logger.Info("jobs reloaded", "count", len(jobs))
	return jobs, nil
}

// Start watches the file's directory so editors that replace the file are seen too.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch jobs directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx, fw)

	w.logger.Info("watching jobs file")
	return nil
}

// Stop ends the watch loop and waits for it. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.stopTimerLocked()
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("jobs file changed", "op", event.Op.String())
				w.schedule(ctx)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("jobs watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopTimerLocked()
	w.wg.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		if ctx.Err() != nil {
			return
		}
		if _, err := w.Reload(ctx); err != nil {
			w.logger.Error("automatic jobs reload failed", "error", err)
		}
	})
}

// stopTimerLocked releases the wait group slot of a reload that will not run.
func (w *Watcher) stopTimerLocked() {
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.timer = nil
}
