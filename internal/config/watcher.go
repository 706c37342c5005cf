package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// ReloadFunc receives every configuration that loaded and validated after
// a file change. Returning an error keeps the previous configuration as
// the last good one.
type ReloadFunc func(*GatewayConfig) error

// ErrorFunc is called when a reload fails.
type ErrorFunc func(error)

// Watcher watches the configuration file and hands validated
// configurations to a ReloadFunc.
type Watcher struct {
	path      string
	fs        *fsnotify.Watcher
	loader    *Loader
	onReload  ReloadFunc
	onError   ErrorFunc
	logger    observability.Logger
	debounce  time.Duration
	mu        sync.RWMutex
	current   *GatewayConfig
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay coalesces bursts of file events.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorFunc sets the reload error callback.
func WithErrorFunc(fn ErrorFunc) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithLoader replaces the default loader.
func WithLoader(loader *Loader) WatcherOption {
	return func(w *Watcher) {
		w.loader = loader
	}
}

// NewWatcher creates a watcher for path. The initial configuration is
// the caller's responsibility; Start only records it as the current one.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:      absPath,
		fs:        fsWatcher,
		loader:    NewLoader(),
		onReload:  onReload,
		debounce:  100 * time.Millisecond,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching. initial becomes the current configuration.
func (w *Watcher) Start(ctx context.Context, initial *GatewayConfig) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.current = initial
	w.mu.Unlock()

	// Editors replace files by rename, so the directory is watched.
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.logger.Info("watching configuration file", observability.String("path", w.path))

	go w.watch(ctx)
	return nil
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.fs.Close()
}

// Current returns the last configuration that was applied.
func (w *Watcher) Current() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("configuration file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.fail(err)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) fail(err error) {
	w.logger.Error("configuration reload failed", observability.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}

// Reload loads, validates and applies the configuration file now.
func (w *Watcher) Reload() error {
	cfg, err := w.loader.Load(w.path)
	if err != nil {
		return err
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	if w.onReload != nil {
		if err := w.onReload(cfg); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info("configuration reloaded",
		observability.String("path", w.path),
		observability.Int("routes", len(cfg.Routes)),
	)
	return nil
}
