package config

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/emeditor/get-price/internal/metrics"
)

// reloadDebounce absorbs the burst of events editors emit on save.
const reloadDebounce = 300 * time.Millisecond

// Reloader watches the config file and reloads on changes. Reloads are
// triggered by fsnotify events or, on Unix, SIGHUP (reload_unix.go).
// Only settings consumed through OnReload callbacks take effect live: the
// CORS allow-list and the rate limiter. Server and logging settings need a
// restart.
type Reloader struct {
	mu        sync.RWMutex
	current   *Config
	path      string
	logger    *slog.Logger
	callbacks []func(*Config)
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewReloader creates a Reloader for the given config file path.
func NewReloader(path string, initial *Config, logger *slog.Logger) *Reloader {
	return &Reloader{
		current: initial,
		path:    path,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Current returns the active configuration.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked with the new config after each
// successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Start begins watching the config file and listening for SIGHUP. A watcher
// that cannot be created is logged and skipped; SIGHUP still works.
func (r *Reloader) Start() {
	r.registerSignalHandler()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Error("failed to create file watcher", "error", err)
		return
	}
	if err := watcher.Add(r.path); err != nil {
		r.logger.Error("failed to watch config file", "path", r.path, "error", err)
		watcher.Close()
		return
	}
	r.watcher = watcher

	r.logger.Info("config file watcher started", "path", r.path)
	go r.watchLoop()
}

// Stop terminates the file watcher and signal handler. Safe to call twice.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

// Reload loads the config from disk and, if valid, swaps it in and notifies
// the callbacks. An invalid file leaves the current config untouched.
// Reports whether the reload succeeded.
func (r *Reloader) Reload() bool {
	r.logger.Info("reloading configuration", "path", r.path)

	newCfg, err := Load(r.path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("failure").Inc()
		r.logger.Error("config reload failed: invalid config, keeping current",
			"path", r.path, "error", err)
		return false
	}
	for _, w := range newCfg.Warnings {
		r.logger.Warn("config warning", "message", w)
	}

	r.mu.Lock()
	old := r.current
	r.current = newCfg
	callbacks := slices.Clone(r.callbacks)
	r.mu.Unlock()

	r.logChanges(old, newCfg)

	for _, cb := range callbacks {
		cb(newCfg)
	}

	metrics.ConfigReloads.WithLabelValues("success").Inc()
	r.logger.Info("configuration reloaded successfully")
	return true
}

func (r *Reloader) watchLoop() {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					r.Reload()
				})
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", err)
		case <-r.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// logChanges logs what changed between the old and new config, and warns
// about changes that only apply after a restart.
func (r *Reloader) logChanges(old, new *Config) {
	if old.RateLimit.RequestsPerSecond != new.RateLimit.RequestsPerSecond ||
		old.RateLimit.BurstSize != new.RateLimit.BurstSize ||
		old.RateLimit.IsEnabled() != new.RateLimit.IsEnabled() {
		r.logger.Info("rate limit config changed",
			"old_rps", old.RateLimit.RequestsPerSecond,
			"new_rps", new.RateLimit.RequestsPerSecond,
			"old_burst", old.RateLimit.BurstSize,
			"new_burst", new.RateLimit.BurstSize,
			"enabled", new.RateLimit.IsEnabled(),
		)
	}

	if !slices.Equal(old.CORS.Origins(), new.CORS.Origins()) {
		r.logger.Info("cors allow-list changed",
			"old", len(old.CORS.Origins()),
			"new", len(new.CORS.Origins()),
		)
	}

	if old.Server.Port != new.Server.Port || old.Server.TLS != new.Server.TLS || old.Logging != new.Logging ||
		old.Admin.Enabled != new.Admin.Enabled || old.Metrics.IsEnabled() != new.Metrics.IsEnabled() {
		r.logger.Warn("server, logging, metrics or admin settings changed; restart required to apply")
	}
}
