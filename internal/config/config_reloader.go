package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigReloader watches the config file and SIGHUP and reapplies runtime
// tunables (currently the log level) without a restart. Structural settings
// such as listen_addr still require a restart.
type ConfigReloader struct {
	path   string
	logger *logrus.Logger

	mu      sync.RWMutex
	current *Config

	watcher *fsnotify.Watcher
	sighup  chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup

	onReload []func(*Config)
}

// NewConfigReloader starts watching path (and SIGHUP) for configuration
// changes. An empty path enables SIGHUP-only reloading.
func NewConfigReloader(path string, current *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	r := &ConfigReloader{
		path:    path,
		logger:  logger,
		current: current,
		sighup:  make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		// Watch the directory: editors and configmap mounts replace the
		// file, which drops a watch on the file itself.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch config directory: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.sighup, syscall.SIGHUP)

	r.wg.Add(1)
	go r.run()

	return r, nil
}

// Current returns the most recently loaded configuration.
func (r *ConfigReloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers fn to be called with each successfully reloaded config.
func (r *ConfigReloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Stop stops watching and releases the signal handler.
func (r *ConfigReloader) Stop() {
	signal.Stop(r.sighup)
	close(r.done)
	r.wg.Wait()
	if r.watcher != nil {
		r.watcher.Close()
	}
}

func (r *ConfigReloader) run() {
	defer r.wg.Done()

	// Debounce bursts of write events from editors doing write+rename.
	var debounce *time.Timer

	var events <-chan fsnotify.Event
	var errors <-chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errors = r.watcher.Errors
	}

	var pending <-chan time.Time
	for {
		select {
		case <-r.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-r.sighup:
			r.logger.Info("received SIGHUP, reloading configuration")
			r.reload()
		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(200 * time.Millisecond)
			pending = debounce.C
		case <-pending:
			pending = nil
			r.reload()
		case err, ok := <-errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func (r *ConfigReloader) reload() {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Warn("config reload failed, keeping previous configuration")
		return
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		r.logger.SetLevel(level)
	}

	r.mu.Lock()
	r.current = cfg
	callbacks := make([]func(*Config), len(r.onReload))
	copy(callbacks, r.onReload)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}

	r.logger.WithField("log_level", cfg.LogLevel).Info("configuration reloaded")
}
