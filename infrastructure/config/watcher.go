package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the YAML overlay when it changes and hands the new
// configuration to the registered listeners. Invalid files are ignored and
// the previous configuration stays current.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher watches the overlay file behind cfg
func NewWatcher(cfg *Config, logger *zap.Logger) (*Watcher, error) {
	if cfg.ConfigFile == "" {
		return nil, fmt.Errorf("no config file to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic saves (write to temp, rename) are seen
	if err := fw.Add(filepath.Dir(cfg.ConfigFile)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:     cfg.ConfigFile,
		watcher:  fw,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		current:  cfg,
		stopCh:   make(chan struct{}),
	}, nil
}

// OnChange registers a listener. Listeners run on the watcher goroutine.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Current returns the latest valid configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for changes
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	next, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	listeners := append([]func(*Config){}, w.onChange...)
	w.mu.Unlock()

	if prev.RateLimit != next.RateLimit {
		w.logger.Info("Rate limits changed",
			zap.Bool("enabled", next.RateLimit.Enabled),
			zap.Int("getRequests", next.RateLimit.GetRequests),
			zap.Int("otherRequests", next.RateLimit.OtherRequests),
		)
	}

	for _, fn := range listeners {
		fn(next)
	}
}
