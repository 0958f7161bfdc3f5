package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cogito/internal/logging"
)

// Holder serves the current configuration and hot-reloads it when the file
// changes on disk. Readers always see a complete config, never a partially
// applied one.
type Holder struct {
	mu       sync.RWMutex
	path     string
	current  *Config
	onReload func(*Config)

	watcher     *fsnotify.Watcher
	debounceDur time.Duration
	lastEvent   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewHolder loads the file once and prepares a watcher. onReload may be nil.
func NewHolder(path string, onReload func(*Config)) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Holder{
		path:        path,
		current:     cfg,
		onReload:    onReload,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Current returns the active configuration.
func (h *Holder) Current() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Start begins watching the config file's directory. Non-blocking.
func (h *Holder) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.watcher = watcher
	h.running = true
	h.mu.Unlock()

	// Watch the directory, not the file: editors replace files on save.
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryConfig).Warnw("config watch failed", "dir", dir, "error", err)
	}

	go h.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (h *Holder) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.stopCh)
	<-h.doneCh
	h.watcher.Close()
}

func (h *Holder) run(ctx context.Context) {
	defer close(h.doneCh)
	log := logging.Get(logging.CategoryConfig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(h.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			now := time.Now()
			if now.Sub(h.lastEvent) < h.debounceDur {
				continue
			}
			h.lastEvent = now
			h.reload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("config watcher error", "error", err)
		}
	}
}

func (h *Holder) reload() {
	log := logging.Get(logging.CategoryConfig)
	cfg, err := Load(h.path)
	if err != nil {
		log.Warnw("config reload failed, keeping previous", "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warnw("reloaded config invalid, keeping previous", "error", err)
		return
	}

	h.mu.Lock()
	h.current = cfg
	cb := h.onReload
	h.mu.Unlock()

	log.Infow("configuration reloaded", "path", h.path)
	if cb != nil {
		cb(cfg)
	}
}
