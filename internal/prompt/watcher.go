package prompt

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/sidebar/internal/observability"
	"github.com/rs/zerolog/log"
)

// Watcher reloads a Template when its file changes on disk.
type Watcher struct {
	tmpl               *Template
	watcher            *fsnotify.Watcher
	stabilityThreshold time.Duration
	onReload           func(err error)
	done               chan struct{}
	stopOnce           sync.Once

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	StabilityThreshold time.Duration
	// OnReload is called after every reload attempt with its result.
	OnReload func(err error)
}

// NewWatcher creates a watcher for a file-backed template.
func NewWatcher(tmpl *Template, cfg WatcherConfig) (*Watcher, error) {
	if tmpl.Path() == "" {
		return nil, fmt.Errorf("prompt template is not file-backed")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 100 * time.Millisecond
	}

	return &Watcher{
		tmpl:               tmpl,
		watcher:            fw,
		stabilityThreshold: cfg.StabilityThreshold,
		onReload:           cfg.OnReload,
		done:               make(chan struct{}),
	}, nil
}

// Start watches the directory holding the template file. Editors often replace
// files by rename, so the directory is watched rather than the file itself.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.tmpl.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.tmpl.Path()).Msg("Prompt watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Prompt watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	target := filepath.Clean(w.tmpl.Path())

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Prompt watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	err := w.tmpl.Reload()
	observability.RecordPromptReload(err == nil)

	if err != nil {
		log.Error().Err(err).Str("path", w.tmpl.Path()).Msg("Prompt reload failed, keeping previous template")
	} else {
		log.Info().Str("path", w.tmpl.Path()).Msg("Prompt reloaded")
		observability.RecordConfigAudit(context.Background(), "prompt_reloaded", "system", map[string]interface{}{
			"path": w.tmpl.Path(),
		})
	}

	if w.onReload != nil {
		w.onReload(err)
	}
}
