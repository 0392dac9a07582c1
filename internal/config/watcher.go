package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/df07/go-progressive-bridge/pkg/session"
)

// OptionsCallback receives every successfully decoded options file
type OptionsCallback func(opts session.Options)

// OptionsWatcher reloads a render options file when it changes on disk
type OptionsWatcher struct {
	watcher            *fsnotify.Watcher
	path               string
	stabilityThreshold time.Duration
	onChange           OptionsCallback
	logger             zerolog.Logger

	done     chan struct{}
	timer    *time.Timer
	timerMu  sync.Mutex
	stopOnce sync.Once
}

// OptionsWatcherConfig holds configuration for the watcher
type OptionsWatcherConfig struct {
	Path               string
	StabilityThreshold time.Duration
	OnChange           OptionsCallback
	Logger             zerolog.Logger
}

// NewOptionsWatcher creates a watcher; call Start to begin watching
func NewOptionsWatcher(config OptionsWatcherConfig) (*OptionsWatcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("options watcher: empty path")
	}
	if config.OnChange == nil {
		return nil, fmt.Errorf("options watcher: nil callback")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 100 * time.Millisecond
	}

	return &OptionsWatcher{
		watcher:            watcher,
		path:               filepath.Clean(config.Path),
		stabilityThreshold: config.StabilityThreshold,
		onChange:           config.OnChange,
		logger:             config.Logger,
		done:               make(chan struct{}),
	}, nil
}

// Start watches the file's directory so editors that replace the file on
// save are still observed
func (w *OptionsWatcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch options file: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Options watcher started")
	return nil
}

// Stop stops the watcher. Pending reloads are dropped.
func (w *OptionsWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.timerMu.Unlock()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		w.logger.Info().Msg("Options watcher stopped")
	})
	return err
}

func (w *OptionsWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.debounce()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// debounce coalesces bursts of writes into one reload
func (w *OptionsWatcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

func (w *OptionsWatcher) reload() {
	opts, err := LoadOptions(w.path)
	if err != nil {
		// Half-written or invalid files are skipped; the next write retries
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Ignoring options file")
		return
	}

	w.logger.Debug().Str("path", w.path).Msg("Options file reloaded")
	w.onChange(opts)
}
