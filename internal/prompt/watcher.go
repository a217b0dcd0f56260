package prompt

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher invalidates the builder's base-context cache when the file on
// disk changes. Edits to the instructions take effect on the next ask
// without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	target   string
	onDirty  func()
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewWatcher watches contextPath and calls onDirty after changes settle.
func NewWatcher(contextPath string, onDirty func(), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors that replace-on-save
	// (rename over the target) would otherwise drop the watch.
	if err := fsw.Add(filepath.Dir(contextPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		logger:   logger,
		target:   filepath.Base(contextPath),
		onDirty:  onDirty,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != w.target {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str("file", w.target).
					Str("op", event.Op.String()).
					Msg("Context file change detected")

				w.scheduleInvalidate()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Context watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) scheduleInvalidate() {
	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, w.onDirty)
}
