package config

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches an imported YAML file for changes and invokes onChange
// with its freshly decoded Entities whenever the file is rewritten.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	logger   *zap.Logger
	onChange func(Entities)
	done     chan struct{}
}

// NewWatcher starts watching path. onChange is called from the watcher's
// own goroutine; callers needing synchronization must do it themselves.
func NewWatcher(path string, logger *zap.Logger, onChange func(Entities)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{fsw: fsw, path: path, logger: logger, onChange: onChange, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(w.path)
			if err != nil {
				w.logger.Warn("config watcher: re-read failed", zap.Error(err))
				continue
			}
			entities, err := Decode(data)
			if err != nil {
				w.logger.Warn("config watcher: reload rejected", zap.Error(err))
				continue
			}
			w.onChange(entities)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
