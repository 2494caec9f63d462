// Package hotreload watches the query file and config file a running
// cali-query process was started with, and calls back when either one
// changes on disk, debounced so a multi-step save (write a temp file,
// rename over the original) fires one callback, not several.
package hotreload

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// OnChange is called with the path that changed, after debouncing.
type OnChange func(path string)

// Watcher wraps an fsnotify.Watcher over a fixed set of files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *logrus.Entry
	debounce time.Duration
	onChange OnChange

	watched map[string]bool

	wg     sync.WaitGroup
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// New creates a Watcher over files, invoking onChange (debounced by
// debounce) whenever one of them is written, created or renamed over.
func New(files []string, debounce time.Duration, onChange OnChange, logger *logrus.Entry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		logger:   logger,
		debounce: debounce,
		onChange: onChange,
		watched:  make(map[string]bool),
		done:     make(chan struct{}),
	}

	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			logger.WithError(err).WithField("file", f).Warn("hot reload: skipping unresolvable path")
			continue
		}
		// Watch the containing directory rather than the file itself:
		// editors that save via rename-over-original would otherwise
		// leave the watch pointed at an inode that no longer exists.
		dir := filepath.Dir(abs)
		if err := fw.Add(dir); err != nil {
			logger.WithError(err).WithField("dir", dir).Warn("hot reload: failed to watch directory")
			continue
		}
		w.watched[abs] = true
	}

	return w, nil
}

// Start launches the watch loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var pending string

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}

		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.watched[abs] {
				continue
			}
			pending = abs
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("hot reload: watcher error")

		case <-timerC:
			w.logger.WithField("file", pending).Info("hot reload: change detected")
			w.onChange(pending)
			timer = nil
		}
	}
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
