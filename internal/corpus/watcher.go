package corpus

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces bursts of filesystem events (a PDF copy emits
// many writes) into a single reindex trigger.
const debounceDelay = 2 * time.Second

// Watcher observes the documents directory and invokes onChange after
// PDF files are added, replaced, or removed.
type Watcher struct {
	docsDir  string
	onChange func()
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	timerMu sync.Mutex
	timer   *time.Timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher over docsDir. onChange runs on the
// watcher's goroutine after the debounce window closes.
func NewWatcher(docsDir string, logger *slog.Logger, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		docsDir:  docsDir,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the documents directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.docsDir); err != nil {
		return err
	}
	w.logger.Info("watching documents directory", "dir", w.docsDir)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watch loop and cancels any pending trigger.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isPDF(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("document change detected", "file", filepath.Base(event.Name), "op", event.Op.String())
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.onChange)
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
