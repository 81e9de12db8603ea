package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lingo/internal/logging"
)

// Watcher reports changes to a fixed set of files. It watches their parent
// directories so files replaced by rename are still seen.
type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	files        map[string]bool
	debounce     time.Duration
	onFileChange FileChangeHandler
	pending      map[string]time.Time
	mu           sync.Mutex
	done         chan struct{}
	running      bool
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewWatcher creates a watcher for the given files.
func NewWatcher(cfg Config, files ...string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultConfig().Debounce
	}

	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[filepath.Clean(f)] = true
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		files:     set,
		debounce:  debounce,
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}, nil
}

// SetOnFileChange sets the callback for file change events.
func (w *Watcher) SetOnFileChange(handler FileChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFileChange = handler
}

// Start begins watching. Missing parent directories are created.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processDebounce()

	return nil
}

// Stop stops watching and waits for the event loops to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.stopOnce.Do(func() { close(w.done) })
		return w.fsWatcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		close(w.done)
	})
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// processEvents processes raw fsnotify events.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("file watcher error", "error", err)
		}
	}
}

// handleEvent records a change to one of the watched files.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if !w.files[path] {
		return
	}
	if event.Op == fsnotify.Chmod {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// processDebounce processes debounced events.
func (w *Watcher) processDebounce() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending sends events for paths that have been stable.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	handler := w.onFileChange
	if handler == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	toSend := make([]string, 0)
	for path, eventTime := range w.pending {
		if now.Sub(eventTime) >= w.debounce {
			toSend = append(toSend, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	// Send events outside of lock
	for _, path := range toSend {
		handler(path, detectOperation(path))
	}
}

// detectOperation determines the type of operation for a path.
func detectOperation(path string) Operation {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return OpDelete
	}
	return OpModify
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
