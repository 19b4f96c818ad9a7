package config

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/onewithdev/peterbot/internal/blocklist"
)

// BlocklistChangeHandler is called with the freshly compiled Evaluator
// whenever blocklist.json changes on disk.
type BlocklistChangeHandler func(*blocklist.Evaluator)

// BlocklistWatcher watches blocklist.json for edits (made through the
// dashboard or by hand) and recompiles it, debounced 300ms to avoid
// reloading mid-write (adapted from the teacher's internal/config
// hot-reload watcher, narrowed to the one file that needs to stay hot in
// memory — soul.md and memory.md are read on demand instead).
type BlocklistWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	handlers []BlocklistChangeHandler

	stopChan chan struct{}
}

func NewBlocklistWatcher(path string) (*BlocklistWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &BlocklistWatcher{path: path, watcher: w, debounce: 300 * time.Millisecond}, nil
}

func (w *BlocklistWatcher) OnChange(h BlocklistChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching and performs one synchronous initial load so
// callers have a ready Evaluator before the first message arrives.
func (w *BlocklistWatcher) Start() (*blocklist.Evaluator, error) {
	ev, err := w.load()
	if err != nil {
		return nil, err
	}
	if err := w.watcher.Add(w.path); err != nil {
		return nil, err
	}
	w.stopChan = make(chan struct{})
	go w.watchLoop()
	slog.Info("blocklist watcher started", "path", w.path)
	return ev, nil
}

func (w *BlocklistWatcher) Stop() {
	if w.stopChan != nil {
		close(w.stopChan)
	}
	w.watcher.Close()
}

func (w *BlocklistWatcher) watchLoop() {
	var debounceTimer *time.Timer
	for {
		select {
		case <-w.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("blocklist watcher error", "error", err)
		}
	}
}

func (w *BlocklistWatcher) reload() {
	ev, err := w.load()
	if err != nil {
		slog.Error("blocklist reload failed, keeping previous rules in effect", "error", err)
		return
	}

	w.mu.Lock()
	handlers := make([]BlocklistChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	slog.Info("blocklist reloaded", "path", w.path)
}

func (w *BlocklistWatcher) load() (*blocklist.Evaluator, error) {
	data, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return blocklist.Load("{}")
	}
	if err != nil {
		return nil, err
	}
	return blocklist.Load(string(data))
}
