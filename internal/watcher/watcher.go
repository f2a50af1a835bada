// Package watcher reloads the module registry when descriptors or scripts
// under the modules directory change.
package watcher

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst of events triggers a reload.
const DefaultDebounce = 300 * time.Millisecond

var relevantExts = map[string]bool{
	".yaml": true,
	".yml":  true,
	".sh":   true,
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
}

// Watcher watches a modules directory recursively and calls onChange once
// per debounced burst of relevant events.
type Watcher struct {
	root     string
	onChange func()
	debounce time.Duration

	fsw     *fsnotify.Watcher
	trigger chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	stopOnce sync.Once
	mu       sync.Mutex
	running  bool
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, onChange func(), opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     filepath.Clean(root),
		onChange: onChange,
		debounce: opts.Debounce,
		fsw:      fsw,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start adds root and its subdirectories to the watch list and starts the
// event and debounce loops. Calling Start twice is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	log.Printf("[Watcher] Watching %s (debounce %v)", w.root, w.debounce)
	return nil
}

// Stop closes the underlying watcher and waits for the loops to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Relevant reports whether an event should trigger a reload: a change to a
// descriptor or script anywhere below root, or a directory appearing or
// disappearing directly under root.
func Relevant(root string, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	if relevantExts[strings.ToLower(filepath.Ext(ev.Name))] {
		return true
	}
	if filepath.Dir(filepath.Clean(ev.Name)) == root {
		return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						log.Printf("[Watcher] Failed to watch %s: %v", ev.Name, err)
					}
				}
			}

			if !Relevant(w.root, ev) {
				continue
			}

			select {
			case w.trigger <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[Watcher] Error: %v", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.trigger:
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
			timerC = timer.C
		case <-timerC:
			timer = nil
			timerC = nil
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}
