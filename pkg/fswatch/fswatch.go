// Package fswatch turns filesystem change notifications for a directory tree
// into a debounced "something changed" signal.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

var ErrWatcherClosed = errors.New("watcher closed")

// DefaultDebounce is how long the tree must be quiet before a change is signalled.
const DefaultDebounce = 2 * time.Second

// Watcher watches every directory below a root. fsnotify is not recursive,
// so directories created later are added as their create events arrive.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	clock    clockwork.Clock
	changes  chan struct{}

	mu     sync.Mutex
	closed bool
}

// New starts watching root. A debounce <= 0 uses DefaultDebounce; a nil clock uses the real clock.
func New(root string, debounce time.Duration, clock clockwork.Clock) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		root:     root,
		debounce: debounce,
		clock:    clock,
		changes:  make(chan struct{}, 1),
	}
	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Changes delivers at most one pending signal; signals that arrive while one
// is pending are merged into it.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start processes notifications until ctx is done or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) error {
	var timer clockwork.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				w.addIfDir(ev.Name)
			}
			if timer == nil {
				timer = w.clock.NewTimer(w.debounce)
				fire = timer.Chan()
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			plog.Warn("File watcher error", "root", w.root, "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true
	return w.watcher.Close()
}

func (w *Watcher) addIfDir(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addRecursive(path); err != nil {
		plog.Debug("Could not watch new directory", "path", path, "error", err)
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			return nil // unreadable subtree, keep watching the rest
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
