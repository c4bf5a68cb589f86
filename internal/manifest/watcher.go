package manifest

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce absorbs the write+rename bursts editors and `git checkout`
// produce for a single logical save, matching the interval the teacher
// uses for its tree-wide watcher (internal/indexing/watcher.go).
const debounce = 300 * time.Millisecond

// Watcher watches one manifest file's directory and calls onChange
// after each burst of writes/renames/creates that touch it. Watching
// the parent directory rather than the file itself is deliberate: many
// editors save by renaming a temp file over the original, which an
// fsnotify watch on the file itself can miss once the original inode
// is gone.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	onChange func(path string)

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
}

// Watch starts watching path's containing directory. onChange runs on
// its own goroutine, debounced, until Close is called.
func Watch(path string, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, path: path, onChange: onChange, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	target := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleFlush()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("manifest watcher: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounce, func() { w.onChange(w.path) })
}

// Close stops watching and releases the fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
