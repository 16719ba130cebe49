// Package watch mirrors files on disk into reload callbacks.
//
// A Watcher observes registered files through fsnotify and, after a
// debounce window, reports a single coalesced event per file. Editors
// that save atomically (write temp file, rename over target) generate
// create and rename events rather than plain writes, so the watcher
// monitors the parent directory of each file and decides between
// OpWrite and OpRemove by checking whether the file still exists when
// the debounce window closes.
package watch

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher lifecycle and registration errors.
var (
	// ErrWatcherClosed is returned by operations on a closed Watcher.
	ErrWatcherClosed = errors.New("watch: watcher closed")

	// ErrPathNotExist is returned when adding a file that does not exist.
	ErrPathNotExist = errors.New("watch: path does not exist")

	// ErrAlreadyWatching is returned when adding a file twice.
	ErrAlreadyWatching = errors.New("watch: already watching path")

	// ErrNotWatching is returned when removing a file that was never added.
	ErrNotWatching = errors.New("watch: not watching path")
)

// DefaultDelay is the debounce window applied when no WithDelay option
// is given.
const DefaultDelay = 100 * time.Millisecond

// Op describes what happened to a watched file.
type Op int

const (
	// OpWrite means the file content changed and should be reloaded.
	// Creates and renames over the file collapse into OpWrite.
	OpWrite Op = iota

	// OpRemove means the file is gone from disk.
	OpRemove
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is a coalesced change to a watched file.
type Event struct {
	// Path is the absolute path of the file.
	Path string

	// Op is the coalesced operation.
	Op Op

	// Time is when the event was delivered.
	Time time.Time
}

// Handler receives coalesced events. It is called from the watcher's
// timer goroutines; a panicking handler does not take the watcher down.
type Handler func(Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce window. Events for a file are held until
// the file has been quiet for this long.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger for watch errors and dropped events.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// Watcher watches individual files and delivers debounced events.
type Watcher struct {
	fsw     *fsnotify.Watcher
	handler Handler
	delay   time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]int // watch refcount per parent directory
	pending map[string]*time.Timer
	closed  bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a Watcher delivering events to handler and starts its
// event loop.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		handler: handler,
		delay:   DefaultDelay,
		log:     slog.Default(),
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
		pending: make(map[string]*time.Timer),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Add registers a file. The file must exist; its parent directory is
// watched so that atomic saves keep generating events.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.files[abs] {
		return ErrAlreadyWatching
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Remove unregisters a file and cancels any pending event for it.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.files[abs] {
		return ErrNotWatching
	}

	delete(w.files, abs)
	if t, ok := w.pending[abs]; ok {
		t.Stop()
		delete(w.pending, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			w.log.Warn("unwatch directory failed", "dir", dir, "error", err)
		}
	}
	return nil
}

// Files returns the watched file paths.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for path := range w.files {
		files = append(files, path)
	}
	return files
}

// IsWatching reports whether path is registered.
func (w *Watcher) IsWatching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// PendingCount returns the number of files with an open debounce window.
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush fires all pending events immediately.
func (w *Watcher) Flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path, t := range w.pending {
		t.Stop()
		paths = append(paths, path)
	}
	w.mu.Unlock()

	for _, path := range paths {
		w.fire(path)
	}
}

// Close stops the watcher. Pending events are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// loop forwards raw fsnotify traffic into the debounce map.
func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// handleEvent opens or extends the debounce window for a registered
// file. Events for unregistered paths in watched directories are
// ignored, as are chmod-only events.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.files[path] {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.delay)
		return
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.fire(path)
	})
}

// fire delivers the coalesced event for path. Whether the window ends
// in a write or a removal is decided by the file's presence on disk
// now, not by the raw operations observed during the window.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if _, ok := w.pending[path]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	op := OpWrite
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("stat watched file failed", "path", path, "error", err)
			return
		}
		op = OpRemove
	}

	w.safeCall(Event{Path: path, Op: op, Time: time.Now()})
}

// safeCall invokes the handler with panic recovery so one bad callback
// cannot kill the timer goroutine.
func (w *Watcher) safeCall(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watch handler panicked", "path", ev.Path, "panic", r)
		}
	}()
	w.handler(ev)
}
