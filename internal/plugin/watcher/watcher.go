// Package watcher delivers debounced file-system change notifications for
// plugin directories.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDelay is the debounce window.
const DefaultDelay = 250 * time.Millisecond

// Errors.
var (
	ErrClosed       = errors.New("watcher is closed")
	ErrPathNotExist = errors.New("path does not exist")
)

// Handler receives the changed paths of one group once the group has been
// quiet for the debounce delay.
type Handler func(key string, paths []string)

// GroupFunc maps a changed path to its debounce group. An empty key drops
// the event.
type GroupFunc func(path string) string

// Watcher recursively watches directories and coalesces bursts of changes.
type Watcher struct {
	fsw     *fsnotify.Watcher
	handler Handler
	group   GroupFunc
	delay   time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	paths   map[string]bool
	pending map[string]*pending
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

type pending struct {
	paths map[string]bool
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithGroup sets the grouping function. By default each path is its own group.
func WithGroup(fn GroupFunc) Option {
	return func(w *Watcher) {
		w.group = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// New starts a watcher that calls handler for every debounced group.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		handler: handler,
		group:   func(p string) string { return p },
		delay:   DefaultDelay,
		log:     zerolog.Nop(),
		paths:   make(map[string]bool),
		pending: make(map[string]*pending),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// AddRecursive watches root and every directory below it.
func (w *Watcher) AddRecursive(root string) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return w.add(abs)
	}

	return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != abs && ignored(p) {
			return filepath.SkipDir
		}
		if err := w.add(p); err != nil && !errors.Is(err, ErrClosed) {
			w.log.Warn().Err(err).Str("path", p).Msg("watch failed")
		}
		return nil
	})
}

func (w *Watcher) add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.paths[path] {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	w.paths[path] = true
	return nil
}

// Remove stops watching path and everything below it.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	for p := range w.paths {
		if p == abs || strings.HasPrefix(p, abs+string(filepath.Separator)) {
			_ = w.fsw.Remove(p)
			delete(w.paths, p)
		}
	}
	return nil
}

// WatchedPaths returns the watched directories, sorted.
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close stops the watcher. Pending groups are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for key, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, key)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsw.Close()
}

// Flush fires every pending group immediately.
func (w *Watcher) Flush() {
	w.mu.Lock()
	keys := make([]string, 0, len(w.pending))
	for key, p := range w.pending {
		p.timer.Stop()
		keys = append(keys, key)
	}
	w.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		w.fire(key)
	}
}

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
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || ignored(ev.Name) {
		return
	}

	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.AddRecursive(ev.Name)
		}
	}

	w.enqueue(ev.Name)
}

// enqueue records a change and restarts the group's timer.
func (w *Watcher) enqueue(path string) {
	key := w.group(path)
	if key == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if p, ok := w.pending[key]; ok {
		p.paths[path] = true
		p.timer.Reset(w.delay)
		return
	}
	w.pending[key] = &pending{
		paths: map[string]bool{path: true},
		timer: time.AfterFunc(w.delay, func() { w.fire(key) }),
	}
}

func (w *Watcher) fire(key string) {
	w.mu.Lock()
	p, ok := w.pending[key]
	if !ok || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, key)
	w.mu.Unlock()

	paths := make([]string, 0, len(p.paths))
	for path := range p.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	w.handler(key, paths)
}

// ChildGroup groups paths by the immediate child of whichever root contains
// them, e.g. the plugin directory under a plugins root.
func ChildGroup(roots ...string) GroupFunc {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if a, err := filepath.Abs(r); err == nil {
			abs = append(abs, a)
		}
	}
	return func(path string) string {
		for _, root := range abs {
			rel, err := filepath.Rel(root, path)
			if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
			return filepath.Join(root, first)
		}
		return ""
	}
}

// ignored filters editor swap files and VCS metadata.
func ignored(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == ".git", base == ".DS_Store", base == "node_modules":
		return true
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"):
		return true
	case strings.HasPrefix(base, ".#"):
		return true
	}
	return false
}
