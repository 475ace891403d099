package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/cpptasks/internal/logging"
)

// FileWatch is a subscription to the files matching one pattern.
type FileWatch interface {
	// OnChange registers a callback for writes to a matching file.
	OnChange(fn func(path string))
	// OnCreate registers a callback for a matching file being created.
	OnCreate(fn func(path string))
	// OnDelete registers a callback for a matching file being removed or renamed away.
	OnDelete(fn func(path string))
	// Close ends the subscription. Safe to call more than once.
	Close() error
}

// Hub multiplexes a single Watcher into pattern subscriptions.
//
// A pattern is a directory path followed by a final segment that may use
// filepath.Match syntax plus {a,b} alternatives, for example
// "/src/app/.vscode/{c_cpp_properties.json,c_cpp_build.json}". The directory
// does not need to exist: the hub watches its nearest existing ancestor and
// moves the watch down as directories appear and back up when they go away.
type Hub struct {
	mu      sync.Mutex
	w       Watcher
	subs    []*subscription
	anchors map[string]int
	closed  bool

	logger *logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub backed by a new fsnotify watcher.
func NewHub(logger *logging.Logger) (*Hub, error) {
	// Permission changes never alter a configuration file.
	w, err := NewFSNotifyWatcher(WithOps(OpContent))
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return NewHubWithWatcher(w, logger), nil
}

// NewHubWithWatcher creates a hub that consumes events from w. The hub owns w
// and closes it on Close.
func NewHubWithWatcher(w Watcher, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Null()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		w:       w,
		anchors: make(map[string]int),
		logger:  logger.WithComponent("watcher"),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		forward(ctx, w, h.handleEvent, func(err error) {
			h.logger.Warn("file watch error: %v", err)
		})
	}()
	return h
}

// WatchFiles subscribes to the files matching pattern.
func (h *Hub) WatchFiles(pattern string) (FileWatch, error) {
	dir, base := filepath.Split(pattern)
	if base == "" {
		return nil, fmt.Errorf("%w: %q has no file segment", ErrInvalidPattern, pattern)
	}
	if dir == "" {
		dir = "."
	}
	if strings.ContainsAny(dir, "*?[{") {
		return nil, fmt.Errorf("%w: %q: only the final segment may contain wildcards", ErrInvalidPattern, pattern)
	}

	alternatives, err := expandBraces(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, pattern)
	}
	for _, alt := range alternatives {
		if _, err := filepath.Match(alt, ""); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrWatcherClosed
	}

	anchor, err := h.acquireLocked(absDir)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		hub:          h,
		dir:          absDir,
		alternatives: alternatives,
		anchor:       anchor,
	}
	h.subs = append(h.subs, sub)

	h.logger.Debug("watching %s (anchored at %s)", pattern, anchor)
	return sub, nil
}

// WatchedDirs returns the directories currently watched by the hub.
func (h *Hub) WatchedDirs() []string {
	return h.w.WatchedPaths()
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops event delivery and closes the underlying watcher.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}

	h.cancel()
	err := h.w.Close()
	<-h.done
	return err
}

type delivery struct {
	sub  *subscription
	op   Op
	path string
}

// handleEvent routes one watcher event to the matching subscriptions and
// moves anchors when directories on a subscription's path appear or vanish.
func (h *Hub) handleEvent(e Event) {
	path := filepath.Clean(e.Path)
	removed := e.Op.Has(OpRemove) || e.Op.Has(OpRename)

	var (
		deliveries []delivery
		rescans    []*subscription
	)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	for _, sub := range h.subs {
		if filepath.Dir(path) == sub.dir && sub.matches(filepath.Base(path)) {
			deliveries = append(deliveries, delivery{sub: sub, op: e.Op, path: path})
		}

		switch {
		case e.Op.Has(OpCreate) && sub.anchor != sub.dir &&
			filepath.Dir(path) == sub.anchor && isAncestorOrSelf(path, sub.dir):
			if h.reanchorLocked(sub) && sub.anchor == sub.dir {
				rescans = append(rescans, sub)
			}
		case removed && path == sub.anchor:
			h.reanchorLocked(sub)
		}
	}
	h.mu.Unlock()

	for _, d := range deliveries {
		d.sub.deliver(d.op, d.path)
	}

	// Files may have been written before the directory watch was added.
	for _, sub := range rescans {
		entries, err := os.ReadDir(sub.dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() && sub.matches(entry.Name()) {
				sub.deliver(OpCreate, filepath.Join(sub.dir, entry.Name()))
			}
		}
	}
}

// acquireLocked watches the nearest existing ancestor of dir (or dir itself)
// and returns it. Callers must hold h.mu.
func (h *Hub) acquireLocked(dir string) (string, error) {
	for attempt := 0; ; attempt++ {
		anchor := nearestExisting(dir)
		if h.anchors[anchor] == 0 {
			err := h.w.Watch(anchor)
			if errors.Is(err, ErrPathNotExist) && attempt < 3 {
				// Removed between the stat and the watch.
				continue
			}
			if err != nil && !errors.Is(err, ErrAlreadyWatching) {
				return "", fmt.Errorf("watch %s: %w", anchor, err)
			}
		}
		h.anchors[anchor]++
		return anchor, nil
	}
}

// releaseLocked drops one reference to anchor. Callers must hold h.mu.
func (h *Hub) releaseLocked(anchor string) {
	h.anchors[anchor]--
	if h.anchors[anchor] > 0 {
		return
	}
	delete(h.anchors, anchor)
	if err := h.w.Unwatch(anchor); err != nil &&
		!errors.Is(err, ErrNotWatching) && !errors.Is(err, ErrWatcherClosed) {
		h.logger.Debug("unwatch %s: %v", anchor, err)
	}
}

// reanchorLocked moves sub's watch to the nearest existing ancestor of its
// directory. Reports whether the anchor changed. Callers must hold h.mu.
func (h *Hub) reanchorLocked(sub *subscription) bool {
	// The old anchor may have lost its kernel watch, so release before
	// acquiring to force a fresh watch when the same directory comes back.
	old := sub.anchor
	if old != "" {
		h.releaseLocked(old)
	}

	anchor, err := h.acquireLocked(sub.dir)
	if err != nil {
		h.logger.Warn("re-anchor %s: %v", sub.dir, err)
		sub.anchor = ""
		return false
	}
	sub.anchor = anchor
	if anchor == old {
		return false
	}
	h.logger.Debug("moved watch for %s from %s to %s", sub.dir, old, anchor)
	return true
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			if !h.closed && sub.anchor != "" {
				h.releaseLocked(sub.anchor)
			}
			return
		}
	}
}

// subscription implements FileWatch.
type subscription struct {
	hub          *Hub
	dir          string
	alternatives []string
	anchor       string // guarded by hub.mu

	mu       sync.Mutex
	onChange []func(string)
	onCreate []func(string)
	onDelete []func(string)
	closed   bool
}

func (s *subscription) OnChange(fn func(path string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *subscription) OnCreate(fn func(path string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreate = append(s.onCreate, fn)
}

func (s *subscription) OnDelete(fn func(path string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

func (s *subscription) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.hub.remove(s)
	return nil
}

// markClosed stops delivery. Reports whether this call closed s.
func (s *subscription) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.onChange, s.onCreate, s.onDelete = nil, nil, nil
	return true
}

func (s *subscription) matches(name string) bool {
	for _, alt := range s.alternatives {
		if ok, _ := filepath.Match(alt, name); ok {
			return true
		}
	}
	return false
}

// deliver runs the callbacks for op outside of any lock.
func (s *subscription) deliver(op Op, path string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var fns []func(string)
	if op.Has(OpCreate) {
		fns = append(fns, s.onCreate...)
	}
	if op.Has(OpWrite) {
		fns = append(fns, s.onChange...)
	}
	if op.Has(OpRemove) || op.Has(OpRename) {
		fns = append(fns, s.onDelete...)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}

// expandBraces expands {a,b} alternatives. Nesting is not supported.
func expandBraces(s string) ([]string, error) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		if strings.ContainsRune(s, '}') {
			return nil, fmt.Errorf("%w: unbalanced '}'", ErrInvalidPattern)
		}
		return []string{s}, nil
	}
	end := strings.IndexByte(s[open:], '}')
	if end < 0 {
		return nil, fmt.Errorf("%w: unbalanced '{'", ErrInvalidPattern)
	}
	end += open

	inner := s[open+1 : end]
	if strings.ContainsRune(inner, '{') {
		return nil, fmt.Errorf("%w: nested braces", ErrInvalidPattern)
	}

	rest, err := expandBraces(s[end+1:])
	if err != nil {
		return nil, err
	}

	var out []string
	for _, alt := range strings.Split(inner, ",") {
		for _, r := range rest {
			out = append(out, s[:open]+alt+r)
		}
	}
	return out, nil
}

// nearestExisting returns dir or its closest ancestor that is an existing directory.
func nearestExisting(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// isAncestorOrSelf reports whether path is dir or one of its ancestors.
func isAncestorOrSelf(path, dir string) bool {
	if path == dir {
		return true
	}
	prefix := path
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(dir, prefix)
}

// Ensure subscription implements FileWatch.
var _ FileWatch = (*subscription)(nil)
