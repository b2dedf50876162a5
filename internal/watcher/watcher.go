package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/atikulmunna/memlens/internal/logging"
)

// Event represents a change to a watched log file.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher monitors log files for changes using OS-level notifications.
//
// The parent directory of every pattern is watched rather than the files
// themselves, so logs that a tool deletes and recreates on each run, and
// new files matching a pattern, are still reported.
type Watcher struct {
	fsw      *fsnotify.Watcher
	Events   chan Event
	patterns []string

	mu    sync.RWMutex
	paths map[string]struct{}
}

// New creates a Watcher for the given glob patterns.
// Patterns are expanded at startup; their directories are watched.
func New(patterns []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		Events: make(chan Event, 256),
		paths:  make(map[string]struct{}),
	}

	dirs := make(map[string]struct{})
	for _, pattern := range patterns {
		abs, err := filepath.Abs(pattern)
		if err != nil {
			logging.Warn("watcher: bad pattern", "pattern", pattern, "error", err)
			continue
		}
		w.patterns = append(w.patterns, abs)

		matches, err := expandGlob(abs)
		if err != nil {
			logging.Warn("watcher: failed to expand pattern", "pattern", pattern, "error", err)
		}
		for _, m := range matches {
			w.paths[m] = struct{}{}
			dirs[filepath.Dir(m)] = struct{}{}
		}

		// Watch the pattern's static directory so files can appear later.
		base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
		dirs[filepath.FromSlash(base)] = struct{}{}
	}

	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logging.Warn("watcher: cannot watch", "dir", dir, "error", err)
		}
	}

	return w, nil
}

// Start begins listening for file events. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Forward relevant events (write, create, remove, rename).
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Remove != 0,
				ev.Op&fsnotify.Rename != 0:
				if !w.track(ev) {
					continue
				}
				select {
				case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// track reports whether ev concerns a log file, updating the known set.
func (w *Watcher) track(ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	_, known := w.paths[path]
	if !known && !w.matchesLocked(path) {
		return false
	}
	switch {
	case ev.Op&fsnotify.Create != 0:
		w.paths[path] = struct{}{}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.paths, path)
	}
	return true
}

func (w *Watcher) matchesLocked(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, p := range w.patterns {
		if ok, _ := doublestar.Match(filepath.ToSlash(p), slashed); ok {
			return true
		}
	}
	return false
}

// Paths returns the files currently known to match, sorted.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of files currently known to match.
func (w *Watcher) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// expandGlob resolves a glob pattern to matching file paths.
// Supports recursive patterns like /var/log/**/*.xml via doublestar.
func expandGlob(pattern string) ([]string, error) {
	return doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
}
