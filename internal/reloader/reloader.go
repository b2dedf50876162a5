// Package reloader re-runs a tool's pass whenever one of its watched logs
// is rewritten.
package reloader

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/watcher"
)

// Parser runs one full pass of a named tool. *tools.Registry implements it.
type Parser interface {
	Parse(ctx context.Context, tool string, log parser.Log) (model.Report, error)
}

// Options tunes a Reloader.
type Options struct {
	// Debounce is how long a file must stay quiet before it is parsed.
	Debounce time.Duration

	// OnError is called for every failed pass. May be nil.
	OnError func(path string, err error)
}

const defaultDebounce = 250 * time.Millisecond

// Reloader parses every watched log once at start and again after each
// change. Logs whose content did not change since their last successful
// pass are skipped. Each pass fully replaces the tool's previous output.
type Reloader struct {
	tool    string
	parser  Parser
	watch   *watcher.Watcher
	events  <-chan watcher.Event
	opts    Options
	digests map[string]uint64
	due     chan string
	done    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Reloader feeding logs seen by w to tool.
func New(w *watcher.Watcher, tool string, p Parser, opts Options) *Reloader {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Reloader{
		tool:    tool,
		parser:  p,
		watch:   w,
		events:  w.Events,
		opts:    opts,
		digests: make(map[string]uint64),
		due:     make(chan string, 64),
		done:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}
}

// Start processes watcher events. Blocks until the context is cancelled
// or the watcher stops.
func (r *Reloader) Start(ctx context.Context) {
	defer r.stopTimers()
	defer close(r.done)

	for _, p := range r.watch.Paths() {
		r.reload(ctx, p)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.handleEvent(ev)

		case path := <-r.due:
			r.reload(ctx, path)
		}
	}
}

// handleEvent dispatches watcher events.
func (r *Reloader) handleEvent(ev watcher.Event) {
	switch {
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		r.schedule(ev.Path)

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The tool is about to write a fresh log; parse it whatever it holds.
		delete(r.digests, ev.Path)
	}
}

// schedule (re)starts the quiet-period timer for path.
func (r *Reloader) schedule(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[path]; ok {
		t.Reset(r.opts.Debounce)
		return
	}
	r.timers[path] = time.AfterFunc(r.opts.Debounce, func() {
		r.mu.Lock()
		delete(r.timers, path)
		r.mu.Unlock()
		select {
		case r.due <- path:
		case <-r.done:
		}
	})
}

// reload parses path if its content changed since the last successful pass.
func (r *Reloader) reload(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.fail(path, err)
		}
		return
	}

	sum := xxhash.Sum64(raw)
	if prev, ok := r.digests[path]; ok && prev == sum {
		logging.Debug("reloader: unchanged", "path", path)
		return
	}

	if _, err := r.parser.Parse(ctx, r.tool, parser.FromBytes(raw)); err != nil {
		r.fail(path, err)
		return
	}
	r.digests[path] = sum
}

func (r *Reloader) fail(path string, err error) {
	logging.Warn("reloader: pass failed", "tool", r.tool, "path", path, "error", err)
	if r.opts.OnError != nil {
		r.opts.OnError(path, err)
	}
}

// stopTimers cancels pending reloads.
func (r *Reloader) stopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, t := range r.timers {
		t.Stop()
		delete(r.timers, path)
	}
}
