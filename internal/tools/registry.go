// Package tools binds tool names to their pipelines and owns one runner
// and one output sink per name.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/runner"
)

// ErrUnknownTool is returned for names that were never registered.
var ErrUnknownTool = errors.New("unknown tool")

// SinkFactory creates the output sink for a tool the first time it is used.
type SinkFactory func(tool string) runner.Sink

// Registry maps tool names to pipelines. Runners and sinks are created
// lazily on the first Parse for a name.
//
// Passes for different tools may run concurrently. Passes for the same
// tool are serialized so each one fully replaces the previous result.
type Registry struct {
	mu      sync.Mutex
	tools   map[string]runner.Tool
	runners map[string]*entry
	sinks   SinkFactory
}

type entry struct {
	mu     sync.Mutex
	runner *runner.Runner
}

// New creates an empty Registry. sinks may be nil.
func New(sinks SinkFactory) *Registry {
	return &Registry{
		tools:   make(map[string]runner.Tool),
		runners: make(map[string]*entry),
		sinks:   sinks,
	}
}

// Register binds name to tool. Registering a name twice replaces the
// pipeline for runners not yet created.
func (r *Registry) Register(name string, tool runner.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	return ok
}

// Parse runs one full pass of the named tool over log and publishes the
// result to the tool's sink.
func (r *Registry) Parse(ctx context.Context, name string, log parser.Log) (model.Report, error) {
	e, err := r.runnerFor(name)
	if err != nil {
		return model.Report{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runner.Run(ctx, log)
}

func (r *Registry) runnerFor(name string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.runners[name]; ok {
		return e, nil
	}

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	var sink runner.Sink
	if r.sinks != nil {
		sink = r.sinks(name)
	}
	e := &entry{runner: runner.New(name, tool, sink)}
	r.runners[name] = e
	return e, nil
}
