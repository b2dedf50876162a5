// Package runner drives one tool's pipeline over a log:
// parse, filter, match and group, postprocess, publish.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/atikulmunna/memlens/internal/filter"
	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/matcher"
	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/postprocess"
)

// Tool bundles the pipeline stages for one log format. Stages are built
// once and reused by every pass over that format.
type Tool struct {
	Parser         parser.Parser
	Filters        []filter.Filter
	Matcher        matcher.Matcher
	PostProcessors []postprocess.PostProcessor
}

// Sink receives the report of every successful pass. Publish replaces
// whatever the sink held for the tool before.
type Sink interface {
	Publish(ctx context.Context, report model.Report) error
}

// Runner runs full passes for one named tool and publishes each result to
// its sink. A Runner is not safe for concurrent passes: filters carry
// per-trace state.
type Runner struct {
	name string
	tool Tool
	sink Sink
}

// New creates a Runner. sink may be nil, in which case results are only returned.
func New(name string, tool Tool, sink Sink) *Runner {
	return &Runner{name: name, tool: tool, sink: sink}
}

// Run performs one full pass over log. On error nothing is published.
func (r *Runner) Run(ctx context.Context, log parser.Log) (model.Report, error) {
	start := time.Now()

	groups, err := r.Process(ctx, log)
	if err != nil {
		return model.Report{}, fmt.Errorf("%s: %w", r.name, err)
	}

	report := BuildReport(r.name, r.tool.Parser, groups)

	if r.sink != nil {
		if err := r.sink.Publish(ctx, report); err != nil {
			return report, fmt.Errorf("%s: publish: %w", r.name, err)
		}
	}

	logging.Info("pass finished",
		"tool", r.name,
		"log", log.String(),
		"diagnostics", report.Len(),
		"positions", groups.Len(),
		"duration", time.Since(start))

	return report, nil
}

// Process runs the pipeline up to and including postprocessing.
func (r *Runner) Process(ctx context.Context, log parser.Log) (*model.Groups, error) {
	diagnostics, err := r.tool.Parser.Parse(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	parsed := len(diagnostics)

	diagnostics = filter.Apply(diagnostics, r.tool.Filters...)

	groups := model.NewGroups()
	for _, d := range diagnostics {
		pos, ok := r.tool.Matcher.Match(d)
		if !ok {
			continue
		}
		groups.Add(pos, d)
	}

	logging.Debug("pipeline",
		"tool", r.name,
		"parsed", parsed,
		"filtered", len(diagnostics),
		"matched", groups.Count())

	return postprocess.Apply(groups, r.tool.PostProcessors...), nil
}
