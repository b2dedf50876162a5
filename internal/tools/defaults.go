package tools

import (
	"fmt"

	"github.com/atikulmunna/memlens/internal/filter"
	"github.com/atikulmunna/memlens/internal/matcher"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/postprocess"
	"github.com/atikulmunna/memlens/internal/runner"
)

// Names of the built-in tools.
const (
	Valgrind      = "valgrind"
	LeakSanitizer = "leaksanitizer"
)

// Default leak-compaction message templates.
const (
	ValgrindTemplate      = "${leakedBytes} are ${type} at ${function} ${ip}"
	LeakSanitizerTemplate = "${type} of ${leakedBytes} byte(s) allocated in ${function} (${ip})"
)

// Options configures the built-in tools.
type Options struct {
	Scope filter.ScopeOptions

	// Templates overrides the compaction template per tool name.
	Templates map[string]string
}

// Defaults returns a Registry with the Valgrind and LeakSanitizer tools
// registered. Each tool gets its own filter instances.
func Defaults(opts Options, sinks SinkFactory) (*Registry, error) {
	reg := New(sinks)

	builtins := []struct {
		name     string
		parser   parser.Parser
		template string
	}{
		{Valgrind, parser.NewValgrindParser(), ValgrindTemplate},
		{LeakSanitizer, parser.NewLeakSanitizerParser(), LeakSanitizerTemplate},
	}

	for _, b := range builtins {
		scope, err := filter.NewScopeFilter(opts.Scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		template := b.template
		if t, ok := opts.Templates[b.name]; ok && t != "" {
			template = t
		}
		reg.Register(b.name, runner.Tool{
			Parser:         b.parser,
			Filters:        []filter.Filter{scope},
			Matcher:        matcher.NewDeepestFrame(),
			PostProcessors: []postprocess.PostProcessor{postprocess.NewLeakCompactor(template)},
		})
	}

	return reg, nil
}
