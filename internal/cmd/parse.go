package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/output"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/tools"
)

var parseTools []string

var parseCmd = &cobra.Command{
	Use:   "parse --tool <name> [logs...]",
	Short: "Parse memory-debugger logs once and print the diagnostics",
	Long: `Run one pass per log and print each report in the configured format.

A bare --tool names the tool for every positional log. A --tool name=path
pair adds one log for that tool. Logs of different tools are parsed
concurrently; reports are printed in argument order.

Examples:
  memlens parse --tool valgrind memcheck.xml
  memlens parse --tool valgrind=memcheck.xml --tool leaksanitizer=asan.log
  memlens parse --tool leaksanitizer -o json build/asan.log`,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringArrayVarP(&parseTools, "tool", "t", nil, "tool name, or name=path")
	rootCmd.AddCommand(parseCmd)
}

// parseJob is one log to run through one tool.
type parseJob struct {
	tool string
	path string
}

// parseJobs expands --tool values and positional logs into jobs, pairs
// first, in the order given.
func parseJobs(toolFlags, logs []string) ([]parseJob, error) {
	var jobs []parseJob
	var bare []string
	for _, t := range toolFlags {
		if name, path, ok := strings.Cut(t, "="); ok {
			if name == "" || path == "" {
				return nil, fmt.Errorf("malformed --tool %q, want name=path", t)
			}
			jobs = append(jobs, parseJob{tool: name, path: path})
			continue
		}
		bare = append(bare, t)
	}

	if len(logs) > 0 {
		if len(bare) != 1 {
			return nil, fmt.Errorf("positional logs need exactly one bare --tool, got %d", len(bare))
		}
		for _, l := range logs {
			jobs = append(jobs, parseJob{tool: bare[0], path: l})
		}
	} else if len(bare) > 0 {
		return nil, fmt.Errorf("--tool %s given without logs", bare[0])
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("nothing to parse: give --tool and at least one log")
	}
	return jobs, nil
}

func runParse(cmd *cobra.Command, args []string) error {
	jobs, err := parseJobs(parseTools, args)
	if err != nil {
		return err
	}

	reg, err := tools.Defaults(cfg.ToolOptions(), output.NewCollection(nil).Sink)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if !reg.Has(j.tool) {
			return fmt.Errorf("%w: %s (known: %s)", tools.ErrUnknownTool, j.tool, strings.Join(reg.Names(), ", "))
		}
	}

	renderer, err := output.NewRenderer(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	// Passes of one tool serialize on that tool's runner.
	reports := make([]model.Report, len(jobs))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			r, err := reg.Parse(ctx, j.tool, parser.FromFile(j.path))
			if err != nil {
				return fmt.Errorf("%s: %s: %w", j.tool, j.path, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range reports {
		if err := renderer.Render(r); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}
	return nil
}
