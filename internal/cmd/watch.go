package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/memlens/internal/output"
	"github.com/atikulmunna/memlens/internal/reloader"
	"github.com/atikulmunna/memlens/internal/runner"
	"github.com/atikulmunna/memlens/internal/tools"
	"github.com/atikulmunna/memlens/internal/watcher"
)

var watchTool string

var watchCmd = &cobra.Command{
	Use:   "watch --tool <name> [paths...]",
	Short: "Re-parse memory-debugger logs whenever they change",
	Long: `Watch one or more logs (or glob patterns) and print a fresh report each
time a log is rewritten. Logs that do not exist yet are picked up when
they appear.

Examples:
  memlens watch --tool valgrind build/memcheck.xml
  memlens watch --tool leaksanitizer "build/**/asan.*.log"
  memlens watch --tool valgrind memcheck.xml --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchTool, "tool", "t", "", "tool that produced the logs")
	_ = watchCmd.MarkFlagRequired("tool")
	rootCmd.AddCommand(watchCmd)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			fmt.Fprintln(os.Stderr, "\nmemlens shutting down...")
		}
	}()
	return ctx, cancel
}

// startWatcher creates the watcher and prints what it matched.
func startWatcher(patterns []string) (*watcher.Watcher, error) {
	w, err := watcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	paths := w.Paths()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "memlens waiting for logs matching %v\n", patterns)
	} else {
		fmt.Fprintf(os.Stderr, "memlens watching %d log(s):\n", len(paths))
		for _, p := range paths {
			fmt.Fprintf(os.Stderr, "   - %s\n", p)
		}
	}
	fmt.Fprintln(os.Stderr)
	return w, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	renderer, err := output.NewRenderer(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	sink := output.NewRendererSink(renderer)

	reg, err := tools.Defaults(cfg.ToolOptions(), func(string) runner.Sink { return sink })
	if err != nil {
		return err
	}
	if !reg.Has(watchTool) {
		return fmt.Errorf("%w: %s", tools.ErrUnknownTool, watchTool)
	}

	w, err := startWatcher(args)
	if err != nil {
		return err
	}
	r := reloader.New(w, watchTool, reg, reloader.Options{Debounce: cfg.Watch.Debounce})

	go w.Start(ctx)
	r.Start(ctx)
	return nil
}
