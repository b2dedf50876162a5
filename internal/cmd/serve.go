package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atikulmunna/memlens/internal/aggregator"
	"github.com/atikulmunna/memlens/internal/hub"
	"github.com/atikulmunna/memlens/internal/output"
	"github.com/atikulmunna/memlens/internal/reloader"
	"github.com/atikulmunna/memlens/internal/server"
	"github.com/atikulmunna/memlens/internal/tools"
	"github.com/atikulmunna/memlens/internal/watcher"
)

var (
	serveTool string
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve [--tool <name> paths...]",
	Short: "Serve the latest reports over HTTP and WebSocket",
	Long: `Start the HTTP API. Logs can be posted to /api/reports/<tool>; with
--tool and paths, matching logs are also watched and re-parsed on change.
Every new report is pushed to /ws subscribers.

Examples:
  memlens serve
  memlens serve --tool valgrind "build/**/memcheck.xml" --addr :9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveTool, "tool", "t", "", "tool that produced the watched logs")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) > 0 && serveTool == "" {
		return fmt.Errorf("watching logs needs --tool")
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	pubs := make(chan output.Publication, 16)
	coll := output.NewCollection(pubs)
	reg, err := tools.Defaults(cfg.ToolOptions(), coll.Sink)
	if err != nil {
		return err
	}

	h := hub.New(pubs)
	var w *watcher.Watcher
	agg := aggregator.New(h.Subscribe(), h.Dropped, func() int {
		if w == nil {
			return 0
		}
		return w.Count()
	})

	g, ctx := errgroup.WithContext(ctx)

	if len(args) > 0 {
		if !reg.Has(serveTool) {
			return fmt.Errorf("%w: %s", tools.ErrUnknownTool, serveTool)
		}
		if w, err = startWatcher(args); err != nil {
			return err
		}
		r := reloader.New(w, serveTool, reg, reloader.Options{
			Debounce: cfg.Watch.Debounce,
			OnError:  func(_ string, err error) { agg.RecordFailure(serveTool, err) },
		})
		g.Go(func() error { w.Start(ctx); return nil })
		g.Go(func() error { r.Start(ctx); return nil })
	}

	srv := server.New(server.Deps{Registry: reg, Collection: coll, Hub: h, Aggregator: agg}, addr)

	g.Go(func() error { h.Start(ctx); return nil })
	g.Go(func() error { agg.Start(ctx); return nil })
	g.Go(func() error { return srv.Start(ctx) })

	return g.Wait()
}
