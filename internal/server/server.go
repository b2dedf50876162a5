package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atikulmunna/memlens/internal/aggregator"
	"github.com/atikulmunna/memlens/internal/hub"
	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/output"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/tools"
)

// maxLogSize caps the body of an uploaded log.
const maxLogSize = 64 << 20

// Deps are the components the HTTP surface reads from.
type Deps struct {
	Registry   *tools.Registry
	Collection *output.Collection
	Hub        *hub.Hub
	Aggregator *aggregator.Aggregator
}

// Server holds the Gin engine and dependencies for the HTTP API.
type Server struct {
	engine *gin.Engine
	deps   Deps
	addr   string
}

// New creates an API server listening on addr.
func New(deps Deps, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine: engine,
		deps:   deps,
		addr:   addr,
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	// Health check.
	s.engine.GET("/healthz", func(c *gin.Context) {
		stats := s.deps.Aggregator.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"uptime":        stats.Uptime,
			"files_watched": stats.FilesWatched,
			"total_passes":  stats.TotalPasses,
		})
	})

	s.engine.GET("/api/tools", s.handleTools)
	s.engine.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.deps.Aggregator.Snapshot())
	})
	s.engine.GET("/api/reports/:tool", s.handleLatest)
	s.engine.POST("/api/reports/:tool", s.handleUpload)

	// WebSocket.
	s.engine.GET("/ws", s.handleWebSocket)

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func (s *Server) handleTools(c *gin.Context) {
	type toolInfo struct {
		Name      string `json:"name"`
		HasReport bool   `json:"has_report"`
	}
	names := s.deps.Registry.Names()
	out := make([]toolInfo, 0, len(names))
	for _, name := range names {
		_, ok := s.deps.Collection.Latest(name)
		out = append(out, toolInfo{Name: name, HasReport: ok})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleLatest(c *gin.Context) {
	tool := c.Param("tool")
	if !s.deps.Registry.Has(tool) {
		c.JSON(http.StatusNotFound, gin.H{"error": tools.ErrUnknownTool.Error(), "tool": tool})
		return
	}
	p, ok := s.deps.Collection.Latest(tool)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet", "tool": tool})
		return
	}
	c.JSON(http.StatusOK, p)
}

// handleUpload runs one pass over the request body and returns its report.
func (s *Server) handleUpload(c *gin.Context) {
	tool := c.Param("tool")
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLogSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.deps.Registry.Parse(c.Request.Context(), tool, parser.FromBytes(raw))
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "tool": tool})
		return
	case errors.Is(err, parser.ErrUnrecognizedLog):
		s.deps.Aggregator.RecordFailure(tool, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "tool": tool})
		return
	case err != nil:
		s.deps.Aggregator.RecordFailure(tool, err)
		logging.Error("server: pass failed", "tool", tool, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "tool": tool})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Start runs the server until ctx is cancelled, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.Info("server: listening", "addr", s.addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
