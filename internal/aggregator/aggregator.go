package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/output"
)

// ToolStats summarizes the latest report and the pass history of one tool.
type ToolStats struct {
	Passes      int64                  `json:"passes"`
	Failures    int64                  `json:"failures"`
	LastPass    time.Time              `json:"last_pass"`
	LastError   string                 `json:"last_error,omitempty"`
	Files       int                    `json:"files"`
	Records     int                    `json:"records"`
	LeakedBytes int64                  `json:"leaked_bytes"`
	ByType      map[string]int         `json:"by_type"`
	BySeverity  map[model.Severity]int `json:"by_severity"`
}

// Stats holds a point-in-time snapshot of aggregated metrics.
type Stats struct {
	Uptime       string               `json:"uptime"`
	TotalPasses  int64                `json:"total_passes"`
	Tools        map[string]ToolStats `json:"tools"`
	DroppedPubs  int64                `json:"dropped_publications"`
	FilesWatched int                  `json:"files_watched"`
}

// Aggregator subscribes to the Hub and keeps per-tool metrics.
type Aggregator struct {
	mu          sync.RWMutex
	startTime   time.Time
	totalPasses int64
	tools       map[string]*ToolStats
	dropped     func() int64
	fileCount   func() int
	pubs        <-chan output.Publication
}

// New creates an Aggregator that reads from the given Hub subscriber channel.
// droppedFn and fileCountFn provide live values from Hub and Watcher respectively.
func New(pubs <-chan output.Publication, droppedFn func() int64, fileCountFn func() int) *Aggregator {
	return &Aggregator{
		startTime: time.Now(),
		tools:     make(map[string]*ToolStats),
		dropped:   droppedFn,
		fileCount: fileCountFn,
		pubs:      pubs,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tools := make(map[string]ToolStats, len(a.tools))
	for name, ts := range a.tools {
		c := *ts
		c.ByType = make(map[string]int, len(ts.ByType))
		for k, v := range ts.ByType {
			c.ByType[k] = v
		}
		c.BySeverity = make(map[model.Severity]int, len(ts.BySeverity))
		for k, v := range ts.BySeverity {
			c.BySeverity[k] = v
		}
		tools[name] = c
	}

	s := Stats{
		Uptime:      time.Since(a.startTime).Truncate(time.Second).String(),
		TotalPasses: a.totalPasses,
		Tools:       tools,
	}
	if a.dropped != nil {
		s.DroppedPubs = a.dropped()
	}
	if a.fileCount != nil {
		s.FilesWatched = a.fileCount()
	}
	return s
}

// Start begins consuming publications. Blocks until the context is
// cancelled or the channel is closed.
func (a *Aggregator) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-a.pubs:
			if !ok {
				return
			}
			a.record(p)
		}
	}
}

// RecordFailure notes a pass that failed before anything was published.
func (a *Aggregator) RecordFailure(tool string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.toolLocked(tool)
	ts.Failures++
	ts.LastError = err.Error()
}

// record replaces a tool's report metrics with those of p.
func (a *Aggregator) record(p output.Publication) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalPasses++
	ts := a.toolLocked(p.Tool)
	ts.Passes++
	ts.LastPass = p.Time
	ts.LastError = ""
	ts.Files = len(p.Report.Files)
	ts.Records = 0
	ts.LeakedBytes = 0
	ts.ByType = make(map[string]int)
	ts.BySeverity = make(map[model.Severity]int)

	for _, f := range p.Report.Files {
		for _, r := range f.Records {
			ts.Records++
			ts.LeakedBytes += r.LeakedBytes
			ts.ByType[r.Type]++
			ts.BySeverity[r.Severity]++
		}
	}
}

func (a *Aggregator) toolLocked(tool string) *ToolStats {
	ts, ok := a.tools[tool]
	if !ok {
		ts = &ToolStats{
			ByType:     make(map[string]int),
			BySeverity: make(map[model.Severity]int),
		}
		a.tools[tool] = ts
	}
	return ts
}
