package output

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/runner"
)

// Publication is one published report.
type Publication struct {
	ID     uuid.UUID    `json:"id"`
	Tool   string       `json:"tool"`
	Time   time.Time    `json:"time"`
	Report model.Report `json:"report"`
}

// Collection keeps the latest report per tool. Publishing replaces the
// tool's previous report; other tools are unaffected.
type Collection struct {
	mu     sync.RWMutex
	latest map[string]Publication
	notify chan<- Publication
}

// NewCollection creates a Collection. When notify is non-nil every
// publication is also sent there.
func NewCollection(notify chan<- Publication) *Collection {
	return &Collection{
		latest: make(map[string]Publication),
		notify: notify,
	}
}

// Sink returns the sink that publishes into this collection for tool.
func (c *Collection) Sink(tool string) runner.Sink {
	return &collectionSink{c: c, tool: tool}
}

// Latest returns the most recent publication for tool.
func (c *Collection) Latest(tool string) (Publication, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.latest[tool]
	return p, ok
}

// Tools returns the tools that have published at least once, sorted.
func (c *Collection) Tools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.latest))
	for t := range c.latest {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (c *Collection) replace(ctx context.Context, tool string, report model.Report) error {
	p := Publication{
		ID:     uuid.New(),
		Tool:   tool,
		Time:   time.Now(),
		Report: report,
	}

	c.mu.Lock()
	c.latest[tool] = p
	c.mu.Unlock()

	if c.notify == nil {
		return nil
	}
	select {
	case c.notify <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type collectionSink struct {
	c    *Collection
	tool string
}

func (s *collectionSink) Publish(ctx context.Context, report model.Report) error {
	return s.c.replace(ctx, s.tool, report)
}
