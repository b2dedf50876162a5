// Package postprocess rewrites diagnostics after they have been grouped
// by position.
package postprocess

import "github.com/atikulmunna/memlens/internal/model"

// PostProcessor consumes grouped diagnostics and returns the rewritten groups.
type PostProcessor interface {
	Process(groups *model.Groups) *model.Groups
}

// Apply runs processors in order, each consuming the previous output.
func Apply(groups *model.Groups, processors ...PostProcessor) *model.Groups {
	for _, p := range processors {
		groups = p.Process(groups)
	}
	return groups
}
