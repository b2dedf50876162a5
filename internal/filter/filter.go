// Package filter narrows stack traces and diagnostics down to what the
// user cares about.
package filter

import "github.com/atikulmunna/memlens/internal/model"

// Filter decides which frames and diagnostics survive.
//
// A filter may keep state while it walks one stack trace (FilterFrame is
// called for each frame in order and may modify the frame). Reset clears
// that state; it is called before every trace and before the diagnostic pass.
type Filter interface {
	Reset()
	FilterFrame(frame *model.Frame) bool
	FilterDiagnostic(d model.Diagnostic) bool
}

// Apply runs filters in order over diagnostics. Each diagnostic's stack
// trace is rewritten in place; the returned slice holds the survivors in
// their original order.
func Apply(diagnostics []model.Diagnostic, filters ...Filter) []model.Diagnostic {
	for _, f := range filters {
		for _, d := range diagnostics {
			base := d.Common()
			f.Reset()
			base.StackTrace = filterTrace(base.StackTrace, f)
		}

		f.Reset()
		kept := diagnostics[:0:0]
		for _, d := range diagnostics {
			if f.FilterDiagnostic(d) {
				kept = append(kept, d)
			}
		}
		diagnostics = kept
	}
	return diagnostics
}

func filterTrace(trace model.StackTrace, f Filter) model.StackTrace {
	if len(trace) == 0 {
		return trace
	}
	out := make(model.StackTrace, 0, len(trace))
	for i := range trace {
		frame := trace[i]
		if f.FilterFrame(&frame) {
			out = append(out, frame)
		}
	}
	return out
}
