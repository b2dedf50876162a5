// Package matcher picks the source position a diagnostic is shown at.
package matcher

import "github.com/atikulmunna/memlens/internal/model"

// Matcher selects the Position a diagnostic is attached to. ok is false
// when the diagnostic cannot be placed.
type Matcher interface {
	Match(d model.Diagnostic) (pos model.Position, ok bool)
}

// DeepestFrame anchors a diagnostic at the first frame of its (filtered)
// stack trace that has both a file and a line. The anchor frame's message
// is appended to the diagnostic's message.
type DeepestFrame struct{}

func NewDeepestFrame() *DeepestFrame { return &DeepestFrame{} }

func (DeepestFrame) Match(d model.Diagnostic) (model.Position, bool) {
	base := d.Common()
	i := AnchorIndex(base.StackTrace)
	if i < 0 {
		return model.Position{}, false
	}

	frame := base.StackTrace[i]
	if frame.Msg != "" {
		if base.Msg == "" {
			base.Msg = frame.Msg
		} else {
			base.Msg += " " + frame.Msg
		}
	}
	return frame.Position(), true
}

// AnchorIndex returns the index of the first frame with a file and line,
// or -1.
func AnchorIndex(trace model.StackTrace) int {
	for i := range trace {
		if trace[i].HasLocation() {
			return i
		}
	}
	return -1
}
