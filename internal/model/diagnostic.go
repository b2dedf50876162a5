package model

// Base holds the fields shared by every diagnostic variant.
type Base struct {
	StackTrace StackTrace `json:"stack_trace"`
	Msg        string     `json:"msg"`
	Type       string     `json:"type"` // tool-defined classification, compared by equality only
}

// Diagnostic is a closed sum over *Generic and *Leak. Use a type switch to
// tell the variants apart.
type Diagnostic interface {
	// Common exposes the shared payload for in-place updates by pipeline stages.
	Common() *Base
	sealed()
}

// Generic is a defect without byte-count semantics (invalid read, bad free, ...).
type Generic struct {
	Base
}

// Leak is a memory leak report.
type Leak struct {
	Base
	LeakedBytes int64 `json:"leaked_bytes"`
}

func (g *Generic) Common() *Base { return &g.Base }
func (l *Leak) Common() *Base    { return &l.Base }

func (*Generic) sealed() {}
func (*Leak) sealed()    {}

// NewGeneric builds a Generic diagnostic.
func NewGeneric(typ, msg string, trace StackTrace) *Generic {
	return &Generic{Base: Base{Type: typ, Msg: msg, StackTrace: trace}}
}

// NewLeak builds a Leak diagnostic. Negative byte counts are clamped to zero.
func NewLeak(typ, msg string, leaked int64, trace StackTrace) *Leak {
	if leaked < 0 {
		leaked = 0
	}
	return &Leak{Base: Base{Type: typ, Msg: msg, StackTrace: trace}, LeakedBytes: leaked}
}

// Kind returns "leak" or "generic".
func Kind(d Diagnostic) string {
	if _, ok := d.(*Leak); ok {
		return "leak"
	}
	return "generic"
}
