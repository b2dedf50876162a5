package model

// Frame is one entry of a call stack. Zero values mean "absent": a frame
// with no File or Line lacks debug information.
type Frame struct {
	IP       uint64 `json:"ip" msgpack:"ip"`
	File     string `json:"file,omitempty" msgpack:"file,omitempty"`
	Function string `json:"function,omitempty" msgpack:"function,omitempty"`
	Line     int    `json:"line,omitempty" msgpack:"line,omitempty"`
	Obj      string `json:"obj,omitempty" msgpack:"obj,omitempty"`
	Msg      string `json:"msg,omitempty" msgpack:"msg,omitempty"`

	// AuxMsg explains the frame that follows this one once filtering has
	// removed frames in between.
	AuxMsg string `json:"auxmsg,omitempty" msgpack:"auxmsg,omitempty"`
}

// HasLocation reports whether the frame carries both a file and a line.
func (f Frame) HasLocation() bool {
	return f.File != "" && f.Line > 0
}

// Position returns the frame's source position. Only meaningful when
// HasLocation is true.
func (f Frame) Position() Position {
	return NewPosition(f.File, f.Line)
}

// StackTrace is ordered closest-to-fault first.
type StackTrace []Frame
