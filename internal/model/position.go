package model

import (
	"fmt"
	"path/filepath"
)

// Position is a source location used to anchor and group diagnostics.
// Positions compare by value, so they can be used directly as map keys.
type Position struct {
	File string `json:"file" msgpack:"file"`
	Line int    `json:"line" msgpack:"line"` // 1-based
}

// NewPosition returns a Position with a cleaned file path, so that two
// spellings of the same path end up in the same group.
func NewPosition(file string, line int) Position {
	return Position{File: filepath.Clean(file), Line: line}
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}
