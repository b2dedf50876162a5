package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/atikulmunna/memlens/internal/model"
)

// ScopeFilter keeps frames whose file lies inside one of the workspace
// roots. Include and Exclude are doublestar patterns matched against the
// path relative to the root that contains it.
//
// When a frame is dropped its AuxMsg moves to the next frame evaluated, so
// the explanation is not lost with the frame it was written for.
type ScopeFilter struct {
	roots   []string
	include []string
	exclude []string

	pending string
}

// ScopeOptions configures a ScopeFilter.
type ScopeOptions struct {
	Roots   []string
	Include []string
	Exclude []string
}

// NewScopeFilter validates the patterns and makes every root absolute.
func NewScopeFilter(opts ScopeOptions) (*ScopeFilter, error) {
	s := &ScopeFilter{}
	for _, r := range opts.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("scope root %q: %w", r, err)
		}
		s.roots = append(s.roots, abs)
	}
	for _, p := range opts.Include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
		s.include = append(s.include, filepath.ToSlash(p))
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		s.exclude = append(s.exclude, filepath.ToSlash(p))
	}
	return s, nil
}

func (s *ScopeFilter) Reset() {
	s.pending = ""
}

func (s *ScopeFilter) FilterFrame(frame *model.Frame) bool {
	if s.pending != "" {
		frame.AuxMsg = s.pending
		s.pending = ""
	}

	if frame.File != "" && s.Contains(frame.File) {
		return true
	}

	s.pending = frame.AuxMsg
	return false
}

// FilterDiagnostic drops diagnostics left without any frame in scope.
func (s *ScopeFilter) FilterDiagnostic(d model.Diagnostic) bool {
	return len(d.Common().StackTrace) != 0
}

// Contains reports whether file is inside the scope. Relative files are
// resolved against each root in turn.
func (s *ScopeFilter) Contains(file string) bool {
	for _, root := range s.roots {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		rel, err := filepath.Rel(root, filepath.Clean(path))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if s.matches(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

func (s *ScopeFilter) matches(rel string) bool {
	for _, p := range s.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(s.include) == 0 {
		return true
	}
	for _, p := range s.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
