package parser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/atikulmunna/memlens/internal/model"
)

// ErrUnrecognizedLog is returned when the top-level shape of a log is not
// the one the parser understands. Nothing is produced for such a log.
var ErrUnrecognizedLog = errors.New("unrecognized log structure")

// Parser converts one complete tool log into diagnostics with raw stack traces.
type Parser interface {
	Parse(ctx context.Context, log Log) ([]model.Diagnostic, error)

	// TypeDocumentation returns a reference URL for a classification.
	// Unknown types fall back to a generic page.
	TypeDocumentation(typ string) string
}

// Labeler is implemented by parsers that have human-readable names for
// their classifications.
type Labeler interface {
	Label(typ string) string
}

// Classifier is implemented by parsers that grade their classifications.
type Classifier interface {
	Severity(typ string) model.Severity
}

// Label returns p's label for typ, or typ itself.
func Label(p Parser, typ string) string {
	if l, ok := p.(Labeler); ok {
		if s := l.Label(typ); s != "" {
			return s
		}
	}
	return typ
}

// Severity returns p's severity for typ, defaulting to error.
func Severity(p Parser, typ string) model.Severity {
	if c, ok := p.(Classifier); ok {
		return c.Severity(typ)
	}
	return model.SeverityError
}

// ---------------------------------------------------------------------------
// Log input
// ---------------------------------------------------------------------------

// Log is either raw log bytes or the path of a log file still to be read.
type Log struct {
	data []byte
	path string
}

// FromBytes wraps an in-memory log.
func FromBytes(data []byte) Log { return Log{data: data} }

// FromString wraps an in-memory log.
func FromString(s string) Log { return Log{data: []byte(s)} }

// FromFile refers to a log on disk. The file is read when a parser needs it.
func FromFile(path string) Log { return Log{path: path} }

// Bytes returns the log content, reading the file if necessary.
func (l Log) Bytes(ctx context.Context) ([]byte, error) {
	if l.path == "" {
		return l.data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", l.path, err)
	}
	return raw, nil
}

func (l Log) String() string {
	if l.path != "" {
		return l.path
	}
	return fmt.Sprintf("<%d bytes>", len(l.data))
}
