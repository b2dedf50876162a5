package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/atikulmunna/memlens/internal/model"
)

// Renderer writes reports to an output stream.
type Renderer interface {
	Render(report model.Report) error
}

// NewRenderer returns the renderer for format: text, json or msgpack.
func NewRenderer(format string, w io.Writer) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	case "msgpack":
		return NewMsgpackRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// RendererSink publishes every report by rendering it.
type RendererSink struct {
	r Renderer
}

func NewRendererSink(r Renderer) *RendererSink { return &RendererSink{r: r} }

func (s *RendererSink) Publish(_ context.Context, report model.Report) error {
	return s.r.Render(report)
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))             // cyan
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))            // yellow
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red bold
	styleTool    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62")).Bold(true)
	styleFile    = lipgloss.NewStyle().Underline(true)
	styleRelated = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleDocs    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
)

// TextRenderer prints reports grouped by file with severity-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(report model.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %d diagnostic(s) in %d file(s)\n", styleTool.Render(" "+report.Tool+" "), report.Len(), len(report.Files))
	for _, f := range report.Files {
		fmt.Fprintf(&b, "\n%s\n", styleFile.Render(f.File))
		for _, rec := range f.Records {
			label := rec.Label
			if label == "" {
				label = rec.Type
			}
			fmt.Fprintf(&b, "  %5d  %s  %s: %s\n", rec.Line, styleSeverityTag(rec.Severity), label, rec.Message)
			for _, rel := range rec.Related {
				fmt.Fprintf(&b, "         %s\n", styleRelated.Render(fmt.Sprintf("%s:%d %s", rel.File, rel.Line, rel.Message)))
			}
			if rec.DocURL != "" {
				fmt.Fprintf(&b, "         %s\n", styleDocs.Render(rec.DocURL))
			}
		}
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func styleSeverityTag(s model.Severity) string {
	padded := fmt.Sprintf("%-7s", strings.ToUpper(string(s)))
	switch s {
	case model.SeverityInfo:
		return styleInfo.Render(padded)
	case model.SeverityWarning:
		return styleWarn.Render(padded)
	default:
		return styleError.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each report as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(report model.Report) error {
	return r.enc.Encode(report)
}

// ---------------------------------------------------------------------------
// Msgpack Renderer (compact binary stream)
// ---------------------------------------------------------------------------

// MsgpackRenderer writes each report as one msgpack value.
type MsgpackRenderer struct {
	enc *msgpack.Encoder
}

func NewMsgpackRenderer(w io.Writer) *MsgpackRenderer {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	return &MsgpackRenderer{enc: enc}
}

func (r *MsgpackRenderer) Render(report model.Report) error {
	return r.enc.Encode(report)
}
