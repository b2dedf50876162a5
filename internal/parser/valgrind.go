package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/model"
)

const valgrindRoot = "valgrindoutput"

const memcheckManual = "https://www.valgrind.org/docs/manual/mc-manual.html"

// ValgrindParser reads memcheck's --xml=yes output.
type ValgrindParser struct{}

func NewValgrindParser() *ValgrindParser { return &ValgrindParser{} }

// node is a generic XML element. Children keep document order, which the
// error state machine depends on.
type node struct {
	XMLName  xml.Name
	Text     string `xml:",chardata"`
	Children []node `xml:",any"`
}

func (n *node) child(name string) (*node, bool) {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			return &n.Children[i], true
		}
	}
	return nil, false
}

func (n *node) childText(name string) (string, bool) {
	c, ok := n.child(name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(c.Text), true
}

// symbolStats counts frames lacking debug information.
type symbolStats struct {
	frames     int
	unresolved int
}

func (s symbolStats) ratio() float64 {
	if s.frames == 0 {
		return 0
	}
	return float64(s.unresolved) / float64(s.frames)
}

func (p *ValgrindParser) Parse(ctx context.Context, log Log) ([]model.Diagnostic, error) {
	raw, err := log.Bytes(ctx)
	if err != nil {
		return nil, err
	}

	// Bytes are only reinterpreted when the prolog names another charset.
	if !declaresCharset(raw) {
		raw = bytes.ToValidUTF8(raw, replacementChar)
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader

	if err := findRoot(dec); err != nil {
		return nil, err
	}

	var (
		diagnostics []model.Diagnostic
		stats       symbolStats
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: truncated %s document", ErrUnrecognizedLog, valgrindRoot)
			}
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedLog, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "error" {
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUnrecognizedLog, err)
				}
				continue
			}
			var n node
			if err := dec.DecodeElement(&n, &t); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnrecognizedLog, err)
			}
			diagnostics = append(diagnostics, p.convertError(&n, &stats))

		case xml.EndElement:
			// End of the root element.
			logging.Debug("valgrind symbols",
				"frames", stats.frames,
				"unresolved", stats.unresolved,
				"ratio", stats.ratio())
			return diagnostics, nil
		}
	}
}

var (
	replacementChar = []byte("\uFFFD")
	prologEncoding  = regexp.MustCompile(`\A\s*<\?xml[^>]*?\bencoding\s*=\s*["']([^"']+)["']`)
)

// declaresCharset reports whether the XML prolog names an encoding other
// than UTF-8.
func declaresCharset(raw []byte) bool {
	m := prologEncoding.FindSubmatch(raw)
	if m == nil {
		return false
	}
	label := strings.ToLower(string(m[1]))
	return label != "utf-8" && label != "utf8"
}

// charsetReader decodes documents declaring a non-UTF-8 charset. Unknown
// charsets are read as UTF-8 with invalid bytes replaced.
func charsetReader(label string, r io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err == nil && enc != nil {
		return enc.NewDecoder().Reader(r), nil
	}
	logging.Debug("valgrind: unsupported charset", "charset", label, "error", err)
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(bytes.ToValidUTF8(raw, replacementChar)), nil
}

// findRoot advances dec past the root start element, failing if the
// document's root is not valgrindoutput.
func findRoot(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: missing <%s> root", ErrUnrecognizedLog, valgrindRoot)
			}
			return fmt.Errorf("%w: %v", ErrUnrecognizedLog, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local != valgrindRoot {
				return fmt.Errorf("%w: root element <%s>, want <%s>", ErrUnrecognizedLog, se.Name.Local, valgrindRoot)
			}
			return nil
		}
	}
}

// convertError walks the children of one <error> top to bottom.
func (p *ValgrindParser) convertError(n *node, stats *symbolStats) model.Diagnostic {
	var (
		kind   string
		msg    string
		aux    string
		leaked int64
		isLeak bool
		stack  model.StackTrace
	)

	for i := range n.Children {
		c := &n.Children[i]
		switch c.XMLName.Local {
		case "kind":
			kind = strings.TrimSpace(c.Text)
		case "what":
			msg = strings.TrimSpace(c.Text)
		case "xwhat":
			msg, _ = c.childText("text")
			if s, ok := c.childText("leakedbytes"); ok {
				if v, err := strconv.ParseInt(s, 10, 64); err == nil {
					leaked, isLeak = v, true
				} else {
					logging.Debug("valgrind: bad leakedbytes", "value", s)
				}
			}
		case "auxwhat":
			aux = strings.TrimSpace(c.Text)
		case "xauxwhat":
			aux, _ = c.childText("text")
		case "stack":
			for j := range c.Children {
				f := &c.Children[j]
				if f.XMLName.Local != "frame" {
					continue
				}
				frame, ok := convertFrame(f, stats)
				if !ok {
					continue
				}
				frame.AuxMsg = aux
				aux = ""
				stack = append(stack, frame)
			}
		}
	}

	if isLeak {
		return model.NewLeak(kind, msg, leaked, stack)
	}
	return model.NewGeneric(kind, msg, stack)
}

func convertFrame(f *node, stats *symbolStats) (model.Frame, bool) {
	stats.frames++

	ipText, _ := f.childText("ip")
	ip, err := parseHex(ipText)
	if err != nil {
		logging.Debug("valgrind: skipping frame", "ip", ipText, "error", err)
		stats.unresolved++
		return model.Frame{}, false
	}

	fn, hasFn := f.childText("fn")
	dir, hasDir := f.childText("dir")
	file, hasFile := f.childText("file")
	lineText, hasLine := f.childText("line")
	obj, _ := f.childText("obj")

	if !hasFn || !hasDir || !hasFile || !hasLine {
		stats.unresolved++
	}

	frame := model.Frame{
		IP:       ip,
		Function: fn,
		Obj:      obj,
	}
	switch {
	case hasDir && hasFile:
		frame.File = filepath.Join(dir, file)
	case hasFile:
		frame.File = file
	}
	if hasLine {
		if line, err := strconv.Atoi(lineText); err == nil && line > 0 {
			frame.Line = line
		}
	}

	name := fn
	if name == "" {
		name = "???"
	}
	frame.Msg = fmt.Sprintf("at %s (%s)", name, strings.ToLower(ipText))

	return frame, true
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing ip")
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strconv.ParseUint(s, 16, 64)
}

func (p *ValgrindParser) TypeDocumentation(typ string) string {
	switch typ {
	case "InvalidRead", "InvalidWrite":
		return memcheckManual + "#mc-manual.badrw"
	case "UninitValue", "UninitCondition":
		return memcheckManual + "#mc-manual.uninitvals"
	case "SyscallParam":
		return memcheckManual + "#mc-manual.bad-syscall-args"
	case "InvalidFree":
		return memcheckManual + "#mc-manual.badfrees"
	case "MismatchedFree":
		return memcheckManual + "#mc-manual.rudefn"
	case "Overlap":
		return memcheckManual + "#mc-manual.overlap"
	case "FishyValue":
		return memcheckManual + "#mc-manual.fishyvalue"
	case "Leak_DefinitelyLost", "Leak_IndirectlyLost", "Leak_PossiblyLost", "Leak_StillReachable":
		return memcheckManual + "#mc-manual.leaks"
	default:
		return memcheckManual + "#mc-manual.errormsgs"
	}
}

var valgrindLabels = map[string]string{
	"InvalidFree":         "Invalid free",
	"MismatchedFree":      "Mismatched free",
	"InvalidRead":         "Invalid read",
	"InvalidWrite":        "Invalid write",
	"InvalidJump":         "Invalid jump",
	"Overlap":             "Overlapping source and destination",
	"InvalidMemPool":      "Invalid memory pool",
	"UninitCondition":     "Uninitialised jump",
	"UninitValue":         "Uninitialised value",
	"SyscallParam":        "System call parameter",
	"ClientCheck":         "Client check",
	"FishyValue":          "Fishy value",
	"Leak_DefinitelyLost": "Leak: definitely lost",
	"Leak_IndirectlyLost": "Leak: indirectly lost",
	"Leak_PossiblyLost":   "Leak: possibly lost",
	"Leak_StillReachable": "Leak: still reachable",
}

func (p *ValgrindParser) Label(typ string) string {
	return valgrindLabels[typ]
}

func (p *ValgrindParser) Severity(typ string) model.Severity {
	switch typ {
	case "Leak_StillReachable":
		return model.SeverityInfo
	case "Leak_PossiblyLost", "Leak_IndirectlyLost":
		return model.SeverityWarning
	default:
		return model.SeverityError
	}
}
