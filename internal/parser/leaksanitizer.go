package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/model"
)

const leakSanitizerWiki = "https://github.com/google/sanitizers/wiki/AddressSanitizerLeakSanitizer"

// LeakSanitizerParser reads the plain-text leak report printed by
// LeakSanitizer (standalone or as part of AddressSanitizer).
type LeakSanitizerParser struct {
	region    *regexp.Regexp
	separator *regexp.Regexp
	header    *regexp.Regexp
	lineFrame *regexp.Regexp
	offFrame  *regexp.Regexp
}

func NewLeakSanitizerParser() *LeakSanitizerParser {
	return &LeakSanitizerParser{
		// Everything between the detection banner and the last SUMMARY line.
		region:    regexp.MustCompile(`(?s)==\d+==ERROR: LeakSanitizer: detected memory leaks(.*)SUMMARY`),
		separator: regexp.MustCompile(`\n[ \t]*\n`),
		header:    regexp.MustCompile(`^\s*(?P<message>(?P<type>[A-Za-z][\w ]*?) of (?P<bytes>\d+) byte\(s\) in \d+ object\(s\) allocated) from:`),
		// #1 0x4f2c1e in make_list /src/list.c:12:9
		lineFrame: regexp.MustCompile(`^\s*#(?P<n>\d+)\s+(?P<ip>0[xX][0-9a-fA-F]+)\s+in\s+(?P<function>.+?)\s+(?P<file>[^\s()]+?):(?P<line>\d+)(?::\d+)?\s*$`),
		// #0 0x7f8e2c in malloc (/usr/lib/libasan.so.6+0xb0c3e)
		offFrame: regexp.MustCompile(`^\s*#(?P<n>\d+)\s+(?P<ip>0[xX][0-9a-fA-F]+)\s+in\s+(?P<function>.+?)\s+\((?P<module>[^()]+?)\+(?P<offset>0[xX][0-9a-fA-F]+)\)\s*$`),
	}
}

func (p *LeakSanitizerParser) Parse(ctx context.Context, log Log) ([]model.Diagnostic, error) {
	raw, err := log.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	report := strings.ReplaceAll(string(raw), "\r\n", "\n")

	m := p.region.FindStringSubmatch(report)
	if m == nil {
		return nil, nil
	}
	body := strings.TrimSpace(m[1])
	if body == "" {
		return nil, nil
	}

	var diagnostics []model.Diagnostic
	for _, entry := range p.separator.Split(body, -1) {
		if d, ok := p.parseEntry(entry); ok {
			diagnostics = append(diagnostics, d)
		}
	}
	return diagnostics, nil
}

func (p *LeakSanitizerParser) parseEntry(entry string) (model.Diagnostic, bool) {
	lines := strings.Split(strings.Trim(entry, "\n"), "\n")

	h := p.header.FindStringSubmatch(lines[0])
	if h == nil {
		logging.Debug("leaksanitizer: skipping entry", "header", lines[0])
		return nil, false
	}
	leaked, err := strconv.ParseInt(h[p.header.SubexpIndex("bytes")], 10, 64)
	if err != nil {
		logging.Debug("leaksanitizer: skipping entry", "header", lines[0], "error", err)
		return nil, false
	}

	var stack model.StackTrace
	for _, line := range lines[1:] {
		if frame, ok := p.parseFrame(line); ok {
			stack = append(stack, frame)
		}
	}

	return model.NewLeak(
		strings.TrimSpace(h[p.header.SubexpIndex("type")]),
		h[p.header.SubexpIndex("message")],
		leaked,
		stack,
	), true
}

func (p *LeakSanitizerParser) parseFrame(line string) (model.Frame, bool) {
	var frame model.Frame

	if m := p.lineFrame.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[p.lineFrame.SubexpIndex("line")])
		if err != nil {
			return frame, false
		}
		frame.File = m[p.lineFrame.SubexpIndex("file")]
		frame.Line = n
		frame.Function = m[p.lineFrame.SubexpIndex("function")]
		return finishFrame(frame, m[p.lineFrame.SubexpIndex("ip")])
	}

	if m := p.offFrame.FindStringSubmatch(line); m != nil {
		frame.Obj = m[p.offFrame.SubexpIndex("module")]
		frame.Function = m[p.offFrame.SubexpIndex("function")]
		return finishFrame(frame, m[p.offFrame.SubexpIndex("ip")])
	}

	return frame, false
}

func finishFrame(frame model.Frame, ip string) (model.Frame, bool) {
	v, err := parseHex(ip)
	if err != nil {
		return frame, false
	}
	frame.IP = v
	frame.Msg = fmt.Sprintf("in %s (%s)", frame.Function, strings.ToLower(ip))
	return frame, true
}

func (p *LeakSanitizerParser) TypeDocumentation(string) string {
	return leakSanitizerWiki
}

func (p *LeakSanitizerParser) Severity(typ string) model.Severity {
	if strings.EqualFold(typ, "Indirect leak") {
		return model.SeverityWarning
	}
	return model.SeverityError
}
