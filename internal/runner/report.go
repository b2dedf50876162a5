package runner

import (
	"strings"

	"github.com/atikulmunna/memlens/internal/matcher"
	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/parser"
)

// BuildReport turns grouped diagnostics into per-file records. Files and
// records keep the groups' discovery order.
func BuildReport(tool string, p parser.Parser, groups *model.Groups) model.Report {
	report := model.Report{Tool: tool, Files: []model.FileReport{}}
	index := make(map[string]int)

	for _, pos := range groups.Positions() {
		i, ok := index[pos.File]
		if !ok {
			i = len(report.Files)
			index[pos.File] = i
			report.Files = append(report.Files, model.FileReport{File: pos.File})
		}
		for _, d := range groups.Get(pos) {
			report.Files[i].Records = append(report.Files[i].Records, buildRecord(p, pos, d))
		}
	}
	return report
}

func buildRecord(p parser.Parser, pos model.Position, d model.Diagnostic) model.Record {
	base := d.Common()
	rec := model.Record{
		Line:     pos.Line,
		Message:  base.Msg,
		Type:     base.Type,
		Kind:     model.Kind(d),
		Label:    parser.Label(p, base.Type),
		Severity: parser.Severity(p, base.Type),
		DocURL:   p.TypeDocumentation(base.Type),
		Related:  related(base.StackTrace),
	}
	if leak, ok := d.(*model.Leak); ok {
		rec.LeakedBytes = leak.LeakedBytes
	}
	return rec
}

// related lists the non-anchor frames that can be located in source.
func related(trace model.StackTrace) []model.Related {
	anchor := matcher.AnchorIndex(trace)

	var out []model.Related
	for i, f := range trace {
		if i == anchor || !f.HasLocation() {
			continue
		}
		msg := strings.TrimSpace(strings.Join([]string{f.AuxMsg, f.Msg}, " "))
		out = append(out, model.Related{File: f.File, Line: f.Line, Message: msg})
	}
	return out
}
