package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/memlens/internal/filter"
	"github.com/atikulmunna/memlens/internal/matcher"
	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/postprocess"
)

type recordingSink struct {
	reports []model.Report
	err     error
}

func (s *recordingSink) Publish(_ context.Context, r model.Report) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func valgrindTool(t *testing.T, root string) Tool {
	t.Helper()
	scope, err := filter.NewScopeFilter(filter.ScopeOptions{Roots: []string{root}})
	require.NoError(t, err)
	return Tool{
		Parser:         parser.NewValgrindParser(),
		Filters:        []filter.Filter{scope},
		Matcher:        matcher.NewDeepestFrame(),
		PostProcessors: []postprocess.PostProcessor{postprocess.NewLeakCompactor("${leakedBytes} bytes are ${type} at ${function} (${ip})")},
	}
}

func frameXML(ip, fn, dir, file string, line int) string {
	return fmt.Sprintf("<frame><ip>%s</ip><fn>%s</fn><dir>%s</dir><file>%s</file><line>%d</line></frame>", ip, fn, dir, file, line)
}

func TestRun_GenericAndLeakShareOnePosition(t *testing.T) {
	root := t.TempDir()
	log := fmt.Sprintf(`<valgrindoutput>
<error><kind>InvalidFree</kind><what>Invalid free()</what><stack>%s</stack></error>
<error><kind>Leak_DefinitelyLost</kind><xwhat><text>128 bytes lost</text><leakedbytes>128</leakedbytes></xwhat><stack>%s</stack></error>
</valgrindoutput>`,
		frameXML("0x10", "main", root, "a.c", 10),
		frameXML("0x20", "main", root, "a.c", 10))

	sink := &recordingSink{}
	r := New("valgrind", valgrindTool(t, root), sink)

	groups, err := r.Process(context.Background(), parser.FromString(log))
	require.NoError(t, err)
	require.Equal(t, 1, groups.Len())

	pos := model.NewPosition(filepath.Join(root, "a.c"), 10)
	got := groups.Get(pos)
	require.Len(t, got, 2)
	_, isGeneric := got[0].(*model.Generic)
	assert.True(t, isGeneric)
	leak, isLeak := got[1].(*model.Leak)
	require.True(t, isLeak)
	assert.Equal(t, int64(128), leak.LeakedBytes)

	report, err := r.Run(context.Background(), parser.FromString(log))
	require.NoError(t, err)
	require.Len(t, sink.reports, 1)
	require.Len(t, report.Files, 1)
	assert.Equal(t, pos.File, report.Files[0].File)
	require.Len(t, report.Files[0].Records, 2)

	rec := report.Files[0].Records[0]
	assert.Equal(t, 10, rec.Line)
	assert.Equal(t, "Invalid free() at main (0x10)", rec.Message)
	assert.Equal(t, "InvalidFree", rec.Type)
	assert.Equal(t, "generic", rec.Kind)
	assert.Equal(t, "Invalid free", rec.Label)
	assert.Equal(t, model.SeverityError, rec.Severity)
	assert.Contains(t, rec.DocURL, "#mc-manual.badfrees")
	assert.Equal(t, int64(128), report.Files[0].Records[1].LeakedBytes)
	assert.Equal(t, "leak", report.Files[0].Records[1].Kind)
}

func TestRun_RelatedFramesAndAuxMessages(t *testing.T) {
	root := t.TempDir()
	log := fmt.Sprintf(`<valgrindoutput><error><kind>InvalidRead</kind><what>Invalid read of size 4</what>
<stack><frame><ip>0x1</ip><fn>memcpy</fn><obj>/lib/libc.so</obj></frame>%s%s</stack>
<auxwhat>Address is inside a block that was freed</auxwhat>
<stack><frame><ip>0x4</ip><fn>free</fn><obj>/lib/vgpreload.so</obj></frame>%s</stack>
</error></valgrindoutput>`,
		frameXML("0x2", "copy", root, "copy.c", 5),
		frameXML("0x3", "main", root, "main.c", 30),
		frameXML("0x5", "release", root, "pool.c", 77))

	r := New("valgrind", valgrindTool(t, root), nil)
	report, err := r.Run(context.Background(), parser.FromString(log))
	require.NoError(t, err)

	require.Len(t, report.Files, 1)
	rec := report.Files[0].Records[0]
	assert.Equal(t, 5, rec.Line)
	require.Len(t, rec.Related, 2)
	assert.Equal(t, model.Related{File: filepath.Join(root, "main.c"), Line: 30, Message: "at main (0x3)"}, rec.Related[0])
	// The aux message moved from the dropped free() frame onto release().
	assert.Equal(t, filepath.Join(root, "pool.c"), rec.Related[1].File)
	assert.Equal(t, "Address is inside a block that was freed at release (0x5)", rec.Related[1].Message)
}

func TestRun_UnpositionedDiagnosticsAreDropped(t *testing.T) {
	root := t.TempDir()
	// Frame in scope but without a line: survives filtering, cannot be matched.
	log := fmt.Sprintf(`<valgrindoutput><error><kind>InvalidRead</kind><what>r</what>
<stack><frame><ip>0x1</ip><fn>f</fn><dir>%s</dir><file>a.c</file></frame></stack></error></valgrindoutput>`, root)

	r := New("valgrind", valgrindTool(t, root), nil)
	report, err := r.Run(context.Background(), parser.FromString(log))
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	assert.Zero(t, report.Len())
}

func TestRun_LineLessFrameDoesNotDropDiagnostic(t *testing.T) {
	root := t.TempDir()
	log := fmt.Sprintf(`<valgrindoutput><error><kind>InvalidRead</kind><what>r</what>
<stack><frame><ip>0x1</ip><fn>f</fn><dir>%s</dir><file>a.c</file></frame>%s</stack></error></valgrindoutput>`,
		root, frameXML("0x2", "g", root, "b.c", 8))

	r := New("valgrind", valgrindTool(t, root), nil)
	report, err := r.Run(context.Background(), parser.FromString(log))
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, filepath.Join(root, "b.c"), report.Files[0].File)
	assert.Equal(t, 8, report.Files[0].Records[0].Line)
}

func TestRun_EmptyLogProducesEmptyReport(t *testing.T) {
	sink := &recordingSink{}
	r := New("valgrind", valgrindTool(t, t.TempDir()), sink)

	report, err := r.Run(context.Background(), parser.FromString(`<valgrindoutput></valgrindoutput>`))
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	require.Len(t, sink.reports, 1, "an empty pass still replaces previous output")
}

func TestRun_FatalParseDoesNotPublish(t *testing.T) {
	sink := &recordingSink{}
	r := New("valgrind", valgrindTool(t, t.TempDir()), sink)

	_, err := r.Run(context.Background(), parser.FromString(`<html></html>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrUnrecognizedLog))
	assert.Empty(t, sink.reports)
}

func TestRun_PublishError(t *testing.T) {
	sink := &recordingSink{err: errors.New("closed")}
	r := New("valgrind", valgrindTool(t, t.TempDir()), sink)

	_, err := r.Run(context.Background(), parser.FromString(`<valgrindoutput/>`))
	assert.ErrorContains(t, err, "publish")
}

func TestRun_LeakSanitizerCompaction(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "list.c")
	log := fmt.Sprintf(`==9==ERROR: LeakSanitizer: detected memory leaks

Direct leak of 64 byte(s) in 1 object(s) allocated from:
    #0 0x7f01 in malloc (/usr/lib/libasan.so.6+0xb0bc8)
    #1 0x5501 in make_list %[1]s:12:9

Direct leak of 32 byte(s) in 1 object(s) allocated from:
    #0 0x7f01 in malloc (/usr/lib/libasan.so.6+0xb0bc8)
    #1 0x5502 in make_list %[1]s:12:9

Indirect leak of 16 byte(s) in 1 object(s) allocated from:
    #0 0x7f01 in malloc (/usr/lib/libasan.so.6+0xb0bc8)
    #1 0x5503 in make_list %[1]s:12:9

SUMMARY: AddressSanitizer: 112 byte(s) leaked in 3 allocation(s).
`, file)

	scope, err := filter.NewScopeFilter(filter.ScopeOptions{Roots: []string{root}})
	require.NoError(t, err)
	tool := Tool{
		Parser:         parser.NewLeakSanitizerParser(),
		Filters:        []filter.Filter{scope},
		Matcher:        matcher.NewDeepestFrame(),
		PostProcessors: []postprocess.PostProcessor{postprocess.NewLeakCompactor("${type} of ${leakedBytes} byte(s) allocated in ${function} (${ip})")},
	}

	report, err := New("leaksanitizer", tool, nil).Run(context.Background(), parser.FromString(log))
	require.NoError(t, err)
	require.Len(t, report.Files, 1)

	recs := report.Files[0].Records
	require.Len(t, recs, 2)
	assert.Equal(t, int64(96), recs[0].LeakedBytes)
	assert.Equal(t, "Direct leak of 96 byte(s) allocated in make_list (0x5501)", recs[0].Message)
	assert.Empty(t, recs[0].Related)
	assert.Equal(t, int64(16), recs[1].LeakedBytes)
	assert.Equal(t, model.SeverityWarning, recs[1].Severity)
}
