package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/memlens/internal/filter"
	"github.com/atikulmunna/memlens/internal/model"
	"github.com/atikulmunna/memlens/internal/parser"
	"github.com/atikulmunna/memlens/internal/runner"
)

type memorySink struct {
	mu      sync.Mutex
	current model.Report
	calls   int
}

func (s *memorySink) Publish(_ context.Context, r model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
	s.calls++
	return nil
}

type sinkSet struct {
	mu      sync.Mutex
	created map[string]*memorySink
}

func (s *sinkSet) factory(tool string) runner.Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created == nil {
		s.created = make(map[string]*memorySink)
	}
	sink := &memorySink{}
	s.created[tool] = sink
	return sink
}

func newDefaults(t *testing.T, root string, sinks SinkFactory) *Registry {
	t.Helper()
	reg, err := Defaults(Options{Scope: filter.ScopeOptions{Roots: []string{root}}}, sinks)
	require.NoError(t, err)
	return reg
}

func valgrindLog(root string, lines ...int) string {
	s := "<valgrindoutput>"
	for _, l := range lines {
		s += fmt.Sprintf(`<error><kind>InvalidWrite</kind><what>w</what><stack><frame><ip>0x1</ip><fn>f</fn><dir>%s</dir><file>a.c</file><line>%d</line></frame></stack></error>`, root, l)
	}
	return s + "</valgrindoutput>"
}

func TestDefaults_Names(t *testing.T) {
	reg := newDefaults(t, t.TempDir(), nil)
	assert.Equal(t, []string{LeakSanitizer, Valgrind}, reg.Names())
	assert.True(t, reg.Has(Valgrind))
	assert.False(t, reg.Has("drmemory"))
}

func TestRegistry_UnknownTool(t *testing.T) {
	reg := newDefaults(t, t.TempDir(), nil)

	_, err := reg.Parse(context.Background(), "drmemory", parser.FromString(""))
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_LazySinkPerTool(t *testing.T) {
	root := t.TempDir()
	sinks := &sinkSet{}
	reg := newDefaults(t, root, sinks.factory)

	assert.Empty(t, sinks.created, "sinks are created on first use")

	_, err := reg.Parse(context.Background(), Valgrind, parser.FromString(valgrindLog(root, 1, 2)))
	require.NoError(t, err)
	_, err = reg.Parse(context.Background(), Valgrind, parser.FromString(valgrindLog(root, 3)))
	require.NoError(t, err)

	require.Len(t, sinks.created, 1)
	sink := sinks.created[Valgrind]
	assert.Equal(t, 2, sink.calls)

	// Second pass fully replaced the first.
	require.Len(t, sink.current.Files, 1)
	require.Len(t, sink.current.Files[0].Records, 1)
	assert.Equal(t, 3, sink.current.Files[0].Records[0].Line)
	assert.Equal(t, filepath.Join(root, "a.c"), sink.current.Files[0].File)
}

func TestRegistry_FailedPassKeepsPreviousOutput(t *testing.T) {
	root := t.TempDir()
	sinks := &sinkSet{}
	reg := newDefaults(t, root, sinks.factory)

	_, err := reg.Parse(context.Background(), Valgrind, parser.FromString(valgrindLog(root, 7)))
	require.NoError(t, err)
	_, err = reg.Parse(context.Background(), Valgrind, parser.FromString("<valgrindoutput><error>"))
	require.ErrorIs(t, err, parser.ErrUnrecognizedLog)

	sink := sinks.created[Valgrind]
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 7, sink.current.Files[0].Records[0].Line)
}

func TestRegistry_ToolsRunIndependently(t *testing.T) {
	root := t.TempDir()
	sinks := &sinkSet{}
	reg := newDefaults(t, root, sinks.factory)

	lsan := fmt.Sprintf("==1==ERROR: LeakSanitizer: detected memory leaks\n\n"+
		"Direct leak of 4 byte(s) in 1 object(s) allocated from:\n"+
		"    #0 0x10 in f %s:9\n\nSUMMARY: AddressSanitizer: 4 byte(s)\n", filepath.Join(root, "b.c"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = reg.Parse(context.Background(), Valgrind, parser.FromString(valgrindLog(root, 1)))
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = reg.Parse(context.Background(), LeakSanitizer, parser.FromString(lsan))
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Len(t, sinks.created, 2)
	assert.Equal(t, 9, sinks.created[LeakSanitizer].current.Files[0].Records[0].Line)
	assert.Equal(t, 1, sinks.created[Valgrind].current.Files[0].Records[0].Line)
}

func TestDefaults_TemplateOverride(t *testing.T) {
	root := t.TempDir()
	reg, err := Defaults(Options{
		Scope:     filter.ScopeOptions{Roots: []string{root}},
		Templates: map[string]string{LeakSanitizer: "${leakedBytes}B ${type}"},
	}, nil)
	require.NoError(t, err)

	file := filepath.Join(root, "c.c")
	lsan := fmt.Sprintf("==1==ERROR: LeakSanitizer: detected memory leaks\n\n"+
		"Direct leak of 4 byte(s) in 1 object(s) allocated from:\n    #0 0x10 in f %[1]s:9\n\n"+
		"Direct leak of 6 byte(s) in 1 object(s) allocated from:\n    #0 0x11 in f %[1]s:9\n\n"+
		"SUMMARY: AddressSanitizer\n", file)

	report, err := reg.Parse(context.Background(), LeakSanitizer, parser.FromString(lsan))
	require.NoError(t, err)
	assert.Equal(t, "10B Direct leak", report.Files[0].Records[0].Message)
}

func TestDefaults_InvalidScope(t *testing.T) {
	_, err := Defaults(Options{Scope: filter.ScopeOptions{Exclude: []string{"[oops"}}}, nil)
	assert.Error(t, err)
}

func TestDefaults_ValgrindLeakMessage(t *testing.T) {
	root := t.TempDir()
	reg := newDefaults(t, root, nil)

	leak := func(bytes int) string {
		return fmt.Sprintf(`<error><kind>Leak_DefinitelyLost</kind>
			<xwhat><text>%d bytes in 1 blocks are definitely lost</text><leakedbytes>%d</leakedbytes></xwhat>
			<stack><frame><ip>0x4C2A</ip><fn>make_node</fn><dir>%s</dir><file>list.c</file><line>5</line></frame></stack>
		</error>`, bytes, bytes, root)
	}
	log := "<valgrindoutput>" + leak(64) + leak(32) + "</valgrindoutput>"

	report, err := reg.Parse(context.Background(), Valgrind, parser.FromString(log))
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	require.Len(t, report.Files[0].Records, 1)

	rec := report.Files[0].Records[0]
	assert.Equal(t, "96 are Leak_DefinitelyLost at make_node 0x4c2a", rec.Message)
	assert.Equal(t, int64(96), rec.LeakedBytes)
}
