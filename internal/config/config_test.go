package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/memlens/internal/tools"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"."}, cfg.Workspace)
	assert.Equal(t, "text", cfg.Output)
	assert.Equal(t, ":7878", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, tools.ValgrindTemplate, cfg.Templates[tools.Valgrind])
	assert.Equal(t, tools.LeakSanitizerTemplate, cfg.Templates[tools.LeakSanitizer])
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
workspace: [/src/app, /src/lib]
scope:
  exclude: ["third_party/**"]
templates:
  valgrind: "${leakedBytes} lost in ${function}"
output: json
server:
  addr: 127.0.0.1:9000
watch:
  debounce: 1s
log:
  level: debug
  format: json
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/src/app", "/src/lib"}, cfg.Workspace)
	assert.Equal(t, []string{"third_party/**"}, cfg.Scope.Exclude)
	assert.Equal(t, "${leakedBytes} lost in ${function}", cfg.Templates[tools.Valgrind])
	assert.Equal(t, tools.LeakSanitizerTemplate, cfg.Templates[tools.LeakSanitizer])
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)

	opts := cfg.ToolOptions()
	assert.Equal(t, cfg.Workspace, opts.Scope.Roots)
	assert.Equal(t, cfg.Scope.Exclude, opts.Scope.Exclude)
	assert.Equal(t, "json", cfg.LogOptions().Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEMLENS_OUTPUT", "msgpack")
	t.Setenv("MEMLENS_SERVER_ADDR", ":9999")
	t.Setenv("MEMLENS_WATCH_DEBOUNCE", "2s")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", cfg.Output)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")

	_, err = Load(viper.New(), writeConfig(t, "output: xml\n"))
	assert.ErrorContains(t, err, "unknown output format")

	_, err = Load(viper.New(), writeConfig(t, "output: [unterminated\n"))
	assert.Error(t, err)
}
