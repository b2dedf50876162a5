// Package config loads memlens settings from a YAML file, MEMLENS_
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atikulmunna/memlens/internal/filter"
	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/tools"
)

// EnvPrefix prefixes every environment override, e.g. MEMLENS_SERVER_ADDR.
const EnvPrefix = "MEMLENS"

// Config is the full set of user settings.
type Config struct {
	Workspace []string          `mapstructure:"workspace"`
	Scope     Scope             `mapstructure:"scope"`
	Templates map[string]string `mapstructure:"templates"`
	Output    string            `mapstructure:"output"`
	Server    Server            `mapstructure:"server"`
	Watch     Watch             `mapstructure:"watch"`
	Log       Log               `mapstructure:"log"`
}

// Scope narrows which source files diagnostics may point at.
type Scope struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Watch struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SetDefaults registers every key with its default value. Keys must be
// known to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace", []string{"."})
	v.SetDefault("scope.include", []string{})
	v.SetDefault("scope.exclude", []string{})
	v.SetDefault("templates."+tools.Valgrind, tools.ValgrindTemplate)
	v.SetDefault("templates."+tools.LeakSanitizer, tools.LeakSanitizerTemplate)
	v.SetDefault("output", "text")
	v.SetDefault("server.addr", ":7878")
	v.SetDefault("watch.debounce", 250*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load reads file, or .memlens.yaml from $HOME or the working directory
// when file is empty, and decodes the result. A missing default config
// file is not an error; a missing explicit one is.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".memlens")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	switch strings.ToLower(c.Output) {
	case "text", "json", "msgpack":
	default:
		return fmt.Errorf("config: unknown output format %q", c.Output)
	}
	if len(c.Workspace) == 0 {
		return errors.New("config: workspace must name at least one directory")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("config: negative watch.debounce %s", c.Watch.Debounce)
	}
	return nil
}

// ToolOptions converts the settings the built-in tools need.
func (c Config) ToolOptions() tools.Options {
	return tools.Options{
		Scope: filter.ScopeOptions{
			Roots:   c.Workspace,
			Include: c.Scope.Include,
			Exclude: c.Scope.Exclude,
		},
		Templates: c.Templates,
	}
}

// LogOptions converts the logging settings.
func (c Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}
