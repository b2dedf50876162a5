package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atikulmunna/memlens/internal/config"
	"github.com/atikulmunna/memlens/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "memlens",
	Short: "memlens - memory-debugger log lens",
	Long: `memlens turns Valgrind memcheck XML logs and LeakSanitizer reports into
per-file diagnostics pointing at the source lines of your own code.
It can parse logs once, watch them as they are rewritten, or serve the
latest reports over HTTP and WebSocket.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.memlens.yaml)")
	flags.StringP("output", "o", "text", "output format: text, json, msgpack")
	flags.StringSliceP("workspace", "w", []string{"."}, "workspace roots; diagnostics outside them are dropped")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	cobra.CheckErr(viper.BindPFlag("output", flags.Lookup("output")))
	cobra.CheckErr(viper.BindPFlag("workspace", flags.Lookup("workspace")))
	cobra.CheckErr(viper.BindPFlag("log.level", flags.Lookup("log-level")))
}

func initConfig(*cobra.Command, []string) error {
	var err error
	cfg, err = config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	return logging.Init(cfg.LogOptions())
}
