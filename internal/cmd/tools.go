package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/memlens/internal/output"
	"github.com/atikulmunna/memlens/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := tools.Defaults(cfg.ToolOptions(), output.NewCollection(nil).Sink)
		if err != nil {
			return err
		}
		for _, name := range reg.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
