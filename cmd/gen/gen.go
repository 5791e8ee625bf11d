package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups generators that only need the command tree, so they can be
// attached to any root command.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the command line",
	Long:  `Generate documentation for the command line`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
