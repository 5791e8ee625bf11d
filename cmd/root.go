package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/resplite/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "resplite",
	Short: "A small RESP client and loopback server",
	Long: `A small RESP client and loopback server

Settings are read from RESPLITE_* environment variables and from a
.env.local file in the working directory. Flags take precedence.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(SendCmd)
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the command line and exits non zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
