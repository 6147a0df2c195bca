package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the installer version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func userAgent() string {
	return "auto-beeper-install/" + version
}
