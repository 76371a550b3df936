package main

import (
	"fmt"

	apihttp "github.com/artpar/paycore/adapters/http"
	"github.com/spf13/cobra"
)

var (
	// Set via ldflags at build time
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "paycore %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", buildDate)
	},
}

func init() {
	apihttp.Version = version
	rootCmd.AddCommand(versionCmd)
}
