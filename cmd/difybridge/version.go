package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/difybridge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "difybridge %s (%s)\n", difybridge.Version, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
