package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the noesisd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("noesisd %s (commit %s)\n", version, commit)
	},
}
