package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "noesisd",
	Short: "Noesis backend service",
	Long: `noesisd serves the Noesis API: spreadsheet-to-schema file analysis
and the streaming chat relay that lets a model edit the canvas through
tool calls.`,
	SilenceUsage: true,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./noesis.yaml)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}
