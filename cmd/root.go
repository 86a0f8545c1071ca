// Package cmd wires the loom CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - synced knowledge base with hybrid retrieval",
	Long: `Loom synchronizes content databases into PostgreSQL, an object
store and a vector index, and serves retrieval-augmented answers over
a JSON API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
