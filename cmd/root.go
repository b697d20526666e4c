// Package cmd implements the plateiq command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagVerbose  bool
	flagJSONLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "plateiq",
	Short: "plateiq - evidence-grounded meal macro estimation",
	Long: `plateiq estimates the calories and macros of a meal from a text
description or recognized photo content, grounded in a curated nutrition
knowledge base stored in PostgreSQL.

Run 'plateiq migrate' once to create the schema, 'plateiq ingest' to load
knowledge documents, then 'plateiq estimate' to estimate meals.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "write logs as JSON")
}
