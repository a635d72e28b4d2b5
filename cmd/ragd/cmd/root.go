// Package cmd provides the ragd CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the ragd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragd",
		Short: "Retrieval-augmented-generation service",
		Long: `ragd ingests documents into tenant-partitioned vector collections and
answers queries against them, fronting the ingest/retrieve pipeline with
an HTTP API.`,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthcheckCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
