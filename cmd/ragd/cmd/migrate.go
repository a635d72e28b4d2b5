package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"ragfabric/internal/config"
	"ragfabric/internal/registry"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the document idempotency ledger table if it doesn't exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Registry.DSN == "" {
				return fmt.Errorf("REGISTRY_DSN is not set; nothing to migrate")
			}
			ctx := cmd.Context()
			conn, err := pgx.Connect(ctx, cfg.Registry.DSN)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)
			if err := registry.New(conn).EnsureTable(ctx); err != nil {
				return err
			}
			fmt.Println("ingest_registry table is up to date")
			return nil
		},
	}
	return cmd
}
