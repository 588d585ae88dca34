package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"genqueue/internal/db"
	"genqueue/internal/infra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			pool, err := infra.NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			if _, err := pool.Exec(cmd.Context(), db.Schema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
