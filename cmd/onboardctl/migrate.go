package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/store"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending conversation store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var db *bun.DB
			switch cfg.Store.Driver {
			case store.DriverSQLite:
				db, err = store.OpenSQLite(ctx, cfg.Store.SQLitePath)
			case store.DriverPostgres:
				db, err = store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
			default:
				return errors.New("the memory store has no schema to migrate")
			}
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db, log); err != nil {
				return err
			}
			version, err := store.MigrationVersion(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", cfg.Store.Driver, version)
			return nil
		},
	}
}
