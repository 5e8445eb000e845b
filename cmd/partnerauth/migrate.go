package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/partnerauth/pkg/config"
	"github.com/platinummonkey/partnerauth/pkg/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the user database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openMigrationDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.MigrateUp(db); err != nil {
			return err
		}
		return printVersion(cmd, db)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[0], err)
			}
			steps = n
		}
		db, err := openMigrationDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.MigrateDown(db, steps); err != nil {
			return err
		}
		return printVersion(cmd, db)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openMigrationDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return printVersion(cmd, db)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func openMigrationDB(cmd *cobra.Command) (*sql.DB, error) {
	cfg := config.Load()
	if cfg.Storage.PostgresURL == "" {
		return nil, errors.New(config.EnvPrefix + "POSTGRES_URL is required for migrations")
	}
	connCfg := postgres.DefaultConnectionConfig(cfg.Storage.PostgresURL)
	connCfg.Timeout = cfg.Storage.PostgresTimeout
	return postgres.Open(cmd.Context(), connCfg)
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	v, dirty, err := postgres.SchemaVersion(db)
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("schema version %d (dirty)\n", v)
		return nil
	}
	cmd.Printf("schema version %d\n", v)
	return nil
}
