package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/teeline/authcore/store/postgres"
)

const defaultPingBackoff = 200 * time.Millisecond

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply every pending schema migration to the PostgreSQL backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, opts)
		},
	}
}

func runMigrate(cmd *cobra.Command, opts *globalOptions) error {
	fc, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if fc.Backend.Kind != "postgres" {
		return oops.Code("CONFIG_INVALID").Errorf("migrate needs backend.kind=postgres, got %q", fc.Backend.Kind)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.Println("Connecting to database...")
	pool, err := postgres.Connect(ctx, fc.Backend.DSN, postgres.ConnectOptions{PingBackoff: defaultPingBackoff})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	if err := postgres.Migrate(ctx, pool); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
