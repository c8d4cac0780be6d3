package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/finboard-core/internal/infrastructure/database"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE:  runDBStatus,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE:  runDBMigrate,
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Revert the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  runDBRollback,
		},
	)
	return cmd
}

// withDatabase runs fn against the configured database without migrating it.
func withDatabase(cmd *cobra.Command, fn func(db *database.DB) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openDatabaseOnly(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func runDBStatus(cmd *cobra.Command, _ []string) error {
	return withDatabase(cmd, func(db *database.DB) error {
		version, _, err := db.SchemaVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		applied, pending, err := db.GetMigrationStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATUS\tAPPLIED AT")
		for _, r := range applied {
			fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		for _, m := range pending {
			fmt.Fprintf(tw, "%s\tpending (%s)\t-\n", m.Version, m.Name)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if version == "" {
			version = "none"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version: %s, %d pending\n", version, len(pending))
		return nil
	})
}

func runDBMigrate(cmd *cobra.Command, _ []string) error {
	return withDatabase(cmd, func(db *database.DB) error {
		_, before, err := db.SchemaVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		if err := db.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", before)
		return nil
	})
}

func runDBRollback(cmd *cobra.Command, _ []string) error {
	return withDatabase(cmd, func(db *database.DB) error {
		version, _, err := db.SchemaVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		if version == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
			return nil
		}
		if err := db.MigrateDown(cmd.Context()); err != nil {
			return fmt.Errorf("rolling back %s: %w", version, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", version)
		return nil
	})
}
