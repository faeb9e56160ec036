// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// NewMigrateCmd creates the migrate command tree.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back, and inspect schema migrations against the PostgreSQL
database. The migration SQL is embedded in the binary.`,
	}

	cmd.PersistentFlags().String("database.url", config.Default().Database.URL, "PostgreSQL connection URL")

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStepsCmd())
	cmd.AddCommand(newMigrateForceCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn, and
// closes the migrator afterwards.
func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := store.NewMigrator(conf.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("closing migrator", "error", closeErr)
		}
	}()

	return fn(m)
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Long: `Roll back every applied migration, dropping all tables and data.
Requires --yes to run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRM_REQUIRED").
					Errorf("migrate down drops all data; re-run with --yes to confirm")
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Rolling back all migrations...")
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")

	return cmd
}

func newMigrateStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations (negative N rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_STEPS").
					With("argument", args[0]).
					Wrapf(err, "parsing step count")
			}
			if n == 0 {
				return oops.Code("INVALID_STEPS").Errorf("step count cannot be zero")
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Printf("Applying %d migration step(s)...\n", n)
				if err := m.Steps(n); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the migration version without running migrations",
		Long: `Set the recorded schema version without running any migration SQL.
Use only to recover from a dirty state after fixing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if version < 0 {
				return oops.Code("INVALID_VERSION").
					Errorf("version must be non-negative, got %d", version)
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced migration version to %d\n", version)
				return nil
			})
		},
	}
}

// parseForceVersion parses the version argument for migrate force. Sscanf
// stops at the first non-digit, so trailing characters are ignored.
func parseForceVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(arg, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("argument", arg).
			Wrapf(err, "parsing version")
	}
	return version, nil
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				report, err := formatMigrateStatus(m)
				if err != nil {
					return err
				}
				cmd.Println(report)
				return nil
			})
		},
	}
}

// formatMigrateStatus renders the current schema version followed by one
// row per known migration.
func formatMigrateStatus(m *store.Migrator) (string, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return "", err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return "", err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if dirty {
		_, _ = fmt.Fprintf(w, "Current version: %d (dirty: fix the database, then run migrate force)\n\n", version)
	} else {
		_, _ = fmt.Fprintf(w, "Current version: %d\n\n", version)
	}

	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	_, _ = fmt.Fprintln(w, "-------\t----\t------")

	for _, v := range applied {
		_, _ = fmt.Fprintf(w, "%d\t%s\tapplied\n", v, migrationLabel(v))
	}
	for _, v := range pending {
		_, _ = fmt.Fprintf(w, "%d\t%s\tpending\n", v, migrationLabel(v))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// migrationLabel resolves the migration name for display. Unknown versions
// (e.g. a manually forced one) render as "unknown".
func migrationLabel(v uint) string {
	name, err := store.MigrationName(v)
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}
