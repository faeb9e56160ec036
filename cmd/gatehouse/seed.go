// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// Defaults for seed command flags.
const (
	defaultSeedTimeout = 30 * time.Second
	defaultAdminEmail  = "admin@example.com"
)

// seedUserID is the well-known ID of the seeded admin account. The fixed
// ID means re-running seed with a different email updates the one admin
// row instead of accumulating accounts.
// ULID must be exactly 26 characters (Crockford's base32 alphabet).
const seedUserID = "01K2XJ3S000000000000000000"

// seedConfig carries the seed command's flag values.
type seedConfig struct {
	email    string
	password string
	timeout  time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with an admin account",
		Long: `Creates the initial admin account. This command is idempotent - it
will not create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", defaultAdminEmail, "admin account email address")
	cmd.Flags().StringVar(&cfg.password, "password", "", "admin account password (required)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "how long the seed may spend on database work")
	cmd.Flags().String("database.url", config.Default().Database.URL, "PostgreSQL connection URL")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	if cfg.password == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--password is required")
	}

	addr, err := auth.ParseEmailAddress(cfg.email)
	if err != nil {
		return err
	}

	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The admin password has to satisfy the same policy Register enforces.
	if err := conf.Password.Policy().Validate(cfg.password); err != nil {
		return err
	}

	hasher := auth.NewArgon2idHasher()
	hash, err := hasher.Hash(cfg.password)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "hash admin password").Wrap(err)
	}

	// cmd.Context() ends on SIGINT/SIGTERM; the deadline bounds every
	// database step below.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, conf.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open database pool").Wrap(err)
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	if err := migrateUp(conf.Database.URL); err != nil {
		return err
	}

	users := postgres.NewUserRepository(pool)

	exists, err := users.EmailExists(ctx, addr.Normalized())
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "check admin email").Wrap(err)
	}
	if exists {
		cmd.Println("Admin account already exists, skipping seed")
		verifySeededUser(ctx, users, addr)
		return nil
	}

	adminID, err := ulid.Parse(seedUserID)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "parse seed user ID").Wrap(err)
	}

	user, err := auth.NewUser(addr, hash, time.Now().UTC())
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "build admin user").Wrap(err)
	}
	user.ID = adminID

	if err := users.Save(ctx, user); err != nil {
		// A concurrent seed can win the insert race; the unique email
		// index reports that as a conflict.
		if auth.ErrorCode(err) == auth.CodeConflict {
			cmd.Println("Admin account already exists, skipping seed")
			return nil
		}
		return oops.Code("SEED_FAILED").With("operation", "create admin user").Wrap(err)
	}

	cmd.Println("Created admin account: " + addr.Normalized())
	slog.Info("created admin account", "user_id", user.ID.String(), "email", addr.Normalized())

	cmd.Println("Seeding complete")
	return nil
}

// migrateUp applies pending migrations over a connection of its own.
func migrateUp(databaseURL string) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	if upErr := m.Up(); upErr != nil {
		_ = m.Close()
		return upErr
	}
	if err := m.Close(); err != nil {
		slog.Warn("closing migrator", "error", err)
	}
	return nil
}

// verifySeededUser warns when the existing account does not look like the
// one seed would have created.
func verifySeededUser(ctx context.Context, users *postgres.UserRepository, addr auth.EmailAddress) {
	existing, err := users.FindByEmail(ctx, addr.Normalized())
	if err != nil {
		slog.Warn("could not verify existing admin account",
			"email", addr.Normalized(),
			"error", err)
		return
	}

	if existing.ID.String() != seedUserID {
		slog.Warn("admin account has a different ID than seed would assign",
			"email", addr.Normalized(),
			"user_id", existing.ID.String())
		return
	}

	slog.Info("admin account already seeded", "user_id", existing.ID.String())
}
