// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/gatehouse/gatehouse/internal/store"
)

// testPool is shared by every integration test in the package. TestMain
// points it at a disposable postgres container with the schema applied.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	code, err := runWithPostgres(m)
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

// runWithPostgres boots a postgres container, migrates it, fills testPool,
// and runs the suite. The container comes down on every path out.
func runWithPostgres(m *testing.M) (int, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatehouse_test"),
		tcpostgres.WithUsername("gatehouse"),
		tcpostgres.WithPassword("gatehouse"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return 0, fmt.Errorf("start postgres container: %w", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return 0, fmt.Errorf("resolve container dsn: %w", err)
	}

	if err := migrateTestDatabase(dsn); err != nil {
		return 0, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("open test pool: %w", err)
	}
	defer pool.Close()

	testPool = pool
	return m.Run(), nil
}

func migrateTestDatabase(dsn string) error {
	migrator, err := store.NewMigrator(dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
