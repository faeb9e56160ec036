// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register the pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateIface is the slice of golang-migrate the Migrator needs. Unit
// tests substitute a fake here; the real library wants a live database
// connection for every operation.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded schema migrations to a PostgreSQL
// database and reports which versions have been applied.
type Migrator struct {
	m migrateIface
}

// NewMigrator builds a Migrator for the given database. Accepts
// postgres:// and postgresql:// URLs; both are rewritten to the pgx5://
// scheme golang-migrate's pgx/v5 driver expects.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").
			With("operation", "create migration source").
			Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").
			With("operation", "initialize migrator").
			Wrap(err)
	}

	return &Migrator{m: m}, nil
}

// migrateURL rewrites postgres:// and postgresql:// schemes to pgx5://.
// Other schemes pass through untouched and fail driver lookup later.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// ignoreNoChange filters golang-migrate's ErrNoChange, which signals an
// already up-to-date schema rather than a failure.
func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Up applies every pending migration. A schema already at the latest
// version is not an error.
func (m *Migrator) Up() error {
	if err := ignoreNoChange(m.m.Up()); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls the schema back to version 0, dropping every table the
// migrations created along with all data in them.
func (m *Migrator) Down() error {
	if err := ignoreNoChange(m.m.Down()); err != nil {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps applies n migrations when n is positive and rolls back -n
// migrations when n is negative. Steps(0) is a no-op.
func (m *Migrator) Steps(n int) error {
	if err := ignoreNoChange(m.m.Steps(n)); err != nil {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version reports the current schema version and whether the schema is
// dirty (a migration failed partway through). A database with no applied
// migrations reports version 0, clean.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force records the given version without running any migration SQL and
// clears the dirty flag. It exists to recover from a dirty state after
// the database has been repaired by hand; recording a version that does
// not match the actual schema makes later runs skip or re-apply
// migrations. The version must be non-negative.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").
			Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the migration source and the database connection. Both
// are always attempted; if both fail, the returned error carries the two
// messages.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	case srcErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// AppliedMigrations lists the embedded migration versions at or below
// the current schema version, ascending.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	if current == 0 {
		return nil, nil
	}

	all, err := allMigrationVersions()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	applied, _ := splitVersions(all, current)
	return applied, nil
}

// PendingMigrations lists the embedded migration versions above the
// current schema version, ascending. These are the versions Up would
// apply.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}

	all, err := allMigrationVersions()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}
	_, pending := splitVersions(all, current)
	return pending, nil
}

// splitVersions partitions a sorted version list around the current
// schema version.
func splitVersions(all []uint, current uint) (applied, pending []uint) {
	i := sort.Search(len(all), func(i int) bool { return all[i] > current })
	if i > 0 {
		applied = all[:i]
	}
	if i < len(all) {
		pending = all[i:]
	}
	return applied, pending
}

// MigrationName resolves a migration version to its NNNNNN_name label,
// e.g. "000001_create_users". Unknown versions resolve to "" with a nil
// error; the embedded filesystem failing to read at all is an error.
func MigrationName(version uint) (string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return "", oops.Code("MIGRATION_READ_FAILED").
			With("operation", "read migrations dir").
			Wrap(err)
	}

	prefix := fmt.Sprintf("%06d_", version)
	for _, entry := range entries {
		if label, ok := strings.CutSuffix(entry.Name(), ".up.sql"); ok && strings.HasPrefix(label, prefix) {
			return label, nil
		}
	}
	return "", nil
}

// The embedded filesystem never changes at runtime, so the version list
// is scanned once and served from cache after that.
var migrationVersions struct {
	once sync.Once
	list []uint
	err  error
}

// allMigrationVersions returns every migration version found in the
// embedded filesystem, sorted ascending. Callers receive a copy.
func allMigrationVersions() ([]uint, error) {
	migrationVersions.once.Do(func() {
		migrationVersions.list, migrationVersions.err = scanMigrations()
	})
	if migrationVersions.err != nil {
		return nil, migrationVersions.err
	}
	out := make([]uint, len(migrationVersions.list))
	copy(out, migrationVersions.list)
	return out, nil
}

// scanMigrations reads the embedded migrations directory and collects
// the version number of each *.up.sql file. File names that do not
// start with a numeric version are logged and skipped rather than
// failing the whole scan.
func scanMigrations() ([]uint, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").
			With("operation", "read migrations dir").
			Wrap(err)
	}

	seen := make(map[uint]struct{})
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		digits, _, ok := strings.Cut(name, "_")
		if !ok {
			slog.Warn("skipping migration with unparseable name",
				"filename", name,
				"expected_format", "NNNNNN_name.up.sql")
			continue
		}
		version, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			slog.Warn("skipping migration with unparseable name",
				"filename", name,
				"expected_format", "NNNNNN_name.up.sql",
				"error", err)
			continue
		}
		seen[uint(version)] = struct{}{}
	}

	versions := make([]uint, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}
