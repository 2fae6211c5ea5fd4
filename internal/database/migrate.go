package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable keeps the audit schema bookkeeping apart from anything
// else living in the same database.
const MigrationsTable = "yahallo_schema_migrations"

var (
	// ErrDirty means a previous migration stopped halfway. The schema has to
	// be repaired and the version forced before migrating again.
	ErrDirty = errors.New("audit schema is dirty")

	// ErrAuditHistory is returned by Down when rolling back would delete
	// recorded authentication attempts.
	ErrAuditHistory = errors.New("audit history would be lost")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status describes the audit schema of a database.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// Pending reports whether embedded migrations have not been applied yet.
func (s Status) Pending() bool {
	return s.Current < s.Latest
}

// Migrator applies the embedded audit schema migrations.
type Migrator struct {
	m      *migrate.Migrate
	db     *sql.DB
	latest uint
	logger *slog.Logger
}

// NewMigrator creates a migrator on db. Closing the migrator closes db.
func NewMigrator(db *sql.DB, dbName string, logger *slog.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		DatabaseName:    dbName,
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	latest, err := latestVersion(src)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{
		m:      m,
		db:     db,
		latest: latest,
		logger: logger.With("component", "migrate"),
	}, nil
}

func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migrations: %w", err)
		}
		v = next
	}
}

// Status returns the applied and the newest embedded version.
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("get version: %w", err)
	}
	return Status{Current: version, Latest: m.latest, Dirty: dirty}, nil
}

// Up brings the audit schema to the newest version.
func (m *Migrator) Up() error {
	before, err := m.Status()
	if err != nil {
		return err
	}
	if before.Dirty {
		return fmt.Errorf("%w at version %d", ErrDirty, before.Current)
	}
	if !before.Pending() {
		m.logger.Debug("audit schema up to date", slog.Uint64("version", uint64(before.Current)))
		return nil
	}

	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	m.logger.Info("audit schema migrated",
		slog.Uint64("from", uint64(before.Current)),
		slog.Uint64("to", uint64(m.latest)),
	)
	return nil
}

// Down rolls back the last migration. Rolling back the first migration
// drops auth_attempts, so it fails with ErrAuditHistory while rows exist
// unless discardHistory is set.
func (m *Migrator) Down(ctx context.Context, discardHistory bool) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	if st.Current == 0 {
		return nil
	}

	if st.Current == 1 && !discardHistory {
		var rows int64
		if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_attempts`).Scan(&rows); err != nil {
			return fmt.Errorf("count auth attempts: %w", err)
		}
		if rows > 0 {
			return fmt.Errorf("%w: %d recorded attempts", ErrAuditHistory, rows)
		}
	}

	if err := m.m.Steps(-1); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	m.logger.Info("audit schema rolled back", slog.Uint64("from", uint64(st.Current)))
	return nil
}

// Force records version as applied and clears the dirty flag without
// running anything. -1 records that nothing is applied.
func (m *Migrator) Force(version int) error {
	if version < -1 || version > int(m.latest) {
		return fmt.Errorf("force version: %d outside -1..%d", version, m.latest)
	}
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version: %w", err)
	}
	m.logger.Warn("audit schema version forced", slog.Int("version", version))
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
