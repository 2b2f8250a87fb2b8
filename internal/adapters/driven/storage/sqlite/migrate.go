package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/custodia-labs/keepsake/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// CurrentSchemaVersion is the schema version this build writes. The f-phase stamp
// unit must set the same value.
const CurrentSchemaVersion = 1

// enginePhase units configure the connection and are not recorded.
const enginePhase = 'a'

// migrationUnit is one embedded DDL file.
type migrationUnit struct {
	name  string
	phase byte
	sql   string
}

// loadUnits reads every unit from fsys in application order.
func loadUnits(fsys fs.FS) ([]migrationUnit, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if name[0] < 'a' || name[0] > 'f' {
			return nil, fmt.Errorf("migration %s: unknown phase %q: %w", name, name[0], domain.ErrConfiguration)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	units := make([]migrationUnit, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		units = append(units, migrationUnit{
			name:  strings.TrimSuffix(name, ".sql"),
			phase: name[0],
			sql:   string(content),
		})
	}
	return units, nil
}

// Migrate brings the schema up to date. It is idempotent: applied units are
// recorded in schema_migrations and skipped on later runs.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.migrate(ctx, migrations.FS)
}

func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	defer logger.Timed("migrate")()

	units, err := loadUnits(fsys)
	if err != nil {
		return err
	}

	for _, u := range units {
		if u.phase != enginePhase {
			continue
		}
		if _, err := s.db.ExecContext(ctx, u.sql); err != nil {
			return fmt.Errorf("applying %s: %w", u.name, translateError(err))
		}
	}

	if err := s.bootstrapMigrations(ctx); err != nil {
		return err
	}

	stored, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}
	if stored > CurrentSchemaVersion {
		return fmt.Errorf("store is at version %d, this build supports %d: %w",
			stored, CurrentSchemaVersion, domain.ErrSchemaVersionMismatch)
	}

	applied, err := s.appliedUnits(ctx)
	if err != nil {
		return err
	}

	for _, u := range units {
		if u.phase == enginePhase || applied[u.name] {
			continue
		}
		if err := s.applyUnit(ctx, u); err != nil {
			return err
		}
		logger.Debug("Applied migration %s", u.name)
	}
	return nil
}

// bootstrapMigrations creates the bookkeeping tables the runner itself needs.
func (s *Store) bootstrapMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", translateError(err))
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", translateError(err))
	}
	return nil
}

func (s *Store) storedVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", translateError(err))
	}
	return version, nil
}

func (s *Store) appliedUnits(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", translateError(err))
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning migration: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// applyUnit executes one unit and records it in the same transaction.
func (s *Store) applyUnit(ctx context.Context, u migrationUnit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", translateError(err))
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, u.sql); err != nil {
		return fmt.Errorf("applying %s: %w", u.name, translateError(err))
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
		u.name, s.now().UnixNano()); err != nil {
		return fmt.Errorf("recording %s: %w", u.name, translateError(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", u.name, translateError(err))
	}
	return nil
}

// SchemaVersion returns the stored schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return s.storedVersion(ctx)
}
