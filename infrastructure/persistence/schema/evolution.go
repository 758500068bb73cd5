package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is one applied migration as recorded in the database
type SchemaVersion struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// Migration moves the schema from FromVersion to ToVersion inside one transaction
type Migration struct {
	FromVersion int
	ToVersion   int
	Description string
	Statements  []string
}

// SchemaEvolution applies registered migrations in order and records them in
// the schema_migrations table
type SchemaEvolution struct {
	migrations []Migration
}

// NewSchemaEvolution creates a new schema evolution manager
func NewSchemaEvolution() *SchemaEvolution {
	return &SchemaEvolution{}
}

// RegisterMigration registers a new migration
func (s *SchemaEvolution) RegisterMigration(migration Migration) error {
	if migration.FromVersion >= migration.ToVersion {
		return fmt.Errorf("invalid migration: from_version must be less than to_version")
	}

	for _, existing := range s.migrations {
		if existing.FromVersion == migration.FromVersion {
			return fmt.Errorf("migration from %d already exists", migration.FromVersion)
		}
	}

	s.migrations = append(s.migrations, migration)
	sort.Slice(s.migrations, func(i, j int) bool {
		return s.migrations[i].FromVersion < s.migrations[j].FromVersion
	})
	return nil
}

// Latest returns the highest version reachable through registered migrations
func (s *SchemaEvolution) Latest() int {
	if len(s.migrations) == 0 {
		return 0
	}
	return s.migrations[len(s.migrations)-1].ToVersion
}

// Migrate upgrades the database to the latest version. Applied migrations are skipped.
func (s *SchemaEvolution) Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	);`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := s.CurrentVersion(ctx, db)
	if err != nil {
		return err
	}

	for current < s.Latest() {
		migration := s.findMigration(current)
		if migration == nil {
			return fmt.Errorf("no migration found from version %d", current)
		}
		if err := apply(ctx, db, *migration); err != nil {
			return fmt.Errorf("migration %d->%d failed: %w", migration.FromVersion, migration.ToVersion, err)
		}
		current = migration.ToVersion
	}

	return nil
}

// CurrentVersion reads the applied version, 0 for an empty database
func (s *SchemaEvolution) CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// History lists the applied migrations oldest first
func (s *SchemaEvolution) History(ctx context.Context, db *sql.DB) ([]SchemaVersion, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []SchemaVersion
	for rows.Next() {
		var v SchemaVersion
		var appliedAt int64
		if err := rows.Scan(&v.Version, &v.Description, &appliedAt); err != nil {
			return nil, err
		}
		v.AppliedAt = time.Unix(0, appliedAt).UTC()
		history = append(history, v)
	}
	return history, rows.Err()
}

func (s *SchemaEvolution) findMigration(from int) *Migration {
	for i := range s.migrations {
		if s.migrations[i].FromVersion == from {
			return &s.migrations[i]
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.ToVersion, m.Description, time.Now().UnixNano(),
	); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
