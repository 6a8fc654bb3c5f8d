package historydb

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

func execAll(statements ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

var migrations = []migration{
	{
		Version:     1,
		Description: "revision parent graph",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS revision (
				id TEXT PRIMARY KEY,
				parent_count INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS parent (
				child TEXT NOT NULL REFERENCES revision(id),
				position INTEGER NOT NULL,
				parent TEXT NOT NULL,
				PRIMARY KEY (child, position)
			)`,
			`CREATE INDEX IF NOT EXISTS parent_parent ON parent(parent)`,
		),
	},
	{
		Version:     2,
		Description: "imported tips",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS tip (
				id TEXT PRIMARY KEY,
				revisions INTEGER NOT NULL,
				imported_at TIMESTAMP NOT NULL
			)`,
		),
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	pending := slices.Clone(migrations)
	slices.SortFunc(pending, func(a, b migration) int { return a.Version - b.Version })
	for _, m := range pending {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	query, args, err := sq.Insert("schema_migrations").
		Columns("version", "description", "applied_at").
		Values(m.Version, m.Description, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion reports the newest applied migration.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}
