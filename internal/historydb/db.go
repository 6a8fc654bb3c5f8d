// Package historydb persists the parent graph of indexed branches in
// SQLite so that restarts only fetch revisions added since the last run.
package historydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const insertBatch = 200

type DB struct {
	db  *sql.DB
	log *zap.Logger
}

func Open(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path == ":memory:" {
		path = "file::memory:?cache=shared"
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			return nil, errors.Join(fmt.Errorf("%s: %w", pragma, err), sqlDB.Close())
		}
	}
	if err := migrate(ctx, sqlDB); err != nil {
		return nil, errors.Join(err, sqlDB.Close())
	}
	log.Debug("History db opened", zap.String("path", path))
	return &DB{db: sqlDB, log: log}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// LoadParents returns every stored revision with its ordered parents.
func (d *DB) LoadParents(ctx context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	query, args, err := sq.Select("id").From("revision").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load revisions: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Join(fmt.Errorf("scan revision: %w", err), rows.Close())
		}
		out[id] = nil
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("load revisions: %w", err)
	}

	query, args, err = sq.Select("child", "parent").From("parent").OrderBy("child", "position").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err = d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load parents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		out[child] = append(out[child], parent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load parents: %w", err)
	}
	return out, nil
}

// StoreParents records parents and marks tip as imported. Revisions already
// stored are left untouched.
func (d *DB) StoreParents(ctx context.Context, tip string, parents map[string][]string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	ids := slices.Sorted(maps.Keys(parents))
	for batch := range slices.Chunk(ids, insertBatch) {
		revs := sq.Insert("revision").Columns("id", "parent_count")
		edges := sq.Insert("parent").Columns("child", "position", "parent")
		hasEdges := false
		for _, id := range batch {
			revs = revs.Values(id, len(parents[id]))
			for pos, p := range parents[id] {
				edges = edges.Values(id, pos, p)
				hasEdges = true
			}
		}
		if err := execBuilder(ctx, tx, revs.Suffix("ON CONFLICT(id) DO NOTHING")); err != nil {
			return fmt.Errorf("store revisions: %w", err)
		}
		if hasEdges {
			if err := execBuilder(ctx, tx, edges.Suffix("ON CONFLICT(child, position) DO NOTHING")); err != nil {
				return fmt.Errorf("store parents: %w", err)
			}
		}
	}

	tipInsert := sq.Insert("tip").
		Columns("id", "revisions", "imported_at").
		Values(tip, len(parents), time.Now().UTC()).
		Suffix("ON CONFLICT(id) DO UPDATE SET revisions = excluded.revisions, imported_at = excluded.imported_at")
	if err := execBuilder(ctx, tx, tipInsert); err != nil {
		return fmt.Errorf("store tip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	d.log.Debug("Stored parent map", zap.String("tip", tip), zap.Int("revisions", len(parents)))
	return nil
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (d *DB) HasTip(ctx context.Context, tip string) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").From("tip").Where(sq.Eq{"id": tip}).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup tip: %w", err)
	}
	return n > 0, nil
}

func (d *DB) RevisionCount(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("revision").ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return n, nil
}
