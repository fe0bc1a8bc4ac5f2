package contentstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

// schemaSQL creates the version 1 tables. Later versions are applied on top
// of it through migrations.
//
//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database from version i+1 to i+2.
var migrations = []string{
	// 2: research scans recent packages of every kind.
	`CREATE INDEX IF NOT EXISTS idx_content_packages_created ON content_packages (created_at DESC)`,
}

// schemaVersion is the version a freshly opened store ends up at.
var schemaVersion = len(migrations) + 1

// ErrSchemaMismatch is returned for databases written by a newer craefto.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema creates the tables of a new database and migrates older ones
// forward inside a single transaction.
func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version := 0
	if tableExists == 0 {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		version = 1
	} else if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version > schemaVersion || version < 1 {
		return fmt.Errorf("%w: database has version %d, this build supports up to %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	if err := migrate(ctx, tx, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, tx *sql.Tx, from int) error {
	if from == schemaVersion {
		return nil
	}
	for v := from; v < schemaVersion; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
			return fmt.Errorf("migrate schema to version %d: %w", v+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE schema_version SET version = ?", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}
