package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"

	"findit/internal/logging"
	"findit/internal/metrics"
)

// mmapSafeDriverName is a custom go-sqlite3 registration with mmap
// disabled, used for folder DBs: watched folders may sit on removable or
// network-attached volumes where mmap'd pages can fault with SIGBUS once
// the underlying mount drops.
const mmapSafeDriverName = "findit_sqlite_mmap_disabled"

var registerMmapSafeDriverOnce sync.Once

func registerMmapSafeDriver() {
	registerMmapSafeDriverOnce.Do(func() {
		sql.Register(mmapSafeDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				_, err := conn.Exec("PRAGMA mmap_size = 0", nil)
				return err
			},
		})
	})
}

func init() { registerMmapSafeDriver() }

// migrationStep is one named, idempotent forward step of a schema ladder
// (C4). Implementer-written steps must be safe to re-run: CREATE TABLE/INDEX
// IF NOT EXISTS, guarded ALTER TABLE, etc.
type migrationStep struct {
	name string
	kind string // "folder" or "global"; not set by the ladders, applyMigrations labels its errors with its dbKind argument
	run  func(ctx context.Context, db *sql.DB) error
}

// applyMigrations runs every step in order, skipping steps already recorded
// in the schema_migrations table. Re-running against an up-to-date DB is a
// no-op, matching §4.2's requirement.
func applyMigrations(ctx context.Context, db *sql.DB, dbKind string, steps []migrationStep) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`); err != nil {
		return fmt.Errorf("%s: create schema_migrations: %w", dbKind, err)
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("%s: read schema_migrations: %w", dbKind, err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("%s: scan schema_migrations: %w", dbKind, err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, step := range steps {
		if applied[step.name] {
			continue
		}
		logging.Info("[migrate:%s] applying %s", dbKind, step.name)
		if err := step.run(ctx, db); err != nil {
			return fmt.Errorf("%s: migration %s: %w", dbKind, step.name, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(name) VALUES (?)`, step.name); err != nil {
			return fmt.Errorf("%s: record migration %s: %w", dbKind, step.name, err)
		}
		metrics.MigrationsApplied.WithLabelValues(dbKind, step.name).Inc()
	}
	return nil
}

// columnExists checks pragma_table_info for a column, used by additive
// migrations the way the teacher's runMigrations checked for
// content_updated_at before altering.
func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&exists)
	return exists, err
}

func openWAL(path string) (*sql.DB, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open(mmapSafeDriverName, connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	return db, nil
}
