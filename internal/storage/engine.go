// Package storage implements the transactional, context-partitioned
// SQLite store behind the cache: tracked files, symbols, references,
// call edges, include deps, overlay state, the parse-run audit log, the
// FTS5 recall index, and both job queues.
//
// Grounded on original_source/src/cxxtract/cache/db.py for the
// migration/PRAGMA sequencing and repository_core.py for the table
// shapes and query semantics, using the Go database/sql idiom shown by
// Aureuma-si's apps/ReleaseParty/backend/internal/store/store.go
// (modernc.org/sqlite, single-writer-friendly SetMaxOpenConns(1),
// IF NOT EXISTS migrations gated by PRAGMA user_version).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// Engine owns the single SQLite connection backing the cache of every
// registered workspace. Parse payloads reach it through the
// Single-Writer; workspace, context and job rows are written directly by
// their callers, and SetMaxOpenConns(1) serializes all of it, matching
// the original's one-module-level-connection design.
type Engine struct {
	db *sql.DB
}

// Open creates the database file's parent directory if needed, opens
// the connection, and runs migrations up to the current schema
// version. Use ":memory:" for tests.
func Open(path string) (*Engine, error) {
	if path == "" {
		return nil, cxxerrors.NewValidationError("db_path", path, fmt.Errorf("db path required"))
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, cxxerrors.NewStorageError("mkdir", 0, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cxxerrors.NewStorageError("open", 0, err)
	}
	// A single writer connection matches the single-writer persistence
	// model: SQLite only ever has one in-flight write at a time anyway,
	// and serializing reads through it avoids "database is locked"
	// retries under modernc.org/sqlite's driver.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	e := &Engine{db: db}
	ctx := context.Background()
	if err := e.configure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) configure(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := e.db.ExecContext(ctx, pragma); err != nil {
			return cxxerrors.NewStorageError("pragma", 0, err)
		}
	}
	return nil
}

func (e *Engine) userVersion(ctx context.Context) (int, error) {
	var version int
	row := e.db.QueryRowContext(ctx, "PRAGMA user_version")
	if err := row.Scan(&version); err != nil {
		return 0, cxxerrors.NewStorageError("read_user_version", 0, err)
	}
	return version, nil
}

func (e *Engine) setUserVersion(ctx context.Context, version int) error {
	_, err := e.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	if err != nil {
		return cxxerrors.NewStorageError("set_user_version", 0, err)
	}
	return nil
}

func (e *Engine) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, cxxerrors.NewStorageError("table_info", 0, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return false, cxxerrors.NewStorageError("table_info_columns", 0, err)
	}
	scanDest := make([]any, len(cols))
	scanBuf := make([]sql.RawBytes, len(cols))
	for i := range scanBuf {
		scanDest[i] = &scanBuf[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return false, cxxerrors.NewStorageError("table_info_scan", 0, err)
		}
		// column 1 is "name" in PRAGMA table_info's result shape.
		if len(scanBuf) > 1 && string(scanBuf[1]) == column {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) migrate(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, baseSchema); err != nil {
		return cxxerrors.NewStorageError("migrate_base", 0, err)
	}

	version, err := e.userVersion(ctx)
	if err != nil {
		return err
	}

	if version < schemaVersionV401 {
		if err := e.applyIfColumnMissing(ctx, "repos", "remote_url", migrationV401); err != nil {
			return err
		}
		if err := e.setUserVersion(ctx, schemaVersionV401); err != nil {
			return err
		}
		version = schemaVersionV401
	}
	if version < schemaVersionV402 {
		if _, err := e.db.ExecContext(ctx, migrationV402); err != nil {
			return cxxerrors.NewStorageError("migrate_v402", 0, err)
		}
		if err := e.setUserVersion(ctx, schemaVersionV402); err != nil {
			return err
		}
		version = schemaVersionV402
	}
	if version < schemaVersionV403 {
		if _, err := e.db.ExecContext(ctx, migrationV403); err != nil {
			return cxxerrors.NewStorageError("migrate_v403", 0, err)
		}
		if err := e.setUserVersion(ctx, schemaVersionV403); err != nil {
			return err
		}
	}
	return nil
}

// applyIfColumnMissing runs ddl only if column is absent from table,
// matching the original's idempotent ALTER TABLE guards (SQLite has no
// "ADD COLUMN IF NOT EXISTS").
func (e *Engine) applyIfColumnMissing(ctx context.Context, table, column, ddl string) error {
	exists, err := e.columnExists(ctx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return cxxerrors.NewStorageError("migrate_"+table+"_"+column, 0, err)
	}
	return nil
}

// Close releases the underlying connection.
func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// DB exposes the raw handle for components (job queue leasing,
// transactions) that need it directly.
func (e *Engine) DB() *sql.DB {
	return e.db
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
