package storage

import (
	"context"
	"database/sql"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// UpsertParsePayload persists one successful parse: the tracked_files
// freshness row, the full symbol/reference/call-edge/include-dep fact
// set (replaced wholesale for the file), and the recall index entry.
// All of it commits atomically, matching repository_core.py's
// upsert_parse_payload transaction boundary.
func (e *Engine) UpsertParsePayload(ctx context.Context, p coretypes.ParsePayload) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return cxxerrors.NewStorageError("upsert_parse_payload_begin", 0, err)
	}
	defer tx.Rollback()

	now := utcNow()
	fileKey := string(p.FileKey)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tracked_files (
			context_id, file_key, repo_id, rel_path, abs_path, content_hash,
			flags_hash, includes_hash, composite_hash, last_parsed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_id, file_key) DO UPDATE SET
			repo_id = excluded.repo_id,
			rel_path = excluded.rel_path,
			abs_path = excluded.abs_path,
			content_hash = excluded.content_hash,
			flags_hash = excluded.flags_hash,
			includes_hash = excluded.includes_hash,
			composite_hash = excluded.composite_hash,
			last_parsed_at = excluded.last_parsed_at
	`, p.ContextID, fileKey, p.RepoID, relPathOf(p.FileKey), p.AbsPath, p.ContentHash,
		p.FlagsHash, p.IncludesHash, p.CompositeHash, now); err != nil {
		return cxxerrors.NewStorageError("upsert_parse_payload_tracked_file", 0, err)
	}

	for _, table := range []string{"symbols", "references_", "call_edges", "include_deps"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE context_id = ? AND file_key = ?", p.ContextID, fileKey); err != nil {
			return cxxerrors.NewStorageError("upsert_parse_payload_clear_"+table, 0, err)
		}
	}

	if len(p.Symbols) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO symbols (context_id, file_key, name, qualified_name, kind, line, col, extent_end_line)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return cxxerrors.NewStorageError("upsert_parse_payload_prepare_symbols", 0, err)
		}
		for _, s := range p.Symbols {
			if _, err := stmt.ExecContext(ctx, p.ContextID, fileKey, s.Name, s.QualifiedName, s.Kind, s.Line, s.Col, s.ExtentEndLine); err != nil {
				stmt.Close()
				return cxxerrors.NewStorageError("upsert_parse_payload_insert_symbol", 0, err)
			}
		}
		stmt.Close()
	}

	if len(p.References) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO references_ (context_id, file_key, symbol_qualified_name, line, col, ref_kind)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return cxxerrors.NewStorageError("upsert_parse_payload_prepare_references", 0, err)
		}
		for _, r := range p.References {
			if _, err := stmt.ExecContext(ctx, p.ContextID, fileKey, r.Symbol, r.Line, r.Col, string(r.Kind)); err != nil {
				stmt.Close()
				return cxxerrors.NewStorageError("upsert_parse_payload_insert_reference", 0, err)
			}
		}
		stmt.Close()
	}

	if len(p.CallEdges) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO call_edges (context_id, file_key, caller_qualified_name, callee_qualified_name, line)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return cxxerrors.NewStorageError("upsert_parse_payload_prepare_call_edges", 0, err)
		}
		for _, c := range p.CallEdges {
			if _, err := stmt.ExecContext(ctx, p.ContextID, fileKey, c.Caller, c.Callee, c.Line); err != nil {
				stmt.Close()
				return cxxerrors.NewStorageError("upsert_parse_payload_insert_call_edge", 0, err)
			}
		}
		stmt.Close()
	}

	if len(p.IncludeDeps) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO include_deps (context_id, file_key, included_file_key, included_abs_path, raw_path, depth)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return cxxerrors.NewStorageError("upsert_parse_payload_prepare_include_deps", 0, err)
		}
		for _, d := range p.IncludeDeps {
			if _, err := stmt.ExecContext(ctx, p.ContextID, fileKey, string(d.FileKey), "", d.Path, d.Depth); err != nil {
				stmt.Close()
				return cxxerrors.NewStorageError("upsert_parse_payload_insert_include_dep", 0, err)
			}
		}
		stmt.Close()
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM recall_fts WHERE context_id = ? AND file_key = ?", p.ContextID, fileKey); err != nil {
		return cxxerrors.NewStorageError("upsert_parse_payload_clear_recall", 0, err)
	}
	if len(p.Content) > 0 {
		if _, err := tx.ExecContext(ctx, "INSERT INTO recall_fts (context_id, file_key, repo_id, content) VALUES (?, ?, ?, ?)",
			p.ContextID, fileKey, p.RepoID, string(p.Content)); err != nil {
			return cxxerrors.NewStorageError("upsert_parse_payload_insert_recall", 0, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cxxerrors.NewStorageError("upsert_parse_payload_commit", 0, err)
	}
	return nil
}

func relPathOf(fileKey coretypes.FileKey) string {
	s := string(fileKey)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return s
}

// GetTrackedFile returns one (context, file) freshness row.
func (e *Engine) GetTrackedFile(ctx context.Context, contextID string, fileKey coretypes.FileKey) (coretypes.TrackedFile, bool, error) {
	var t coretypes.TrackedFile
	var lastParsedAt string
	row := e.db.QueryRowContext(ctx, `
		SELECT context_id, file_key, abs_path, content_hash, flags_hash, includes_hash, composite_hash, last_parsed_at
		FROM tracked_files WHERE context_id = ? AND file_key = ?
	`, contextID, string(fileKey))
	var ctxID, fk string
	if err := row.Scan(&ctxID, &fk, &t.AbsPath, &t.ContentHash, &t.FlagsHash, &t.IncludesHash, &t.CompositeHash, &lastParsedAt); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.TrackedFile{}, false, nil
		}
		return coretypes.TrackedFile{}, false, cxxerrors.NewStorageError("get_tracked_file", 0, err)
	}
	t.ContextID = ctxID
	t.FileKey = coretypes.FileKey(fk)
	t.LastParsedAt = parseTime(lastParsedAt)
	return t, true, nil
}

// GetCompositeHash is the single-column fast path the Freshness Service
// uses for classification, avoiding a full row fetch.
func (e *Engine) GetCompositeHash(ctx context.Context, contextID string, fileKey coretypes.FileKey) (string, bool, error) {
	var hash string
	row := e.db.QueryRowContext(ctx,
		"SELECT composite_hash FROM tracked_files WHERE context_id = ? AND file_key = ?", contextID, string(fileKey))
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, cxxerrors.NewStorageError("get_composite_hash", 0, err)
	}
	return hash, true, nil
}

// DeleteTrackedFile removes one file's freshness row and its recall
// index entry (used for explicit invalidation, not wholesale expiry).
func (e *Engine) DeleteTrackedFile(ctx context.Context, contextID string, fileKey coretypes.FileKey) error {
	if _, err := e.db.ExecContext(ctx, "DELETE FROM tracked_files WHERE context_id = ? AND file_key = ?", contextID, string(fileKey)); err != nil {
		return cxxerrors.NewStorageError("delete_tracked_file", 0, err)
	}
	if _, err := e.db.ExecContext(ctx, "DELETE FROM recall_fts WHERE context_id = ? AND file_key = ?", contextID, string(fileKey)); err != nil {
		return cxxerrors.NewStorageError("delete_tracked_file_recall", 0, err)
	}
	return nil
}

// CountTrackedFiles reports how many files are tracked, scoped to
// contextID when non-empty.
func (e *Engine) CountTrackedFiles(ctx context.Context, contextID string) (int, error) {
	var n int
	var row *sql.Row
	if contextID != "" {
		row = e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_files WHERE context_id = ?", contextID)
	} else {
		row = e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_files")
	}
	if err := row.Scan(&n); err != nil {
		return 0, cxxerrors.NewStorageError("count_tracked_files", 0, err)
	}
	return n, nil
}

// CountSymbols reports total symbol rows, scoped to contextID when
// non-empty.
func (e *Engine) CountSymbols(ctx context.Context, contextID string) (int, error) {
	var n int
	var row *sql.Row
	if contextID != "" {
		row = e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symbols WHERE context_id = ?", contextID)
	} else {
		row = e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symbols")
	}
	if err := row.Scan(&n); err != nil {
		return 0, cxxerrors.NewStorageError("count_symbols", 0, err)
	}
	return n, nil
}

// ClearContext wipes every tracked file and recall entry for one
// context (used by the orchestrator's InvalidateCache), returning how
// many files were cleared.
func (e *Engine) ClearContext(ctx context.Context, contextID string) (int, error) {
	n, err := e.CountTrackedFiles(ctx, contextID)
	if err != nil {
		return 0, err
	}
	if _, err := e.db.ExecContext(ctx, "DELETE FROM tracked_files WHERE context_id = ?", contextID); err != nil {
		return 0, cxxerrors.NewStorageError("clear_context_tracked_files", 0, err)
	}
	if _, err := e.db.ExecContext(ctx, "DELETE FROM recall_fts WHERE context_id = ?", contextID); err != nil {
		return 0, cxxerrors.NewStorageError("clear_context_recall", 0, err)
	}
	return n, nil
}

// InsertParseRun opens one audit row for a parse attempt, returning its
// autoincrement ID for a matching FinishParseRun call.
func (e *Engine) InsertParseRun(ctx context.Context, contextID string, fileKey coretypes.FileKey, absPath string) (int64, error) {
	res, err := e.db.ExecContext(ctx,
		"INSERT INTO parse_runs (context_id, file_key, abs_path, started_at) VALUES (?, ?, ?, ?)",
		contextID, string(fileKey), absPath, utcNow())
	if err != nil {
		return 0, cxxerrors.NewStorageError("insert_parse_run", 0, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, cxxerrors.NewStorageError("insert_parse_run_id", 0, err)
	}
	return id, nil
}

// FinishParseRun closes out one audit row with its outcome.
func (e *Engine) FinishParseRun(ctx context.Context, runID int64, success bool, errMsg string) error {
	successInt := 0
	if success {
		successInt = 1
	}
	_, err := e.db.ExecContext(ctx,
		"UPDATE parse_runs SET finished_at = ?, success = ?, error_msg = ? WHERE id = ?",
		utcNow(), successInt, errMsg, runID)
	if err != nil {
		return cxxerrors.NewStorageError("finish_parse_run", 0, err)
	}
	return nil
}

// GetParseRuns returns one file's parse-attempt history, most recent
// first, for operator debugging; no query path reads it.
func (e *Engine) GetParseRuns(ctx context.Context, contextID string, fileKey coretypes.FileKey) ([]coretypes.ParseRun, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT context_id, file_key, abs_path, started_at, finished_at, success, error_msg
		FROM parse_runs WHERE context_id = ? AND file_key = ? ORDER BY id DESC
	`, contextID, string(fileKey))
	if err != nil {
		return nil, cxxerrors.NewStorageError("get_parse_runs", 0, err)
	}
	defer rows.Close()

	var out []coretypes.ParseRun
	for rows.Next() {
		var pr coretypes.ParseRun
		var ctxID, fk, startedAt, finishedAt string
		var success int
		if err := rows.Scan(&ctxID, &fk, &pr.AbsPath, &startedAt, &finishedAt, &success, &pr.ErrorMsg); err != nil {
			return nil, cxxerrors.NewStorageError("get_parse_runs_scan", 0, err)
		}
		pr.ContextID = ctxID
		pr.FileKey = coretypes.FileKey(fk)
		pr.StartedAt = parseTime(startedAt)
		pr.FinishedAt = parseTime(finishedAt)
		pr.Success = success != 0
		out = append(out, pr)
	}
	return out, rows.Err()
}
