package storage

import (
	"context"
	"strings"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// SymbolHit is one symbol match enriched with the file location and the
// context it was found in, so the Query Reader can tell an overlay hit
// from a baseline fallthrough.
type SymbolHit struct {
	coretypes.Symbol
	ContextID string
	AbsPath   string
	RepoID    string
	RelPath   string
}

// ReferenceHit mirrors SymbolHit for reference rows.
type ReferenceHit struct {
	coretypes.Reference
	ContextID string
	AbsPath   string
	RepoID    string
	RelPath   string
}

// CallEdgeHit mirrors SymbolHit for call-edge rows.
type CallEdgeHit struct {
	coretypes.CallEdge
	ContextID string
	AbsPath   string
	RepoID    string
	RelPath   string
}

// SearchRecallCandidates runs an FTS5 MATCH query scoped to one context
// and, optionally, a repo-id allowlist, returning the distinct file keys
// that matched. A malformed query (FTS5 syntax error) degrades to an
// empty result rather than failing the caller, matching the original's
// broad except-and-log-empty behavior — lexical recall is one signal
// among several, not a hard dependency.
func (e *Engine) SearchRecallCandidates(ctx context.Context, contextID, query string, repoIDs []string, maxFiles int) ([]coretypes.FileKey, error) {
	sb := strings.Builder{}
	sb.WriteString("SELECT DISTINCT file_key FROM recall_fts WHERE context_id = ? AND recall_fts MATCH ?")
	args := []any{contextID, query}
	if len(repoIDs) > 0 {
		placeholders := make([]string, len(repoIDs))
		for i, id := range repoIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		sb.WriteString(" AND repo_id IN (" + strings.Join(placeholders, ",") + ")")
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, maxFiles)

	rows, err := e.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		// FTS5 surfaces malformed MATCH expressions as a query error;
		// treat it as "no matches" rather than aborting the candidate
		// pipeline.
		return nil, nil
	}
	defer rows.Close()

	var out []coretypes.FileKey
	for rows.Next() {
		var fk string
		if err := rows.Scan(&fk); err != nil {
			return nil, cxxerrors.NewStorageError("search_recall_candidates_scan", 0, err)
		}
		out = append(out, coretypes.FileKey(fk))
	}
	return out, rows.Err()
}

// SearchSymbolsByName walks contextChain in order (overlay before
// baseline), collecting LIKE matches on name or qualified_name and
// deduplicating by (fileKey, qualifiedName, line, col) in memory so an
// overlay's copy of a symbol always wins over the baseline's. This
// mirrors repository_core.py's search_symbols_by_name, which dedupes in
// Python rather than via SQL UNION so each context can apply its own
// candidateFileKeys filter independently.
func (e *Engine) SearchSymbolsByName(ctx context.Context, name string, contextChain []string, candidateFileKeys, excludedFileKeys map[coretypes.FileKey]bool) ([]SymbolHit, error) {
	pattern := "%" + name + "%"
	seen := make(map[string]bool)
	var merged []SymbolHit

	for _, contextID := range contextChain {
		sb := strings.Builder{}
		sb.WriteString(`
			SELECT s.file_key, s.name, s.qualified_name, s.kind, s.line, s.col, s.extent_end_line,
				t.abs_path, t.repo_id, t.rel_path
			FROM symbols s JOIN tracked_files t
				ON s.context_id = t.context_id AND s.file_key = t.file_key
			WHERE s.context_id = ? AND (s.qualified_name LIKE ? OR s.name LIKE ?)
		`)
		args := []any{contextID, pattern, pattern}
		appendFileKeyFilter(&sb, &args, "s.file_key", candidateFileKeys)

		rows, err := e.db.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, cxxerrors.NewStorageError("search_symbols_by_name", 0, err)
		}
		for rows.Next() {
			var h SymbolHit
			var fileKey string
			if err := rows.Scan(&fileKey, &h.Name, &h.QualifiedName, &h.Kind, &h.Line, &h.Col, &h.ExtentEndLine,
				&h.AbsPath, &h.RepoID, &h.RelPath); err != nil {
				rows.Close()
				return nil, cxxerrors.NewStorageError("search_symbols_by_name_scan", 0, err)
			}
			h.FileKey = coretypes.FileKey(fileKey)
			if excludedFileKeys[h.FileKey] {
				continue
			}
			key := h.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			h.ContextID = contextID
			merged = append(merged, h)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, cxxerrors.NewStorageError("search_symbols_by_name_rows", 0, err)
		}
		rows.Close()
	}
	return merged, nil
}

// SearchReferencesBySymbol is SearchSymbolsByName's counterpart for
// reference rows.
func (e *Engine) SearchReferencesBySymbol(ctx context.Context, symbolPattern string, contextChain []string, candidateFileKeys, excludedFileKeys map[coretypes.FileKey]bool) ([]ReferenceHit, error) {
	pattern := "%" + symbolPattern + "%"
	seen := make(map[string]bool)
	var merged []ReferenceHit

	for _, contextID := range contextChain {
		sb := strings.Builder{}
		sb.WriteString(`
			SELECT r.file_key, r.symbol_qualified_name, r.line, r.col, r.ref_kind,
				t.abs_path, t.repo_id, t.rel_path
			FROM references_ r JOIN tracked_files t
				ON r.context_id = t.context_id AND r.file_key = t.file_key
			WHERE r.context_id = ? AND r.symbol_qualified_name LIKE ?
		`)
		args := []any{contextID, pattern}
		appendFileKeyFilter(&sb, &args, "r.file_key", candidateFileKeys)

		rows, err := e.db.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, cxxerrors.NewStorageError("search_references_by_symbol", 0, err)
		}
		for rows.Next() {
			var h ReferenceHit
			var fileKey, refKind string
			if err := rows.Scan(&fileKey, &h.Symbol, &h.Line, &h.Col, &refKind, &h.AbsPath, &h.RepoID, &h.RelPath); err != nil {
				rows.Close()
				return nil, cxxerrors.NewStorageError("search_references_by_symbol_scan", 0, err)
			}
			h.FileKey = coretypes.FileKey(fileKey)
			h.Kind = coretypes.RefKind(refKind)
			if excludedFileKeys[h.FileKey] {
				continue
			}
			key := h.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			h.ContextID = contextID
			merged = append(merged, h)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, cxxerrors.NewStorageError("search_references_by_symbol_rows", 0, err)
		}
		rows.Close()
	}
	return merged, nil
}

func (e *Engine) callEdges(ctx context.Context, contextChain []string, caller, callee string, candidateFileKeys, excludedFileKeys map[coretypes.FileKey]bool) ([]CallEdgeHit, error) {
	seen := make(map[string]bool)
	var merged []CallEdgeHit

	for _, contextID := range contextChain {
		sb := strings.Builder{}
		sb.WriteString(`
			SELECT c.file_key, c.caller_qualified_name, c.callee_qualified_name, c.line,
				t.abs_path, t.repo_id, t.rel_path
			FROM call_edges c JOIN tracked_files t
				ON c.context_id = t.context_id AND c.file_key = t.file_key
			WHERE c.context_id = ?
		`)
		args := []any{contextID}
		if caller != "" {
			sb.WriteString(" AND c.caller_qualified_name = ?")
			args = append(args, caller)
		}
		if callee != "" {
			sb.WriteString(" AND c.callee_qualified_name = ?")
			args = append(args, callee)
		}
		appendFileKeyFilter(&sb, &args, "c.file_key", candidateFileKeys)

		rows, err := e.db.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, cxxerrors.NewStorageError("call_edges", 0, err)
		}
		for rows.Next() {
			var h CallEdgeHit
			var fileKey string
			if err := rows.Scan(&fileKey, &h.Caller, &h.Callee, &h.Line, &h.AbsPath, &h.RepoID, &h.RelPath); err != nil {
				rows.Close()
				return nil, cxxerrors.NewStorageError("call_edges_scan", 0, err)
			}
			h.FileKey = coretypes.FileKey(fileKey)
			if excludedFileKeys[h.FileKey] {
				continue
			}
			key := h.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			h.ContextID = contextID
			merged = append(merged, h)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, cxxerrors.NewStorageError("call_edges_rows", 0, err)
		}
		rows.Close()
	}
	return merged, nil
}

// GetCallEdgesForCaller returns every call edge whose caller matches
// callerQualifiedName, walking contextChain with overlay-first dedup.
func (e *Engine) GetCallEdgesForCaller(ctx context.Context, callerQualifiedName string, contextChain []string, candidateFileKeys, excludedFileKeys map[coretypes.FileKey]bool) ([]CallEdgeHit, error) {
	return e.callEdges(ctx, contextChain, callerQualifiedName, "", candidateFileKeys, excludedFileKeys)
}

// GetCallEdgesForCallee returns every call edge whose callee matches
// calleeQualifiedName, walking contextChain with overlay-first dedup.
func (e *Engine) GetCallEdgesForCallee(ctx context.Context, calleeQualifiedName string, contextChain []string, candidateFileKeys, excludedFileKeys map[coretypes.FileKey]bool) ([]CallEdgeHit, error) {
	return e.callEdges(ctx, contextChain, "", calleeQualifiedName, candidateFileKeys, excludedFileKeys)
}

// GetSymbolsByFile returns every symbol recorded for one file key,
// walking contextChain with overlay-first dedup on
// (qualifiedName, line, col, kind).
func (e *Engine) GetSymbolsByFile(ctx context.Context, fileKey coretypes.FileKey, contextChain []string) ([]SymbolHit, error) {
	seen := make(map[string]bool)
	var merged []SymbolHit

	for _, contextID := range contextChain {
		rows, err := e.db.QueryContext(ctx, `
			SELECT s.name, s.qualified_name, s.kind, s.line, s.col, s.extent_end_line,
				t.abs_path, t.repo_id, t.rel_path
			FROM symbols s JOIN tracked_files t
				ON s.context_id = t.context_id AND s.file_key = t.file_key
			WHERE s.context_id = ? AND s.file_key = ?
		`, contextID, string(fileKey))
		if err != nil {
			return nil, cxxerrors.NewStorageError("get_symbols_by_file", 0, err)
		}
		for rows.Next() {
			var h SymbolHit
			if err := rows.Scan(&h.Name, &h.QualifiedName, &h.Kind, &h.Line, &h.Col, &h.ExtentEndLine,
				&h.AbsPath, &h.RepoID, &h.RelPath); err != nil {
				rows.Close()
				return nil, cxxerrors.NewStorageError("get_symbols_by_file_scan", 0, err)
			}
			h.FileKey = fileKey
			key := h.QualifiedName + "\x1f" + itoaLocal(h.Line) + "\x1f" + itoaLocal(h.Col) + "\x1f" + h.Kind
			if seen[key] {
				continue
			}
			seen[key] = true
			h.ContextID = contextID
			merged = append(merged, h)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, cxxerrors.NewStorageError("get_symbols_by_file_rows", 0, err)
		}
		rows.Close()
	}
	return merged, nil
}

func appendFileKeyFilter(sb *strings.Builder, args *[]any, column string, candidateFileKeys map[coretypes.FileKey]bool) {
	if len(candidateFileKeys) == 0 {
		return
	}
	placeholders := make([]string, 0, len(candidateFileKeys))
	for fk := range candidateFileKeys {
		placeholders = append(placeholders, "?")
		*args = append(*args, string(fk))
	}
	sb.WriteString(" AND " + column + " IN (" + strings.Join(placeholders, ",") + ")")
}

func itoaLocal(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
