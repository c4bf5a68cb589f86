package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// UpsertWorkspace records (or refreshes) one workspace's root and
// manifest path. Grounded on repository_core.py's upsert_workspace.
func (e *Engine) UpsertWorkspace(ctx context.Context, workspaceID, rootPath, manifestPath string) error {
	now := utcNow()
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO workspaces (workspace_id, root_path, manifest_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			root_path = excluded.root_path,
			manifest_path = excluded.manifest_path,
			updated_at = excluded.updated_at
	`, workspaceID, rootPath, manifestPath, now, now)
	if err != nil {
		return cxxerrors.NewStorageError("upsert_workspace", 0, err)
	}
	return nil
}

// GetWorkspace returns the workspace row, or (Workspace{}, false) if
// absent.
func (e *Engine) GetWorkspace(ctx context.Context, workspaceID string) (coretypes.Workspace, bool, error) {
	var w coretypes.Workspace
	row := e.db.QueryRowContext(ctx,
		"SELECT workspace_id, root_path, manifest_path FROM workspaces WHERE workspace_id = ?", workspaceID)
	if err := row.Scan(&w.WorkspaceID, &w.RootPath, &w.ManifestPath); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.Workspace{}, false, nil
		}
		return coretypes.Workspace{}, false, cxxerrors.NewStorageError("get_workspace", 0, err)
	}
	return w, true, nil
}

// ReplaceWorkspaceRepos atomically replaces the repo catalog for one
// workspace, used on every manifest refresh. Grounded on
// replace_workspace_repos's delete-then-insert pattern.
func (e *Engine) ReplaceWorkspaceRepos(ctx context.Context, workspaceID string, repos []coretypes.Repo) (int, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, cxxerrors.NewStorageError("replace_repos_begin", 0, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM repos WHERE workspace_id = ?", workspaceID); err != nil {
		return 0, cxxerrors.NewStorageError("replace_repos_delete", 0, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repos (
			workspace_id, repo_id, root, compile_commands, default_branch, depends_on_json,
			remote_url, token_env_var, project_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, cxxerrors.NewStorageError("replace_repos_prepare", 0, err)
	}
	defer stmt.Close()

	for _, r := range repos {
		dependsOn, err := json.Marshal(r.DependsOn)
		if err != nil {
			return 0, cxxerrors.NewValidationError("depends_on", r.RepoID, err)
		}
		var remoteURL, tokenEnvVar, projectPath string
		if r.Sync != nil {
			remoteURL = r.Sync.RemoteURL
			tokenEnvVar = r.Sync.TokenEnvVar
			projectPath = r.Sync.ProjectPath
		}
		if _, err := stmt.ExecContext(ctx, workspaceID, r.RepoID, r.Root, r.CompileCommands,
			r.DefaultBranch, string(dependsOn), remoteURL, tokenEnvVar, projectPath); err != nil {
			return 0, cxxerrors.NewStorageError("replace_repos_insert", 0, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, cxxerrors.NewStorageError("replace_repos_commit", 0, err)
	}
	return len(repos), nil
}

// ListRepos returns every repo registered for workspaceID, ordered by
// repo_id for deterministic iteration (e.g. candidateRepos BFS).
func (e *Engine) ListRepos(ctx context.Context, workspaceID string) ([]coretypes.Repo, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT repo_id, root, compile_commands, default_branch, depends_on_json,
			remote_url, token_env_var, project_path
		FROM repos WHERE workspace_id = ? ORDER BY repo_id
	`, workspaceID)
	if err != nil {
		return nil, cxxerrors.NewStorageError("list_repos", 0, err)
	}
	defer rows.Close()

	var out []coretypes.Repo
	for rows.Next() {
		var r coretypes.Repo
		var dependsOnJSON, remoteURL, tokenEnvVar, projectPath string
		if err := rows.Scan(&r.RepoID, &r.Root, &r.CompileCommands, &r.DefaultBranch, &dependsOnJSON,
			&remoteURL, &tokenEnvVar, &projectPath); err != nil {
			return nil, cxxerrors.NewStorageError("list_repos_scan", 0, err)
		}
		_ = json.Unmarshal([]byte(dependsOnJSON), &r.DependsOn)
		if remoteURL != "" {
			r.Sync = &coretypes.RepoSyncMeta{RemoteURL: remoteURL, TokenEnvVar: tokenEnvVar, ProjectPath: projectPath}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertAnalysisContext inserts or refreshes one context row.
func (e *Engine) UpsertAnalysisContext(ctx context.Context, ac coretypes.AnalysisContext) error {
	now := utcNow()
	expiresAt := ""
	if !ac.ExpiresAt.IsZero() {
		expiresAt = ac.ExpiresAt.UTC().Format(timeFormat)
	}
	status := ac.Status
	if status == "" {
		status = coretypes.ContextStatusActive
	}
	overlayMode := ac.OverlayMode
	if overlayMode == "" {
		overlayMode = coretypes.OverlayModeSparse
	}
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO analysis_contexts (
			context_id, workspace_id, mode, base_context_id, overlay_mode, status,
			created_at, last_accessed_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			mode = excluded.mode,
			base_context_id = excluded.base_context_id,
			overlay_mode = excluded.overlay_mode,
			status = excluded.status,
			last_accessed_at = excluded.last_accessed_at,
			expires_at = excluded.expires_at
	`, ac.ContextID, ac.WorkspaceID, string(ac.Mode), ac.BaseContextID, string(overlayMode), string(status),
		now, now, expiresAt)
	if err != nil {
		return cxxerrors.NewStorageError("upsert_context", 0, err)
	}
	return nil
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// EnsureBaselineContext creates the workspace row (if absent) and its
// "{workspaceId}:baseline" context, returning the context ID.
func (e *Engine) EnsureBaselineContext(ctx context.Context, workspaceID string) (string, error) {
	now := utcNow()
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO workspaces (workspace_id, root_path, manifest_path, created_at, updated_at)
		VALUES (?, '', '', ?, ?)
		ON CONFLICT(workspace_id) DO NOTHING
	`, workspaceID, now, now)
	if err != nil {
		return "", cxxerrors.NewStorageError("ensure_baseline_workspace", 0, err)
	}

	contextID := workspaceID + ":baseline"
	err = e.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
		ContextID:   contextID,
		WorkspaceID: workspaceID,
		Mode:        coretypes.ContextModeBaseline,
		OverlayMode: coretypes.OverlayModeSparse,
		Status:      coretypes.ContextStatusActive,
	})
	if err != nil {
		return "", err
	}
	return contextID, nil
}

// GetAnalysisContext returns the context row, or (_, false) if absent.
func (e *Engine) GetAnalysisContext(ctx context.Context, contextID string) (coretypes.AnalysisContext, bool, error) {
	var ac coretypes.AnalysisContext
	var mode, overlayMode, status, lastAccessedAt, expiresAt string
	row := e.db.QueryRowContext(ctx, `
		SELECT context_id, workspace_id, mode, base_context_id, overlay_mode,
			overlay_file_count, overlay_row_count, status, last_accessed_at, expires_at
		FROM analysis_contexts WHERE context_id = ?
	`, contextID)
	if err := row.Scan(&ac.ContextID, &ac.WorkspaceID, &mode, &ac.BaseContextID, &overlayMode,
		&ac.OverlayFiles, &ac.OverlayRows, &status, &lastAccessedAt, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.AnalysisContext{}, false, nil
		}
		return coretypes.AnalysisContext{}, false, cxxerrors.NewStorageError("get_context", 0, err)
	}
	ac.Mode = coretypes.ContextMode(mode)
	ac.OverlayMode = coretypes.OverlayMode(overlayMode)
	ac.Status = coretypes.ContextStatus(status)
	ac.LastAccessedAt = parseTime(lastAccessedAt)
	ac.ExpiresAt = parseTime(expiresAt)
	return ac, true, nil
}

// TouchContext bumps last_accessed_at, used on every read through a
// context so idle-expiry sweeps can find stale overlays.
func (e *Engine) TouchContext(ctx context.Context, contextID string) error {
	_, err := e.db.ExecContext(ctx,
		"UPDATE analysis_contexts SET last_accessed_at = ? WHERE context_id = ?", utcNow(), contextID)
	if err != nil {
		return cxxerrors.NewStorageError("touch_context", 0, err)
	}
	return nil
}

// ExpireContext marks a context expired, returning whether a row was
// actually changed.
func (e *Engine) ExpireContext(ctx context.Context, contextID string) (bool, error) {
	res, err := e.db.ExecContext(ctx,
		"UPDATE analysis_contexts SET status = 'expired', last_accessed_at = ? WHERE context_id = ?",
		utcNow(), contextID)
	if err != nil {
		return false, cxxerrors.NewStorageError("expire_context", 0, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cxxerrors.NewStorageError("expire_context_rows", 0, err)
	}
	return n > 0, nil
}

// ListActiveContexts returns active contexts, optionally scoped to one
// workspace (empty string means all workspaces).
func (e *Engine) ListActiveContexts(ctx context.Context, workspaceID string) ([]coretypes.AnalysisContext, error) {
	var rows *sql.Rows
	var err error
	if workspaceID != "" {
		rows, err = e.db.QueryContext(ctx, `
			SELECT context_id, workspace_id, mode, base_context_id, overlay_mode,
				overlay_file_count, overlay_row_count, status, last_accessed_at, expires_at
			FROM analysis_contexts WHERE workspace_id = ? AND status = 'active'
		`, workspaceID)
	} else {
		rows, err = e.db.QueryContext(ctx, `
			SELECT context_id, workspace_id, mode, base_context_id, overlay_mode,
				overlay_file_count, overlay_row_count, status, last_accessed_at, expires_at
			FROM analysis_contexts WHERE status = 'active'
		`)
	}
	if err != nil {
		return nil, cxxerrors.NewStorageError("list_active_contexts", 0, err)
	}
	defer rows.Close()

	var out []coretypes.AnalysisContext
	for rows.Next() {
		var ac coretypes.AnalysisContext
		var mode, overlayMode, status, lastAccessedAt, expiresAt string
		if err := rows.Scan(&ac.ContextID, &ac.WorkspaceID, &mode, &ac.BaseContextID, &overlayMode,
			&ac.OverlayFiles, &ac.OverlayRows, &status, &lastAccessedAt, &expiresAt); err != nil {
			return nil, cxxerrors.NewStorageError("list_active_contexts_scan", 0, err)
		}
		ac.Mode = coretypes.ContextMode(mode)
		ac.OverlayMode = coretypes.OverlayMode(overlayMode)
		ac.Status = coretypes.ContextStatus(status)
		ac.LastAccessedAt = parseTime(lastAccessedAt)
		ac.ExpiresAt = parseTime(expiresAt)
		out = append(out, ac)
	}
	return out, rows.Err()
}

// OverlayLimits bounds the escalation from sparse to partial-overlay.
type OverlayLimits struct {
	MaxFiles int
	MaxRows  int
}

// DefaultOverlayLimits matches the original's hardcoded ceilings.
func DefaultOverlayLimits() OverlayLimits {
	return OverlayLimits{MaxFiles: 5000, MaxRows: 2_000_000}
}

// UpdateContextOverlayStats adjusts an overlay's file/row counters and
// escalates its mode irreversibly to partialOverlay once either ceiling
// is crossed, returning the resulting mode.
func (e *Engine) UpdateContextOverlayStats(ctx context.Context, contextID string, fileDelta, rowDelta int, limits OverlayLimits, forcePartialOverlay bool) (coretypes.OverlayMode, error) {
	ac, ok, err := e.GetAnalysisContext(ctx, contextID)
	if err != nil {
		return "", err
	}
	if !ok {
		return coretypes.OverlayModeSparse, nil
	}

	newFiles := ac.OverlayFiles + fileDelta
	if newFiles < 0 {
		newFiles = 0
	}
	newRows := ac.OverlayRows + rowDelta
	if newRows < 0 {
		newRows = 0
	}
	mode := ac.OverlayMode
	if forcePartialOverlay || newFiles > limits.MaxFiles || newRows > limits.MaxRows {
		mode = coretypes.OverlayModePartialOverlay
	}

	_, err = e.db.ExecContext(ctx, `
		UPDATE analysis_contexts
		SET overlay_file_count = ?, overlay_row_count = ?, overlay_mode = ?, last_accessed_at = ?
		WHERE context_id = ?
	`, newFiles, newRows, string(mode), utcNow(), contextID)
	if err != nil {
		return "", cxxerrors.NewStorageError("update_overlay_stats", 0, err)
	}
	return mode, nil
}

// UpsertContextFileState records an overlay's claim about one file key
// (added/modified/renamed/deleted against its baseline).
func (e *Engine) UpsertContextFileState(ctx context.Context, s coretypes.ContextFileState) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO context_file_states (context_id, file_key, state, replaced_from_file_key, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(context_id, file_key) DO UPDATE SET
			state = excluded.state,
			replaced_from_file_key = excluded.replaced_from_file_key,
			updated_at = excluded.updated_at
	`, s.ContextID, string(s.FileKey), string(s.State), string(s.ReplacedFromFileKey), utcNow())
	if err != nil {
		return cxxerrors.NewStorageError("upsert_context_file_state", 0, err)
	}
	return nil
}

// GetContextFileStates returns every file-state claim recorded for one
// context, used by the Candidate Service to drop or replace candidates
// an overlay has deleted, renamed, added or modified.
func (e *Engine) GetContextFileStates(ctx context.Context, contextID string) ([]coretypes.ContextFileState, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT context_id, file_key, state, replaced_from_file_key FROM context_file_states WHERE context_id = ?",
		contextID)
	if err != nil {
		return nil, cxxerrors.NewStorageError("get_context_file_states", 0, err)
	}
	defer rows.Close()

	var out []coretypes.ContextFileState
	for rows.Next() {
		var s coretypes.ContextFileState
		var fileKey, state, replacedFrom string
		if err := rows.Scan(&s.ContextID, &fileKey, &state, &replacedFrom); err != nil {
			return nil, cxxerrors.NewStorageError("get_context_file_states_scan", 0, err)
		}
		s.FileKey = coretypes.FileKey(fileKey)
		s.State = coretypes.FileState(state)
		s.ReplacedFromFileKey = coretypes.FileKey(replacedFrom)
		out = append(out, s)
	}
	return out, rows.Err()
}
