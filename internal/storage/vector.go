package storage

import (
	"context"
	"database/sql"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// UpsertCommitDiffSummary stores (or replaces) one commit's diff
// summary, keyed by (workspace, repo, commit sha). Callers supply s.ID
// for new rows; the conflict target is the natural key, not the id.
func (e *Engine) UpsertCommitDiffSummary(ctx context.Context, s coretypes.CommitDiffSummary) error {
	now := utcNow()
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO commit_diff_summaries (
			id, workspace_id, repo_id, commit_sha, branch, summary_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, repo_id, commit_sha) DO UPDATE SET
			branch = excluded.branch,
			summary_text = excluded.summary_text,
			updated_at = excluded.updated_at
	`, s.ID, s.WorkspaceID, s.RepoID, s.CommitSHA, s.Branch, s.SummaryText, now, now)
	if err != nil {
		return cxxerrors.NewStorageError("upsert_commit_diff_summary", 0, err)
	}
	return nil
}

// GetCommitDiffSummary fetches one workspace/repo/commit's stored
// summary, if any has been recorded.
func (e *Engine) GetCommitDiffSummary(ctx context.Context, workspaceID, repoID, commitSHA string) (coretypes.CommitDiffSummary, bool, error) {
	row := e.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, repo_id, commit_sha, branch, summary_text
		FROM commit_diff_summaries
		WHERE workspace_id = ? AND repo_id = ? AND commit_sha = ?
	`, workspaceID, repoID, commitSHA)

	var s coretypes.CommitDiffSummary
	if err := row.Scan(&s.ID, &s.WorkspaceID, &s.RepoID, &s.CommitSHA, &s.Branch, &s.SummaryText); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.CommitDiffSummary{}, false, nil
		}
		return coretypes.CommitDiffSummary{}, false, cxxerrors.NewStorageError("get_commit_diff_summary", 0, err)
	}
	return s, true, nil
}
