package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// InsertIndexJob enqueues one webhook-triggered coarse re-index job.
func (e *Engine) InsertIndexJob(ctx context.Context, job coretypes.IndexJob) error {
	now := utcNow()
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO index_jobs (
			id, workspace_id, repo_id, context_id, event_type, event_sha,
			status, attempts, max_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, 5, ?, ?)
	`, job.ID, job.WorkspaceID, "", "", "", "", now, now)
	if err != nil {
		return cxxerrors.NewStorageError("insert_index_job", 0, err)
	}
	return nil
}

// IndexQueueDepth counts pending-or-running index jobs; no other
// package calls it.
func (e *Engine) IndexQueueDepth(ctx context.Context) (int, error) {
	var n int
	row := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_jobs WHERE status IN ('pending', 'running')")
	if err := row.Scan(&n); err != nil {
		return 0, cxxerrors.NewStorageError("index_queue_depth", 0, err)
	}
	return n, nil
}

// OldestPendingJobAge reports how long the oldest pending-or-running
// index job has been waiting, zero if the queue is empty.
func (e *Engine) OldestPendingJobAge(ctx context.Context) (time.Duration, error) {
	var createdAt string
	row := e.db.QueryRowContext(ctx, `
		SELECT created_at FROM index_jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC LIMIT 1
	`)
	if err := row.Scan(&createdAt); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, cxxerrors.NewStorageError("oldest_pending_job_age", 0, err)
	}
	t := parseTime(createdAt)
	if t.IsZero() {
		return 0, nil
	}
	return time.Since(t), nil
}

// InsertRepoSyncJob enqueues one repo clone/fetch/checkout request.
func (e *Engine) InsertRepoSyncJob(ctx context.Context, job coretypes.RepoSyncJob) error {
	now := utcNow()
	forceClean := 0
	if job.RequestedForceClean {
		forceClean = 1
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO repo_sync_jobs (
			id, workspace_id, repo_id, requested_branch, requested_commit_sha,
			requested_force_clean, status, attempts, max_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?, ?)
	`, job.ID, job.WorkspaceID, job.RepoID, job.RequestedBranch, job.RequestedCommitSHA,
		forceClean, maxAttempts, now, now)
	if err != nil {
		return cxxerrors.NewStorageError("insert_repo_sync_job", 0, err)
	}
	return nil
}

// LeaseNextRepoSyncJob atomically claims the oldest pending repo-sync
// job, bumping its attempt counter and moving it to running, so
// multiple sync workers never race on the same job. Returns (_, false)
// when the queue is empty.
func (e *Engine) LeaseNextRepoSyncJob(ctx context.Context) (coretypes.RepoSyncJob, bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return coretypes.RepoSyncJob{}, false, cxxerrors.NewStorageError("lease_job_begin", 0, err)
	}
	defer tx.Rollback()

	var job coretypes.RepoSyncJob
	var forceClean int
	var requestedBranch, status, errorCode, errorMessage, startedAt, finishedAt, createdAt, updatedAt string
	row := tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, repo_id, requested_branch, requested_commit_sha, requested_force_clean,
			status, attempts, max_attempts, error_code, error_message, started_at, finished_at, created_at, updated_at
		FROM repo_sync_jobs WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1
	`)
	if err := row.Scan(&job.ID, &job.WorkspaceID, &job.RepoID, &requestedBranch, &job.RequestedCommitSHA, &forceClean,
		&status, &job.Attempts, &job.MaxAttempts, &errorCode, &errorMessage, &startedAt, &finishedAt, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.RepoSyncJob{}, false, nil
		}
		return coretypes.RepoSyncJob{}, false, cxxerrors.NewStorageError("lease_job_select", 0, err)
	}

	job.RequestedBranch = requestedBranch
	job.RequestedForceClean = forceClean != 0
	job.Status = coretypes.JobStatusRunning
	job.Attempts++
	job.ErrorCode = errorCode
	job.ErrorMessage = errorMessage
	now := utcNow()

	if _, err := tx.ExecContext(ctx, `
		UPDATE repo_sync_jobs SET status = 'running', attempts = ?, started_at = ?, updated_at = ?
		WHERE id = ?
	`, job.Attempts, now, now, job.ID); err != nil {
		return coretypes.RepoSyncJob{}, false, cxxerrors.NewStorageError("lease_job_update", 0, err)
	}

	if err := tx.Commit(); err != nil {
		return coretypes.RepoSyncJob{}, false, cxxerrors.NewStorageError("lease_job_commit", 0, err)
	}
	return job, true, nil
}

// MarkRepoSyncJobDone records a successful sync and the resolved commit
// SHA the pinned ref dereferenced to.
func (e *Engine) MarkRepoSyncJobDone(ctx context.Context, jobID, resolvedCommitSHA string) error {
	now := utcNow()
	_, err := e.db.ExecContext(ctx, `
		UPDATE repo_sync_jobs
		SET status = 'done', resolved_commit_sha = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`, resolvedCommitSHA, now, now, jobID)
	if err != nil {
		return cxxerrors.NewStorageError("mark_repo_sync_job_done", 0, err)
	}
	return nil
}

// MarkRepoSyncJobFailed records a failed sync attempt. When deadLetter
// is set (attempts have exhausted max_attempts) the job moves to
// deadLetter instead of back to pending, matching the spec's Storage
// error-kind retry policy.
func (e *Engine) MarkRepoSyncJobFailed(ctx context.Context, jobID, errorCode, errorMessage string, deadLetter bool) error {
	now := utcNow()
	status := "pending"
	if deadLetter {
		status = "deadLetter"
	}
	_, err := e.db.ExecContext(ctx, `
		UPDATE repo_sync_jobs
		SET status = ?, error_code = ?, error_message = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`, status, errorCode, errorMessage, now, now, jobID)
	if err != nil {
		return cxxerrors.NewStorageError("mark_repo_sync_job_failed", 0, err)
	}
	return nil
}

// UpsertRepoSyncState records the last-known-good (or last-failed) sync
// outcome per repo, independent of the job history, so freshness checks
// can answer "what commit is this repo at" without scanning the queue.
func (e *Engine) UpsertRepoSyncState(ctx context.Context, workspaceID, repoID string, success bool, resolvedCommitSHA, branch, errorCode, errorMessage string) error {
	now := utcNow()
	if success {
		_, err := e.db.ExecContext(ctx, `
			INSERT INTO repo_sync_state (
				workspace_id, repo_id, last_synced_commit_sha, last_synced_branch,
				last_success_at, last_error_code, last_error_message, updated_at
			) VALUES (?, ?, ?, ?, ?, '', '', ?)
			ON CONFLICT(workspace_id, repo_id) DO UPDATE SET
				last_synced_commit_sha = excluded.last_synced_commit_sha,
				last_synced_branch = excluded.last_synced_branch,
				last_success_at = excluded.last_success_at,
				last_error_code = '',
				last_error_message = '',
				updated_at = excluded.updated_at
		`, workspaceID, repoID, resolvedCommitSHA, branch, now, now)
		if err != nil {
			return cxxerrors.NewStorageError("upsert_repo_sync_state_success", 0, err)
		}
		return nil
	}

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO repo_sync_state (
			workspace_id, repo_id, last_failure_at, last_error_code, last_error_message, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, repo_id) DO UPDATE SET
			last_failure_at = excluded.last_failure_at,
			last_error_code = excluded.last_error_code,
			last_error_message = excluded.last_error_message,
			updated_at = excluded.updated_at
	`, workspaceID, repoID, now, errorCode, errorMessage, now)
	if err != nil {
		return cxxerrors.NewStorageError("upsert_repo_sync_state_failure", 0, err)
	}
	return nil
}

// CountActiveContexts is a metrics helper mirroring
// repository_metrics.py's count_active_contexts.
func (e *Engine) CountActiveContexts(ctx context.Context) (int, error) {
	var n int
	row := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_contexts WHERE status = 'active'")
	if err := row.Scan(&n); err != nil {
		return 0, cxxerrors.NewStorageError("count_active_contexts", 0, err)
	}
	return n, nil
}

// DiskUsageBytes reports the database file's on-disk size via SQLite's
// page accounting; no other package calls it.
func (e *Engine) DiskUsageBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := e.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, cxxerrors.NewStorageError("disk_usage_page_count", 0, err)
	}
	if err := e.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, cxxerrors.NewStorageError("disk_usage_page_size", 0, err)
	}
	return pageCount * pageSize, nil
}
