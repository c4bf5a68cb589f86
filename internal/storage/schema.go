package storage

// Schema versions track via PRAGMA user_version, mirroring the original
// cache's incremental migration style (v4.1 added repo remote metadata,
// v4.2 added the repo-sync queue, v4.3 added commit-diff summaries). The
// base schema below folds together what the original tracked as
// "v3-only" — the pre-overlay-chain tables were never shipped
// separately here, since this is a fresh implementation rather than an
// upgrade path from an older cache format.
const (
	schemaVersionBase = 300
	schemaVersionV401 = 401
	schemaVersionV402 = 402
	schemaVersionV403 = 403
)

// baseSchema creates every table this engine needs in its v3 shape.
// Idempotent: every statement is IF NOT EXISTS, so re-running it against
// an already-migrated database is a no-op.
const baseSchema = `
CREATE TABLE IF NOT EXISTS workspaces (
	workspace_id TEXT PRIMARY KEY,
	root_path TEXT NOT NULL,
	manifest_path TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repos (
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	repo_id TEXT NOT NULL,
	root TEXT NOT NULL DEFAULT '',
	compile_commands TEXT NOT NULL DEFAULT '',
	default_branch TEXT NOT NULL DEFAULT 'main',
	depends_on_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (workspace_id, repo_id)
);

CREATE TABLE IF NOT EXISTS analysis_contexts (
	context_id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	mode TEXT NOT NULL,
	base_context_id TEXT NOT NULL DEFAULT '',
	overlay_mode TEXT NOT NULL DEFAULT 'sparse',
	overlay_file_count INTEGER NOT NULL DEFAULT 0,
	overlay_row_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	last_accessed_at TEXT NOT NULL,
	expires_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_analysis_contexts_workspace_status
	ON analysis_contexts(workspace_id, status);

CREATE TABLE IF NOT EXISTS context_file_states (
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	state TEXT NOT NULL,
	replaced_from_file_key TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (context_id, file_key)
);

CREATE TABLE IF NOT EXISTS tracked_files (
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	rel_path TEXT NOT NULL,
	abs_path TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	flags_hash TEXT NOT NULL DEFAULT '',
	includes_hash TEXT NOT NULL DEFAULT '',
	composite_hash TEXT NOT NULL DEFAULT '',
	last_parsed_at TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (context_id, file_key)
);

CREATE INDEX IF NOT EXISTS idx_tracked_files_context ON tracked_files(context_id);

CREATE TABLE IF NOT EXISTS symbols (
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	name TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	line INTEGER NOT NULL,
	col INTEGER NOT NULL,
	extent_end_line INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_symbols_context_file ON symbols(context_id, file_key);
CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON symbols(context_id, qualified_name);

CREATE TABLE IF NOT EXISTS references_ (
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	symbol_qualified_name TEXT NOT NULL,
	line INTEGER NOT NULL,
	col INTEGER NOT NULL,
	ref_kind TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_references_context_file ON references_(context_id, file_key);
CREATE INDEX IF NOT EXISTS idx_references_symbol ON references_(context_id, symbol_qualified_name);

CREATE TABLE IF NOT EXISTS call_edges (
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	caller_qualified_name TEXT NOT NULL,
	callee_qualified_name TEXT NOT NULL,
	line INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_edges_context_file ON call_edges(context_id, file_key);
CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges(context_id, caller_qualified_name);
CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(context_id, callee_qualified_name);

CREATE TABLE IF NOT EXISTS include_deps (
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	included_file_key TEXT NOT NULL DEFAULT '',
	included_abs_path TEXT NOT NULL DEFAULT '',
	raw_path TEXT NOT NULL,
	depth INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_include_deps_context_file ON include_deps(context_id, file_key);

CREATE TABLE IF NOT EXISTS parse_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	context_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	abs_path TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL DEFAULT 0,
	error_msg TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_parse_runs_context_file ON parse_runs(context_id, file_key);

CREATE TABLE IF NOT EXISTS index_jobs (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	repo_id TEXT NOT NULL,
	context_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_sha TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_jobs_status_created ON index_jobs(status, created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS recall_fts USING fts5(
	context_id UNINDEXED,
	file_key UNINDEXED,
	repo_id UNINDEXED,
	content
);
`

// migrationV401 backfills the remote-sync columns onto repos, added after
// the initial release to support repo-sync from a pinned commit SHA.
const migrationV401 = `
ALTER TABLE repos ADD COLUMN remote_url TEXT NOT NULL DEFAULT '';
ALTER TABLE repos ADD COLUMN token_env_var TEXT NOT NULL DEFAULT '';
ALTER TABLE repos ADD COLUMN project_path TEXT NOT NULL DEFAULT '';
`

// migrationV402 introduces the repo-sync job queue and last-known-good
// sync state per repo.
const migrationV402 = `
CREATE TABLE IF NOT EXISTS repo_sync_jobs (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	repo_id TEXT NOT NULL,
	requested_branch TEXT NOT NULL DEFAULT '',
	requested_commit_sha TEXT NOT NULL,
	requested_force_clean INTEGER NOT NULL DEFAULT 1,
	resolved_commit_sha TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	error_code TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT '',
	finished_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_repo_sync_jobs_status_created ON repo_sync_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_repo_sync_jobs_workspace_repo ON repo_sync_jobs(workspace_id, repo_id, created_at);

CREATE TABLE IF NOT EXISTS repo_sync_state (
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	repo_id TEXT NOT NULL,
	last_synced_commit_sha TEXT NOT NULL DEFAULT '',
	last_synced_branch TEXT NOT NULL DEFAULT '',
	last_success_at TEXT NOT NULL DEFAULT '',
	last_failure_at TEXT NOT NULL DEFAULT '',
	last_error_code TEXT NOT NULL DEFAULT '',
	last_error_message TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (workspace_id, repo_id)
);
`

// migrationV403 adds the commit-summary side store read and written by
// vector.go's commit-diff-summary methods.
const migrationV403 = `
CREATE TABLE IF NOT EXISTS commit_diff_summaries (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	repo_id TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	branch TEXT NOT NULL DEFAULT '',
	summary_text TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_commit_diff_unique
	ON commit_diff_summaries(workspace_id, repo_id, commit_sha);
CREATE INDEX IF NOT EXISTS idx_commit_diff_workspace_repo_branch
	ON commit_diff_summaries(workspace_id, repo_id, branch, created_at);
`
