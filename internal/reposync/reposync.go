// Package reposync keeps a workspace's remote-backed repos checked out
// at an exact commit SHA: a small fixed worker pool leases
// repo_sync_job rows, shells out to git clone/fetch/checkout, and
// records the outcome in repo_sync_state for the next freshness check.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/services/git_sync_service.py's
// GitSyncService (the clone/clean/fetch/checkout sequence and its
// structured GitSyncError codes) and
// original_source/src/cxxtract/orchestrator/sync_worker.py's
// SyncWorkerService (a fixed pool of poll loops leasing jobs with a
// short sleep between empty polls, bounded retries before dead-letter,
// repo_sync_state updated on every outcome). asyncio.Lock per
// (workspace, repo) becomes a sync.Mutex-guarded map of per-repo
// sync.Mutex locks, since Go's single-process worker pool needs the
// same per-repo exclusion the original uses to stop two jobs racing on
// one working tree. git invocation follows the teacher's
// internal/git/provider.go idiom: exec.CommandContext plus cmd.Dir per
// call, one responsibility per git subcommand.
package reposync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
	"github.com/cxxtract/cxxtract-go/internal/manifest"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Options configures the sync worker pool and git invocation.
type Options struct {
	GitBinary    string
	WorkerCount  int
	PollInterval time.Duration
	GitTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.GitBinary == "" {
		o.GitBinary = "git"
	}
	if o.WorkerCount <= 0 {
		o.WorkerCount = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.GitTimeout <= 0 {
		o.GitTimeout = 120 * time.Second
	}
	return o
}

// SyncResult is one successful sync_repo outcome.
type SyncResult struct {
	RepoRoot          string
	ResolvedCommitSHA string
	Warnings          []string
}

// GitSync synchronizes one repo at a time to an exact commit SHA.
type GitSync struct {
	opts Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGitSync builds a GitSync using opts.
func NewGitSync(opts Options) *GitSync {
	return &GitSync{opts: opts.withDefaults(), locks: make(map[string]*sync.Mutex)}
}

func (g *GitSync) repoLock(workspaceID, repoID string) *sync.Mutex {
	key := workspaceID + "|" + repoID
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// SyncRepo clones (if needed), cleans, fetches, and checks out repo at
// commitSHA, returning the resolved HEAD SHA once checked out.
func (g *GitSync) SyncRepo(ctx context.Context, workspaceID, workspaceRoot string, repo coretypes.Repo, commitSHA, branch string, forceClean bool) (SyncResult, error) {
	if repo.Sync == nil || repo.Sync.RemoteURL == "" {
		return SyncResult{}, cxxerrors.NewTransientError("sync_not_configured", repo.RepoID, fmt.Errorf("repo has no remote_url"))
	}
	if repo.Sync.TokenEnvVar == "" {
		return SyncResult{}, cxxerrors.NewTransientError("missing_token_env", repo.RepoID, fmt.Errorf("token_env_var is empty"))
	}
	token := os.Getenv(repo.Sync.TokenEnvVar)
	if token == "" {
		return SyncResult{}, cxxerrors.NewTransientError("missing_token_env", repo.RepoID, fmt.Errorf("env var %s is not set", repo.Sync.TokenEnvVar))
	}

	// Token travels only as an extra HTTP header on the git subprocess's
	// environment; it is never logged or returned in any result.
	env := append(os.Environ(), "GIT_HTTP_EXTRA_HEADER=PRIVATE-TOKEN: "+token)

	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return SyncResult{}, cxxerrors.NewTransientError("resolve_workspace_root", repo.RepoID, err)
	}
	repoRoot := filepath.Join(absRoot, repo.Root)

	lock := g.repoLock(workspaceID, repo.RepoID)
	lock.Lock()
	defer lock.Unlock()

	var warnings []string

	if err := g.ensureCloned(ctx, repoRoot, repo.Sync.RemoteURL, env); err != nil {
		return SyncResult{}, err
	}
	if err := g.ensureCleanOrFail(ctx, repoRoot, env, forceClean, repo.RepoID); err != nil {
		return SyncResult{}, err
	}

	if branch != "" {
		if _, err := g.runGit(ctx, repoRoot, env, "fetch", "origin", branch); err != nil {
			return SyncResult{}, cxxerrors.NewTransientError("fetch_branch_failed", repo.RepoID, err)
		}
	}

	if _, err := g.runGit(ctx, repoRoot, env, "fetch", "origin", commitSHA); err != nil {
		return SyncResult{}, cxxerrors.NewTransientError("commit_not_found", repo.RepoID, err)
	}
	if _, err := g.runGit(ctx, repoRoot, env, "cat-file", "-e", commitSHA+"^{commit}"); err != nil {
		return SyncResult{}, cxxerrors.NewTransientError("commit_not_found", repo.RepoID, err)
	}

	if branch != "" {
		if _, err := g.runGit(ctx, repoRoot, env, "merge-base", "--is-ancestor", commitSHA, "origin/"+branch); err != nil {
			warnings = append(warnings, "sha_branch_mismatch")
		}
	}

	if _, err := g.runGit(ctx, repoRoot, env, "checkout", "--detach", commitSHA); err != nil {
		return SyncResult{}, cxxerrors.NewTransientError("checkout_failed", repo.RepoID, err)
	}

	out, err := g.runGit(ctx, repoRoot, env, "rev-parse", "HEAD")
	if err != nil {
		return SyncResult{}, cxxerrors.NewTransientError("resolve_head_failed", repo.RepoID, err)
	}

	return SyncResult{
		RepoRoot:          filepath.ToSlash(repoRoot),
		ResolvedCommitSHA: strings.ToLower(strings.TrimSpace(out)),
		Warnings:          warnings,
	}, nil
}

func (g *GitSync) ensureCloned(ctx context.Context, repoRoot, remoteURL string, env []string) error {
	if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(repoRoot), 0o755); err != nil {
		return cxxerrors.NewTransientError("clone_failed", repoRoot, err)
	}
	cmd := exec.CommandContext(ctx, g.opts.GitBinary, "clone", remoteURL, repoRoot)
	cmd.Env = env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return cxxerrors.NewTransientError("clone_failed", repoRoot, fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err))
	}
	return nil
}

func (g *GitSync) ensureCleanOrFail(ctx context.Context, repoRoot string, env []string, forceClean bool, repoID string) error {
	if forceClean {
		if _, err := g.runGit(ctx, repoRoot, env, "reset", "--hard"); err != nil {
			return cxxerrors.NewTransientError("reset_failed", repoID, err)
		}
		if _, err := g.runGit(ctx, repoRoot, env, "clean", "-fd"); err != nil {
			return cxxerrors.NewTransientError("clean_failed", repoID, err)
		}
		return nil
	}

	out, err := g.runGit(ctx, repoRoot, env, "status", "--porcelain")
	if err != nil {
		return cxxerrors.NewTransientError("status_failed", repoID, err)
	}
	if strings.TrimSpace(out) != "" {
		return cxxerrors.NewTransientError("dirty_worktree", repoID, fmt.Errorf("repository has local modifications"))
	}
	return nil
}

func (g *GitSync) runGit(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.GitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.opts.GitBinary, args...)
	cmd.Dir = dir
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

// Worker polls repo_sync_jobs and drains them through a GitSync,
// bounded to opts.WorkerCount concurrent goroutines.
type Worker struct {
	store *storage.Engine
	sync  *GitSync
	opts  Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	manifests struct {
		mu sync.Mutex
		m  map[string]*coretypes.Manifest
	}
}

// NewWorker builds a Worker draining store's repo-sync queue through
// sync.
func NewWorker(store *storage.Engine, sync *GitSync, opts Options) *Worker {
	w := &Worker{store: store, sync: sync, opts: opts.withDefaults()}
	w.manifests.m = make(map[string]*coretypes.Manifest)
	return w
}

// Start launches opts.WorkerCount poll loops. Calling Start twice is a
// no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	for i := 0; i < w.opts.WorkerCount; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

// Stop halts every poll loop and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, found, err := w.store.LeaseNextRepoSyncJob(ctx)
		if err != nil || !found {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job coretypes.RepoSyncJob) {
	ws, found, err := w.store.GetWorkspace(ctx, job.WorkspaceID)
	if err != nil || !found {
		w.fail(ctx, job, "workspace_not_found", fmt.Sprintf("workspace %s not registered", job.WorkspaceID))
		return
	}

	mf, err := w.loadManifest(ws.ManifestPath)
	if err != nil {
		w.fail(ctx, job, "manifest_load_failed", err.Error())
		return
	}
	repoMap := manifest.RepoMap(mf)
	repoCfg, ok := repoMap[job.RepoID]
	if !ok {
		w.fail(ctx, job, "repo_not_in_manifest", fmt.Sprintf("repo %s not found in workspace manifest", job.RepoID))
		return
	}

	result, err := w.sync.SyncRepo(ctx, job.WorkspaceID, ws.RootPath, repoCfg, job.RequestedCommitSHA, job.RequestedBranch, job.RequestedForceClean)
	if err != nil {
		code, message := errorCodeAndMessage(err)
		w.fail(ctx, job, code, message)
		return
	}

	if err := w.store.MarkRepoSyncJobDone(ctx, job.ID, result.ResolvedCommitSHA); err != nil {
		return
	}
	_ = w.store.UpsertRepoSyncState(ctx, job.WorkspaceID, job.RepoID, true, result.ResolvedCommitSHA, job.RequestedBranch, "", "")
}

func (w *Worker) fail(ctx context.Context, job coretypes.RepoSyncJob, code, message string) {
	deadLetter := job.Attempts >= job.MaxAttempts && job.MaxAttempts > 0
	_ = w.store.MarkRepoSyncJobFailed(ctx, job.ID, code, message, deadLetter)
	_ = w.store.UpsertRepoSyncState(ctx, job.WorkspaceID, job.RepoID, false, "", job.RequestedBranch, code, message)
}

func (w *Worker) loadManifest(manifestPath string) (*coretypes.Manifest, error) {
	w.manifests.mu.Lock()
	defer w.manifests.mu.Unlock()
	if mf, ok := w.manifests.m[manifestPath]; ok {
		return mf, nil
	}
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	w.manifests.m[manifestPath] = mf
	return mf, nil
}

func errorCodeAndMessage(err error) (string, string) {
	var te *cxxerrors.TransientError
	if errors.As(err, &te) {
		op := te.Operation
		if op == "" {
			op = "sync_unhandled"
		}
		return op, te.Error()
	}
	return "sync_unhandled", err.Error()
}
