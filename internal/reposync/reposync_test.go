package reposync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

func requireGit(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("git worktree tests assume a POSIX shell")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func runGitT(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func newTestStore(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// newBareRemoteWithCommit builds a throwaway local "remote" repo with
// one commit, standing in for a GitLab/GitHub-hosted repo so SyncRepo
// can be exercised without real network access or a token.
func newBareRemoteWithCommit(t *testing.T) (remoteDir string, commitSHA string) {
	t.Helper()
	src := t.TempDir()
	runGitT(t, src, "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.cpp"), []byte("void f();"), 0o644))
	runGitT(t, src, "add", "a.cpp")
	runGitT(t, src, "commit", "-q", "-m", "initial")

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = src
	out, err := cmd.Output()
	require.NoError(t, err)
	return src, string(out[:40])
}

func TestSyncRepo_ClonesAndCheckoutsPinnedCommit(t *testing.T) {
	requireGit(t)
	remoteDir, sha := newBareRemoteWithCommit(t)
	t.Setenv("TEST_TOKEN", "dummy")

	workspaceRoot := t.TempDir()
	repo := coretypes.Repo{
		RepoID: "core", Root: "core",
		Sync: &coretypes.RepoSyncMeta{RemoteURL: remoteDir, TokenEnvVar: "TEST_TOKEN"},
	}

	gs := NewGitSync(Options{})
	result, err := gs.SyncRepo(context.Background(), "ws1", workspaceRoot, repo, sha, "", true)
	require.NoError(t, err)
	require.Equal(t, sha, result.ResolvedCommitSHA)
	require.FileExists(t, filepath.Join(workspaceRoot, "core", "a.cpp"))
}

func TestSyncRepo_MissingTokenEnvFails(t *testing.T) {
	requireGit(t)
	remoteDir, sha := newBareRemoteWithCommit(t)

	repo := coretypes.Repo{
		RepoID: "core", Root: "core",
		Sync: &coretypes.RepoSyncMeta{RemoteURL: remoteDir, TokenEnvVar: "UNSET_TOKEN_VAR"},
	}

	gs := NewGitSync(Options{})
	_, err := gs.SyncRepo(context.Background(), "ws1", t.TempDir(), repo, sha, "", true)
	require.Error(t, err)
}

func TestWorker_FailsJobWhenRepoNotInManifest(t *testing.T) {
	workspaceRoot := t.TempDir()
	manifestPath := filepath.Join(workspaceRoot, "workspace.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(
		"workspace_id: ws1\n"+
			"repos:\n"+
			"  - repo_id: other\n"+
			"    root: other\n"), 0o644))

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertWorkspace(ctx, "ws1", workspaceRoot, manifestPath))
	require.NoError(t, store.InsertRepoSyncJob(ctx, coretypes.RepoSyncJob{
		ID: "job-1", WorkspaceID: "ws1", RepoID: "core", RequestedCommitSHA: "deadbeef", MaxAttempts: 1,
	}))

	w := NewWorker(store, NewGitSync(Options{}), Options{WorkerCount: 1, PollInterval: 5 * time.Millisecond})
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		_, found, err := getSyncState(ctx, store, "ws1", "core")
		return err == nil && found
	}, 5*time.Second, 20*time.Millisecond)

	success, found, err := getSyncState(ctx, store, "ws1", "core")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, success)
}

// getSyncState reads back whether the last sync attempt for repo
// succeeded, via a minimal direct query since storage doesn't expose a
// typed repo_sync_state reader outside this package's test needs.
func getSyncState(ctx context.Context, store *storage.Engine, workspaceID, repoID string) (success bool, found bool, err error) {
	row := store.DB().QueryRowContext(ctx, `
		SELECT last_synced_commit_sha != '' AND last_error_code = ''
		FROM repo_sync_state WHERE workspace_id = ? AND repo_id = ?
	`, workspaceID, repoID)
	var s int
	if scanErr := row.Scan(&s); scanErr != nil {
		return false, false, nil
	}
	return s != 0, true, nil
}
