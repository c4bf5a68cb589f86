package ctxsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "workspace.yaml")
	content := `
workspace_id: ws1
repos:
  - repo_id: core
    root: core
  - repo_id: plugin
    root: plugin
    depends_on: [core]
  - repo_id: isolated
    root: isolated
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveWorkspace_LoadsAndPersistsRepos(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	manifestPath := writeManifest(t, dir)

	svc := New(store)
	mf, err := svc.ResolveWorkspace(ctx, "ws1", dir, manifestPath, false)
	require.NoError(t, err)
	require.Len(t, mf.Repos, 3)

	repos, err := store.ListRepos(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, repos, 3)
}

func TestResolveContexts_BaselineModeReturnsBaseline(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store)
	contextID, baselineID, mode, err := svc.ResolveContexts(ctx, ContextRequest{
		WorkspaceID: "ws1", Mode: coretypes.ContextModeBaseline,
	})
	require.NoError(t, err)
	require.Equal(t, baselineID, contextID)
	require.Equal(t, coretypes.OverlayModeSparse, mode)
}

func TestResolveContexts_PRModeCreatesOverlay(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store)
	contextID, baselineID, mode, err := svc.ResolveContexts(ctx, ContextRequest{
		WorkspaceID: "ws1", Mode: coretypes.ContextModePR, PRID: "pr-42",
	})
	require.NoError(t, err)
	require.Equal(t, "ws1:pr:pr-42", contextID)
	require.NotEqual(t, baselineID, contextID)
	require.Equal(t, coretypes.OverlayModeSparse, mode)

	ac, found, err := store.GetAnalysisContext(ctx, contextID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, baselineID, ac.BaseContextID)
}

func TestResolveContexts_ReusesExistingContextID(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store)
	contextID, _, _, err := svc.ResolveContexts(ctx, ContextRequest{
		WorkspaceID: "ws1", Mode: coretypes.ContextModePR, ContextID: "ws1:pr:fixed",
	})
	require.NoError(t, err)
	require.Equal(t, "ws1:pr:fixed", contextID)

	again, _, _, err := svc.ResolveContexts(ctx, ContextRequest{
		WorkspaceID: "ws1", Mode: coretypes.ContextModePR, ContextID: "ws1:pr:fixed",
	})
	require.NoError(t, err)
	require.Equal(t, contextID, again)
}

func TestCandidateRepos_BFSRespectsHopLimit(t *testing.T) {
	mf := &coretypes.Manifest{
		WorkspaceID: "ws1",
		Repos: []coretypes.Repo{
			{RepoID: "a", DependsOn: []string{"b"}},
			{RepoID: "b", DependsOn: []string{"c"}},
			{RepoID: "c"},
		},
	}
	require.Equal(t, []string{"a"}, CandidateRepos(mf, []string{"a"}, 0))
	require.Equal(t, []string{"a", "b"}, CandidateRepos(mf, []string{"a"}, 1))
	require.Equal(t, []string{"a", "b", "c"}, CandidateRepos(mf, []string{"a"}, 2))
}

func TestCandidateRepos_EmptyEntryReturnsAllSorted(t *testing.T) {
	mf := &coretypes.Manifest{
		Repos: []coretypes.Repo{{RepoID: "z"}, {RepoID: "a"}, {RepoID: "m"}},
	}
	require.Equal(t, []string{"a", "m", "z"}, CandidateRepos(mf, nil, 5))
}

func TestCompileDB_NoCompileCommandsReturnsNil(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store)
	idx, err := svc.CompileDB("ws1", t.TempDir(), "core", "core", "")
	require.NoError(t, err)
	require.Nil(t, idx)
}

func TestCompileDB_CachesByKey(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	root := t.TempDir()
	ccPath := filepath.Join(root, "compile_commands.json")
	require.NoError(t, os.WriteFile(ccPath, []byte("[]"), 0o644))

	svc := New(store)
	first, err := svc.CompileDB("ws1", root, "core", "core", "compile_commands.json")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.CompileDB("ws1", root, "core", "core", "compile_commands.json")
	require.NoError(t, err)
	require.Same(t, first, second)
}
