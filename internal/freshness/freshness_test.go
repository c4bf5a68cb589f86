package freshness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/compiledb"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/hashutil"
	"github.com/cxxtract/cxxtract-go/internal/pathresolver"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

func setup(t *testing.T) (*storage.Engine, *pathresolver.Resolver, *compiledb.Index, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "core"), 0o755))
	srcPath := filepath.Join(root, "core", "a.cpp")
	require.NoError(t, os.WriteFile(srcPath, []byte("void f();"), 0o644))

	ccPath := filepath.Join(root, "compile_commands.json")
	require.NoError(t, os.WriteFile(ccPath, []byte(`[{"file":"`+filepath.ToSlash(srcPath)+`","directory":"`+filepath.ToSlash(root)+`","arguments":["clang++","-std=c++20","`+filepath.ToSlash(srcPath)+`"]}]`), 0o644))
	cdb, err := compiledb.Load(ccPath)
	require.NoError(t, err)

	manifest := &coretypes.Manifest{
		WorkspaceID: "ws1",
		Repos:       []coretypes.Repo{{RepoID: "core", Root: "core"}},
	}
	resolver, err := pathresolver.New(root, manifest)
	require.NoError(t, err)

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, resolver, cdb, root
}

func TestClassify_NeverParsedIsStale(t *testing.T) {
	store, resolver, cdb, _ := setup(t)
	ctx := context.Background()
	contextID, err := store.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)

	svc := New(store)
	result, err := svc.Classify(ctx, contextID, []coretypes.FileKey{"core:a.cpp"}, map[string]*compiledb.Index{"core": cdb}, resolver)
	require.NoError(t, err)
	require.Equal(t, []coretypes.FileKey{"core:a.cpp"}, result.Stale)
	require.Empty(t, result.Fresh)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, coretypes.MatchTypeExact, result.Tasks[0].MatchType)
}

func TestClassify_UnparsedWhenNoCompileEntry(t *testing.T) {
	store, resolver, _, _ := setup(t)
	ctx := context.Background()
	contextID, err := store.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)

	emptyCDB, err := compiledb.Load(writeEmptyCDB(t))
	require.NoError(t, err)

	svc := New(store)
	result, err := svc.Classify(ctx, contextID, []coretypes.FileKey{"core:a.cpp"}, map[string]*compiledb.Index{"core": emptyCDB}, resolver)
	require.NoError(t, err)
	require.Equal(t, []coretypes.FileKey{"core:a.cpp"}, result.Unparsed)
}

func TestClassify_MatchingCompositeHashIsFresh(t *testing.T) {
	store, resolver, cdb, root := setup(t)
	ctx := context.Background()
	contextID, err := store.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)

	absPath := filepath.Join(root, "core", "a.cpp")
	content, err := os.ReadFile(absPath)
	require.NoError(t, err)
	entry, _ := cdb.Get(absPath)
	contentHash := hashutil.ContentHash(content)
	compositeHash := hashutil.CompositeHash(contentHash, "", entry.FlagsHash)

	require.NoError(t, store.UpsertParsePayload(ctx, coretypes.ParsePayload{
		ContextID: contextID, FileKey: "core:a.cpp", RepoID: "core", AbsPath: absPath,
		Content: content, ContentHash: contentHash, FlagsHash: entry.FlagsHash, CompositeHash: compositeHash,
	}))

	svc := New(store)
	result, err := svc.Classify(ctx, contextID, []coretypes.FileKey{"core:a.cpp"}, map[string]*compiledb.Index{"core": cdb}, resolver)
	require.NoError(t, err)
	require.Equal(t, []coretypes.FileKey{"core:a.cpp"}, result.Fresh)
	require.Empty(t, result.Stale)
}

func writeEmptyCDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
	return path
}
