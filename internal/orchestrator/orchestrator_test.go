package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/ctxsvc"
	"github.com/cxxtract/cxxtract-go/internal/freshness"
	"github.com/cxxtract/cxxtract-go/internal/parserpool"
	"github.com/cxxtract/cxxtract-go/internal/reader"
	"github.com/cxxtract/cxxtract-go/internal/recall"
	"github.com/cxxtract/cxxtract-go/internal/storage"
	"github.com/cxxtract/cxxtract-go/internal/writer"
)

// fakeExtractor writes a POSIX shell script standing in for
// cpp-extractor, emitting canned JSON on stdout regardless of its
// arguments, so parse tasks can be run without a real binary installed.
func fakeExtractor(t *testing.T, stdout string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-extractor")
	script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "\nEOF\nexit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newEngine(t *testing.T, extractorBinary string) (*Engine, *storage.Engine, string) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "core"), 0o755))
	srcPath := filepath.Join(root, "core", "a.cpp")
	require.NoError(t, os.WriteFile(srcPath, []byte("void f();"), 0o644))

	ccPath := filepath.Join(root, "compile_commands.json")
	require.NoError(t, os.WriteFile(ccPath, []byte(
		`[{"file":"`+filepath.ToSlash(srcPath)+`","directory":"`+filepath.ToSlash(root)+
			`","arguments":["clang++","-std=c++20","`+filepath.ToSlash(srcPath)+`"]}]`), 0o644))

	manifestPath := filepath.Join(root, "workspace.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(
		"workspace_id: ws1\n"+
			"repos:\n"+
			"  - repo_id: core\n"+
			"    root: core\n"+
			"    compile_commands: compile_commands.json\n"), 0o644))

	// The lexical-search binary is a script printing one rg --json match
	// for a.cpp, so symbol queries against an empty cache still find it.
	rgPath := filepath.Join(t.TempDir(), "fake-rg")
	rgMatch := `{"type":"match","data":{"path":{"text":"` + filepath.ToSlash(srcPath) + `"},"line_number":1,"lines":{"text":"void f();"}}}`
	require.NoError(t, os.WriteFile(rgPath, []byte("#!/bin/sh\necho '"+rgMatch+"'\nexit 0\n"), 0o755))

	w := writer.New(store, writer.Options{RetryDelay: time.Millisecond})
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	eng := New(
		store,
		ctxsvc.New(store),
		freshness.New(store),
		parserpool.New(store, parserpool.Options{ExtractorBinary: extractorBinary, MaxWorkers: 2}),
		w,
		reader.New(store),
		Options{RecallOpts: recall.Options{Binary: rgPath}},
	)
	return eng, store, manifestPath
}

const fakeSymbolJSON = `{
  "success": true,
  "diagnostics": [],
  "symbols": [{"name": "f", "qualified_name": "f", "kind": "function", "line": 1, "col": 6}],
  "references": [],
  "call_edges": [],
  "include_deps": []
}`

func TestQueryDefinition_ParsesStaleCandidateAndReturnsDefinition(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	result, err := eng.QueryDefinition(ctx, QueryRequest{WorkspaceID: "ws1", Symbol: "f"})
	require.NoError(t, err)
	require.Len(t, result.Definitions, 1)
	require.Equal(t, "f", result.Definitions[0].Name)
	require.Equal(t, 1, result.Confidence.TotalCandidates)
	require.Equal(t, 1.0, result.Confidence.VerifiedRatio)
}

func TestQueryDefinition_SecondCallIsFreshAndSkipsReparse(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	_, err = eng.QueryDefinition(ctx, QueryRequest{WorkspaceID: "ws1", Symbol: "f"})
	require.NoError(t, err)

	result, err := eng.QueryDefinition(ctx, QueryRequest{WorkspaceID: "ws1", Symbol: "f"})
	require.NoError(t, err)
	require.Len(t, result.Definitions, 1)
	require.Equal(t, 1.0, result.Confidence.VerifiedRatio)
}

func TestQueryFileSymbols_ReturnsSymbolsForNamedFile(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	result, err := eng.QueryFileSymbols(ctx, FileSymbolsRequest{WorkspaceID: "ws1", FileKey: "core:a.cpp"})
	require.NoError(t, err)
	require.Len(t, result.Symbols, 1)
}

func TestQueryFileSymbols_FallbackCompileEntryAddsWarning(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	// a.h has no entry of its own in compile_commands.json, so its
	// compile flags can only be resolved via the sibling-in-same-dir
	// fallback (a.cpp) rather than an exact match.
	root := filepath.Dir(manifestPath)
	headerPath := filepath.Join(root, "core", "a.h")
	require.NoError(t, os.WriteFile(headerPath, []byte("void f();"), 0o644))

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", root, manifestPath)
	require.NoError(t, err)

	result, err := eng.QueryFileSymbols(ctx, FileSymbolsRequest{WorkspaceID: "ws1", FileKey: "core:a.h"})
	require.NoError(t, err)

	var sawFallbackWarning bool
	for _, w := range result.Confidence.Warnings {
		if strings.Contains(w, "fallback") {
			sawFallbackWarning = true
		}
	}
	require.True(t, sawFallbackWarning, "expected a fallback warning, got %v", result.Confidence.Warnings)
}

func TestQueryFileSymbols_InvalidFileKeyReturnsUnparsed(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	result, err := eng.QueryFileSymbols(ctx, FileSymbolsRequest{WorkspaceID: "ws1", FileKey: "no-colon-here"})
	require.NoError(t, err)
	require.Empty(t, result.Symbols)
	require.Equal(t, 1, len(result.Confidence.UnparsedFiles))
}

func TestInvalidateCache_ClearsContextByDefault(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)
	_, err = eng.QueryDefinition(ctx, QueryRequest{WorkspaceID: "ws1", Symbol: "f"})
	require.NoError(t, err)

	count, _, err := eng.InvalidateCache(ctx, "ws1", "", nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	result, err := eng.QueryDefinition(ctx, QueryRequest{WorkspaceID: "ws1", Symbol: "f"})
	require.NoError(t, err)
	require.Len(t, result.Definitions, 1) // re-parsed from scratch, still found
}

func TestCreatePROverlay_RootsAtBaselineAndExpires(t *testing.T) {
	eng, store, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, baseline, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	ac, err := eng.CreatePROverlay(ctx, "ws1", "", "42")
	require.NoError(t, err)
	require.Equal(t, baseline, ac.BaseContextID)
	require.Equal(t, coretypes.ContextModePR, ac.Mode)

	ok, err := eng.ExpireContext(ctx, ac.ContextID)
	require.NoError(t, err)
	require.True(t, ok)

	active, err := store.ListActiveContexts(ctx, "ws1")
	require.NoError(t, err)
	for _, a := range active {
		require.NotEqual(t, ac.ContextID, a.ContextID)
	}
}

func TestGetWorkspaceInfo_ReportsRegisteredRepos(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	ws, mf, contexts, err := eng.GetWorkspaceInfo(ctx, "ws1")
	require.NoError(t, err)
	require.Equal(t, "ws1", ws.WorkspaceID)
	require.Len(t, mf.Repos, 1)
	require.NotEmpty(t, contexts)
}

func TestRegisterWorkspace_WatchManifestsRefreshesOnFileChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fsnotify integration test in short mode")
	}

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "core"), 0o755))
	srcPath := filepath.Join(root, "core", "a.cpp")
	require.NoError(t, os.WriteFile(srcPath, []byte("void f();"), 0o644))

	ccPath := filepath.Join(root, "compile_commands.json")
	require.NoError(t, os.WriteFile(ccPath, []byte(
		`[{"file":"`+filepath.ToSlash(srcPath)+`","directory":"`+filepath.ToSlash(root)+
			`","arguments":["clang++","-std=c++20","`+filepath.ToSlash(srcPath)+`"]}]`), 0o644))

	manifestPath := filepath.Join(root, "workspace.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(
		"workspace_id: ws1\n"+
			"repos:\n"+
			"  - repo_id: core\n"+
			"    root: core\n"+
			"    compile_commands: compile_commands.json\n"), 0o644))

	w := writer.New(store, writer.Options{RetryDelay: time.Millisecond})
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	eng := New(
		store,
		ctxsvc.New(store),
		freshness.New(store),
		parserpool.New(store, parserpool.Options{ExtractorBinary: fakeExtractor(t, fakeSymbolJSON), MaxWorkers: 2}),
		w,
		reader.New(store),
		Options{RecallOpts: recall.Options{Binary: "/nonexistent/rg-stub"}, WatchManifests: true},
	)
	defer func() { _ = eng.Close() }()

	ctx := context.Background()
	_, _, _, err = eng.RegisterWorkspace(ctx, "ws1", root, manifestPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(manifestPath, []byte(
		"workspace_id: ws1\n"+
			"repos:\n"+
			"  - repo_id: core\n"+
			"    root: core\n"+
			"    compile_commands: compile_commands.json\n"+
			"  - repo_id: extra\n"+
			"    root: core\n"+
			"    compile_commands: compile_commands.json\n"), 0o644))

	require.Eventually(t, func() bool {
		_, mf, _, err := eng.GetWorkspaceInfo(ctx, "ws1")
		return err == nil && len(mf.Repos) == 2
	}, 5*time.Second, 50*time.Millisecond, "expected the watcher to pick up the added repo")
}

func TestEnqueueRepoSync_InsertsJob(t *testing.T) {
	eng, _, manifestPath := newEngine(t, fakeExtractor(t, fakeSymbolJSON))
	ctx := context.Background()

	_, _, _, err := eng.RegisterWorkspace(ctx, "ws1", filepath.Dir(manifestPath), manifestPath)
	require.NoError(t, err)

	err = eng.EnqueueRepoSync(ctx, coretypes.RepoSyncJob{
		ID: "job-1", WorkspaceID: "ws1", RepoID: "core", Status: coretypes.JobStatusPending,
	})
	require.NoError(t, err)
}
