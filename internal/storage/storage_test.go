package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpen_RunsMigrationsIdempotently(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	version, err := e.userVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, schemaVersionV403, version)
}

func TestWorkspaceAndContextLifecycle(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpsertWorkspace(ctx, "ws1", "/repo", "/repo/.cxxtract/workspace.yaml"))
	ws, ok, err := e.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/repo", ws.RootPath)

	contextID, err := e.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)
	require.Equal(t, "ws1:baseline", contextID)

	ac, ok, err := e.GetAnalysisContext(ctx, contextID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, coretypes.ContextModeBaseline, ac.Mode)
	require.Equal(t, coretypes.ContextStatusActive, ac.Status)

	expired, err := e.ExpireContext(ctx, contextID)
	require.NoError(t, err)
	require.True(t, expired)

	active, err := e.ListActiveContexts(ctx, "ws1")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestReplaceWorkspaceRepos(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.UpsertWorkspace(ctx, "ws1", "/repo", ""))

	n, err := e.ReplaceWorkspaceRepos(ctx, "ws1", []coretypes.Repo{
		{RepoID: "core", Root: "core", DefaultBranch: "main"},
		{RepoID: "vendor", Root: "vendor", DefaultBranch: "main", DependsOn: []string{"core"},
			Sync: &coretypes.RepoSyncMeta{RemoteURL: "https://example.com/vendor.git", TokenEnvVar: "GIT_TOKEN"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	repos, err := e.ListRepos(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	require.Equal(t, "core", repos[0].RepoID)
	require.Equal(t, "vendor", repos[1].RepoID)
	require.Equal(t, []string{"core"}, repos[1].DependsOn)
	require.Equal(t, "https://example.com/vendor.git", repos[1].Sync.RemoteURL)
}

func TestOverlayStatsEscalatesMode(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.UpsertWorkspace(ctx, "ws1", "/repo", ""))
	require.NoError(t, e.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
		ContextID: "ws1:pr-7", WorkspaceID: "ws1", Mode: coretypes.ContextModePR, BaseContextID: "ws1:baseline",
	}))

	mode, err := e.UpdateContextOverlayStats(ctx, "ws1:pr-7", 10, 100, OverlayLimits{MaxFiles: 5, MaxRows: 1000}, false)
	require.NoError(t, err)
	require.Equal(t, coretypes.OverlayModePartialOverlay, mode)

	ac, _, err := e.GetAnalysisContext(ctx, "ws1:pr-7")
	require.NoError(t, err)
	require.Equal(t, 10, ac.OverlayFiles)
	require.Equal(t, 100, ac.OverlayRows)
}

func TestUpsertParsePayloadAndSearch(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	contextID, err := e.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)

	payload := coretypes.ParsePayload{
		ContextID:     contextID,
		FileKey:       "core:src/widget.cpp",
		RepoID:        "core",
		AbsPath:       "/repo/core/src/widget.cpp",
		Content:       []byte("class Widget { void render(); };"),
		CompositeHash: "abc123",
		Symbols: []coretypes.Symbol{
			{FileKey: "core:src/widget.cpp", Name: "render", QualifiedName: "Widget::render", Kind: "method", Line: 1, Col: 20},
		},
		CallEdges: []coretypes.CallEdge{
			{FileKey: "core:src/widget.cpp", Caller: "Widget::render", Callee: "Widget::paint", Line: 2},
		},
	}
	require.NoError(t, e.UpsertParsePayload(ctx, payload))

	hash, ok, err := e.GetCompositeHash(ctx, contextID, "core:src/widget.cpp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc123", hash)

	hits, err := e.SearchSymbolsByName(ctx, "render", []string{contextID}, nil, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Widget::render", hits[0].QualifiedName)

	edges, err := e.GetCallEdgesForCaller(ctx, "Widget::render", []string{contextID}, nil, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "Widget::paint", edges[0].Callee)

	candidates, err := e.SearchRecallCandidates(ctx, contextID, "Widget", nil, 10)
	require.NoError(t, err)
	require.Contains(t, candidates, coretypes.FileKey("core:src/widget.cpp"))

	count, err := e.CountTrackedFiles(ctx, contextID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	cleared, err := e.ClearContext(ctx, contextID)
	require.NoError(t, err)
	require.Equal(t, 1, cleared)
}

func TestSearchSymbolsByName_OverlayDedupesOverBaseline(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	baseline, err := e.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)
	require.NoError(t, e.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
		ContextID: "ws1:pr-1", WorkspaceID: "ws1", Mode: coretypes.ContextModePR, BaseContextID: baseline,
	}))

	require.NoError(t, e.UpsertParsePayload(ctx, coretypes.ParsePayload{
		ContextID: baseline, FileKey: "core:a.cpp", RepoID: "core", AbsPath: "/repo/core/a.cpp",
		Content: []byte("void f();"),
		Symbols: []coretypes.Symbol{{FileKey: "core:a.cpp", Name: "f", QualifiedName: "f", Kind: "function", Line: 1, Col: 6}},
	}))
	require.NoError(t, e.UpsertParsePayload(ctx, coretypes.ParsePayload{
		ContextID: "ws1:pr-1", FileKey: "core:a.cpp", RepoID: "core", AbsPath: "/repo/core/a.cpp",
		Content: []byte("void f(int);"),
		Symbols: []coretypes.Symbol{{FileKey: "core:a.cpp", Name: "f", QualifiedName: "f", Kind: "function", Line: 1, Col: 6}},
	}))

	hits, err := e.SearchSymbolsByName(ctx, "f", []string{"ws1:pr-1", baseline}, nil, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "ws1:pr-1", hits[0].ContextID)
}

func TestParseRunAudit(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	contextID, err := e.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)

	runID, err := e.InsertParseRun(ctx, contextID, "core:a.cpp", "/repo/core/a.cpp")
	require.NoError(t, err)
	require.NoError(t, e.FinishParseRun(ctx, runID, true, ""))

	runs, err := e.GetParseRuns(ctx, contextID, "core:a.cpp")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.True(t, runs[0].Success)
}

func TestCommitDiffSummaryUpsertAndGet(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	_, err := e.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)

	require.NoError(t, e.UpsertCommitDiffSummary(ctx, coretypes.CommitDiffSummary{
		ID: "sum-1", WorkspaceID: "ws1", RepoID: "core", CommitSHA: "abc123",
		Branch: "main", SummaryText: "renamed a function",
	}))

	got, ok, err := e.GetCommitDiffSummary(ctx, "ws1", "core", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "renamed a function", got.SummaryText)

	require.NoError(t, e.UpsertCommitDiffSummary(ctx, coretypes.CommitDiffSummary{
		ID: "sum-1", WorkspaceID: "ws1", RepoID: "core", CommitSHA: "abc123",
		Branch: "main", SummaryText: "renamed a function, again",
	}))
	got, ok, err = e.GetCommitDiffSummary(ctx, "ws1", "core", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "renamed a function, again", got.SummaryText)
}

func TestRepoSyncJobQueue(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.UpsertWorkspace(ctx, "ws1", "/repo", ""))

	require.NoError(t, e.InsertRepoSyncJob(ctx, coretypes.RepoSyncJob{
		ID: "job-1", WorkspaceID: "ws1", RepoID: "vendor", RequestedCommitSHA: "deadbeef", RequestedForceClean: true,
	}))

	job, ok, err := e.LeaseNextRepoSyncJob(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, coretypes.JobStatusRunning, job.Status)
	require.Equal(t, 1, job.Attempts)

	_, ok, err = e.LeaseNextRepoSyncJob(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.MarkRepoSyncJobDone(ctx, job.ID, "deadbeefcafef00d"))
	require.NoError(t, e.UpsertRepoSyncState(ctx, "ws1", "vendor", true, "deadbeefcafef00d", "main", "", ""))
}
