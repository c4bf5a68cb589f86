package candidate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/pathresolver"
	"github.com/cxxtract/cxxtract-go/internal/recall"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

func TestResolve_MergesBaselineOverlayAndMasksDeleted(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	baselineID, err := store.EnsureBaselineContext(ctx, "ws1")
	require.NoError(t, err)
	overlayID := "ws1:pr-1"
	require.NoError(t, store.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
		ContextID: overlayID, WorkspaceID: "ws1", Mode: coretypes.ContextModePR, BaseContextID: baselineID,
	}))

	require.NoError(t, store.UpsertParsePayload(ctx, coretypes.ParsePayload{
		ContextID: baselineID, FileKey: "core:a.cpp", RepoID: "core", AbsPath: "/repo/core/a.cpp",
		Content: []byte("void WidgetRender();"),
	}))
	require.NoError(t, store.UpsertParsePayload(ctx, coretypes.ParsePayload{
		ContextID: baselineID, FileKey: "core:b.cpp", RepoID: "core", AbsPath: "/repo/core/b.cpp",
		Content: []byte("void WidgetRenderOther();"),
	}))
	require.NoError(t, store.UpsertContextFileState(ctx, coretypes.ContextFileState{
		ContextID: overlayID, FileKey: "core:b.cpp", State: coretypes.FileStateDeleted,
	}))

	resolver, err := pathresolver.New(t.TempDir(), &coretypes.Manifest{
		WorkspaceID: "ws1",
		Repos:       []coretypes.Repo{{RepoID: "core", Root: "core"}},
	})
	require.NoError(t, err)

	svc := New(store, resolver, recall.Options{Binary: "this-binary-does-not-exist-xyz"})
	repos := map[string]coretypes.Repo{"core": {RepoID: "core", Root: "core"}}

	result, err := svc.Resolve(ctx, "WidgetRender", overlayID, baselineID, []string{"core"}, repos, t.TempDir(), 100)
	require.NoError(t, err)
	require.Contains(t, result.FileKeys, coretypes.FileKey("core:a.cpp"))
	require.NotContains(t, result.FileKeys, coretypes.FileKey("core:b.cpp"))
	require.True(t, result.Deleted["core:b.cpp"])
	require.NotEmpty(t, result.Warnings)
}
