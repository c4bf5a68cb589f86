package confidence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

func TestBuild_ComputesRatiosAndCoverage(t *testing.T) {
	verified := []coretypes.FileKey{"core:a.cpp", "core:b.cpp", "plugin:x.cpp"}
	stale := []coretypes.FileKey{"core:c.cpp"}
	unparsed := []coretypes.FileKey{"plugin:y.cpp"}
	warnings := []string{"recall[core]: boom", "recall[core]: boom", "recall[plugin]: bust"}

	env := Build(verified, stale, unparsed, warnings, coretypes.OverlayModeSparse)

	require.Equal(t, 5, env.TotalCandidates)
	require.InDelta(t, 0.6, env.VerifiedRatio, 1e-9)
	require.InDelta(t, 2.0/3.0, env.RepoCoverage["core"], 1e-4)
	require.InDelta(t, 0.5, env.RepoCoverage["plugin"], 1e-9)
	require.Equal(t, []string{"recall[core]: boom", "recall[plugin]: bust"}, env.Warnings)
	require.Equal(t, coretypes.OverlayModeSparse, env.OverlayMode)
}

func TestBuild_EmptyInputIsZeroRatio(t *testing.T) {
	env := Build(nil, nil, nil, nil, coretypes.OverlayModeSparse)
	require.Equal(t, 0, env.TotalCandidates)
	require.Equal(t, 0.0, env.VerifiedRatio)
	require.Empty(t, env.RepoCoverage)
}
