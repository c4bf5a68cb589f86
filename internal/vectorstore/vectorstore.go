// Package vectorstore exposes the narrow surface the commit-diff-
// embedding module needs from Storage without pulling the embedding
// pipeline itself into this port. Per spec.md §7, a vector extension
// unavailable while enableVectorFeatures is on must fail startup
// outright rather than degrade silently, so New refuses to build a
// working Store at all when the knob is set; the only Store this repo
// ever constructs is the disabled stub.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cxxtract/cxxtract-go/internal/config"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// ErrVectorFeaturesDisabled is returned by every Store method when the
// embedding pipeline is not built into this binary, which today is
// always.
var ErrVectorFeaturesDisabled = errors.New("vector features disabled: no vector extension is available in this build")

// Store is the commit-diff-embedding module's storage-layer dependency:
// record a commit's diff summary, and look up similar ones by
// embedding distance once a real implementation exists.
type Store interface {
	UpsertSummary(ctx context.Context, s coretypes.CommitDiffSummary) error
	SearchByEmbedding(ctx context.Context, workspaceID string, embedding []float32, topK int) ([]coretypes.CommitDiffSummary, error)
}

// New returns the disabled Store stub for cfg. It returns a
// cxxerrors.FatalError instead when cfg.Enabled is true: this port has
// no working vector extension, so enabling the feature can only ever
// silently produce empty search results, which the spec rules out.
// Callers should treat this as a startup failure, not a degraded mode.
func New(cfg config.Vector, store *storage.Engine) (Store, error) {
	if cfg.Enabled {
		return nil, cxxerrors.NewFatalError(
			"enableVectorFeatures is set but no vector extension is available in this build",
			fmt.Errorf("commitEmbeddingDim=%d cannot be served", cfg.CommitEmbedDims),
		)
	}
	return disabledStore{store: store}, nil
}

// disabledStore accepts no writes and serves no searches; it still
// shares the Storage Engine's commit_diff_summaries schema because
// UpsertSummary stays ready to work the moment a real embedding
// pipeline lands, without another migration.
type disabledStore struct {
	store *storage.Engine
}

func (disabledStore) UpsertSummary(ctx context.Context, s coretypes.CommitDiffSummary) error {
	return ErrVectorFeaturesDisabled
}

func (disabledStore) SearchByEmbedding(ctx context.Context, workspaceID string, embedding []float32, topK int) ([]coretypes.CommitDiffSummary, error) {
	return nil, ErrVectorFeaturesDisabled
}
