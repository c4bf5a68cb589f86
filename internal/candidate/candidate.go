// Package candidate builds a context's file candidate set for one
// symbol query: the union of baseline FTS recall, overlay FTS recall,
// and a live lexical-search fallback across the repos in scope, then
// applies the overlay's recorded file-state claims (added/modified/
// renamed/deleted) to mask out anything the overlay has superseded.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/services/candidate_service.py's
// CandidateService: the same three-source merge (baseline wins by
// default, overlay always wins, rg fills recall gaps) and the same
// file-state precedence rules in resolve_candidates. The per-repo rg
// fan-out is parallelized with golang.org/x/sync/errgroup (the sibling
// of the x/sync/semaphore package the Parser Pool uses for its bounded
// concurrency) instead of the original's sequential early-break loop, since Go
// naturally wants that fan-out concurrent and an early break only saved
// the Python interpreter's GIL-bound loop overhead.
package candidate

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/pathresolver"
	"github.com/cxxtract/cxxtract-go/internal/recall"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Source reports which layer contributed a candidate, used by callers
// that want to weight or explain results.
type Source string

const (
	SourceBaseline Source = "baseline"
	SourceOverlay  Source = "overlay"
)

// Service resolves candidate file sets for symbol-shaped queries.
type Service struct {
	store      *storage.Engine
	resolver   *pathresolver.Resolver
	recallOpts recall.Options
}

// New builds a candidate Service over one workspace's storage engine
// and path resolver, using recallOpts for every live lexical-search
// fallback invocation.
func New(store *storage.Engine, resolver *pathresolver.Resolver, recallOpts recall.Options) *Service {
	return &Service{store: store, resolver: resolver, recallOpts: recallOpts}
}

// Result is the outcome of one candidate resolution.
type Result struct {
	FileKeys []coretypes.FileKey
	Deleted  map[coretypes.FileKey]bool
	Warnings []string
}

// Resolve builds the candidate set for symbol within contextID (an
// overlay or the baseline itself — baselineID is always the workspace's
// "{id}:baseline" context), scoped to repoIDs, capped at maxFiles.
func (s *Service) Resolve(ctx context.Context, symbol, contextID, baselineID string, repoIDs []string, repos map[string]coretypes.Repo, workspaceRoot string, maxFiles int) (Result, error) {
	baselineHits, err := s.store.SearchRecallCandidates(ctx, baselineID, symbol, repoIDs, maxFiles)
	if err != nil {
		return Result{}, err
	}

	var overlayHits []coretypes.FileKey
	if contextID != baselineID {
		overlayHits, err = s.store.SearchRecallCandidates(ctx, contextID, symbol, repoIDs, maxFiles)
		if err != nil {
			return Result{}, err
		}
	}

	rgKeys, warnings := s.rgFileKeys(ctx, symbol, workspaceRoot, repoIDs, repos, maxFiles)

	merged := make(map[coretypes.FileKey]Source, len(baselineHits)+len(rgKeys)+len(overlayHits))
	for _, k := range baselineHits {
		merged[k] = SourceBaseline
	}
	for k := range rgKeys {
		merged[k] = SourceBaseline
	}
	for _, k := range overlayHits {
		merged[k] = SourceOverlay
	}

	deleted := make(map[coretypes.FileKey]bool)

	if contextID != baselineID {
		states, err := s.store.GetContextFileStates(ctx, contextID)
		if err != nil {
			return Result{}, err
		}
		for _, st := range states {
			switch st.State {
			case coretypes.FileStateDeleted:
				delete(merged, st.FileKey)
				deleted[st.FileKey] = true
			case coretypes.FileStateModified, coretypes.FileStateAdded:
				merged[st.FileKey] = SourceOverlay
			case coretypes.FileStateRenamed:
				if st.ReplacedFromFileKey != "" {
					delete(merged, st.ReplacedFromFileKey)
					deleted[st.ReplacedFromFileKey] = true
				}
				merged[st.FileKey] = SourceOverlay
			}
		}
	}

	keys := make([]coretypes.FileKey, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
		if len(keys) >= maxFiles {
			break
		}
	}

	return Result{FileKeys: keys, Deleted: deleted, Warnings: warnings}, nil
}

// rgFileKeys fans out a lexical-search invocation per repo concurrently,
// resolving each hit's absolute path back to a file key. A per-repo
// search failure becomes a warning, never a hard error — recall
// coverage degrading in one repo shouldn't block candidates from the
// others.
func (s *Service) rgFileKeys(ctx context.Context, symbol, workspaceRoot string, repoIDs []string, repos map[string]coretypes.Repo, maxFiles int) (map[coretypes.FileKey]bool, []string) {
	divisor := len(repoIDs)
	if divisor < 1 {
		divisor = 1
	}
	perRepo := maxFiles / divisor
	if perRepo < 20 {
		perRepo = 20
	}

	keys := make(map[coretypes.FileKey]bool)
	var warnings []string
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, repoID := range repoIDs {
		repoID := repoID
		repoCfg, ok := repos[repoID]
		if !ok {
			continue
		}
		g.Go(func() error {
			repoRoot := filepath.Join(workspaceRoot, repoCfg.Root)
			opts := s.recallOpts
			opts.MaxFiles = perRepo
			hits, err := recall.Run(gctx, symbol, repoRoot, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, "recall["+repoID+"]: "+err.Error())
				return nil
			}
			for _, hit := range hits {
				abs := hit.FilePath
				if !filepath.IsAbs(abs) {
					abs = filepath.Join(repoRoot, abs)
				}
				if resolved, ok := s.resolver.ResolveFileKey(abs); ok {
					keys[resolved.FileKey] = true
				}
			}
			return nil
		})
	}
	// errgroup.Group.Go errors are always nil here (failures become
	// warnings), so Wait always returns nil.
	_ = g.Wait()

	return keys, warnings
}
