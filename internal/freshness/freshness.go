// Package freshness classifies each candidate file as fresh, stale, or
// unparsed by comparing a freshly computed composite hash against the
// one recorded at last parse, and emits parse tasks for everything that
// needs re-parsing.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/services/freshness_service.py's
// FreshnessService.classify: a file with no cached composite hash is
// stale by definition (never parsed in this context); a file the
// compile-db doesn't cover at all is unparsed (no flags to parse it
// with); otherwise the current content hash is combined with the
// entry's flags hash and the *previously recorded* includes hash —
// exactly as the original does — to get a directly comparable composite
// hash, since include-set changes are caught by an explicit dependent
// invalidation elsewhere (the Orchestrator's invalidateCache), not by
// this comparison.
package freshness

import (
	"context"
	"os"
	"strings"

	"github.com/cxxtract/cxxtract-go/internal/compiledb"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/hashutil"
	"github.com/cxxtract/cxxtract-go/internal/pathresolver"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Classification is the outcome of freshness-checking one candidate
// file set.
type Classification struct {
	Fresh    []coretypes.FileKey
	Stale    []coretypes.FileKey
	Unparsed []coretypes.FileKey
	Tasks    []coretypes.ParseTask
}

// Service classifies freshness against one storage engine.
type Service struct {
	store *storage.Engine
}

// New builds a freshness Service over store.
func New(store *storage.Engine) *Service {
	return &Service{store: store}
}

// Classify walks fileKeys, consulting compileDBs (keyed by repo ID) and
// resolver for each file's location and compile flags.
func (s *Service) Classify(ctx context.Context, contextID string, fileKeys []coretypes.FileKey, compileDBs map[string]*compiledb.Index, resolver *pathresolver.Resolver) (Classification, error) {
	var result Classification

	for _, fileKey := range fileKeys {
		repoID, relPath, ok := splitFileKey(fileKey)
		if !ok {
			result.Unparsed = append(result.Unparsed, fileKey)
			continue
		}
		absPath, ok := resolver.FileKeyToAbsPath(fileKey)
		if !ok {
			result.Unparsed = append(result.Unparsed, fileKey)
			continue
		}

		cdb := compileDBs[repoID]
		if cdb == nil {
			result.Unparsed = append(result.Unparsed, fileKey)
			continue
		}
		entry, matchType := cdb.Lookup(absPath)
		if matchType == coretypes.MatchTypeMissing {
			result.Unparsed = append(result.Unparsed, fileKey)
			continue
		}

		task := coretypes.ParseTask{
			ContextID: contextID,
			FileKey:   fileKey,
			RepoID:    repoID,
			RelPath:   relPath,
			AbsPath:   absPath,
			Entry:     coretypes.CompileEntry(entry),
			MatchType: matchType,
		}

		cachedHash, ok, err := s.store.GetCompositeHash(ctx, contextID, fileKey)
		if err != nil {
			return Classification{}, err
		}
		if !ok {
			result.Stale = append(result.Stale, fileKey)
			result.Tasks = append(result.Tasks, task)
			continue
		}

		tracked, _, err := s.store.GetTrackedFile(ctx, contextID, fileKey)
		if err != nil {
			return Classification{}, err
		}

		content, readErr := os.ReadFile(absPath)
		if readErr != nil {
			content = nil
		}
		currentHash := hashutil.CompositeHash(hashutil.ContentHash(content), tracked.IncludesHash, entry.FlagsHash)

		if currentHash == cachedHash {
			result.Fresh = append(result.Fresh, fileKey)
		} else {
			result.Stale = append(result.Stale, fileKey)
			result.Tasks = append(result.Tasks, task)
		}
	}

	return result, nil
}

func splitFileKey(fileKey coretypes.FileKey) (repoID, relPath string, ok bool) {
	s := string(fileKey)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}
