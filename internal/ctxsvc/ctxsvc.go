// Package ctxsvc resolves a workspace's manifest and compile databases,
// and resolves or creates the analysis context (baseline or PR overlay)
// a query runs against.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/services/workspace_context_service.py's
// WorkspaceContextService: resolve_workspace reloads and persists the
// manifest's repo list, resolve_contexts either pins the caller to the
// baseline or creates/reuses a PR overlay rooted at it, candidate_repos
// does a bounded-hop BFS over the dependency graph, and
// resolve_compile_dbs loads one CompilationDatabase per repo, cached by
// (workspace, repo, path) so repeated queries don't re-parse
// compile_commands.json every time.
package ctxsvc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cxxtract/cxxtract-go/internal/compiledb"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
	"github.com/cxxtract/cxxtract-go/internal/encoding"
	"github.com/cxxtract/cxxtract-go/internal/manifest"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Service resolves workspaces, contexts, and compile databases against
// one storage engine, caching loaded manifests and compile databases
// across calls.
type Service struct {
	store *storage.Engine

	mu          sync.Mutex
	manifests   map[string]*coretypes.Manifest
	compileDBs  map[string]*compiledb.Index
}

// New builds a Service over store.
func New(store *storage.Engine) *Service {
	return &Service{
		store:      store,
		manifests:  make(map[string]*coretypes.Manifest),
		compileDBs: make(map[string]*compiledb.Index),
	}
}

// ResolveWorkspace loads the workspace's manifest (from cache unless
// reload is requested) and syncs its repo list into storage.
func (s *Service) ResolveWorkspace(ctx context.Context, workspaceID, workspaceRoot, manifestPath string, reload bool) (*coretypes.Manifest, error) {
	s.mu.Lock()
	mf, cached := s.manifests[manifestPath]
	s.mu.Unlock()

	if reload || !cached {
		loaded, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, cxxerrors.NewValidationError("manifest_path", manifestPath, err)
		}
		mf = loaded
		s.mu.Lock()
		s.manifests[manifestPath] = mf
		s.mu.Unlock()
	}

	if err := s.store.UpsertWorkspace(ctx, workspaceID, workspaceRoot, manifestPath); err != nil {
		return nil, err
	}
	if _, err := s.store.ReplaceWorkspaceRepos(ctx, workspaceID, mf.Repos); err != nil {
		return nil, err
	}
	return mf, nil
}

// ContextRequest describes what analysis context a caller wants to
// query against.
type ContextRequest struct {
	WorkspaceID string
	Mode        coretypes.ContextMode
	ContextID   string // caller-supplied, optional
	PRID        string // optional, used to name a new PR overlay
}

// ResolveContexts returns the context to query (contextID), the
// workspace's baseline context, and the resolved context's overlay
// mode. A baseline-mode request with no context_id, or a request that
// names no mode, context_id or PR id at all, is pinned to the baseline
// itself; any other request with no context_id creates (or reuses, if
// one already exists under that name) a PR overlay rooted at the
// baseline.
func (s *Service) ResolveContexts(ctx context.Context, req ContextRequest) (contextID, baselineID string, overlayMode coretypes.OverlayMode, err error) {
	baselineID, err = s.store.EnsureBaselineContext(ctx, req.WorkspaceID)
	if err != nil {
		return "", "", "", err
	}

	if req.Mode == coretypes.ContextModeBaseline || (req.Mode == "" && req.ContextID == "" && req.PRID == "") {
		contextID = req.ContextID
		if contextID == "" {
			contextID = baselineID
		}
		if err := s.store.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
			ContextID: contextID, WorkspaceID: req.WorkspaceID, Mode: coretypes.ContextModeBaseline,
		}); err != nil {
			return "", "", "", err
		}
		return contextID, baselineID, coretypes.OverlayModeSparse, nil
	}

	contextID = req.ContextID
	if contextID == "" {
		suffix := req.PRID
		if suffix == "" {
			suffix, err = randomBase63(8)
			if err != nil {
				return "", "", "", err
			}
		}
		contextID = fmt.Sprintf("%s:pr:%s", req.WorkspaceID, suffix)
	}
	if err := s.store.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
		ContextID: contextID, WorkspaceID: req.WorkspaceID, Mode: coretypes.ContextModePR, BaseContextID: baselineID,
	}); err != nil {
		return "", "", "", err
	}

	ac, found, err := s.store.GetAnalysisContext(ctx, contextID)
	if err != nil {
		return "", "", "", err
	}
	mode := coretypes.OverlayModeSparse
	if found && ac.OverlayMode != "" {
		mode = ac.OverlayMode
	}
	return contextID, baselineID, mode, nil
}

// CandidateRepos does a bounded-hop breadth-first walk over the
// manifest's dependency graph starting from entryRepos. An empty
// entryRepos returns every repo in the manifest (sorted by ID), the
// same as the original's "no scope given" default.
func CandidateRepos(mf *coretypes.Manifest, entryRepos []string, hops int) []string {
	repoMap := manifest.RepoMap(mf)
	if len(entryRepos) == 0 {
		return sortedKeys(repoMap)
	}

	type frame struct {
		repoID string
		depth  int
	}
	queue := make([]frame, 0, len(entryRepos))
	for _, r := range entryRepos {
		if _, ok := repoMap[r]; ok {
			queue = append(queue, frame{r, 0})
		}
	}

	seen := make(map[string]bool)
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if seen[f.repoID] {
			continue
		}
		seen[f.repoID] = true
		if f.depth >= hops {
			continue
		}
		for _, dep := range repoMap[f.repoID].DependsOn {
			if _, ok := repoMap[dep]; ok && !seen[dep] {
				queue = append(queue, frame{dep, f.depth + 1})
			}
		}
	}
	return sortedKeys(pick(repoMap, seen))
}

// CompileDB loads (or returns the cached) compilation database for one
// repo. A repo with no compile_commands configured returns (nil, nil).
func (s *Service) CompileDB(workspaceID, workspaceRoot, repoID, repoRoot, compileCommands string) (*compiledb.Index, error) {
	if compileCommands == "" {
		return nil, nil
	}
	ccPath := compileCommands
	if !filepath.IsAbs(ccPath) {
		ccPath = filepath.Join(workspaceRoot, ccPath)
	}
	key := workspaceID + "|" + repoID + "|" + ccPath

	s.mu.Lock()
	cached, ok := s.compileDBs[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	idx, err := compiledb.Load(ccPath)
	if err != nil {
		return nil, nil // matches the original: a load failure degrades to "no compile db"; the error is dropped here, not logged
	}

	s.mu.Lock()
	s.compileDBs[key] = idx
	s.mu.Unlock()
	return idx, nil
}

// ResolveCompileDBs resolves one compile database per repoID, in the
// manifest's repo configuration unless a repoOverride path is given.
func (s *Service) ResolveCompileDBs(workspaceID, workspaceRoot string, mf *coretypes.Manifest, repoIDs []string, repoOverrides map[string]string) (map[string]*compiledb.Index, error) {
	repoMap := manifest.RepoMap(mf)
	resolved := make(map[string]*compiledb.Index, len(repoIDs))
	for _, repoID := range repoIDs {
		cfg, ok := repoMap[repoID]
		if !ok {
			resolved[repoID] = nil
			continue
		}
		ccPath := cfg.CompileCommands
		if override, ok := repoOverrides[repoID]; ok && override != "" {
			ccPath = override
		}
		idx, err := s.CompileDB(workspaceID, workspaceRoot, repoID, cfg.Root, ccPath)
		if err != nil {
			return nil, err
		}
		resolved[repoID] = idx
	}
	return resolved, nil
}

func sortedKeys(m map[string]coretypes.Repo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pick(m map[string]coretypes.Repo, keep map[string]bool) map[string]coretypes.Repo {
	out := make(map[string]coretypes.Repo, len(keep))
	for k := range keep {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func randomBase63(n int) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", cxxerrors.NewFatalError("random overlay suffix generation failed", err)
	}
	v := binary.BigEndian.Uint64(buf[:])
	enc := encoding.Base63Encode(v)
	if len(enc) > n {
		enc = enc[:n]
	}
	return enc, nil
}
