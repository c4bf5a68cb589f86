// Package orchestrator composes every other component into the
// engine's four query operations (definition, references, call graph,
// file symbols) plus workspace/context lifecycle management and cache
// invalidation. Its collaborators are constructed by the caller
// (cmd/cxxtract's buildEngine, or tests) and passed to New; only the
// per-query candidate service and path resolver are built here.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/engine.py's
// OrchestratorEngine: the same _prepare (resolve workspace → resolve
// context → candidate repos → compile DBs) shared by every query,
// recall→freshness→parse→persist→read pipeline per query, and the
// same register/get/refresh-workspace, create/expire-context, and
// invalidate-cache operations. The webhook-ingestion and commit-diff
// summary surface the original exposes are out of scope here — they
// sit behind the vector side-store's narrow stub interface, not the
// core query pipeline this package composes.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cxxtract/cxxtract-go/internal/candidate"
	"github.com/cxxtract/cxxtract-go/internal/compiledb"
	"github.com/cxxtract/cxxtract-go/internal/confidence"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/ctxsvc"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
	"github.com/cxxtract/cxxtract-go/internal/freshness"
	"github.com/cxxtract/cxxtract-go/internal/manifest"
	"github.com/cxxtract/cxxtract-go/internal/parserpool"
	"github.com/cxxtract/cxxtract-go/internal/pathresolver"
	"github.com/cxxtract/cxxtract-go/internal/reader"
	"github.com/cxxtract/cxxtract-go/internal/recall"
	"github.com/cxxtract/cxxtract-go/internal/storage"
	"github.com/cxxtract/cxxtract-go/internal/writer"
)

// Options holds the engine-wide defaults every query falls back to
// when a request doesn't override them.
type Options struct {
	MaxRecallFiles  int
	MaxParseWorkers int64
	MaxRepoHops     int
	RecallOpts      recall.Options

	// WatchManifests starts an fsnotify watch on each workspace's
	// manifest file as it is registered, calling RefreshWorkspaceManifest
	// on write/rename events instead of waiting for the next explicit
	// refresh_workspace_manifest call.
	WatchManifests bool
}

func (o Options) withDefaults() Options {
	if o.MaxRecallFiles <= 0 {
		o.MaxRecallFiles = 200
	}
	if o.MaxParseWorkers <= 0 {
		o.MaxParseWorkers = 4
	}
	if o.MaxRepoHops <= 0 {
		o.MaxRepoHops = 2
	}
	return o
}

// Engine is the multi-repo query engine. It owns no long-lived state
// of its own beyond its collaborators; all durable state lives in
// store.
type Engine struct {
	store      *storage.Engine
	ctxService *ctxsvc.Service
	freshSvc   *freshness.Service
	pool       *parserpool.Pool
	writerSvc  *writer.Writer
	rdr        *reader.Reader
	opts       Options

	watchMu  sync.Mutex
	watchers map[string]*manifest.Watcher
}

// New wires every component into one Engine. candidate.Service needs a
// per-workspace path resolver, so it is constructed per query inside
// resolveAndFreshen rather than held here.
func New(store *storage.Engine, ctxService *ctxsvc.Service, freshSvc *freshness.Service, pool *parserpool.Pool, writerSvc *writer.Writer, rdr *reader.Reader, opts Options) *Engine {
	return &Engine{
		store:      store,
		ctxService: ctxService,
		freshSvc:   freshSvc,
		pool:       pool,
		writerSvc:  writerSvc,
		rdr:        rdr,
		opts:       opts.withDefaults(),
		watchers:   make(map[string]*manifest.Watcher),
	}
}

// Close stops every manifest watcher started by RegisterWorkspace.
// Callers that set Options.WatchManifests should defer this alongside
// the storage Engine and Writer shutdown.
func (eng *Engine) Close() error {
	eng.watchMu.Lock()
	defer eng.watchMu.Unlock()
	for workspaceID, w := range eng.watchers {
		if err := w.Close(); err != nil {
			log.Printf("orchestrator: closing manifest watcher for %s: %v", workspaceID, err)
		}
	}
	eng.watchers = make(map[string]*manifest.Watcher)
	return nil
}

// Scope bounds a query to a set of entry repos, a dependency-hop
// limit, and per-repo compile-db path overrides.
type Scope struct {
	EntryRepos    []string
	MaxRepoHops   int
	RepoOverrides map[string]string
}

// ContextSelector carries the caller's requested analysis context.
type ContextSelector struct {
	Mode      coretypes.ContextMode
	ContextID string
	PRID      string
}

// QueryRequest is shared by the three symbol-shaped queries.
type QueryRequest struct {
	WorkspaceID     string
	Symbol          string
	Context         ContextSelector
	Scope           Scope
	MaxRecallFiles  int
	MaxParseWorkers int64
}

// prepared carries everything shared by every query after the common
// resolve-workspace / resolve-context / candidate-repos / compile-db
// prelude.
type prepared struct {
	workspaceRoot string
	manifest      *coretypes.Manifest
	resolver      *pathresolver.Resolver
	contextID     string
	baselineID    string
	overlayMode   coretypes.OverlayMode
	repoIDs       []string
	compileDBs    map[string]*compiledb.Index
}

func (eng *Engine) prepare(ctx context.Context, workspaceID string, sel ContextSelector, scope Scope) (prepared, error) {
	ws, found, err := eng.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return prepared{}, err
	}
	if !found {
		return prepared{}, cxxerrors.NewValidationError("workspace_id", workspaceID, fmt.Errorf("workspace not registered"))
	}

	mf, err := eng.ctxService.ResolveWorkspace(ctx, workspaceID, ws.RootPath, ws.ManifestPath, false)
	if err != nil {
		return prepared{}, err
	}

	contextID, baselineID, overlayMode, err := eng.ctxService.ResolveContexts(ctx, ctxsvc.ContextRequest{
		WorkspaceID: workspaceID, Mode: sel.Mode, ContextID: sel.ContextID, PRID: sel.PRID,
	})
	if err != nil {
		return prepared{}, err
	}
	if err := eng.store.TouchContext(ctx, contextID); err != nil {
		return prepared{}, err
	}

	hops := scope.MaxRepoHops
	if hops <= 0 {
		hops = eng.opts.MaxRepoHops
	}
	repoIDs := ctxsvc.CandidateRepos(mf, scope.EntryRepos, hops)

	resolver, err := pathresolver.New(ws.RootPath, mf)
	if err != nil {
		return prepared{}, err
	}

	compileDBs, err := eng.ctxService.ResolveCompileDBs(workspaceID, ws.RootPath, mf, repoIDs, scope.RepoOverrides)
	if err != nil {
		return prepared{}, err
	}

	return prepared{
		workspaceRoot: ws.RootPath,
		manifest:      mf,
		resolver:      resolver,
		contextID:     contextID,
		baselineID:    baselineID,
		overlayMode:   overlayMode,
		repoIDs:       repoIDs,
		compileDBs:    compileDBs,
	}, nil
}

// resolveAndFreshen runs the recall → freshness → parse → persist
// portion of the pipeline shared by every symbol query, returning the
// candidate file keys, the overlay-deleted set to exclude from reads,
// the classification needed for the confidence envelope, and any
// warnings accumulated along the way.
func (eng *Engine) resolveAndFreshen(ctx context.Context, symbol string, p prepared, maxRecallFiles int, maxParseWorkers int64) (candidateKeys []coretypes.FileKey, excluded map[coretypes.FileKey]bool, fresh, failed, unparsed []coretypes.FileKey, warnings []string, err error) {
	if maxRecallFiles <= 0 {
		maxRecallFiles = eng.opts.MaxRecallFiles
	}
	if maxParseWorkers <= 0 {
		maxParseWorkers = eng.opts.MaxParseWorkers
	}

	repos := make(map[string]coretypes.Repo, len(p.manifest.Repos))
	for _, r := range p.manifest.Repos {
		repos[r.RepoID] = r
	}

	candSvc := candidate.New(eng.store, p.resolver, eng.opts.RecallOpts)
	result, err := candSvc.Resolve(ctx, symbol, p.contextID, p.baselineID, p.repoIDs, repos, p.workspaceRoot, maxRecallFiles)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	warnings = append(warnings, result.Warnings...)

	classification, err := eng.freshSvc.Classify(ctx, p.contextID, result.FileKeys, p.compileDBs, p.resolver)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	parseResults := eng.pool.Run(ctx, classification.Tasks)
	var parsed []coretypes.FileKey
	for _, r := range parseResults {
		if r.Task.MatchType == coretypes.MatchTypeFallback {
			warnings = append(warnings, fmt.Sprintf("fallback[%s]: compile entry resolved by fallback, not exact match", r.Task.FileKey))
		}
		if r.Err != nil {
			failed = append(failed, r.Task.FileKey)
			warnings = append(warnings, fmt.Sprintf("parse[%s]: %v", r.Task.FileKey, r.Err))
			continue
		}
		if err := eng.writerSvc.Enqueue(ctx, *r.Payload); err != nil {
			failed = append(failed, r.Task.FileKey)
			warnings = append(warnings, fmt.Sprintf("persist[%s]: %v", r.Task.FileKey, err))
			continue
		}
		parsed = append(parsed, r.Task.FileKey)
	}
	if err := eng.writerSvc.Flush(ctx); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	fresh = append(append([]coretypes.FileKey{}, classification.Fresh...), parsed...)
	return result.FileKeys, result.Deleted, fresh, failed, classification.Unparsed, warnings, nil
}

func (eng *Engine) contextChain(p prepared) []string {
	if p.contextID == p.baselineID {
		return []string{p.contextID}
	}
	return []string{p.contextID, p.baselineID}
}

// DefinitionResult is the response shape for QueryDefinition.
type DefinitionResult struct {
	Symbol      string
	Definitions []storage.SymbolHit
	Confidence  coretypes.ConfidenceEnvelope
}

// QueryDefinition resolves every matching definition for a symbol.
func (eng *Engine) QueryDefinition(ctx context.Context, req QueryRequest) (DefinitionResult, error) {
	p, err := eng.prepare(ctx, req.WorkspaceID, req.Context, req.Scope)
	if err != nil {
		return DefinitionResult{}, err
	}
	candidates, excluded, fresh, failed, unparsed, warnings, err := eng.resolveAndFreshen(ctx, req.Symbol, p, req.MaxRecallFiles, req.MaxParseWorkers)
	if err != nil {
		return DefinitionResult{}, err
	}

	defs, err := eng.rdr.LoadDefinitions(ctx, req.Symbol, reader.Scope{
		ContextChain: eng.contextChain(p), CandidateFileKeys: toSet(candidates), ExcludedFileKeys: excluded,
	})
	if err != nil {
		return DefinitionResult{}, err
	}

	return DefinitionResult{
		Symbol:      req.Symbol,
		Definitions: defs,
		Confidence:  confidence.Build(fresh, failed, unparsed, warnings, p.overlayMode),
	}, nil
}

// ReferencesResult is the response shape for QueryReferences.
type ReferencesResult struct {
	Symbol     string
	Definition *storage.SymbolHit
	References []storage.ReferenceHit
	Confidence coretypes.ConfidenceEnvelope
}

// QueryReferences resolves a symbol's definition plus every reference.
func (eng *Engine) QueryReferences(ctx context.Context, req QueryRequest) (ReferencesResult, error) {
	p, err := eng.prepare(ctx, req.WorkspaceID, req.Context, req.Scope)
	if err != nil {
		return ReferencesResult{}, err
	}
	candidates, excluded, fresh, failed, unparsed, warnings, err := eng.resolveAndFreshen(ctx, req.Symbol, p, req.MaxRecallFiles, req.MaxParseWorkers)
	if err != nil {
		return ReferencesResult{}, err
	}

	scope := reader.Scope{ContextChain: eng.contextChain(p), CandidateFileKeys: toSet(candidates), ExcludedFileKeys: excluded}
	def, found, err := eng.rdr.LoadDefinition(ctx, req.Symbol, scope)
	if err != nil {
		return ReferencesResult{}, err
	}
	refs, err := eng.rdr.LoadReferences(ctx, req.Symbol, scope)
	if err != nil {
		return ReferencesResult{}, err
	}

	var defPtr *storage.SymbolHit
	if found {
		defPtr = &def
	}
	return ReferencesResult{
		Symbol:     req.Symbol,
		Definition: defPtr,
		References: refs,
		Confidence: confidence.Build(fresh, failed, unparsed, warnings, p.overlayMode),
	}, nil
}

// CallGraphResult is the response shape for QueryCallGraph.
type CallGraphResult struct {
	Symbol     string
	Edges      []storage.CallEdgeHit
	Confidence coretypes.ConfidenceEnvelope
}

// QueryCallGraph resolves caller/callee edges for a symbol.
func (eng *Engine) QueryCallGraph(ctx context.Context, req QueryRequest, direction reader.Direction) (CallGraphResult, error) {
	p, err := eng.prepare(ctx, req.WorkspaceID, req.Context, req.Scope)
	if err != nil {
		return CallGraphResult{}, err
	}
	candidates, excluded, fresh, failed, unparsed, warnings, err := eng.resolveAndFreshen(ctx, req.Symbol, p, req.MaxRecallFiles, req.MaxParseWorkers)
	if err != nil {
		return CallGraphResult{}, err
	}

	edges, err := eng.rdr.LoadCallEdges(ctx, req.Symbol, direction, reader.Scope{
		ContextChain: eng.contextChain(p), CandidateFileKeys: toSet(candidates), ExcludedFileKeys: excluded,
	})
	if err != nil {
		return CallGraphResult{}, err
	}

	return CallGraphResult{
		Symbol:     req.Symbol,
		Edges:      edges,
		Confidence: confidence.Build(fresh, failed, unparsed, warnings, p.overlayMode),
	}, nil
}

// FileSymbolsRequest is the request shape for QueryFileSymbols.
type FileSymbolsRequest struct {
	WorkspaceID     string
	FileKey         coretypes.FileKey
	Context         ContextSelector
	RepoOverrides   map[string]string
	MaxParseWorkers int64
}

// FileSymbolsResult is the response shape for QueryFileSymbols.
type FileSymbolsResult struct {
	FileKey    coretypes.FileKey
	Symbols    []storage.SymbolHit
	Confidence coretypes.ConfidenceEnvelope
}

// QueryFileSymbols resolves every symbol defined in one file, skipping
// the candidate-recall step since the file is already named.
func (eng *Engine) QueryFileSymbols(ctx context.Context, req FileSymbolsRequest) (FileSymbolsResult, error) {
	ws, found, err := eng.store.GetWorkspace(ctx, req.WorkspaceID)
	if err != nil {
		return FileSymbolsResult{}, err
	}
	if !found {
		return FileSymbolsResult{}, cxxerrors.NewValidationError("workspace_id", req.WorkspaceID, fmt.Errorf("workspace not registered"))
	}
	mf, err := eng.ctxService.ResolveWorkspace(ctx, req.WorkspaceID, ws.RootPath, ws.ManifestPath, false)
	if err != nil {
		return FileSymbolsResult{}, err
	}
	contextID, baselineID, overlayMode, err := eng.ctxService.ResolveContexts(ctx, ctxsvc.ContextRequest{
		WorkspaceID: req.WorkspaceID, Mode: req.Context.Mode, ContextID: req.Context.ContextID, PRID: req.Context.PRID,
	})
	if err != nil {
		return FileSymbolsResult{}, err
	}
	if err := eng.store.TouchContext(ctx, contextID); err != nil {
		return FileSymbolsResult{}, err
	}
	chain := []string{contextID}
	if contextID != baselineID {
		chain = []string{contextID, baselineID}
	}

	resolver, err := pathresolver.New(ws.RootPath, mf)
	if err != nil {
		return FileSymbolsResult{}, err
	}

	repoID, _, ok := splitFileKeyLocal(req.FileKey)
	if !ok {
		env := confidence.Build(nil, nil, []coretypes.FileKey{req.FileKey}, []string{"invalid_file_key"}, overlayMode)
		return FileSymbolsResult{FileKey: req.FileKey, Confidence: env}, nil
	}

	compileDBs, err := eng.ctxService.ResolveCompileDBs(req.WorkspaceID, ws.RootPath, mf, []string{repoID}, req.RepoOverrides)
	if err != nil {
		return FileSymbolsResult{}, err
	}

	classification, err := eng.freshSvc.Classify(ctx, contextID, []coretypes.FileKey{req.FileKey}, compileDBs, resolver)
	if err != nil {
		return FileSymbolsResult{}, err
	}

	var warnings []string
	var parsed, failed []coretypes.FileKey
	if len(classification.Tasks) > 0 {
		results := eng.pool.Run(ctx, classification.Tasks)
		for _, r := range results {
			if r.Task.MatchType == coretypes.MatchTypeFallback {
				warnings = append(warnings, fmt.Sprintf("fallback[%s]: compile entry resolved by fallback, not exact match", r.Task.FileKey))
			}
			if r.Err != nil {
				failed = append(failed, r.Task.FileKey)
				warnings = append(warnings, fmt.Sprintf("parse[%s]: %v", r.Task.FileKey, r.Err))
				continue
			}
			if err := eng.writerSvc.Enqueue(ctx, *r.Payload); err != nil {
				failed = append(failed, r.Task.FileKey)
				continue
			}
			parsed = append(parsed, r.Task.FileKey)
		}
		if err := eng.writerSvc.Flush(ctx); err != nil {
			return FileSymbolsResult{}, err
		}
	}

	symbols, err := eng.rdr.LoadFileSymbols(ctx, req.FileKey, chain)
	if err != nil {
		return FileSymbolsResult{}, err
	}

	fresh := append(append([]coretypes.FileKey{}, classification.Fresh...), parsed...)
	return FileSymbolsResult{
		FileKey:    req.FileKey,
		Symbols:    symbols,
		Confidence: confidence.Build(fresh, failed, classification.Unparsed, warnings, overlayMode),
	}, nil
}

// InvalidateCache clears cached facts for a context, or for specific
// file keys within it when fileKeys is non-nil.
func (eng *Engine) InvalidateCache(ctx context.Context, workspaceID, contextID string, fileKeys []coretypes.FileKey) (int, string, error) {
	if contextID == "" {
		baseline, err := eng.store.EnsureBaselineContext(ctx, workspaceID)
		if err != nil {
			return 0, "", err
		}
		contextID = baseline
	}

	if fileKeys == nil {
		count, err := eng.store.ClearContext(ctx, contextID)
		if err != nil {
			return 0, "", err
		}
		return count, fmt.Sprintf("invalidated context cache %s (%d files)", contextID, count), nil
	}

	count := 0
	for _, fk := range fileKeys {
		_, found, err := eng.store.GetTrackedFile(ctx, contextID, fk)
		if err != nil {
			return 0, "", err
		}
		if found {
			if err := eng.store.DeleteTrackedFile(ctx, contextID, fk); err != nil {
				return 0, "", err
			}
			count++
		}
	}
	return count, fmt.Sprintf("invalidated %d of %d requested file keys", count, len(fileKeys)), nil
}

// RegisterWorkspace registers a new workspace and loads its manifest.
func (eng *Engine) RegisterWorkspace(ctx context.Context, workspaceID, rootPath, manifestPath string) (coretypes.Workspace, *coretypes.Manifest, string, error) {
	if err := eng.store.UpsertWorkspace(ctx, workspaceID, rootPath, manifestPath); err != nil {
		return coretypes.Workspace{}, nil, "", err
	}
	mf, err := eng.ctxService.ResolveWorkspace(ctx, workspaceID, rootPath, manifestPath, true)
	if err != nil {
		return coretypes.Workspace{}, nil, "", err
	}
	baseline, err := eng.store.EnsureBaselineContext(ctx, workspaceID)
	if err != nil {
		return coretypes.Workspace{}, nil, "", err
	}
	if eng.opts.WatchManifests {
		eng.startManifestWatch(workspaceID, manifestPath)
	}
	return coretypes.Workspace{WorkspaceID: workspaceID, RootPath: rootPath, ManifestPath: manifestPath}, mf, baseline, nil
}

// startManifestWatch watches manifestPath and triggers
// RefreshWorkspaceManifest on write/rename events, replacing any
// earlier watcher for workspaceID (registering the same workspace
// again with a different manifest path is legal). Logged, not fatal,
// since a live query path already exists via the explicit
// refresh_workspace_manifest tool.
func (eng *Engine) startManifestWatch(workspaceID, manifestPath string) {
	eng.watchMu.Lock()
	defer eng.watchMu.Unlock()

	if existing, ok := eng.watchers[workspaceID]; ok {
		_ = existing.Close()
		delete(eng.watchers, workspaceID)
	}

	w, err := manifest.Watch(manifestPath, func(string) {
		if _, err := eng.RefreshWorkspaceManifest(context.Background(), workspaceID); err != nil {
			log.Printf("orchestrator: manifest watch refresh for %s failed: %v", workspaceID, err)
		}
	})
	if err != nil {
		log.Printf("orchestrator: watching manifest %s for %s: %v", manifestPath, workspaceID, err)
		return
	}
	eng.watchers[workspaceID] = w
}

// GetWorkspaceInfo reports a workspace's repos and active contexts.
func (eng *Engine) GetWorkspaceInfo(ctx context.Context, workspaceID string) (coretypes.Workspace, *coretypes.Manifest, []string, error) {
	ws, found, err := eng.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return coretypes.Workspace{}, nil, nil, err
	}
	if !found {
		return coretypes.Workspace{}, nil, nil, cxxerrors.NewValidationError("workspace_id", workspaceID, fmt.Errorf("workspace not registered"))
	}
	mf, err := eng.ctxService.ResolveWorkspace(ctx, workspaceID, ws.RootPath, ws.ManifestPath, false)
	if err != nil {
		return coretypes.Workspace{}, nil, nil, err
	}
	active, err := eng.store.ListActiveContexts(ctx, workspaceID)
	if err != nil {
		return coretypes.Workspace{}, nil, nil, err
	}
	ids := make([]string, 0, len(active))
	for _, ac := range active {
		ids = append(ids, ac.ContextID)
	}
	return ws, mf, ids, nil
}

// RefreshWorkspaceManifest forces a manifest reload, re-syncing repos.
func (eng *Engine) RefreshWorkspaceManifest(ctx context.Context, workspaceID string) (*coretypes.Manifest, error) {
	ws, found, err := eng.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cxxerrors.NewValidationError("workspace_id", workspaceID, fmt.Errorf("workspace not registered"))
	}
	return eng.ctxService.ResolveWorkspace(ctx, workspaceID, ws.RootPath, ws.ManifestPath, true)
}

// CreatePROverlay creates (or reuses, if contextID already names one) a
// PR overlay context rooted at the workspace's baseline.
func (eng *Engine) CreatePROverlay(ctx context.Context, workspaceID, contextID, prID string) (coretypes.AnalysisContext, error) {
	baseline, err := eng.store.EnsureBaselineContext(ctx, workspaceID)
	if err != nil {
		return coretypes.AnalysisContext{}, err
	}
	if contextID == "" {
		suffix := prID
		if suffix == "" {
			suffix = "overlay"
		}
		contextID = fmt.Sprintf("%s:pr:%s", workspaceID, suffix)
	}
	if err := eng.store.UpsertAnalysisContext(ctx, coretypes.AnalysisContext{
		ContextID: contextID, WorkspaceID: workspaceID, Mode: coretypes.ContextModePR,
		BaseContextID: baseline,
	}); err != nil {
		return coretypes.AnalysisContext{}, err
	}
	ac, _, err := eng.store.GetAnalysisContext(ctx, contextID)
	return ac, err
}

// ExpireContext marks a context expired so chain walks no longer see
// it. Returns false if the context didn't exist.
func (eng *Engine) ExpireContext(ctx context.Context, contextID string) (bool, error) {
	return eng.store.ExpireContext(ctx, contextID)
}

// EnqueueRepoSync queues a repo-sync job against the job queue
// internal/reposync's worker pool drains.
func (eng *Engine) EnqueueRepoSync(ctx context.Context, job coretypes.RepoSyncJob) error {
	return eng.store.InsertRepoSyncJob(ctx, job)
}

func toSet(keys []coretypes.FileKey) map[coretypes.FileKey]bool {
	set := make(map[coretypes.FileKey]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

func splitFileKeyLocal(fk coretypes.FileKey) (repoID, relPath string, ok bool) {
	s := string(fk)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
