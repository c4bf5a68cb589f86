// Package reader materializes query results with overlay-first
// context-chain semantics: each call walks a context chain (typically
// [overlay, baseline]) and returns the first hit per dedup key, so an
// overlay's edited view of a symbol always shadows the baseline's.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/services/query_read_service.py's
// QueryReadService — same four read shapes (load_definition(s),
// load_references, load_call_edges with a direction, load_file_symbols)
// over the same storage primitives, reshaped from the original's thin
// pass-through-and-wrap-into-a-pydantic-model functions into methods
// over the already-built internal/storage query primitives.
package reader

import (
	"context"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Direction selects which edges a call-graph query returns.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// Reader reads facts from one storage engine.
type Reader struct {
	store *storage.Engine
}

// New builds a Reader over store.
func New(store *storage.Engine) *Reader {
	return &Reader{store: store}
}

// Scope bounds a read to the chain of contexts to walk (overlay-first)
// and the candidate/excluded file-key sets the Candidate Service and
// Freshness Service computed for this query.
type Scope struct {
	ContextChain      []string
	CandidateFileKeys map[coretypes.FileKey]bool
	ExcludedFileKeys  map[coretypes.FileKey]bool
}

// LoadDefinition returns the first (highest-precedence) symbol
// definition matching name, or false if none matched.
func (r *Reader) LoadDefinition(ctx context.Context, name string, scope Scope) (storage.SymbolHit, bool, error) {
	hits, err := r.LoadDefinitions(ctx, name, scope)
	if err != nil || len(hits) == 0 {
		return storage.SymbolHit{}, false, err
	}
	return hits[0], true, nil
}

// LoadDefinitions returns every symbol definition matching name across
// the context chain, overlay rows shadowing baseline rows at the same
// dedup key.
func (r *Reader) LoadDefinitions(ctx context.Context, name string, scope Scope) ([]storage.SymbolHit, error) {
	return r.store.SearchSymbolsByName(ctx, name, scope.ContextChain, scope.CandidateFileKeys, scope.ExcludedFileKeys)
}

// LoadReferences returns every use-site of symbolPattern across the
// context chain.
func (r *Reader) LoadReferences(ctx context.Context, symbolPattern string, scope Scope) ([]storage.ReferenceHit, error) {
	return r.store.SearchReferencesBySymbol(ctx, symbolPattern, scope.ContextChain, scope.CandidateFileKeys, scope.ExcludedFileKeys)
}

// LoadCallEdges returns the caller/callee edges for symbol in the
// requested direction.
func (r *Reader) LoadCallEdges(ctx context.Context, symbol string, direction Direction, scope Scope) ([]storage.CallEdgeHit, error) {
	var edges []storage.CallEdgeHit

	if direction == DirectionOutgoing || direction == DirectionBoth {
		hits, err := r.store.GetCallEdgesForCaller(ctx, symbol, scope.ContextChain, scope.CandidateFileKeys, scope.ExcludedFileKeys)
		if err != nil {
			return nil, err
		}
		edges = append(edges, hits...)
	}

	if direction == DirectionIncoming || direction == DirectionBoth {
		hits, err := r.store.GetCallEdgesForCallee(ctx, symbol, scope.ContextChain, scope.CandidateFileKeys, scope.ExcludedFileKeys)
		if err != nil {
			return nil, err
		}
		edges = append(edges, hits...)
	}

	return edges, nil
}

// LoadFileSymbols returns every symbol defined in fileKey across the
// context chain.
func (r *Reader) LoadFileSymbols(ctx context.Context, fileKey coretypes.FileKey, contextChain []string) ([]storage.SymbolHit, error) {
	return r.store.GetSymbolsByFile(ctx, fileKey, contextChain)
}
