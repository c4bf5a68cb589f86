// Package mcpgateway exposes the orchestrator's query and workspace
// lifecycle operations as MCP tools over stdio, the way the teacher's
// internal/mcp/server.go exposes MasterIndex's search/context
// operations: one mcp.Server, one AddTool call per operation with a
// jsonschema.Schema describing its arguments, and a handler that
// decodes req.Params.Arguments, calls the engine, and marshals the
// result back as a single TextContent block.
package mcpgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
	"github.com/cxxtract/cxxtract-go/internal/orchestrator"
	"github.com/cxxtract/cxxtract-go/internal/reader"
)

// Gateway wraps one orchestrator.Engine behind an MCP tool registry.
type Gateway struct {
	engine *orchestrator.Engine
	server *mcp.Server
}

// New builds a Gateway and registers every tool against it.
func New(engine *orchestrator.Engine, name, version string) *Gateway {
	g := &Gateway{
		engine: engine,
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
	}
	g.registerTools()
	return g
}

// Run serves the gateway over stdio until ctx is canceled or the
// client disconnects.
func (g *Gateway) Run(ctx context.Context) error {
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

func (g *Gateway) registerTools() {
	g.server.AddTool(&mcp.Tool{
		Name:        "query_definition",
		Description: "Resolve every matching definition for a symbol within a workspace's analysis context.",
		InputSchema: symbolQuerySchema(),
	}, g.handleQueryDefinition)

	g.server.AddTool(&mcp.Tool{
		Name:        "query_references",
		Description: "Resolve a symbol's definition plus every lexical reference to it.",
		InputSchema: symbolQuerySchema(),
	}, g.handleQueryReferences)

	g.server.AddTool(&mcp.Tool{
		Name:        "query_call_graph",
		Description: "Resolve caller/callee edges for a symbol. direction is one of outgoing, incoming, both.",
		InputSchema: callGraphSchema(),
	}, g.handleQueryCallGraph)

	g.server.AddTool(&mcp.Tool{
		Name:        "query_file_symbols",
		Description: "Resolve every symbol defined in one file, named by its \"{repo_id}:{rel_path}\" file key.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspace_id": {Type: "string", Description: "Registered workspace id"},
				"file_key":     {Type: "string", Description: "Canonical \"{repo_id}:{rel_path}\" file key"},
				"context_id":   {Type: "string", Description: "Analysis context id; empty resolves to the workspace baseline"},
			},
			Required: []string{"workspace_id", "file_key"},
		},
	}, g.handleQueryFileSymbols)

	g.server.AddTool(&mcp.Tool{
		Name:        "register_workspace",
		Description: "Register a workspace's root path and manifest, creating its baseline context.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspace_id":  {Type: "string"},
				"root_path":     {Type: "string"},
				"manifest_path": {Type: "string"},
			},
			Required: []string{"workspace_id", "root_path", "manifest_path"},
		},
	}, g.handleRegisterWorkspace)

	g.server.AddTool(&mcp.Tool{
		Name:        "get_workspace_info",
		Description: "Report a registered workspace's repos and active analysis contexts.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"workspace_id": {Type: "string"}},
			Required:   []string{"workspace_id"},
		},
	}, g.handleGetWorkspaceInfo)

	g.server.AddTool(&mcp.Tool{
		Name:        "refresh_workspace_manifest",
		Description: "Force a manifest reload for a workspace, re-syncing its repo list.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"workspace_id": {Type: "string"}},
			Required:   []string{"workspace_id"},
		},
	}, g.handleRefreshWorkspaceManifest)

	g.server.AddTool(&mcp.Tool{
		Name:        "create_pr_overlay",
		Description: "Create (or reuse) a PR overlay context rooted at the workspace baseline.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspace_id": {Type: "string"},
				"context_id":   {Type: "string", Description: "Optional explicit context id; derived from pr_id if empty"},
				"pr_id":        {Type: "string"},
			},
			Required: []string{"workspace_id", "pr_id"},
		},
	}, g.handleCreatePROverlay)

	g.server.AddTool(&mcp.Tool{
		Name:        "expire_context",
		Description: "Expire an analysis context so chain walks stop seeing it.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"context_id": {Type: "string"}},
			Required:   []string{"context_id"},
		},
	}, g.handleExpireContext)

	g.server.AddTool(&mcp.Tool{
		Name:        "invalidate_cache",
		Description: "Clear cached facts for a context, or just the named file keys within it.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspace_id": {Type: "string"},
				"context_id":   {Type: "string", Description: "Empty resolves to the workspace baseline"},
				"file_keys":    {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
			Required: []string{"workspace_id"},
		},
	}, g.handleInvalidateCache)

	g.server.AddTool(&mcp.Tool{
		Name:        "enqueue_repo_sync",
		Description: "Queue a repo-sync job against the background git-sync worker pool.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"job_id":               {Type: "string"},
				"workspace_id":         {Type: "string"},
				"repo_id":              {Type: "string"},
				"requested_branch":     {Type: "string"},
				"requested_commit_sha": {Type: "string"},
				"force_clean":          {Type: "boolean"},
				"max_attempts":         {Type: "integer"},
			},
			Required: []string{"job_id", "workspace_id", "repo_id"},
		},
	}, g.handleEnqueueRepoSync)
}

func symbolQuerySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"workspace_id": {Type: "string", Description: "Registered workspace id"},
			"symbol":       {Type: "string", Description: "Symbol name to resolve"},
			"context_id":   {Type: "string", Description: "Analysis context id; empty resolves to the workspace baseline"},
			"pr_id":        {Type: "string", Description: "PR id; with context_id empty, the query runs in overlay {workspace_id}:pr:{pr_id}, created if missing"},
			"entry_repos":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Repo ids to seed dependency-hop expansion from"},
			"max_repo_hops": {Type: "integer"},
		},
		Required: []string{"workspace_id", "symbol"},
	}
}

func callGraphSchema() *jsonschema.Schema {
	s := symbolQuerySchema()
	s.Properties["direction"] = &jsonschema.Schema{
		Type:        "string",
		Description: "One of \"outgoing\", \"incoming\", \"both\" (default \"outgoing\")",
	}
	return s
}

// symbolQueryParams is the common request shape for the three
// symbol-based query tools.
type symbolQueryParams struct {
	WorkspaceID string   `json:"workspace_id"`
	Symbol      string   `json:"symbol"`
	ContextID   string   `json:"context_id"`
	PRID        string   `json:"pr_id"`
	EntryRepos  []string `json:"entry_repos"`
	MaxRepoHops int      `json:"max_repo_hops"`
	Direction   string   `json:"direction"`
}

func (p symbolQueryParams) toRequest() orchestrator.QueryRequest {
	return orchestrator.QueryRequest{
		WorkspaceID: p.WorkspaceID,
		Symbol:      p.Symbol,
		Context: orchestrator.ContextSelector{
			ContextID: p.ContextID,
			PRID:      p.PRID,
		},
		Scope: orchestrator.Scope{
			EntryRepos:  p.EntryRepos,
			MaxRepoHops: p.MaxRepoHops,
		},
	}
}

func (g *Gateway) handleQueryDefinition(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params symbolQueryParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("query_definition", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	result, err := g.engine.QueryDefinition(ctx, params.toRequest())
	if err != nil {
		return errorResult("query_definition", err), nil
	}
	return jsonResult(result)
}

func (g *Gateway) handleQueryReferences(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params symbolQueryParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("query_references", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	result, err := g.engine.QueryReferences(ctx, params.toRequest())
	if err != nil {
		return errorResult("query_references", err), nil
	}
	return jsonResult(result)
}

func (g *Gateway) handleQueryCallGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params symbolQueryParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("query_call_graph", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	direction := reader.DirectionOutgoing
	switch params.Direction {
	case string(reader.DirectionIncoming):
		direction = reader.DirectionIncoming
	case string(reader.DirectionBoth):
		direction = reader.DirectionBoth
	}
	result, err := g.engine.QueryCallGraph(ctx, params.toRequest(), direction)
	if err != nil {
		return errorResult("query_call_graph", err), nil
	}
	return jsonResult(result)
}

func (g *Gateway) handleQueryFileSymbols(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		WorkspaceID string `json:"workspace_id"`
		FileKey     string `json:"file_key"`
		ContextID   string `json:"context_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("query_file_symbols", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	result, err := g.engine.QueryFileSymbols(ctx, orchestrator.FileSymbolsRequest{
		WorkspaceID: params.WorkspaceID,
		FileKey:     coretypes.FileKey(params.FileKey),
		Context:     orchestrator.ContextSelector{ContextID: params.ContextID},
	})
	if err != nil {
		return errorResult("query_file_symbols", err), nil
	}
	return jsonResult(result)
}

func (g *Gateway) handleRegisterWorkspace(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		WorkspaceID  string `json:"workspace_id"`
		RootPath     string `json:"root_path"`
		ManifestPath string `json:"manifest_path"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("register_workspace", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	ws, mf, baseline, err := g.engine.RegisterWorkspace(ctx, params.WorkspaceID, params.RootPath, params.ManifestPath)
	if err != nil {
		return errorResult("register_workspace", err), nil
	}
	return jsonResult(map[string]any{
		"workspace":       ws,
		"repo_count":      len(mf.Repos),
		"baseline_context": baseline,
	})
}

func (g *Gateway) handleGetWorkspaceInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("get_workspace_info", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	ws, mf, contexts, err := g.engine.GetWorkspaceInfo(ctx, params.WorkspaceID)
	if err != nil {
		return errorResult("get_workspace_info", err), nil
	}
	return jsonResult(map[string]any{
		"workspace":       ws,
		"manifest":        mf,
		"active_contexts": contexts,
	})
}

func (g *Gateway) handleRefreshWorkspaceManifest(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("refresh_workspace_manifest", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	mf, err := g.engine.RefreshWorkspaceManifest(ctx, params.WorkspaceID)
	if err != nil {
		return errorResult("refresh_workspace_manifest", err), nil
	}
	return jsonResult(map[string]any{"manifest": mf})
}

func (g *Gateway) handleCreatePROverlay(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		WorkspaceID string `json:"workspace_id"`
		ContextID   string `json:"context_id"`
		PRID        string `json:"pr_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("create_pr_overlay", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	ac, err := g.engine.CreatePROverlay(ctx, params.WorkspaceID, params.ContextID, params.PRID)
	if err != nil {
		return errorResult("create_pr_overlay", err), nil
	}
	return jsonResult(ac)
}

func (g *Gateway) handleExpireContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		ContextID string `json:"context_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("expire_context", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	expired, err := g.engine.ExpireContext(ctx, params.ContextID)
	if err != nil {
		return errorResult("expire_context", err), nil
	}
	return jsonResult(map[string]any{"expired": expired})
}

func (g *Gateway) handleInvalidateCache(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		WorkspaceID string   `json:"workspace_id"`
		ContextID   string   `json:"context_id"`
		FileKeys    []string `json:"file_keys"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("invalidate_cache", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	var fileKeys []coretypes.FileKey
	if params.FileKeys != nil {
		fileKeys = make([]coretypes.FileKey, len(params.FileKeys))
		for i, fk := range params.FileKeys {
			fileKeys[i] = coretypes.FileKey(fk)
		}
	}
	count, message, err := g.engine.InvalidateCache(ctx, params.WorkspaceID, params.ContextID, fileKeys)
	if err != nil {
		return errorResult("invalidate_cache", err), nil
	}
	return jsonResult(map[string]any{"invalidated": count, "message": message})
}

func (g *Gateway) handleEnqueueRepoSync(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		JobID              string `json:"job_id"`
		WorkspaceID        string `json:"workspace_id"`
		RepoID             string `json:"repo_id"`
		RequestedBranch    string `json:"requested_branch"`
		RequestedCommitSHA string `json:"requested_commit_sha"`
		ForceClean         bool   `json:"force_clean"`
		MaxAttempts        int    `json:"max_attempts"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("enqueue_repo_sync", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	err := g.engine.EnqueueRepoSync(ctx, coretypes.RepoSyncJob{
		ID:                   params.JobID,
		WorkspaceID:          params.WorkspaceID,
		RepoID:               params.RepoID,
		RequestedBranch:      params.RequestedBranch,
		RequestedCommitSHA:   params.RequestedCommitSHA,
		RequestedForceClean:  params.ForceClean,
		Status:               coretypes.JobStatusPending,
		MaxAttempts:          params.MaxAttempts,
	})
	if err != nil {
		return errorResult("enqueue_repo_sync", err), nil
	}
	return jsonResult(map[string]any{"queued": true, "job_id": params.JobID})
}

// jsonResult marshals data as the tool's sole text content block.
func jsonResult(data any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(body)}}}, nil
}

// errorResult reports a tool-level failure inside the result object
// with IsError set, per MCP convention, rather than as a protocol
// error — so the caller can see and self-correct instead of losing
// the failure to a transport-level error.
func errorResult(operation string, err error) *mcp.CallToolResult {
	kind := "unknown"
	var ve *cxxerrors.ValidationError
	var te *cxxerrors.TransientError
	var se *cxxerrors.StorageError
	var fe *cxxerrors.FatalError
	switch {
	case errors.As(err, &ve):
		kind = string(ve.Kind())
	case errors.As(err, &te):
		kind = string(te.Kind())
	case errors.As(err, &se):
		kind = string(se.Kind())
	case errors.As(err, &fe):
		kind = string(fe.Kind())
	}

	body, marshalErr := json.Marshal(map[string]any{
		"success":   false,
		"operation": operation,
		"error":     err.Error(),
		"kind":      kind,
	})
	if marshalErr != nil {
		body = []byte(`{"success":false,"error":"failed to marshal error"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: true,
	}
}
