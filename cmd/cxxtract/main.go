// Command cxxtract is the cache engine's entrypoint: serve runs the
// MCP gateway over stdio, query runs one ad-hoc lookup against an
// existing cache for local debugging, and migrate brings a cache file
// up to the current schema version without starting a server.
//
// Grounded on the teacher's cmd/lci/main.go: one urfave/cli/v2 App with
// a global --root flag shared by every subcommand, each subcommand
// loading .cxxtract.kdl from that root through loadConfig, and
// signal-driven graceful shutdown around the long-running server command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cxxtract/cxxtract-go/internal/config"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/ctxsvc"
	"github.com/cxxtract/cxxtract-go/internal/freshness"
	"github.com/cxxtract/cxxtract-go/internal/mcpgateway"
	"github.com/cxxtract/cxxtract-go/internal/orchestrator"
	"github.com/cxxtract/cxxtract-go/internal/parserpool"
	"github.com/cxxtract/cxxtract-go/internal/reader"
	"github.com/cxxtract/cxxtract-go/internal/recall"
	"github.com/cxxtract/cxxtract-go/internal/reposync"
	"github.com/cxxtract/cxxtract-go/internal/storage"
	"github.com/cxxtract/cxxtract-go/internal/vectorstore"
	"github.com/cxxtract/cxxtract-go/internal/version"
	"github.com/cxxtract/cxxtract-go/internal/writer"
)

func main() {
	app := &cli.App{
		Name:    "cxxtract",
		Usage:   "Lazy-evaluated multi-repository semantic fact cache for C++ codebases",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root to load .cxxtract.kdl from",
				Value:   ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the MCP server over stdio",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "repo-sync",
						Usage: "Also run the background repo-sync worker pool",
						Value: true,
					},
				},
				Action: serveCommand,
			},
			{
				Name:      "query",
				Usage:     "Run one ad-hoc query against the cache and print JSON",
				ArgsUsage: "definition|references|call-graph|file-symbols <symbol>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "workspace",
						Usage: "Workspace ID to query",
						Value: "default",
					},
					&cli.StringFlag{
						Name:  "direction",
						Usage: "call-graph direction: outgoing, incoming, both",
						Value: "outgoing",
					},
				},
				Action: queryCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Open the cache database and run pending migrations",
				Action: migrateCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cxxtract: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("root"))
}

// buildEngine wires every orchestrator collaborator from cfg, exactly
// as the MCP gateway's composition root needs it. Callers are
// responsible for starting/stopping the returned Writer, and for
// calling the returned Engine's Close when watchManifests is true.
func buildEngine(cfg *config.Config, watchManifests bool) (*storage.Engine, *writer.Writer, *orchestrator.Engine, error) {
	store, err := storage.Open(cfg.Cache.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening cache: %w", err)
	}

	if _, err := vectorstore.New(cfg.Vector, store); err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}

	w := writer.New(store, writer.Options{
		QueueSize:     cfg.Writer.QueueSize,
		BatchSize:     cfg.Writer.BatchSize,
		RetryAttempts: cfg.Writer.RetryAttempts,
		RetryDelay:    cfg.Writer.RetryDelay,
		Limits: storage.OverlayLimits{
			MaxFiles: cfg.Overlay.MaxOverlayFiles,
			MaxRows:  cfg.Overlay.MaxOverlayRows,
		},
	})

	pool := parserpool.New(store, parserpool.Options{
		ExtractorBinary: cfg.Tools.ExtractorBinary,
		MaxWorkers:      cfg.Limits.MaxParseWorkers,
		Timeout:         cfg.Limits.ParseTimeout,
	})

	eng := orchestrator.New(
		store,
		ctxsvc.New(store),
		freshness.New(store),
		pool,
		w,
		reader.New(store),
		orchestrator.Options{
			MaxRecallFiles:  cfg.Limits.MaxRecallFiles,
			MaxParseWorkers: cfg.Limits.MaxParseWorkers,
			WatchManifests:  watchManifests,
			RecallOpts: recall.Options{
				Binary:   cfg.Tools.RgBinary,
				MaxFiles: cfg.Limits.MaxRecallFiles,
				Timeout:  cfg.Limits.RecallTimeout,
			},
		},
	)

	return store, w, eng, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, w, eng, err := buildEngine(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer func() { _ = eng.Close() }()

	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.Bool("repo-sync") {
		syncWorker := reposync.NewWorker(store, reposync.NewGitSync(reposync.Options{
			WorkerCount:  cfg.RepoSync.WorkerCount,
			PollInterval: cfg.RepoSync.PollInterval,
			GitTimeout:   cfg.RepoSync.GitTimeout,
		}), reposync.Options{
			WorkerCount:  cfg.RepoSync.WorkerCount,
			PollInterval: cfg.RepoSync.PollInterval,
			GitTimeout:   cfg.RepoSync.GitTimeout,
		})
		syncWorker.Start()
		defer syncWorker.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	gw := mcpgateway.New(eng, "cxxtract", version.Version)
	return gw.Run(ctx)
}

func migrateCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.Open(cfg.Cache.DBPath)
	if err != nil {
		return fmt.Errorf("migrating cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	fmt.Printf("cache at %s is up to date\n", cfg.Cache.DBPath)
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: cxxtract query <definition|references|call-graph|file-symbols> <symbol>")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, w, eng, err := buildEngine(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	ctx := context.Background()
	workspaceID := c.String("workspace")
	kind := c.Args().Get(0)
	symbol := c.Args().Get(1)

	req := orchestrator.QueryRequest{
		WorkspaceID: workspaceID,
		Symbol:      symbol,
	}

	var out any
	switch kind {
	case "definition":
		out, err = eng.QueryDefinition(ctx, req)
	case "references":
		out, err = eng.QueryReferences(ctx, req)
	case "call-graph":
		out, err = eng.QueryCallGraph(ctx, req, reader.Direction(c.String("direction")))
	case "file-symbols":
		out, err = eng.QueryFileSymbols(ctx, orchestrator.FileSymbolsRequest{
			WorkspaceID: workspaceID,
			FileKey:     coretypes.FileKey(symbol),
		})
	default:
		return fmt.Errorf("unknown query kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
