// Package config holds the engine-wide tuning knobs for cxxtract: paths
// to external tools, concurrency ceilings, single-writer tuning, overlay
// retention limits, and vector side-store activation. It is loaded from
// an optional .cxxtract.kdl file and falls back to hardcoded defaults
// when absent, mirroring the split between environment-driven config
// and the per-workspace YAML manifest.
package config

import "time"

// Config is the fully-resolved set of environment knobs enumerated by
// the external interfaces the engine exposes.
type Config struct {
	Tools    Tools
	Server   Server
	Cache    Cache
	Limits   Limits
	Writer   Writer
	Overlay  Overlay
	Vector   Vector
	RepoSync RepoSync
}

// Tools names the external binaries and catalogs the engine shells out
// to or reads from.
type Tools struct {
	RgBinary               string
	ExtractorBinary        string
	DefaultCompileCommands string
	WorkspaceManifestName  string
}

// Server configures the MCP/HTTP listener.
type Server struct {
	Host string
	Port int
}

// Cache locates the persisted SQLite database.
type Cache struct {
	DBPath string
}

// Limits bounds per-query concurrency and per-subprocess timeouts.
type Limits struct {
	MaxParseWorkers int64
	MaxRecallFiles  int
	RecallTimeout   time.Duration
	ParseTimeout    time.Duration
}

// Writer tunes the single-writer persistence queue.
type Writer struct {
	QueueSize     int
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration
}

// Overlay bounds overlay-context growth and retention.
type Overlay struct {
	MaxOverlayFiles        int
	MaxOverlayRows         int
	ContextTTL             time.Duration
	ContextDiskBudgetBytes int64
}

// Vector activates the commit-diff-embedding side-store.
type Vector struct {
	Enabled         bool
	CommitEmbedDims int
}

// RepoSync tunes the background git-sync worker pool.
type RepoSync struct {
	WorkerCount   int
	PollInterval  time.Duration
	GitTimeout    time.Duration
	RetryAttempts int
}

// Default returns the hardcoded baseline every knob falls back to when
// no .cxxtract.kdl is present, or when a section of one is.
func Default() *Config {
	return &Config{
		Tools: Tools{
			RgBinary:               "rg",
			ExtractorBinary:        "./cpp-extractor/build/Release/cpp-extractor",
			DefaultCompileCommands: "",
			WorkspaceManifestName:  "workspace.yaml",
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Cache: Cache{
			DBPath: "./cxxtract_cache.db",
		},
		Limits: Limits{
			MaxParseWorkers: 4,
			MaxRecallFiles:  200,
			RecallTimeout:   30 * time.Second,
			ParseTimeout:    120 * time.Second,
		},
		Writer: Writer{
			QueueSize:     1024,
			BatchSize:     10,
			RetryAttempts: 3,
			RetryDelay:    200 * time.Millisecond,
		},
		Overlay: Overlay{
			MaxOverlayFiles:        5000,
			MaxOverlayRows:         2_000_000,
			ContextTTL:             72 * time.Hour,
			ContextDiskBudgetBytes: 4 * 1024 * 1024 * 1024,
		},
		Vector: Vector{
			Enabled:         false,
			CommitEmbedDims: 0,
		},
		RepoSync: RepoSync{
			WorkerCount:   1,
			PollInterval:  200 * time.Millisecond,
			GitTimeout:    120 * time.Second,
			RetryAttempts: 3,
		},
	}
}
