package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// Load attempts to load engine configuration from .cxxtract.kdl under
// projectRoot. A missing file is not an error: Default() is returned
// as-is so the engine runs with its baseline knobs.
func Load(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".cxxtract.kdl")

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return Default(), nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .cxxtract.kdl: %w", err)
	}

	return parseKDL(string(content))
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "tools":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "rg_binary":
					assignSimpleString(cn, "rg_binary", func(v string) { cfg.Tools.RgBinary = v })
				case "extractor_binary":
					assignSimpleString(cn, "extractor_binary", func(v string) { cfg.Tools.ExtractorBinary = v })
				case "default_compile_commands":
					assignSimpleString(cn, "default_compile_commands", func(v string) { cfg.Tools.DefaultCompileCommands = v })
				case "workspace_manifest_name":
					assignSimpleString(cn, "workspace_manifest_name", func(v string) { cfg.Tools.WorkspaceManifestName = v })
				}
			}
		case "server":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "host":
					assignSimpleString(cn, "host", func(v string) { cfg.Server.Host = v })
				case "port":
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.Port = v
					}
				}
			}
		case "cache":
			for _, cn := range n.Children {
				if nodeName(cn) == "db_path" {
					assignSimpleString(cn, "db_path", func(v string) { cfg.Cache.DBPath = v })
				}
			}
		case "limits":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_parse_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Limits.MaxParseWorkers = int64(v)
					}
				case "max_recall_files":
					if v, ok := firstIntArg(cn); ok {
						cfg.Limits.MaxRecallFiles = v
					}
				case "recall_timeout_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Limits.RecallTimeout = time.Duration(v) * time.Second
					}
				case "parse_timeout_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Limits.ParseTimeout = time.Duration(v) * time.Second
					}
				}
			}
		case "writer":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "queue_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Writer.QueueSize = v
					}
				case "batch_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Writer.BatchSize = v
					}
				case "retry_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.Writer.RetryAttempts = v
					}
				case "retry_delay_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Writer.RetryDelay = time.Duration(v) * time.Millisecond
					}
				}
			}
		case "overlay":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_overlay_files":
					if v, ok := firstIntArg(cn); ok {
						cfg.Overlay.MaxOverlayFiles = v
					}
				case "max_overlay_rows":
					if v, ok := firstIntArg(cn); ok {
						cfg.Overlay.MaxOverlayRows = v
					}
				case "context_ttl_hours":
					if v, ok := firstIntArg(cn); ok {
						cfg.Overlay.ContextTTL = time.Duration(v) * time.Hour
					}
				case "context_disk_budget_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Overlay.ContextDiskBudgetBytes = int64(v)
					}
				}
			}
		case "vector":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enable_vector_features":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Vector.Enabled = b
					}
				case "commit_embedding_dim":
					if v, ok := firstIntArg(cn); ok {
						cfg.Vector.CommitEmbedDims = v
					}
				}
			}
		case "repo_sync":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "worker_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.RepoSync.WorkerCount = v
					}
				case "poll_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.RepoSync.PollInterval = time.Duration(v) * time.Millisecond
					}
				case "git_timeout_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.RepoSync.GitTimeout = time.Duration(v) * time.Second
					}
				case "retry_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.RepoSync.RetryAttempts = v
					}
				}
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
