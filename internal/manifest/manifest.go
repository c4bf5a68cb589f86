// Package manifest loads and validates the YAML-shaped workspace
// manifest: top-level workspace_id, repos[], and path_remaps[].
//
// Grounded on original_source/src/cxxtract/orchestrator/workspace.py's
// WorkspaceManifest/RepoManifest pydantic models, reimplemented as plain
// Go structs decoded with gopkg.in/yaml.v3 and validated by hand (no
// schema-validation dependency in the pack beyond yaml.v3 itself).
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

// rawRepo mirrors one repos[] entry in the manifest YAML.
type rawRepo struct {
	RepoID          string   `yaml:"repo_id"`
	Root            string   `yaml:"root"`
	CompileCommands string   `yaml:"compile_commands"`
	DefaultBranch   string   `yaml:"default_branch"`
	DependsOn       []string `yaml:"depends_on"`
	RemoteURL       string   `yaml:"remote_url"`
	TokenEnvVar     string   `yaml:"token_env_var"`
	ProjectPath     string   `yaml:"project_path"`
	CommitSHA       string   `yaml:"commit_sha"`
}

type rawPathRemap struct {
	FromPrefix string `yaml:"from_prefix"`
	ToRepoID   string `yaml:"to_repo_id"`
	ToPrefix   string `yaml:"to_prefix"`
}

type rawManifest struct {
	WorkspaceID string         `yaml:"workspace_id"`
	Repos       []rawRepo      `yaml:"repos"`
	PathRemaps  []rawPathRemap `yaml:"path_remaps"`
}

// Load reads, parses, and validates a workspace manifest from path.
func Load(path string) (*coretypes.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates and converts manifest YAML bytes into the canonical
// coretypes.Manifest.
func Parse(data []byte) (*coretypes.Manifest, error) {
	var rm rawManifest
	if err := yaml.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if rm.WorkspaceID == "" {
		return nil, fmt.Errorf("manifest: workspace_id is required")
	}

	m := &coretypes.Manifest{WorkspaceID: rm.WorkspaceID}

	seen := make(map[string]bool, len(rm.Repos))
	for _, r := range rm.Repos {
		if r.RepoID == "" {
			return nil, fmt.Errorf("manifest: repo with empty repo_id")
		}
		if seen[r.RepoID] {
			return nil, fmt.Errorf("manifest: duplicate repo_id: %s", r.RepoID)
		}
		seen[r.RepoID] = true

		repo := coretypes.Repo{
			RepoID:          r.RepoID,
			Root:            r.Root,
			CompileCommands: r.CompileCommands,
			DefaultBranch:   defaultBranch(r.DefaultBranch),
			DependsOn:       r.DependsOn,
		}

		if r.RemoteURL != "" {
			if !strings.HasPrefix(strings.ToLower(r.RemoteURL), "https://") {
				return nil, fmt.Errorf("manifest: repo %s: remote_url must be HTTPS", r.RepoID)
			}
			if r.TokenEnvVar == "" {
				return nil, fmt.Errorf("manifest: repo %s: token_env_var is required when remote_url is set", r.RepoID)
			}
			sha := strings.ToLower(strings.TrimSpace(r.CommitSHA))
			if !isHex40(sha) {
				return nil, fmt.Errorf("manifest: repo %s: commit_sha must be a 40-character hex SHA", r.RepoID)
			}
			repo.Sync = &coretypes.RepoSyncMeta{
				RemoteURL:   r.RemoteURL,
				TokenEnvVar: r.TokenEnvVar,
				ProjectPath: r.ProjectPath,
				CommitSHA:   sha,
			}
		}

		m.Repos = append(m.Repos, repo)
	}

	for _, pr := range rm.PathRemaps {
		if pr.FromPrefix == "" || pr.ToRepoID == "" {
			return nil, fmt.Errorf("manifest: path_remaps entries require from_prefix and to_repo_id")
		}
		m.PathRemaps = append(m.PathRemaps, coretypes.PathRemap{
			FromPrefix: pr.FromPrefix,
			ToRepoID:   pr.ToRepoID,
			ToPrefix:   pr.ToPrefix,
		})
	}

	return m, nil
}

func defaultBranch(b string) string {
	if b == "" {
		return "main"
	}
	return b
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// RepoMap indexes a manifest's repos by RepoID.
func RepoMap(m *coretypes.Manifest) map[string]coretypes.Repo {
	out := make(map[string]coretypes.Repo, len(m.Repos))
	for _, r := range m.Repos {
		out[r.RepoID] = r
	}
	return out
}
