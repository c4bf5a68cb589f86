// Package pathresolver maps between absolute paths and canonical
// "repoId:relPath" file-keys, and resolves #include dependencies via the
// manifest's path remaps.
//
// The forward-slash normalization and "is path outside root" check are
// grounded on the teacher's pkg/pathutil.ToRelative; the repo-walk and
// remap logic are grounded on
// original_source/src/cxxtract/orchestrator/workspace.py's
// resolve_file_key / file_key_to_abs_path / resolve_include_dep.
package pathresolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

// Resolver resolves file identities within one workspace.
type Resolver struct {
	workspaceRoot string
	manifest      *coretypes.Manifest
	repoRoots     map[string]string // repoID -> absolute, normalized root
}

// New builds a Resolver for workspaceRoot against manifest.
func New(workspaceRoot string, m *coretypes.Manifest) (*Resolver, error) {
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("pathresolver: resolve workspace root: %w", err)
	}
	r := &Resolver{
		workspaceRoot: normalizeSlashes(absRoot),
		manifest:      m,
		repoRoots:     make(map[string]string, len(m.Repos)),
	}
	for _, repo := range m.Repos {
		repoRoot := filepath.Join(absRoot, repo.Root)
		r.repoRoots[repo.RepoID] = normalizeSlashes(filepath.Clean(repoRoot))
	}
	return r, nil
}

// Resolved is the result of resolving an absolute path to a file-key.
type Resolved struct {
	FileKey         coretypes.FileKey
	RepoID          string
	RelPath         string
	NormalizedAbs   string
}

// ResolveFileKey walks repos, returning the file-key for the first repo
// whose normalized root is a path-prefix of absPath.
func (r *Resolver) ResolveFileKey(absPath string) (Resolved, bool) {
	absNorm := normalizeSlashes(filepath.Clean(absPath))
	absLower := strings.ToLower(absNorm)

	for _, repo := range r.manifest.Repos {
		repoRoot := r.repoRoots[repo.RepoID]
		repoRootLower := strings.ToLower(repoRoot)
		if absLower == repoRootLower || strings.HasPrefix(absLower, repoRootLower+"/") {
			rel := strings.TrimPrefix(absNorm, repoRoot)
			rel = strings.TrimPrefix(rel, "/")
			fileKey := coretypes.FileKey(repo.RepoID + ":" + rel)
			return Resolved{
				FileKey:       fileKey,
				RepoID:        repo.RepoID,
				RelPath:       rel,
				NormalizedAbs: absNorm,
			}, true
		}
	}
	return Resolved{}, false
}

// FileKeyToAbsPath is the inverse of ResolveFileKey.
func (r *Resolver) FileKeyToAbsPath(fileKey coretypes.FileKey) (string, bool) {
	repoID, rel, ok := splitFileKey(fileKey)
	if !ok {
		return "", false
	}
	repoRoot, ok := r.repoRoots[repoID]
	if !ok {
		return "", false
	}
	return filepath.Join(filepath.FromSlash(repoRoot), filepath.FromSlash(rel)), true
}

// ResolvedIncludeDep is the outcome of resolving one raw #include path.
type ResolvedIncludeDep struct {
	RawPath         string
	ResolvedFileKey coretypes.FileKey
	ResolvedAbsPath string
	Resolved        bool
	Depth           int
}

// ResolveIncludeDep tries direct repo membership, then applies
// configured path remaps (prefix-rewrite from -> {toRepo, toPrefix}).
func (r *Resolver) ResolveIncludeDep(raw string, depth int) ResolvedIncludeDep {
	rawNorm := normalizeSlashes(raw)

	if direct, ok := r.ResolveFileKey(rawNorm); ok {
		return ResolvedIncludeDep{
			RawPath:         rawNorm,
			ResolvedFileKey: direct.FileKey,
			ResolvedAbsPath: direct.NormalizedAbs,
			Resolved:        true,
			Depth:           depth,
		}
	}

	repoMap := make(map[string]bool, len(r.manifest.Repos))
	for _, repo := range r.manifest.Repos {
		repoMap[repo.RepoID] = true
	}

	for _, remap := range r.manifest.PathRemaps {
		fromNorm := strings.TrimSuffix(normalizeSlashes(remap.FromPrefix), "/")
		rawLower := strings.ToLower(rawNorm)
		fromLower := strings.ToLower(fromNorm)
		if rawLower != fromLower && !strings.HasPrefix(rawLower, fromLower+"/") {
			continue
		}
		if !repoMap[remap.ToRepoID] {
			continue
		}
		suffix := strings.TrimPrefix(rawNorm[len(fromNorm):], "/")
		remapped := normalizeSlashes(filepath.Join(r.workspaceRoot, remap.ToPrefix, suffix))

		if resolved, ok := r.ResolveFileKey(remapped); ok {
			return ResolvedIncludeDep{
				RawPath:         rawNorm,
				ResolvedFileKey: resolved.FileKey,
				ResolvedAbsPath: resolved.NormalizedAbs,
				Resolved:        true,
				Depth:           depth,
			}
		}
		return ResolvedIncludeDep{
			RawPath:         rawNorm,
			ResolvedAbsPath: remapped,
			Resolved:        false,
			Depth:           depth,
		}
	}

	return ResolvedIncludeDep{RawPath: rawNorm, Resolved: false, Depth: depth}
}

func splitFileKey(fileKey coretypes.FileKey) (repoID, relPath string, ok bool) {
	s := string(fileKey)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

func normalizeSlashes(path string) string {
	return filepath.ToSlash(path)
}
