package pathresolver

import (
	"path/filepath"
	"testing"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

func testManifest(workspaceRoot string) *coretypes.Manifest {
	return &coretypes.Manifest{
		WorkspaceID: "ws1",
		Repos: []coretypes.Repo{
			{RepoID: "repoA", Root: "repoA"},
			{RepoID: "repoB", Root: "repoB"},
		},
		PathRemaps: []coretypes.PathRemap{
			{FromPrefix: "/vendor/external", ToRepoID: "repoB", ToPrefix: "repoB/third_party"},
		},
	}
}

func TestResolveFileKey_RoundTrip(t *testing.T) {
	root := t.TempDir()
	m := testManifest(root)
	r, err := New(root, m)
	if err != nil {
		t.Fatal(err)
	}

	abs := filepath.Join(root, "repoA", "src", "a.cpp")
	resolved, ok := r.ResolveFileKey(abs)
	if !ok {
		t.Fatal("expected resolution")
	}
	if resolved.FileKey != "repoA:src/a.cpp" {
		t.Fatalf("unexpected file key: %s", resolved.FileKey)
	}

	backAbs, ok := r.FileKeyToAbsPath(resolved.FileKey)
	if !ok {
		t.Fatal("expected inverse resolution")
	}
	if filepath.Clean(backAbs) != filepath.Clean(abs) {
		t.Fatalf("round trip mismatch: %s != %s", backAbs, abs)
	}
}

func TestResolveFileKey_OutsideAnyRepo(t *testing.T) {
	root := t.TempDir()
	m := testManifest(root)
	r, _ := New(root, m)

	_, ok := r.ResolveFileKey("/totally/outside/file.cpp")
	if ok {
		t.Fatal("expected no resolution for path outside all repos")
	}
}

func TestResolveIncludeDep_Direct(t *testing.T) {
	root := t.TempDir()
	m := testManifest(root)
	r, _ := New(root, m)

	abs := filepath.Join(root, "repoB", "include", "foo.h")
	dep := r.ResolveIncludeDep(abs, 1)
	if !dep.Resolved {
		t.Fatal("expected direct resolution")
	}
	if dep.ResolvedFileKey != "repoB:include/foo.h" {
		t.Fatalf("unexpected file key: %s", dep.ResolvedFileKey)
	}
}

func TestResolveIncludeDep_ViaRemap(t *testing.T) {
	root := t.TempDir()
	m := testManifest(root)
	r, _ := New(root, m)

	dep := r.ResolveIncludeDep("/vendor/external/zlib/zlib.h", 2)
	if !dep.Resolved {
		t.Fatal("expected remap to resolve")
	}
	if dep.ResolvedFileKey != "repoB:third_party/zlib/zlib.h" {
		t.Fatalf("unexpected remapped file key: %s", dep.ResolvedFileKey)
	}
	if dep.Depth != 2 {
		t.Fatalf("expected depth to be carried through, got %d", dep.Depth)
	}
}

func TestResolveIncludeDep_Unresolvable(t *testing.T) {
	root := t.TempDir()
	m := testManifest(root)
	r, _ := New(root, m)

	dep := r.ResolveIncludeDep("/nowhere/near/here.h", 1)
	if dep.Resolved {
		t.Fatal("expected unresolved include dep")
	}
}
