package compiledb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

func writeCatalog(t *testing.T, dir string, entries []map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "compile_commands.json")
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExactLookup(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, []map[string]any{
		{
			"file":      "src/a.cpp",
			"directory": dir,
			"arguments": []string{"clang++", "-std=c++17", "-Iinclude", "-o", "a.o", "src/a.cpp"},
		},
	})

	idx, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	absA := filepath.Join(dir, "src/a.cpp")
	entry, ok := idx.Get(absA)
	if !ok {
		t.Fatal("expected exact entry for src/a.cpp")
	}
	if len(entry.Flags) != 2 {
		t.Fatalf("expected 2 forwarded flags (no compiler, no -o pair, no source), got %v", entry.Flags)
	}
	for _, f := range entry.Flags {
		if f == "clang++" || f == "-o" || f == "a.o" || f == "src/a.cpp" {
			t.Fatalf("flag %q should have been stripped", f)
		}
	}
}

func TestLookup_FallbackDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, []map[string]any{
		{"file": "src/zeta.cc", "directory": dir, "arguments": []string{"clang++", "-DZ", "src/zeta.cc"}},
		{"file": "src/alpha.cc", "directory": dir, "arguments": []string{"clang++", "-DA", "src/alpha.cc"}},
	})

	idx, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	absHeader := filepath.Join(dir, "src/webrtc_connection.h")
	entry, match := idx.Lookup(absHeader)
	if match != coretypes.MatchTypeFallback {
		t.Fatalf("expected fallback match, got %v", match)
	}
	// lexical order: alpha.cc < zeta.cc
	if filepath.Base(entry.AbsPath) != "alpha.cc" {
		t.Fatalf("expected deterministic lex-order tie-break to alpha.cc, got %s", entry.AbsPath)
	}
}

func TestLookup_Missing(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, nil)
	idx, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	_, match := idx.Lookup(filepath.Join(dir, "nope.cpp"))
	if match != coretypes.MatchTypeMissing {
		t.Fatalf("expected missing match, got %v", match)
	}
}

func TestLoad_CommandStringSplitting(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, []map[string]any{
		{
			"file":      "src/b.cpp",
			"directory": dir,
			"command":   `clang++ -std=c++20 -DNAME="hello world" src/b.cpp`,
		},
	})

	idx, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := idx.Get(filepath.Join(dir, "src/b.cpp"))
	if !ok {
		t.Fatal("expected entry from command string")
	}
	found := false
	for _, f := range entry.Flags {
		if f == `-DNAME=hello world` {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected quoted arg preserved as single flag, got %v", entry.Flags)
	}
}

func TestHas_CaseFoldedLookup(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, []map[string]any{
		{"file": "SRC/A.cpp", "directory": dir, "arguments": []string{"clang++", "-O2", "SRC/A.cpp"}},
	})
	idx, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	lower := filepath.Join(dir, "src/a.cpp")
	if !idx.Has(lower) {
		t.Fatal("expected case-folded lookup to match despite differing case")
	}
}
