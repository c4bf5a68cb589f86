package recall

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestBuildSymbolPattern(t *testing.T) {
	cases := map[string]string{
		"doLogin":        `\bdoLogin\b`,
		"Session::Auth":  `\bSession\s*::\s*Auth\b`,
		"A::B::C":        `\bA\s*::\s*B\s*::\s*C\b`,
		" Session :: Auth ": `\bSession\s*::\s*Auth\b`,
	}
	for in, want := range cases {
		if got := BuildSymbolPattern(in); got != want {
			t.Errorf("BuildSymbolPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseJSONLines_SkipsNonMatchAndMalformed(t *testing.T) {
	input := []byte(`
{"type":"begin","data":{}}
not json at all
{"type":"match","data":{"path":{"text":"a.cpp"},"line_number":3,"lines":{"text":"void f();\n"}}}
{"type":"match","data":{"path":{"text":""},"line_number":1,"lines":{"text":"x"}}}
`)
	hits := parseJSONLines(input)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(hits), hits)
	}
	if hits[0].FilePath != "a.cpp" || hits[0].LineNumber != 3 || hits[0].LineText != "void f();" {
		t.Fatalf("unexpected hit: %+v", hits[0])
	}
}

func TestDedupeByFile_CapsAndDeduplicates(t *testing.T) {
	hits := []Hit{
		{FilePath: "a.cpp", LineNumber: 1},
		{FilePath: "a.cpp", LineNumber: 2},
		{FilePath: "b.cpp", LineNumber: 1},
		{FilePath: "c.cpp", LineNumber: 1},
	}
	out := dedupeByFile(hits, 2)
	if len(out) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(out))
	}
	if out[0].FilePath != "a.cpp" || out[1].FilePath != "b.cpp" {
		t.Fatalf("unexpected dedup order: %+v", out)
	}
}

// fakeRipgrep writes a tiny shell script standing in for the rg binary,
// emitting one canned JSON match line, so Run can be exercised without
// depending on ripgrep actually being installed in the test environment.
func fakeRipgrep(t *testing.T, match string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-rg")
	script := "#!/bin/sh\necho '" + match + "'\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_ParsesFakeBinaryOutput(t *testing.T) {
	match := `{"type":"match","data":{"path":{"text":"widget.cpp"},"line_number":5,"lines":{"text":"void Widget::render();"}}}`
	bin := fakeRipgrep(t, match)

	hits, err := Run(context.Background(), "Widget::render", t.TempDir(), Options{Binary: bin})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].FilePath != "widget.cpp" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := Run(context.Background(), "foo", t.TempDir(), Options{Binary: "this-binary-does-not-exist-xyz"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
