// Package recall invokes an external lexical-search binary (ripgrep by
// convention, but any `--json`-speaking line-search tool with a
// compatible flag surface works) as a subprocess, turning qualified C++
// symbol names into search regexes and the tool's JSON-lines output
// into deduplicated candidate file hits.
//
// Grounded on original_source/src/cxxtract/orchestrator/recall.py:
// build_symbol_pattern, the rg invocation's flag set, and the
// first-hit-per-file dedup rule are all carried over; the
// auto-detection/auto-install logic in rg_env.py is out of scope here
// — the spec's engine config (§6) exposes a binary-path knob instead of
// reimplementing an installer, since "ensure a binary is present" is an
// operational concern the spec doesn't ask this engine to own.
package recall

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
)

// Hit is one candidate file surfaced by the search, holding the first
// matching line so a caller can render a preview without re-reading the
// file.
type Hit struct {
	FilePath   string
	LineNumber int
	LineText   string
}

// Options configures one recall invocation.
type Options struct {
	Binary      string // defaults to "rg"
	MaxFiles    int    // defaults to 200
	Timeout     time.Duration
	GlobInclude []string // defaults to common C++ extensions
	MaxPerFile  int      // rg's --max-count; defaults to 5
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = "rg"
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = 200
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxPerFile <= 0 {
		o.MaxPerFile = 5
	}
	if len(o.GlobInclude) == 0 {
		o.GlobInclude = []string{"*.cpp", "*.cxx", "*.cc", "*.c", "*.h", "*.hpp", "*.hxx", "*.inl"}
	}
	return o
}

var qualifierSplit = regexp.MustCompile(`::`)

// BuildSymbolPattern turns a (possibly qualified) C++ symbol name into a
// word-bounded regex tolerant of whitespace around "::", e.g.
// "Session::Auth" -> `\bSession\s*::\s*Auth\b`.
func BuildSymbolPattern(symbol string) string {
	rawParts := qualifierSplit.Split(symbol, -1)
	parts := make([]string, 0, len(rawParts))
	for _, p := range rawParts {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, regexp.QuoteMeta(p))
		}
	}
	return `\b` + strings.Join(parts, `\s*::\s*`) + `\b`
}

// Run executes the configured binary against repoRoot searching for
// symbol, returning deduplicated, capped candidate hits. Subprocess
// timeouts, a missing binary, and a non-{0,1} exit code all degrade to
// an empty result with a TransientError rather than aborting the
// caller — lexical recall is a heuristic signal among several (see the
// Candidate Service), not a hard dependency.
func Run(ctx context.Context, symbol, repoRoot string, opts Options) ([]Hit, error) {
	opts = opts.withDefaults()
	pattern := BuildSymbolPattern(symbol)

	args := []string{
		"--json",
		"--no-heading",
		"--max-count", itoa(opts.MaxPerFile),
		"--type-add", "cpp:*.cpp,*.cxx,*.cc,*.c,*.h,*.hpp,*.hxx,*.inl",
	}
	for _, g := range opts.GlobInclude {
		args = append(args, "--glob", g)
	}
	args = append(args, "--", pattern, repoRoot)

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, opts.Binary, args...)
	cmd.Dir = repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return nil, cxxerrors.NewTransientError("recall", symbol, fmt.Errorf("timed out after %s", opts.Timeout))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			// rg exits 1 when it finds nothing — that's a normal empty
			// result, not a failure.
			if exitErr.ExitCode() == 1 {
				return nil, nil
			}
			return nil, cxxerrors.NewTransientError("recall", symbol,
				fmt.Errorf("exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())))
		}
		return nil, cxxerrors.NewTransientError("recall", symbol, err)
	}

	hits := parseJSONLines(stdout.Bytes())
	return dedupeByFile(hits, opts.MaxFiles), nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Lines      struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"data"`
}

func parseJSONLines(output []byte) []Hit {
	var hits []Hit
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Type != "match" || msg.Data.Path.Text == "" {
			continue
		}
		hits = append(hits, Hit{
			FilePath:   msg.Data.Path.Text,
			LineNumber: msg.Data.LineNumber,
			LineText:   strings.TrimRight(msg.Data.Lines.Text, "\n"),
		})
	}
	return hits
}

func dedupeByFile(hits []Hit, maxFiles int) []Hit {
	seen := make(map[string]bool, len(hits))
	out := make([]Hit, 0, maxFiles)
	for _, h := range hits {
		normalized := filepath.Clean(h.FilePath)
		if abs, err := filepath.Abs(normalized); err == nil {
			normalized = abs
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, h)
		if len(out) >= maxFiles {
			break
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
