// Package compiledb loads a compile_commands.json catalog and answers
// per-file flag queries. It is the single source of truth for compiler
// flags: every flag forwarded to the external AST extractor originates
// here.
//
// Grounded on original_source/src/cxxtract/orchestrator/compile_db.py —
// same normalize-to-absolute / strip-compiler-and-output / case-fold-key
// shape, generalized into a Go struct. Loaded indexes are cached per
// (workspace, repo, path) by internal/ctxsvc, not by this package.
package compiledb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/hashutil"
)

// rawEntry mirrors one element of compile_commands.json.
type rawEntry struct {
	File      string   `json:"file"`
	Directory string   `json:"directory"`
	Arguments []string `json:"arguments,omitempty"`
	Command   string   `json:"command,omitempty"`
}

// Entry is one resolved compilation-database record.
type Entry struct {
	AbsPath   string
	Directory string
	Flags     []string
	FlagsHash string
}

// Index is an in-memory, case-folded lookup over one compile_commands.json.
type Index struct {
	byKey map[string]Entry
	// bySiblingDir groups entries by their directory for fallback lookup.
	bySiblingDir map[string][]Entry
}

// Load parses path and returns a ready-to-query Index. Keys are
// case-folded normalized absolute paths, required for platforms with
// case-insensitive filesystems.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiledb: read %s: %w", path, err)
	}

	var entries []rawEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("compiledb: parse %s: %w", path, err)
	}

	idx := &Index{
		byKey:        make(map[string]Entry, len(entries)),
		bySiblingDir: make(map[string][]Entry),
	}

	for _, re := range entries {
		if re.File == "" {
			continue
		}
		absFile := normalizeAbs(re.File, re.Directory)

		var args []string
		if len(re.Arguments) > 0 {
			args = re.Arguments
		} else if re.Command != "" {
			args = splitCommand(re.Command)
		} else {
			continue
		}

		flags := extractFlags(args, absFile, re.Directory)
		entry := Entry{
			AbsPath:   absFile,
			Directory: re.Directory,
			Flags:     flags,
			FlagsHash: hashutil.FlagsHash(flags),
		}

		key := foldCase(absFile)
		idx.byKey[key] = entry
		dir := foldCase(filepath.Dir(absFile))
		idx.bySiblingDir[dir] = append(idx.bySiblingDir[dir], entry)
	}

	for dir := range idx.bySiblingDir {
		sort.Slice(idx.bySiblingDir[dir], func(i, j int) bool {
			return idx.bySiblingDir[dir][i].AbsPath < idx.bySiblingDir[dir][j].AbsPath
		})
	}

	return idx, nil
}

// Get looks up the exact compile entry for an absolute path.
func (idx *Index) Get(absPath string) (Entry, bool) {
	e, ok := idx.byKey[foldCase(absPath)]
	return e, ok
}

// Has reports whether absPath has an exact entry.
func (idx *Index) Has(absPath string) bool {
	_, ok := idx.Get(absPath)
	return ok
}

// Lookup resolves absPath to a compile entry, falling back to a sibling
// translation unit when no exact entry exists (used for headers). The
// returned MatchType tells the caller whether a warning should be
// attached.
func (idx *Index) Lookup(absPath string) (Entry, coretypes.MatchType) {
	if e, ok := idx.Get(absPath); ok {
		return e, coretypes.MatchTypeExact
	}
	if e, ok := idx.FallbackEntry(absPath); ok {
		return e, coretypes.MatchTypeFallback
	}
	return Entry{}, coretypes.MatchTypeMissing
}

// FallbackEntry picks a sibling translation unit in the same directory,
// for headers absent from the catalog: always the lexically-first entry
// by absolute path. The siblings' flags are not compared with each
// other; the choice depends on path order alone.
func (idx *Index) FallbackEntry(absPath string) (Entry, bool) {
	dir := foldCase(filepath.Dir(absPath))
	siblings := idx.bySiblingDir[dir]
	if len(siblings) == 0 {
		return Entry{}, false
	}
	// siblings is already sorted by AbsPath at load time.
	return siblings[0], true
}

// CacheKey returns a stable, compact key for the process-wide compile-db
// cache keyed by (workspaceID, repoID, normalizedCcPath).
func CacheKey(workspaceID, repoID, ccPath string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(workspaceID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(repoID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(foldCase(ccPath))
	return h.Sum64()
}

func normalizeAbs(file, directory string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Clean(filepath.Join(directory, file))
}

// foldCase case-folds a path for use as a lookup key so the index is
// robust to case-insensitive filesystems regardless of host platform.
func foldCase(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// splitCommand performs POSIX-ish shell word splitting on a command
// string when "arguments" is absent. Grounded on the original's
// shlex.split(command, posix=False) fallback, generalized to stdlib-only
// Go (no shlex dependency in the pack): handles single/double quotes and
// whitespace, which covers every compile_commands.json generator in
// practice (CMake, Bazel, Ninja).
func splitCommand(command string) []string {
	var (
		args    []string
		current strings.Builder
		inSingle, inDouble bool
	)
	flush := func() {
		if current.Len() > 0 {
			args = append(args, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				current.WriteByte(c)
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else if c == '\\' && i+1 < len(command) && (command[i+1] == '"' || command[i+1] == '\\') {
				i++
				current.WriteByte(command[i])
			} else {
				current.WriteByte(c)
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == ' ' || c == '\t':
			flush()
		case c == '\\' && i+1 < len(command):
			i++
			current.WriteByte(command[i])
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return args
}

// extractFlags strips the compiler executable (first token), any
// -o, /Fo or /Fe output-flag pairs, and the source path itself (given
// absolute or relative to directory) from arguments, leaving only the
// flags forwarded to the extractor.
func extractFlags(arguments []string, sourceFile, directory string) []string {
	if len(arguments) == 0 {
		return nil
	}
	rest := arguments[1:]
	sourceNorm := foldCase(sourceFile)

	filtered := make([]string, 0, len(rest))
	skipNext := false
	for _, arg := range rest {
		if skipNext {
			skipNext = false
			continue
		}
		switch arg {
		case "-o", "/Fo", "/Fe":
			skipNext = true
			continue
		}
		if foldCase(arg) == sourceNorm || foldCase(normalizeAbs(arg, directory)) == sourceNorm {
			continue
		}
		filtered = append(filtered, arg)
	}
	return filtered
}
