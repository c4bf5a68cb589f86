// Package parserpool runs the external AST-extractor binary over a
// batch of parse tasks with bounded concurrency, turning each task's
// stdout into a coretypes.ParsePayload ready for the Single-Writer to
// persist.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/parser.py's parse_file /
// parse_files_concurrent: one subprocess per file, a semaphore
// bounding how many run at once, a per-file timeout, and a parse-run
// audit row opened before the subprocess starts and closed with its
// outcome afterward regardless of how the attempt ends. The Python
// asyncio.Semaphore becomes golang.org/x/sync/semaphore.Weighted (a
// teacher dependency's sibling package, introduced for the same
// bounded-fan-out need the teacher's indexing pipeline has, just
// expressed with goroutines instead of asyncio tasks); the Python
// asyncio.wait_for timeout becomes exec.CommandContext plus
// context.WithTimeout, matching the Recall Engine's subprocess idiom.
package parserpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	cxxerrors "github.com/cxxtract/cxxtract-go/internal/errors"
	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/hashutil"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Options configures one pool invocation.
type Options struct {
	ExtractorBinary string
	MaxWorkers      int64
	Timeout         time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	return o
}

// Pool runs parse tasks against one storage engine, auditing every
// attempt via parse_runs.
type Pool struct {
	store *storage.Engine
	opts  Options
}

// New builds a Pool over store.
func New(store *storage.Engine, opts Options) *Pool {
	return &Pool{store: store, opts: opts.withDefaults()}
}

// extractorOutput mirrors cpp-extractor's --action extract-all JSON
// schema on stdout. success is part of the wire contract: any response
// with success:false is a failed parse regardless of what the four
// arrays contain, so parseOne never persists a partial result.
type extractorOutput struct {
	Success     bool              `json:"success"`
	Diagnostics []string          `json:"diagnostics"`
	Symbols     []extractorSymbol `json:"symbols"`
	References  []extractorRef    `json:"references"`
	CallEdges   []extractorEdge   `json:"call_edges"`
	IncludeDeps []extractorInc    `json:"include_deps"`
}

type extractorSymbol struct {
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`
	Kind          string `json:"kind"`
	Line          int    `json:"line"`
	Col           int    `json:"col"`
	ExtentEndLine int    `json:"extent_end_line"`
}

type extractorRef struct {
	Symbol string `json:"symbol"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
	Kind   string `json:"kind"`
}

type extractorEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Line   int    `json:"line"`
}

type extractorInc struct {
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

// Result is the outcome of one task's parse attempt.
type Result struct {
	Task    coretypes.ParseTask
	Payload *coretypes.ParsePayload
	Err     error
}

// Run parses tasks concurrently, bounded by opts.MaxWorkers, and
// returns one Result per task (order matches the input order).
func (p *Pool) Run(ctx context.Context, tasks []coretypes.ParseTask) []Result {
	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(p.opts.MaxWorkers)
	done := make(chan struct{}, len(tasks))

	for i, task := range tasks {
		i, task := i, task
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Task: task, Err: err}
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			results[i] = p.parseOne(ctx, task)
			done <- struct{}{}
		}()
	}
	for range tasks {
		<-done
	}
	return results
}

func (p *Pool) parseOne(ctx context.Context, task coretypes.ParseTask) Result {
	runID, runErr := p.store.InsertParseRun(ctx, task.ContextID, task.FileKey, task.AbsPath)

	finish := func(success bool, errMsg string) {
		if runErr == nil {
			_ = p.store.FinishParseRun(ctx, runID, success, errMsg)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	args := append([]string{"--action", "extract-all", "--file", task.AbsPath, "--"}, task.Entry.Flags...)
	cmd := exec.CommandContext(runCtx, p.opts.ExtractorBinary, args...)
	cmd.Dir = task.Entry.Directory

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr2 := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		msg := "timeout after " + p.opts.Timeout.String()
		finish(false, msg)
		return Result{Task: task, Err: cxxerrors.NewTransientError("parse", string(task.FileKey), context.DeadlineExceeded)}
	}
	if runErr2 != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 1000 {
			msg = msg[:1000]
		}
		finish(false, msg)
		return Result{Task: task, Err: cxxerrors.NewTransientError("parse", string(task.FileKey), runErr2)}
	}

	var out extractorOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		finish(false, "invalid JSON output")
		return Result{Task: task, Err: cxxerrors.NewTransientError("parse", string(task.FileKey), err)}
	}
	if !out.Success {
		msg := strings.Join(out.Diagnostics, "; ")
		if msg == "" {
			msg = "extractor reported success=false"
		}
		finish(false, msg)
		return Result{Task: task, Err: cxxerrors.NewTransientError("parse", string(task.FileKey), fmt.Errorf("extractor reported failure: %s", msg))}
	}

	content, readErr := os.ReadFile(task.AbsPath)
	if readErr != nil {
		finish(false, readErr.Error())
		return Result{Task: task, Err: cxxerrors.NewTransientError("parse", string(task.FileKey), readErr)}
	}

	payload := buildPayload(task, out, content)
	finish(true, "")
	return Result{Task: task, Payload: &payload}
}

func buildPayload(task coretypes.ParseTask, out extractorOutput, content []byte) coretypes.ParsePayload {
	contentHash := hashutil.ContentHash(content)
	flagsHash := task.Entry.FlagsHash

	includeHashes := make([]string, 0, len(out.IncludeDeps))
	for _, inc := range out.IncludeDeps {
		includeContent, err := os.ReadFile(inc.Path)
		if err != nil {
			continue
		}
		includeHashes = append(includeHashes, hashutil.ContentHash(includeContent))
	}
	includesHash := hashutil.IncludesHash(includeHashes)
	compositeHash := hashutil.CompositeHash(contentHash, includesHash, flagsHash)

	symbols := make([]coretypes.Symbol, 0, len(out.Symbols))
	for _, s := range out.Symbols {
		symbols = append(symbols, coretypes.Symbol{
			FileKey:       task.FileKey,
			Name:          s.Name,
			QualifiedName: s.QualifiedName,
			Kind:          s.Kind,
			Line:          s.Line,
			Col:           s.Col,
			ExtentEndLine: s.ExtentEndLine,
		})
	}

	references := make([]coretypes.Reference, 0, len(out.References))
	for _, r := range out.References {
		references = append(references, coretypes.Reference{
			FileKey: task.FileKey,
			Symbol:  r.Symbol,
			Line:    r.Line,
			Col:     r.Col,
			Kind:    coretypes.RefKind(r.Kind),
		})
	}

	callEdges := make([]coretypes.CallEdge, 0, len(out.CallEdges))
	for _, c := range out.CallEdges {
		callEdges = append(callEdges, coretypes.CallEdge{
			FileKey: task.FileKey,
			Caller:  c.Caller,
			Callee:  c.Callee,
			Line:    c.Line,
		})
	}

	includeDeps := make([]coretypes.IncludeDep, 0, len(out.IncludeDeps))
	for _, inc := range out.IncludeDeps {
		includeDeps = append(includeDeps, coretypes.IncludeDep{
			FileKey: task.FileKey,
			Path:    inc.Path,
			Depth:   inc.Depth,
		})
	}

	return coretypes.ParsePayload{
		ContextID:     task.ContextID,
		FileKey:       task.FileKey,
		RepoID:        task.RepoID,
		AbsPath:       task.AbsPath,
		Content:       content,
		ContentHash:   contentHash,
		FlagsHash:     flagsHash,
		IncludesHash:  includesHash,
		CompositeHash: compositeHash,
		Symbols:       symbols,
		References:    references,
		CallEdges:     callEdges,
		IncludeDeps:   includeDeps,
	}
}
