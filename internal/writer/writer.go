// Package writer serializes every parse-payload persist through one
// goroutine, so SQLite's single-writer constraint never sees
// concurrent write contention from the Parser Pool's bounded-but-still
// multi-worker fan-out.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/writer.py's
// SingleWriterService: a bounded queue, one drain loop batching up to
// a configured batch size per persist round, a fixed-delay retry
// around each individual payload's persist, and queue_depth/lag_ms
// observability computed from when the oldest still-queued item was
// enqueued. asyncio.Queue becomes a buffered Go channel; the drain
// goroutine replaces the asyncio task; a sync.WaitGroup over
// outstanding items replaces queue.join()/task_done() for Flush.
package writer

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
	"github.com/cxxtract/cxxtract-go/internal/storage"
)

// Options configures one Writer.
type Options struct {
	QueueSize     int
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration
	Limits        storage.OverlayLimits
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 250 * time.Millisecond
	}
	if o.Limits == (storage.OverlayLimits{}) {
		o.Limits = storage.DefaultOverlayLimits()
	}
	return o
}

// Writer drains a bounded queue of parse payloads through one
// goroutine, batching writes and retrying individual payload
// failures with a fixed delay.
type Writer struct {
	store *storage.Engine
	opts  Options

	queue chan coretypes.ParsePayload
	wg    sync.WaitGroup // outstanding (enqueued, not yet persisted) items
	doneC chan struct{}

	running           atomic.Bool
	oldestEnqueueNano atomic.Int64
}

// New builds a Writer over store. Call Start before Enqueue.
func New(store *storage.Engine, opts Options) *Writer {
	opts = opts.withDefaults()
	return &Writer{
		store: store,
		opts:  opts,
		queue: make(chan coretypes.ParsePayload, opts.QueueSize),
		doneC: make(chan struct{}),
	}
}

// QueueDepth reports how many payloads are currently queued.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

// LagMs reports how long the oldest still-queued payload has been
// waiting, in milliseconds. Zero when the queue is empty.
func (w *Writer) LagMs() float64 {
	ts := w.oldestEnqueueNano.Load()
	if ts <= 0 {
		return 0
	}
	return float64(time.Since(time.Unix(0, ts)).Microseconds()) / 1000.0
}

// Start launches the drain goroutine. Calling Start twice is a no-op.
func (w *Writer) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.run()
}

// Stop flushes outstanding work and halts the drain goroutine.
func (w *Writer) Stop(ctx context.Context) error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}
	close(w.doneC)
	return nil
}

// Enqueue hands one parse payload to the writer. It blocks until the
// queue has room or ctx is cancelled.
func (w *Writer) Enqueue(ctx context.Context, payload coretypes.ParsePayload) error {
	if !w.running.Load() {
		return errNotRunning
	}
	if w.oldestEnqueueNano.Load() == 0 {
		w.oldestEnqueueNano.CompareAndSwap(0, time.Now().UnixNano())
	}
	w.wg.Add(1)
	select {
	case w.queue <- payload:
		return nil
	case <-ctx.Done():
		w.wg.Done()
		return ctx.Err()
	}
}

// Flush blocks until every currently enqueued payload has been
// persisted (or ctx is cancelled).
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.oldestEnqueueNano.Store(0)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	ctx := context.Background()
	for {
		select {
		case <-w.doneC:
			w.drainRemaining(ctx)
			return
		case first := <-w.queue:
			batch := []coretypes.ParsePayload{first}
			for len(batch) < w.opts.BatchSize {
				select {
				case p := <-w.queue:
					batch = append(batch, p)
				default:
					goto persist
				}
			}
		persist:
			w.persistBatch(ctx, batch)
		}
	}
}

func (w *Writer) drainRemaining(ctx context.Context) {
	for {
		select {
		case p := <-w.queue:
			w.persistBatch(ctx, []coretypes.ParsePayload{p})
		default:
			return
		}
	}
}

func (w *Writer) persistBatch(ctx context.Context, batch []coretypes.ParsePayload) {
	for _, payload := range batch {
		w.persistOne(ctx, payload)
		w.wg.Done()
		if w.QueueDepth() == 0 {
			w.oldestEnqueueNano.Store(0)
		}
	}
}

func (w *Writer) persistOne(ctx context.Context, payload coretypes.ParsePayload) {
	var lastErr error
	for attempt := 1; attempt <= w.opts.RetryAttempts; attempt++ {
		if err := w.store.UpsertParsePayload(ctx, payload); err != nil {
			lastErr = err
			if attempt < w.opts.RetryAttempts {
				time.Sleep(w.opts.RetryDelay)
				continue
			}
			break
		}

		rowDelta := len(payload.Symbols) + len(payload.References) + len(payload.CallEdges) + len(payload.IncludeDeps)
		if _, err := w.store.UpdateContextOverlayStats(ctx, payload.ContextID, 1, rowDelta, w.opts.Limits, false); err != nil {
			lastErr = err
			if attempt < w.opts.RetryAttempts {
				time.Sleep(w.opts.RetryDelay)
				continue
			}
			break
		}
		return
	}
	log.Printf("writer: failed to persist %s after %d attempts: %v", payload.FileKey, w.opts.RetryAttempts, lastErr)
}

type writerError string

func (e writerError) Error() string { return string(e) }

const errNotRunning = writerError("writer: not running")
