// Package batch buffers log records and persists them to a document store
// in batches from a single background goroutine.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chichichkin/docsink/internal/document"
	"github.com/Chichichkin/docsink/internal/expiration"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/storage"
)

const (
	DefaultBatchSize       = 50
	DefaultFlushInterval   = 2 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// ErrShutdownTimeout is returned by Stop when the final flush did not finish
// within Config.ShutdownTimeout.
var ErrShutdownTimeout = errors.New("batch: final flush exceeded shutdown timeout")

type Config struct {
	BatchSize       int
	FlushInterval   time.Duration
	ShutdownTimeout time.Duration
	// Database is the target database; empty selects the store default.
	Database       string
	FormatProvider logging.FormatProvider
	Expiration     expiration.Policy
}

// Option customizes a Processor.
type Option func(*Processor)

// WithLogger sets the diagnostics logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(bp *Processor) {
		if l != nil {
			bp.logger = l
		}
	}
}

// WithClock replaces the time source used for expiration timestamps.
func WithClock(now func() time.Time) Option {
	return func(bp *Processor) {
		if now != nil {
			bp.now = now
		}
	}
}

// Processor owns the pending queue and the dispatcher loop. Records are
// flushed when the queue reaches BatchSize or when FlushInterval ticks,
// whichever comes first. Failed batches are logged and dropped.
type Processor struct {
	ctx     context.Context
	store   storage.DocumentStore
	config  Config
	queue   Queue
	flushCh chan struct{}
	stopCtx context.CancelFunc
	done    chan struct{}
	logger  *slog.Logger
	now     func() time.Time
	metrics *Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	stopAt    atomic.Int64
	drainErr  error
}

func NewBatchProcessor(ctx context.Context, store storage.DocumentStore, config Config, opts ...Option) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	nCtx, cancel := context.WithCancel(ctx)
	bp := &Processor{
		ctx:     nCtx,
		store:   store,
		config:  config,
		flushCh: make(chan struct{}, 1),
		stopCtx: cancel,
		done:    make(chan struct{}),
		logger:  slog.Default(),
		now:     time.Now,
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// Emit enqueues record without waiting for persistence.
func (bp *Processor) Emit(record *logging.LogRecord) {
	if record == nil {
		return
	}
	n, ok := bp.queue.Enqueue(record)
	if !ok {
		bp.metrics.IncRecordsRejected()
		return
	}
	bp.metrics.IncRecordsEnqueued()

	if n >= bp.config.BatchSize {
		select {
		case bp.flushCh <- struct{}{}:
		default:
			// a flush is already pending
		}
	}
}

func (bp *Processor) Start() {
	bp.startOnce.Do(func() {
		go bp.run()
	})
}

// Stop cancels the dispatcher loop after one final flush of everything still
// queued. It waits at most ShutdownTimeout; a commit that is still running
// then is left to finish in the background and Done reports when it has.
func (bp *Processor) Stop() error {
	var err error
	bp.stopOnce.Do(func() {
		bp.queue.Close()
		bp.stopAt.Store(time.Now().UnixNano())
		bp.Start()
		bp.stopCtx()

		select {
		case <-bp.done:
			err = bp.drainErr
		case <-time.After(bp.config.ShutdownTimeout):
			bp.logger.Error("final flush abandoned",
				"timeout", bp.config.ShutdownTimeout,
				"pending", bp.queue.Len())
			err = ErrShutdownTimeout
		}
	})
	return err
}

// Done is closed once the dispatcher has exited, including any commit that
// outlived Stop. The store must stay open until then.
func (bp *Processor) Done() <-chan struct{} {
	return bp.done
}

// Pending is the number of records waiting for the next flush.
func (bp *Processor) Pending() int {
	return bp.queue.Len()
}

func (bp *Processor) Metrics() *Metrics {
	return bp.metrics
}

func (bp *Processor) run() {
	defer close(bp.done)

	ticker := time.NewTicker(bp.config.FlushInterval)
	defer ticker.Stop()

	// Cycles are not aborted by Stop; only the final drain has a deadline.
	cycleCtx := context.WithoutCancel(bp.ctx)

	for {
		select {
		case <-ticker.C:
			bp.flush(cycleCtx)
		case <-bp.flushCh:
			bp.flush(cycleCtx)
		case <-bp.ctx.Done():
			bp.drainErr = bp.drain()
			return
		}
	}
}

// flush persists batches while full batches are available. It yields to
// drain as soon as the processor is stopping.
func (bp *Processor) flush(ctx context.Context) {
	for {
		records := bp.queue.TakeUpTo(bp.config.BatchSize)
		if len(records) == 0 {
			return
		}
		bp.emitBatch(ctx, records)
		if len(records) < bp.config.BatchSize || bp.ctx.Err() != nil {
			return
		}
	}
}

// drain persists everything left in the queue. ShutdownTimeout only decides
// whether another batch is started; a commit already running is never
// cancelled.
func (bp *Processor) drain() error {
	stopAt := time.Now()
	if ns := bp.stopAt.Load(); ns != 0 {
		stopAt = time.Unix(0, ns)
	}
	deadline, cancel := context.WithDeadline(context.WithoutCancel(bp.ctx), stopAt.Add(bp.config.ShutdownTimeout))
	defer cancel()
	commitCtx := context.WithoutCancel(bp.ctx)

	for {
		records := bp.queue.TakeUpTo(bp.config.BatchSize)
		if len(records) == 0 {
			return nil
		}
		if deadline.Err() != nil {
			left := append(records, bp.queue.TakeUpTo(0)...)
			bp.metrics.AddRecordsDropped(len(left))
			bp.logger.Warn("dropping records left after shutdown timeout", "records", len(left))
			return ErrShutdownTimeout
		}
		bp.emitBatch(commitCtx, records)
	}
}

func (bp *Processor) emitBatch(ctx context.Context, records []*logging.LogRecord) {
	defer func() {
		if r := recover(); r != nil {
			bp.logger.Error("batch emission panicked, dropping batch", "records", len(records), "panic", r)
			bp.metrics.IncBatchesFailed(len(records))
		}
	}()

	if err := bp.sendBatch(ctx, records); err != nil {
		bp.logger.Error("failed to persist batch, dropping it",
			"records", len(records),
			"database", storage.DatabaseOrDefault(bp.config.Database),
			"error", err)
		bp.metrics.IncBatchesFailed(len(records))
		return
	}

	bp.metrics.IncBatchesCommitted(len(records))
	bp.logger.Debug("persisted batch", "records", len(records))
}

func (bp *Processor) sendBatch(ctx context.Context, records []*logging.LogRecord) error {
	session, err := bp.store.OpenSession(ctx, bp.config.Database)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	expires := bp.config.Expiration.Enabled()
	for _, rec := range records {
		doc := document.New(rec, bp.config.FormatProvider)
		id, err := session.Store(doc)
		if err != nil {
			return fmt.Errorf("store document: %w", err)
		}
		if !expires {
			continue
		}

		decision := expiration.Resolve(bp.config.Expiration, rec, bp.now())
		if !decision.Expires {
			continue
		}
		if err := session.SetMetadata(id, document.MetadataExpires, decision.At.UTC()); err != nil {
			return fmt.Errorf("set expiration on %s: %w", id, err)
		}
	}

	if err := session.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
