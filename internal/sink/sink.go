// Package sink is the log-event sink: it accepts structured log records,
// filters them by level and an optional CEL expression, and persists them to
// a document store in the background in batches.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chichichkin/docsink/internal/expiration"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/logging/batch"
	"github.com/Chichichkin/docsink/internal/storage"
)

// Option customizes a Sink.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithDiagnostics routes the sink's own failures (dropped batches, filter
// errors) to l instead of slog.Default().
func WithDiagnostics(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the time source used to compute expiration timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Sink implements logging.Emitter on top of a batch.Processor.
type Sink struct {
	store     storage.DocumentStore
	processor *batch.Processor
	minLevel  logging.Level
	filter    *recordFilter
	logger    *slog.Logger
	ownsStore bool

	filtered  atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

var _ logging.Emitter = (*Sink)(nil)

// New validates cfg and starts the background dispatcher.
func New(store storage.DocumentStore, cfg Config, opts ...Option) (*Sink, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	filter, err := newRecordFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}

	policy := cfg.policy()
	if cfg.ExpirationExpression != "" {
		cb, err := expirationFromExpr(cfg.ExpirationExpression, o.logger)
		if err != nil {
			return nil, err
		}
		policy.Callback = cb
	}

	s := &Sink{
		store:     store,
		minLevel:  cfg.MinimumLevel,
		filter:    filter,
		logger:    o.logger,
		ownsStore: cfg.OwnsStore,
	}
	s.processor = batch.NewBatchProcessor(context.Background(), store, cfg.batchConfig(policy),
		batch.WithLogger(o.logger),
		batch.WithClock(o.now),
	)
	s.processor.Start()

	o.logger.Debug("sink started",
		"database", storage.DatabaseOrDefault(cfg.Database),
		"expiration", policy.Enabled(),
		"default_expiration", expiration.FormatExpiration(cfg.DefaultExpiration),
		"error_expiration", expiration.FormatExpiration(cfg.ErrorExpiration))
	return s, nil
}

// IsEnabled reports whether records at level pass the minimum level.
func (s *Sink) IsEnabled(level logging.Level) bool {
	return level >= s.minLevel
}

// Emit queues rec for persistence. It never blocks on the store and never
// panics; records that fail the level or filter check are discarded.
func (s *Sink) Emit(rec *logging.LogRecord) {
	if rec == nil || !s.IsEnabled(rec.Level) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("emit panicked, record dropped", "panic", r)
		}
	}()

	ok, err := s.filter.Allow(rec)
	if err != nil {
		s.logger.Warn("filter evaluation failed, record dropped", "error", err)
	}
	if !ok {
		s.filtered.Add(1)
		return
	}
	s.processor.Emit(rec)
}

// Close flushes queued records within the shutdown timeout, stops the
// dispatcher and, when the sink owns it, closes the store. A commit that
// outlives the timeout keeps the store open; an owned store is then closed
// once Done fires. Subsequent calls return the first result.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		err := s.processor.Stop()
		if !s.ownsStore {
			s.closeErr = err
			return
		}
		select {
		case <-s.processor.Done():
			if cerr := s.store.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		default:
			s.logger.Warn("commit still running after shutdown timeout, store left open until it finishes")
			go func() {
				<-s.processor.Done()
				if cerr := s.store.Close(); cerr != nil {
					s.logger.Error("failed to close store", "error", cerr)
				}
			}()
		}
		s.closeErr = err
	})
	return s.closeErr
}

// Done is closed when the dispatcher has exited and nothing uses the store
// any more. Callers that own the store close it only after Done.
func (s *Sink) Done() <-chan struct{} {
	return s.processor.Done()
}

// Stats is a point-in-time snapshot of sink counters.
type Stats struct {
	batch.Metrics
	RecordsFiltered int64
	Pending         int
}

func (s *Sink) Metrics() Stats {
	return Stats{
		Metrics:         s.processor.Metrics().GetMetricsStamp(),
		RecordsFiltered: s.filtered.Load(),
		Pending:         s.processor.Pending(),
	}
}
