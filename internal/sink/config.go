package sink

import (
	"errors"
	"fmt"
	"time"

	"github.com/Chichichkin/docsink/internal/expiration"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/logging/batch"
)

var (
	ErrNilStore                = errors.New("sink: document store is required")
	ErrInvalidBatchSize        = errors.New("sink: batch size must be positive")
	ErrInvalidFlushInterval    = errors.New("sink: flush interval must be positive")
	ErrInvalidShutdownTimeout  = errors.New("sink: shutdown timeout must be positive")
	ErrConflictingExpiration   = errors.New("sink: expiration callback and expiration expression are mutually exclusive")
	ErrInvalidFilterExpression = errors.New("sink: invalid filter expression")
	// ErrInvalidExpiration marks negative expiration durations other than
	// expiration.Never.
	ErrInvalidExpiration = expiration.ErrInvalidDuration
)

// Config configures a Sink. Zero values select defaults: BatchSize 50,
// FlushInterval 2s, ShutdownTimeout 10s, no expiration, no filter.
type Config struct {
	// MinimumLevel drops records below this level before they are queued.
	MinimumLevel    logging.Level
	BatchSize       int
	FlushInterval   time.Duration
	ShutdownTimeout time.Duration
	// Database is the target database; empty selects the store default.
	Database       string
	FormatProvider logging.FormatProvider

	// DefaultExpiration applies to records below Error, ErrorExpiration to
	// Error and Fatal. Each falls back to the other when unset (zero).
	// expiration.Never disables expiration for that class.
	DefaultExpiration time.Duration
	ErrorExpiration   time.Duration
	// ExpirationCallback, when set, replaces both durations.
	ExpirationCallback func(*logging.LogRecord) time.Duration
	// ExpirationExpression is a CEL expression compiled into an
	// ExpirationCallback. It yields a duration or the string "never".
	ExpirationExpression string

	// Filter is a CEL expression; records for which it is false are dropped.
	Filter string
	// OwnsStore makes Close also close the document store.
	OwnsStore bool
}

func (c Config) validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.BatchSize)
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidFlushInterval, c.FlushInterval)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}
	if c.ExpirationCallback != nil && c.ExpirationExpression != "" {
		return ErrConflictingExpiration
	}
	return c.policy().Validate()
}

func (c Config) policy() expiration.Policy {
	return expiration.Policy{
		DefaultExpiration: c.DefaultExpiration,
		ErrorExpiration:   c.ErrorExpiration,
		Callback:          c.ExpirationCallback,
	}
}

func (c Config) batchConfig(policy expiration.Policy) batch.Config {
	return batch.Config{
		BatchSize:       c.BatchSize,
		FlushInterval:   c.FlushInterval,
		ShutdownTimeout: c.ShutdownTimeout,
		Database:        c.Database,
		FormatProvider:  c.FormatProvider,
		Expiration:      policy,
	}
}
