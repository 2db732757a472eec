package config

import (
	"fmt"
	"log/slog"

	"github.com/Chichichkin/docsink/internal/expiration"
	"github.com/Chichichkin/docsink/internal/ingest"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/sink"
	pebblestore "github.com/Chichichkin/docsink/internal/storage/pebble"
	"github.com/Chichichkin/docsink/internal/storage/remote"
)

// SinkConfig converts the sink section. The store is owned by the caller.
func (c Config) SinkConfig() (sink.Config, error) {
	level, err := logging.ParseLevel(c.Sink.MinimumLevel)
	if err != nil {
		return sink.Config{}, fmt.Errorf("sink.minimumLevel: %w", err)
	}
	def, err := expiration.ParseExpiration(c.Sink.DefaultExpiration)
	if err != nil {
		return sink.Config{}, fmt.Errorf("sink.defaultExpiration: %w", err)
	}
	errExp, err := expiration.ParseExpiration(c.Sink.ErrorExpiration)
	if err != nil {
		return sink.Config{}, fmt.Errorf("sink.errorExpiration: %w", err)
	}

	return sink.Config{
		MinimumLevel:         level,
		BatchSize:            c.Sink.BatchSize,
		FlushInterval:        c.Sink.FlushInterval,
		ShutdownTimeout:      c.Sink.ShutdownTimeout,
		Database:             c.Sink.Database,
		DefaultExpiration:    def,
		ErrorExpiration:      errExp,
		ExpirationExpression: c.Sink.ExpirationExpression,
		Filter:               c.Sink.Filter,
	}, nil
}

func (c Config) PebbleOptions() (pebblestore.Options, error) {
	mode, err := pebblestore.ParseFsyncMode(c.Store.Fsync)
	if err != nil {
		return pebblestore.Options{}, err
	}
	return pebblestore.Options{
		DataDir:         c.Store.DataDir,
		Fsync:           mode,
		FsyncInterval:   c.Store.FsyncInterval,
		DefaultDatabase: c.Sink.Database,
	}, nil
}

func (c Config) RemoteOptions(logger *slog.Logger) remote.Options {
	return remote.Options{
		URL:             c.Store.URL,
		DefaultDatabase: c.Sink.Database,
		MaxRetries:      c.Store.MaxRetries,
		RetryDelay:      c.Store.RetryDelay,
		Timeout:         c.Store.Timeout,
		Logger:          logger,
	}
}

func (c Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Root:               c.Ingest.Root,
		ScanInterval:       c.Ingest.ScanInterval,
		MinWorkers:         c.Ingest.MinWorkers,
		MaxWorkers:         c.Ingest.MaxWorkers,
		FileQueueSize:      c.Ingest.FileQueueSize,
		NodeName:           c.Ingest.NodeName,
		IdleTimeout:        c.Ingest.IdleTimeout,
		FromStart:          c.Ingest.FromStart,
		ScaleUpThreshold:   c.Ingest.ScaleUpThreshold,
		ScaleDownThreshold: c.Ingest.ScaleDownThreshold,
		ScaleCheckInterval: c.Ingest.ScaleCheckInterval,
	}
}
