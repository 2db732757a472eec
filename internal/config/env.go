package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const envPrefix = "DOCSINK_"

// envReader overlays environment values onto config fields and collects
// parse errors instead of silently keeping the previous value.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := r.getenv(envPrefix + key)
	return v, v != ""
}

func (r *envReader) getEnv(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) getEnvAsInt(key string, dst *int) {
	if v, ok := r.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (r *envReader) getEnvAsFloat(key string, dst *float64) {
	if v, ok := r.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = f
	}
}

func (r *envReader) getEnvAsBool(key string, dst *bool) {
	if v, ok := r.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = b
	}
}

func (r *envReader) getEnvAsDuration(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = d
	}
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	r := &envReader{getenv: getenv}

	r.getEnv("LOG_LEVEL", &cfg.Log.Level)
	r.getEnv("LOG_FORMAT", &cfg.Log.Format)

	r.getEnv("MINIMUM_LEVEL", &cfg.Sink.MinimumLevel)
	r.getEnvAsInt("BATCH_SIZE", &cfg.Sink.BatchSize)
	r.getEnvAsDuration("FLUSH_INTERVAL", &cfg.Sink.FlushInterval)
	r.getEnvAsDuration("SHUTDOWN_TIMEOUT", &cfg.Sink.ShutdownTimeout)
	r.getEnv("DATABASE", &cfg.Sink.Database)
	r.getEnv("DEFAULT_EXPIRATION", &cfg.Sink.DefaultExpiration)
	r.getEnv("ERROR_EXPIRATION", &cfg.Sink.ErrorExpiration)
	r.getEnv("EXPIRATION_EXPRESSION", &cfg.Sink.ExpirationExpression)
	r.getEnv("FILTER", &cfg.Sink.Filter)

	r.getEnv("STORE", &cfg.Store.Kind)
	r.getEnv("DATA_DIR", &cfg.Store.DataDir)
	r.getEnv("FSYNC", &cfg.Store.Fsync)
	r.getEnvAsDuration("FSYNC_INTERVAL", &cfg.Store.FsyncInterval)
	r.getEnvAsDuration("PURGE_INTERVAL", &cfg.Store.PurgeInterval)
	r.getEnv("REMOTE_URL", &cfg.Store.URL)
	r.getEnvAsInt("MAX_RETRIES", &cfg.Store.MaxRetries)
	r.getEnvAsDuration("RETRY_DELAY", &cfg.Store.RetryDelay)
	r.getEnvAsDuration("REMOTE_TIMEOUT", &cfg.Store.Timeout)

	r.getEnv("LOG_PATH", &cfg.Ingest.Root)
	r.getEnvAsDuration("SCAN_INTERVAL", &cfg.Ingest.ScanInterval)
	r.getEnvAsInt("MIN_WORKERS", &cfg.Ingest.MinWorkers)
	r.getEnvAsInt("MAX_WORKERS", &cfg.Ingest.MaxWorkers)
	r.getEnvAsInt("QUEUE_SIZE", &cfg.Ingest.FileQueueSize)
	r.getEnv("NODE_NAME", &cfg.Ingest.NodeName)
	r.getEnvAsDuration("IDLE_TIMEOUT", &cfg.Ingest.IdleTimeout)
	r.getEnvAsBool("FROM_START", &cfg.Ingest.FromStart)
	r.getEnvAsFloat("SCALE_UP_THRESHOLD", &cfg.Ingest.ScaleUpThreshold)
	r.getEnvAsFloat("SCALE_DOWN_THRESHOLD", &cfg.Ingest.ScaleDownThreshold)
	r.getEnvAsDuration("SCALE_CHECK_INTERVAL", &cfg.Ingest.ScaleCheckInterval)

	return errors.Join(r.errs...)
}
