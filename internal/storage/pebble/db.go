package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"github.com/Chichichkin/docsink/internal/document"
	"github.com/Chichichkin/docsink/internal/storage"
)

// FsyncMode defines durability behavior for commits.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever never forces a WAL sync from the application.
	FsyncModeNever
)

// ParseFsyncMode accepts always|interval|never.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch s {
	case "always":
		return FsyncModeAlways, nil
	case "interval", "":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("invalid fsync mode %q; use always|interval|never", s)
}

// ErrInvalidDatabase is returned for database names that cannot be used as a
// key prefix.
var ErrInvalidDatabase = errors.New("pebblestore: invalid database name")

type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	Fsync   FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// DefaultDatabase is used by sessions opened without a database name.
	DefaultDatabase string
	// Collection prefixes generated document ids. Defaults to LogEvents.
	Collection string
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// Store implements storage.DocumentStore.
type Store struct {
	db         *pebble.DB
	writeSync  bool
	defaultDB  string
	collection string
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	parsers    fastjson.ParserPool
	closeOnce  sync.Once
}

var _ storage.DocumentStore = (*Store)(nil)

// Open creates or opens a store in opts.DataDir.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	defaultDB := storage.DatabaseOrDefault(opts.DefaultDatabase)
	if err := validateDatabase(defaultDB); err != nil {
		return nil, err
	}
	collection := opts.Collection
	if collection == "" {
		collection = document.Collection
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	default:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("pebblestore: zstd decoder: %w", err)
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		enc.Close()
		dec.Close()
		return nil, fmt.Errorf("pebblestore: open %s: %w", opts.DataDir, err)
	}

	return &Store{
		db:         db,
		writeSync:  opts.Fsync == FsyncModeAlways,
		defaultDB:  defaultDB,
		collection: collection,
		encoder:    enc,
		decoder:    dec,
	}, nil
}

// OpenSession starts a unit of work against database.
func (s *Store) OpenSession(ctx context.Context, database string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if database == "" {
		database = s.defaultDB
	}
	if err := validateDatabase(database); err != nil {
		return nil, err
	}
	return &session{store: s, database: database, index: make(map[string]int)}, nil
}

// Close closes the Pebble database and the codecs.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
		s.encoder.Close()
		s.decoder.Close()
	})
	return err
}

func (s *Store) writeOptions() *pebble.WriteOptions {
	if s.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func validateDatabase(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDatabase)
	}
	for _, r := range name {
		if r == '/' || r < 0x20 {
			return fmt.Errorf("%w: %q", ErrInvalidDatabase, name)
		}
	}
	return nil
}
