package pebblestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/pebble"
)

// Purge deletes every document whose expiry is at or before now, across all
// databases, and returns how many were removed.
func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	databases, err := s.Databases()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, database := range databases {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.purgeDatabase(database, now)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Store) purgeDatabase(database string, now time.Time) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: expPrefix(database),
		UpperBound: expUpperBound(database, now.UTC()),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		id, ok := idFromExpKey(database, iter.Key())
		if !ok {
			continue
		}
		if err := b.Delete(docKey(database, id), nil); err != nil {
			return 0, err
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return 0, err
		}
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.Commit(s.writeOptions()); err != nil {
		return 0, err
	}
	return n, nil
}

// RunPurger purges expired documents every interval until ctx is done.
func (s *Store) RunPurger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("purger started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			n, err := s.Purge(ctx, time.Now())
			if err != nil {
				logger.Error("purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired documents deleted", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
