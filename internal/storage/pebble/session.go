package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Chichichkin/docsink/internal/document"
	"github.com/Chichichkin/docsink/internal/storage"
)

type envelope struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
	Document any            `json:"document"`
}

type stagedDoc struct {
	envelope
	expires time.Time
}

type session struct {
	store    *Store
	database string
	staged   []stagedDoc
	index    map[string]int
	closed   bool
}

func (s *session) Store(entity any) (string, error) {
	if s.closed {
		return "", storage.ErrSessionClosed
	}
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	id := s.store.collection + "/" + u.String()

	s.index[id] = len(s.staged)
	s.staged = append(s.staged, stagedDoc{envelope: envelope{
		ID:       id,
		Metadata: map[string]any{"@collection": s.store.collection},
		Document: entity,
	}})
	return id, nil
}

func (s *session) SetMetadata(id, key string, value any) error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("pebblestore: document %q is not staged in this session", id)
	}

	if key == document.MetadataExpires {
		at, err := toTime(value)
		if err != nil {
			return fmt.Errorf("pebblestore: %s: %w", key, err)
		}
		at = at.UTC()
		s.staged[i].expires = at
		value = at
	}
	s.staged[i].Metadata[key] = value
	return nil
}

// Commit writes all staged documents, their expiry index entries and the
// database registry entry in one batch.
func (s *session) Commit(ctx context.Context) error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := s.store.db.NewBatch()
	defer b.Close()

	for _, d := range s.staged {
		raw, err := json.Marshal(d.envelope)
		if err != nil {
			return fmt.Errorf("pebblestore: encode %s: %w", d.ID, err)
		}
		if err := b.Set(docKey(s.database, d.ID), s.store.encoder.EncodeAll(raw, nil), nil); err != nil {
			return err
		}
		if !d.expires.IsZero() {
			if err := b.Set(expKey(s.database, d.expires, d.ID), nil, nil); err != nil {
				return err
			}
		}
	}
	if err := b.Set(registryKey(s.database), nil, nil); err != nil {
		return err
	}

	if err := b.Commit(s.store.writeOptions()); err != nil {
		return fmt.Errorf("pebblestore: commit %d documents: %w", len(s.staged), err)
	}
	s.closed = true
	return nil
}

func (s *session) Close() error {
	s.closed = true
	s.staged = nil
	return nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	}
	return time.Time{}, fmt.Errorf("unsupported expiry value %T", v)
}
