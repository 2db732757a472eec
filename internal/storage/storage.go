// Package storage defines the contract between the batch dispatcher and a
// document store.
package storage

import (
	"context"
	"errors"
)

// DefaultDatabase is used when a sink does not name a target database.
const DefaultDatabase = "logs"

// ErrSessionClosed is returned by Session methods after Close or Commit.
var ErrSessionClosed = errors.New("storage: session closed")

// DocumentStore opens units of work against a named database.
type DocumentStore interface {
	// OpenSession starts a unit of work. An empty database selects the
	// store's default database.
	OpenSession(ctx context.Context, database string) (Session, error)
	Close() error
}

// Session accumulates staged writes until Commit. A session is used by one
// goroutine and for one commit only.
type Session interface {
	// Store stages entity and returns the key it will be stored under.
	Store(entity any) (string, error)
	// SetMetadata attaches out-of-band metadata to a staged entity.
	SetMetadata(id, key string, value any) error
	// Commit writes every staged entity in a single round trip.
	Commit(ctx context.Context) error
	// Close releases the session. Uncommitted writes are discarded.
	Close() error
}

// DatabaseOrDefault returns name, or DefaultDatabase when name is empty.
func DatabaseOrDefault(name string) string {
	if name == "" {
		return DefaultDatabase
	}
	return name
}
