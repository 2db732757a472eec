package pebblestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/valyala/fastjson"

	"github.com/Chichichkin/docsink/internal/document"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("pebblestore: document not found")

// Document is a stored document as read back from the store.
type Document struct {
	ID       string
	Metadata map[string]string
	// Expires is zero for documents that never expire.
	Expires time.Time
	Level   string
	Message string
	// Body is the raw JSON of the stored entity.
	Body []byte
}

// Decode unmarshals the document body into v.
func (d *Document) Decode(v any) error {
	return json.Unmarshal(d.Body, v)
}

// Get reads one document.
func (s *Store) Get(database, id string) (*Document, error) {
	database = s.databaseOrDefault(database)
	val, closer, err := s.db.Get(docKey(database, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	defer closer.Close()
	return s.decode(val)
}

// List returns up to limit documents in id order, which is insertion order.
// limit <= 0 returns all documents.
func (s *Store) List(database string, limit int) ([]*Document, error) {
	database = s.databaseOrDefault(database)
	prefix := docPrefix(database)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*Document
	for iter.First(); iter.Valid(); iter.Next() {
		doc, err := s.decode(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Databases lists every database that has received a commit.
func (s *Store) Databases() ([]string, error) {
	prefix := []byte(registryPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(iter.Key()[len(prefix):]))
	}
	return out, iter.Error()
}

func (s *Store) databaseOrDefault(database string) string {
	if database == "" {
		return s.defaultDB
	}
	return database
}

func (s *Store) decode(compressed []byte) (*Document, error) {
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	p := s.parsers.Get()
	defer s.parsers.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	doc := &Document{
		ID:       string(v.GetStringBytes("id")),
		Metadata: map[string]string{},
		Level:    string(v.GetStringBytes("document", "level")),
		Message:  string(v.GetStringBytes("document", "renderedMessage")),
		Body:     v.Get("document").MarshalTo(nil),
	}
	if md := v.GetObject("metadata"); md != nil {
		md.Visit(func(key []byte, val *fastjson.Value) {
			if val.Type() == fastjson.TypeString {
				doc.Metadata[string(key)] = string(val.GetStringBytes())
				return
			}
			doc.Metadata[string(key)] = val.String()
		})
	}
	if exp, ok := doc.Metadata[document.MetadataExpires]; ok {
		at, err := time.Parse(time.RFC3339Nano, exp)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", document.MetadataExpires, err)
		}
		doc.Expires = at
	}
	return doc, nil
}
