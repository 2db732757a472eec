package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/storage"
)

// StoredDocument is one committed document as seen by MockDocumentStore.
type StoredDocument struct {
	Database string
	ID       string
	Entity   any
	Metadata map[string]any
}

// MockDocumentStore is an in-memory storage.DocumentStore. Each successful
// commit is kept as one batch.
type MockDocumentStore struct {
	mu          sync.Mutex
	Batches     [][]StoredDocument
	ShouldFail  bool
	Delay       time.Duration
	// IgnoreContext makes a delayed commit run to completion even when its
	// context is cancelled.
	IgnoreContext bool
	OpenErr       error
	Sessions      int
	Closed        bool
	// ClosedDuringCommit is set when Close is called while a commit is
	// still running.
	ClosedDuringCommit bool
	nextID             int
	commitCalls        int
	committing         int
}

func (m *MockDocumentStore) OpenSession(_ context.Context, database string) (storage.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.Sessions++
	return &mockSession{store: m, database: storage.DatabaseOrDefault(database)}, nil
}

func (m *MockDocumentStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committing > 0 {
		m.ClosedDuringCommit = true
	}
	m.Closed = true
	return nil
}

// SetFail toggles commit failures.
func (m *MockDocumentStore) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}

func (m *MockDocumentStore) GetBatches() [][]StoredDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]StoredDocument, len(m.Batches))
	copy(out, m.Batches)
	return out
}

// GetDocuments flattens all committed batches in commit order.
func (m *MockDocumentStore) GetDocuments() []StoredDocument {
	var out []StoredDocument
	for _, b := range m.GetBatches() {
		out = append(out, b...)
	}
	return out
}

func (m *MockDocumentStore) CommitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitCalls
}

func (m *MockDocumentStore) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

func (m *MockDocumentStore) WasClosedDuringCommit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ClosedDuringCommit
}

type mockSession struct {
	store    *MockDocumentStore
	database string
	staged   []StoredDocument
	index    map[string]int
	closed   bool
}

func (s *mockSession) Store(entity any) (string, error) {
	if s.closed {
		return "", storage.ErrSessionClosed
	}
	s.store.mu.Lock()
	s.store.nextID++
	id := fmt.Sprintf("LogEvents/%d", s.store.nextID)
	s.store.mu.Unlock()

	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[id] = len(s.staged)
	s.staged = append(s.staged, StoredDocument{Database: s.database, ID: id, Entity: entity, Metadata: map[string]any{}})
	return id, nil
}

func (s *mockSession) SetMetadata(id, key string, value any) error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("unknown document %q", id)
	}
	s.staged[i].Metadata[key] = value
	return nil
}

func (s *mockSession) Commit(ctx context.Context) error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	s.store.mu.Lock()
	if s.store.Closed {
		s.store.mu.Unlock()
		return fmt.Errorf("mock store closed")
	}
	s.store.committing++
	delay, ignoreCtx := s.store.Delay, s.store.IgnoreContext
	s.store.mu.Unlock()

	defer func() {
		s.store.mu.Lock()
		s.store.committing--
		s.store.mu.Unlock()
	}()

	if delay > 0 {
		if ignoreCtx {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.commitCalls++
	if s.store.ShouldFail {
		return fmt.Errorf("mock commit failed")
	}
	s.store.Batches = append(s.store.Batches, s.staged)
	s.closed = true
	return nil
}

func (s *mockSession) Close() error {
	s.closed = true
	return nil
}

// MockEmitter records emitted records.
type MockEmitter struct {
	Records []*logging.LogRecord
	mu      sync.Mutex
}

func (m *MockEmitter) Emit(record *logging.LogRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, record)
}

func (m *MockEmitter) GetRecords() []*logging.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*logging.LogRecord, len(m.Records))
	copy(out, m.Records)
	return out
}

// NewRecord builds an Information record with the given template and properties.
func NewRecord(template string, props map[string]any) *logging.LogRecord {
	rec := &logging.LogRecord{
		Timestamp:       time.Now(),
		Level:           logging.InformationLevel,
		MessageTemplate: template,
		Properties:      make(map[string]logging.PropertyValue, len(props)),
	}
	for k, v := range props {
		rec.Properties[k] = logging.ValueOf(v)
	}
	return rec
}

// CreateTempLogStructure lays out a pod-style log directory tree and returns its root.
func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_pod-1_uid123/container-1/app.log":   "",
		"default_pod-1_uid123/container-2/app.log":   "",
		"kube-system_pod-2_uid456/container/app.log": "",
		"monitoring_pod-4_uid101/grafana/notes.txt":  "not a log\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
