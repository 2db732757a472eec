package batch

import (
	"sync"
)

// Metrics counts records and batches passing through a Processor.
type Metrics struct {
	RecordsEnqueued  int
	RecordsRejected  int
	BatchesCommitted int
	RecordsPersisted int
	BatchesFailed    int
	RecordsDropped   int
	mu               sync.RWMutex
}

func (m *Metrics) IncRecordsEnqueued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsEnqueued++
}

// IncRecordsRejected counts records emitted after the processor stopped.
func (m *Metrics) IncRecordsRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsRejected++
}

func (m *Metrics) IncBatchesCommitted(records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesCommitted++
	m.RecordsPersisted += records
}

func (m *Metrics) IncBatchesFailed(records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesFailed++
	m.RecordsDropped += records
}

// AddRecordsDropped counts records abandoned without a commit attempt.
func (m *Metrics) AddRecordsDropped(records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsDropped += records
}

func (m *Metrics) GetMetricsStamp() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		RecordsEnqueued:  m.RecordsEnqueued,
		RecordsRejected:  m.RecordsRejected,
		BatchesCommitted: m.BatchesCommitted,
		RecordsPersisted: m.RecordsPersisted,
		BatchesFailed:    m.BatchesFailed,
		RecordsDropped:   m.RecordsDropped,
	}
}

// InFlight is the number of enqueued records not yet persisted or dropped.
func (m *Metrics) InFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RecordsEnqueued - m.RecordsPersisted - m.RecordsDropped
}
