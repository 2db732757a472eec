package batch

import (
	"sync"

	"github.com/Chichichkin/docsink/internal/logging"
)

// Queue is the unbounded pending-record queue shared between producers and
// the dispatcher. Enqueue is safe from any goroutine; TakeUpTo removes a
// prefix atomically. Once closed, the queue accepts nothing new but can
// still be drained.
type Queue struct {
	mu     sync.Mutex
	items  []*logging.LogRecord
	closed bool
}

// Enqueue appends rec and returns the new queue length. It reports false
// and leaves the queue untouched after Close.
func (q *Queue) Enqueue(rec *logging.LogRecord) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return len(q.items), false
	}
	q.items = append(q.items, rec)
	return len(q.items), true
}

// Close stops further Enqueue calls from succeeding.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// TakeUpTo removes and returns at most n records in enqueue order.
// n <= 0 takes everything.
func (q *Queue) TakeUpTo(n int) []*logging.LogRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	if n <= 0 || n >= len(q.items) {
		out := q.items
		q.items = nil
		return out
	}

	out := make([]*logging.LogRecord, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
