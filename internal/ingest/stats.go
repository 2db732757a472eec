package ingest

import (
	"sync"
	"time"
)

// FileStats describes what an Ingester has done with one file.
type FileStats struct {
	Lines      int
	Structured int
	// Malformed counts lines that looked like JSON events but did not parse
	// and were kept as plain text.
	Malformed  int
	ReadErrors int
	Follows    int
	Failures   int
	// Offset is where the last follow stopped; HasOffset is false until a
	// follow has ended cleanly.
	Offset    int64
	HasOffset bool
	LastLine  time.Time
}

// Stats is a point-in-time view of an Ingester.
type Stats struct {
	Files         map[string]FileStats
	Queued        int
	QueueCapacity int
	Workers       int
	Busy          int
	ScaleUps      int
	ScaleDowns    int
}

// Lines sums per-file line counters.
func (s Stats) Lines() (lines, structured, malformed int) {
	for _, f := range s.Files {
		lines += f.Lines
		structured += f.Structured
		malformed += f.Malformed
	}
	return lines, structured, malformed
}

// Failures is the number of follows that could not open their file.
func (s Stats) Failures() int {
	n := 0
	for _, f := range s.Files {
		n += f.Failures
	}
	return n
}

// QueueUsage is the fill ratio of the file queue.
func (s Stats) QueueUsage() float64 {
	if s.QueueCapacity == 0 {
		return 0
	}
	return float64(s.Queued) / float64(s.QueueCapacity)
}

// tracker keeps per-file state and the follower pool gauges behind one lock.
type tracker struct {
	mu       sync.Mutex
	files    map[string]*FileStats
	capacity int
	queued   int
	workers  int
	busy     int
	ups      int
	downs    int
}

func newTracker(capacity int) *tracker {
	return &tracker{files: make(map[string]*FileStats), capacity: capacity}
}

func (t *tracker) file(path string) *FileStats {
	f, ok := t.files[path]
	if !ok {
		f = &FileStats{}
		t.files[path] = f
	}
	return f
}

// discovered registers path and reports whether it is new.
func (t *tracker) discovered(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[path]; ok {
		return false
	}
	t.files[path] = &FileStats{}
	return true
}

func (t *tracker) followStarted(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file(path).Follows++
}

func (t *tracker) followFailed(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file(path).Failures++
}

// followEnded remembers offset as the resume point when ok.
func (t *tracker) followEnded(path string, offset int64, ok bool) {
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.file(path)
	f.Offset, f.HasOffset = offset, true
}

func (t *tracker) resumeOffset(path string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[path]
	if !ok || !f.HasOffset {
		return 0, false
	}
	return f.Offset, true
}

func (t *tracker) lineRead(path string, structured, malformed bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.file(path)
	f.Lines++
	if structured {
		f.Structured++
	}
	if malformed {
		f.Malformed++
	}
	f.LastLine = at
}

func (t *tracker) readError(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file(path).ReadErrors++
}

func (t *tracker) addQueued(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued += delta
}

func (t *tracker) addWorkers(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers += delta
}

func (t *tracker) addBusy(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy += delta
}

func (t *tracker) scaled(up bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if up {
		t.ups++
	} else {
		t.downs++
	}
}

// pool returns the queue fill ratio and the number of busy followers.
func (t *tracker) pool() (queueUsage float64, busy int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capacity > 0 {
		queueUsage = float64(t.queued) / float64(t.capacity)
	}
	return queueUsage, t.busy
}

func (t *tracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	files := make(map[string]FileStats, len(t.files))
	for path, f := range t.files {
		files[path] = *f
	}
	return Stats{
		Files:         files,
		Queued:        t.queued,
		QueueCapacity: t.capacity,
		Workers:       t.workers,
		Busy:          t.busy,
		ScaleUps:      t.ups,
		ScaleDowns:    t.downs,
	}
}
