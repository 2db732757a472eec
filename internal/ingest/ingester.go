// Package ingest follows *.log files under a directory tree and emits every
// line as a log record.
package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/Chichichkin/docsink/internal/logging"
)

const (
	DefaultScanInterval       = 30 * time.Second
	DefaultScaleCheckInterval = 15 * time.Second
	DefaultReportInterval     = 30 * time.Second
)

type Config struct {
	Root               string
	ScanInterval       time.Duration
	MinWorkers         int
	MaxWorkers         int
	FileQueueSize      int
	NodeName           string
	ScaleUpThreshold   float64 // default: 0.9
	ScaleDownThreshold float64 // default: 0.3
	ScaleCheckInterval time.Duration
	ReportInterval     time.Duration
	// If > 0, stop following a file after this period without new lines.
	// The file is picked up again by a later scan at the offset reached.
	IdleTimeout time.Duration
	// FromStart reads files first seen from the beginning instead of the end.
	FromStart bool
}

func (c *Config) applyDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.MinWorkers <= 0 {
		c.MinWorkers = 2
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.FileQueueSize <= 0 {
		c.FileQueueSize = 50
	}
	if c.ScaleUpThreshold <= 0 {
		c.ScaleUpThreshold = 0.9
	}
	if c.ScaleDownThreshold <= 0 {
		c.ScaleDownThreshold = 0.3
	}
	if c.ScaleCheckInterval <= 0 {
		c.ScaleCheckInterval = DefaultScaleCheckInterval
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = DefaultReportInterval
	}
}

// Ingester runs a scanner, an adaptive pool of followers and a metrics
// reporter. Each follower tails one file at a time.
type Ingester struct {
	config    Config
	emitter   logging.Emitter
	logger    *slog.Logger
	fileQueue chan string
	workers   []*worker
	workersWg sync.WaitGroup
	subWg     sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	stats     *tracker
	parsers   fastjson.ParserPool
	now       func() time.Time

	scaleMu        sync.Mutex
	currentWorkers int

	filesMu sync.Mutex
	active  map[string]struct{}

	stopOnce sync.Once
}

type worker struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Ingester)

func WithLogger(l *slog.Logger) Option {
	return func(in *Ingester) {
		if l != nil {
			in.logger = l
		}
	}
}

// New creates an Ingester. Start launches MinWorkers followers plus three
// background goroutines.
func New(ctx context.Context, config Config, emitter logging.Emitter, opts ...Option) *Ingester {
	config.applyDefaults()
	nCtx, cancel := context.WithCancel(ctx)

	in := &Ingester{
		config:    config,
		emitter:   emitter,
		logger:    slog.Default(),
		fileQueue: make(chan string, config.FileQueueSize),
		workers:   make([]*worker, config.MaxWorkers),
		ctx:       nCtx,
		cancel:    cancel,
		stats:     newTracker(config.FileQueueSize),
		now:       time.Now,
		active:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *Ingester) Start() {
	in.logger.Info("starting ingester",
		"root", in.config.Root,
		"min_workers", in.config.MinWorkers,
		"max_workers", in.config.MaxWorkers,
		"queue_size", in.config.FileQueueSize)

	in.scaleMu.Lock()
	in.currentWorkers = in.config.MinWorkers
	for i := 0; i < in.config.MinWorkers; i++ {
		in.startWorker(i)
	}
	in.scaleMu.Unlock()

	in.subWg.Add(3)
	go in.scanner()
	go in.monitorAndScale()
	go in.metricsReporter()
}

// Stop cancels every follower and waits for them to exit.
func (in *Ingester) Stop() {
	in.stopOnce.Do(func() {
		in.cancel()
		in.subWg.Wait()
		close(in.fileQueue)
		in.workersWg.Wait()
		in.logger.Info("ingester stopped")
	})
}

// Stats returns per-file counters and the follower pool state.
func (in *Ingester) Stats() Stats {
	return in.stats.snapshot()
}

func (in *Ingester) startWorker(id int) {
	if id >= len(in.workers) || in.workers[id] != nil {
		return
	}

	ctx, cancel := context.WithCancel(in.ctx)
	w := &worker{id: id, ctx: ctx, cancel: cancel}
	in.workers[id] = w

	in.workersWg.Add(1)
	go in.work(w)

	in.stats.addWorkers(1)
	in.logger.Debug("follower started", "worker", id)
}

func (in *Ingester) stopWorker(id int) {
	if id >= len(in.workers) || in.workers[id] == nil {
		return
	}

	in.workers[id].cancel()
	in.workers[id] = nil

	in.stats.addWorkers(-1)
	in.logger.Debug("follower stopped", "worker", id)
}

func (in *Ingester) work(w *worker) {
	defer in.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("follower panicked", "worker", w.id, "panic", r)
		}
	}()

	for {
		select {
		case path, ok := <-in.fileQueue:
			if !ok {
				return
			}
			in.stats.addQueued(-1)
			in.stats.addBusy(1)
			offset, ok := in.follow(w.ctx, path)
			in.release(path, offset, ok)
			in.stats.addBusy(-1)

		case <-w.ctx.Done():
			return
		}
	}
}

func (in *Ingester) scanner() {
	defer in.subWg.Done()

	in.scanFiles()

	ticker := time.NewTicker(in.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			in.scanFiles()
		case <-in.ctx.Done():
			return
		}
	}
}

// scanFiles queues every discovered file that is not already queued or
// being followed.
func (in *Ingester) scanFiles() {
	files, err := in.discoverLogFiles()
	if err != nil {
		in.logger.Error("discovering log files failed", "root", in.config.Root, "error", err)
		return
	}

	for _, file := range files {
		if !in.claim(file) {
			continue
		}
		select {
		case in.fileQueue <- file:
			in.stats.addQueued(1)
		case <-in.ctx.Done():
			in.unclaim(file)
			return
		default:
			in.unclaim(file)
			in.logger.Warn("file queue full, skipping",
				"queued", len(in.fileQueue),
				"capacity", cap(in.fileQueue),
				"file", file)
		}
	}
}

func (in *Ingester) claim(file string) bool {
	in.filesMu.Lock()
	defer in.filesMu.Unlock()

	if in.stats.discovered(file) {
		in.logger.Debug("discovered log file", "file", file)
	}
	if _, busy := in.active[file]; busy {
		return false
	}
	in.active[file] = struct{}{}
	return true
}

func (in *Ingester) unclaim(file string) {
	in.filesMu.Lock()
	defer in.filesMu.Unlock()
	delete(in.active, file)
}

// release frees file for the next scan and remembers where following
// stopped.
func (in *Ingester) release(file string, offset int64, ok bool) {
	in.stats.followEnded(file, offset, ok)
	in.unclaim(file)
}

func (in *Ingester) isActive(file string) bool {
	in.filesMu.Lock()
	defer in.filesMu.Unlock()
	_, ok := in.active[file]
	return ok
}

func (in *Ingester) monitorAndScale() {
	defer in.subWg.Done()

	ticker := time.NewTicker(in.config.ScaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			in.adjustWorkers()
		case <-in.ctx.Done():
			return
		}
	}
}

func (in *Ingester) adjustWorkers() {
	in.scaleMu.Lock()
	defer in.scaleMu.Unlock()

	queueUsage, busy := in.stats.pool()
	utilization := 0.0
	if in.currentWorkers > 0 {
		utilization = float64(busy) / float64(in.currentWorkers)
	}

	switch {
	case queueUsage > in.config.ScaleUpThreshold &&
		utilization > in.config.ScaleUpThreshold &&
		in.currentWorkers < in.config.MaxWorkers:
		in.startWorker(in.currentWorkers)
		in.currentWorkers++
		in.stats.scaled(true)
		in.logger.Info("scaled up", "workers", in.currentWorkers, "queue_usage", queueUsage)

	case queueUsage < in.config.ScaleDownThreshold &&
		utilization < in.config.ScaleDownThreshold &&
		in.currentWorkers > in.config.MinWorkers:
		in.currentWorkers--
		in.stopWorker(in.currentWorkers)
		in.stats.scaled(false)
		in.logger.Info("scaled down", "workers", in.currentWorkers, "queue_usage", queueUsage)
	}
}

func (in *Ingester) metricsReporter() {
	defer in.subWg.Done()

	ticker := time.NewTicker(in.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			in.report()
		case <-in.ctx.Done():
			return
		}
	}
}

// report logs pool gauges and totals, plus one debug line per file that
// saw malformed lines or read errors.
func (in *Ingester) report() {
	st := in.stats.snapshot()
	lines, structured, malformed := st.Lines()
	in.logger.Info("ingest metrics",
		"workers", st.Workers,
		"busy", st.Busy,
		"queued", st.Queued,
		"files", len(st.Files),
		"failures", st.Failures(),
		"lines", lines,
		"structured_lines", structured,
		"malformed_lines", malformed)

	for path, f := range st.Files {
		if f.Malformed > 0 || f.ReadErrors > 0 {
			in.logger.Debug("file ingest problems",
				"file", path,
				"malformed_lines", f.Malformed,
				"read_errors", f.ReadErrors,
				"lines", f.Lines)
		}
	}
}

func (in *Ingester) discoverLogFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(in.config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			in.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".log") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
