package ingest

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/hpcloud/tail"
)

// follow tails path until ctx ends or the file goes idle. It returns the
// offset reached; ok is false when the file could not be opened.
func (in *Ingester) follow(ctx context.Context, path string) (offset int64, ok bool) {
	in.stats.followStarted(path)
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("following file panicked", "file", path, "panic", r)
			in.stats.followFailed(path)
			ok = false
		}
	}()

	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: in.startLocation(path),
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		in.logger.Error("failed to tail file", "file", path, "error", err)
		in.stats.followFailed(path)
		return 0, false
	}
	defer func() {
		if off, err := t.Tell(); err == nil {
			offset, ok = off, true
		}
		_ = t.Stop()
		t.Cleanup()
	}()

	source := pathProperties(in.config.Root, path, in.config.NodeName)
	parser := in.parsers.Get()
	defer in.parsers.Put(parser)

	check := time.Second
	if idle := in.config.IdleTimeout; idle > 0 && idle/2 < check {
		check = idle / 2
	}
	checkTicker := time.NewTicker(check)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, open := <-t.Lines:
			if !open {
				return
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				in.logger.Warn("error reading file", "file", path, "error", line.Err)
				in.stats.readError(path)
				continue
			}

			at := in.now()
			rec, structured := ParseLine(parser, line.Text, at)
			for k, v := range source {
				rec.Properties[k] = v
			}
			in.stats.lineRead(path, structured, !structured && looksStructured(line.Text), at)
			in.emitter.Emit(rec)
			lastActivity = time.Now()

		case <-checkTicker.C:
			if in.config.IdleTimeout > 0 && time.Since(lastActivity) > in.config.IdleTimeout {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// startLocation resumes at a remembered offset when the file has not shrunk,
// otherwise starts at the end (or the beginning with FromStart).
func (in *Ingester) startLocation(path string) *tail.SeekInfo {
	if off, ok := in.stats.resumeOffset(path); ok {
		if fi, err := os.Stat(path); err == nil && fi.Size() >= off {
			return &tail.SeekInfo{Offset: off, Whence: io.SeekStart}
		}
	}
	if in.config.FromStart {
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	return &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
}
