package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/docsink/internal/document"
	"github.com/Chichichkin/docsink/internal/expiration"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/testutils"
)

const waitFor = 2 * time.Second

func newRecord(level logging.Level, msg string) *logging.LogRecord {
	return &logging.LogRecord{
		Timestamp:       time.Now(),
		Level:           level,
		MessageTemplate: msg,
	}
}

func messages(docs []testutils.StoredDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Entity.(*document.LogDocument).MessageTemplate)
	}
	return out
}

func TestBatchProcessor_SizeTrigger(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     3,
		FlushInterval: time.Hour,
	})
	processor.Start()
	defer processor.Stop()

	for i := 0; i < 3; i++ {
		processor.Emit(newRecord(logging.InformationLevel, fmt.Sprintf("test%d", i)))
	}

	assert.Eventually(t, func() bool { return len(store.GetBatches()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"test0", "test1", "test2"}, messages(store.GetDocuments()))
}

func TestBatchProcessor_TimeTrigger(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     100,
		FlushInterval: 50 * time.Millisecond,
	})
	processor.Start()
	defer processor.Stop()

	processor.Emit(newRecord(logging.InformationLevel, "timeout test"))
	assert.Empty(t, store.GetBatches())

	assert.Eventually(t, func() bool { return len(store.GetBatches()) == 1 }, waitFor, 5*time.Millisecond)
}

func TestBatchProcessor_BelowBatchSizeWaitsForInterval(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     10,
		FlushInterval: time.Hour,
	})
	processor.Start()

	for i := 0; i < 5; i++ {
		processor.Emit(newRecord(logging.InformationLevel, fmt.Sprintf("test %d", i)))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, store.GetBatches())
	assert.Equal(t, 5, processor.Pending())

	require.NoError(t, processor.Stop())
	batches := store.GetBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)
}

func TestBatchProcessor_EmptyTicksOpenNoSession(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
	})
	processor.Start()

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, processor.Stop())
	assert.Equal(t, 0, store.CommitCalls())
}

func TestBatchProcessor_StopFlushesSingleRecord(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     50,
		FlushInterval: time.Hour,
	})
	processor.Start()

	processor.Emit(newRecord(logging.InformationLevel, "last words"))
	require.NoError(t, processor.Stop())

	assert.Equal(t, []string{"last words"}, messages(store.GetDocuments()))
}

func TestBatchProcessor_StopWithoutStart(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{})

	processor.Emit(newRecord(logging.InformationLevel, "never started"))
	require.NoError(t, processor.Stop())

	assert.Len(t, store.GetDocuments(), 1)
	assert.NoError(t, processor.Stop())
}

func TestBatchProcessor_DrainSplitsIntoBatches(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     4,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		processor.Emit(newRecord(logging.InformationLevel, fmt.Sprintf("m%d", i)))
	}
	require.NoError(t, processor.Stop())

	batches := store.GetBatches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 4)
	assert.Len(t, batches[1], 4)
	assert.Len(t, batches[2], 2)
	assert.Equal(t, "m9", messages(batches[2])[1])
}

func TestBatchProcessor_FailedBatchIsDropped(t *testing.T) {
	store := &testutils.MockDocumentStore{ShouldFail: true}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     2,
		FlushInterval: time.Hour,
	})
	processor.Start()
	defer processor.Stop()

	processor.Emit(newRecord(logging.InformationLevel, "lost1"))
	processor.Emit(newRecord(logging.InformationLevel, "lost2"))

	assert.Eventually(t, func() bool {
		return processor.Metrics().GetMetricsStamp().BatchesFailed == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, processor.Pending())

	store.SetFail(false)
	processor.Emit(newRecord(logging.InformationLevel, "kept1"))
	processor.Emit(newRecord(logging.InformationLevel, "kept2"))

	assert.Eventually(t, func() bool {
		return processor.Metrics().GetMetricsStamp().RecordsPersisted == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"kept1", "kept2"}, messages(store.GetDocuments()))

	stamp := processor.Metrics().GetMetricsStamp()
	assert.Equal(t, 4, stamp.RecordsEnqueued)
	assert.Equal(t, 2, stamp.RecordsDropped)
	assert.Equal(t, 2, stamp.RecordsPersisted)
}

func TestBatchProcessor_OpenSessionError(t *testing.T) {
	store := &testutils.MockDocumentStore{OpenErr: fmt.Errorf("store offline")}
	processor := NewBatchProcessor(context.TODO(), store, Config{BatchSize: 1, FlushInterval: time.Hour})

	processor.Emit(newRecord(logging.ErrorLevel, "x"))
	require.NoError(t, processor.Stop())

	assert.Equal(t, 1, processor.Metrics().GetMetricsStamp().BatchesFailed)
}

func TestBatchProcessor_ExpirationMetadata(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     10,
		FlushInterval: time.Hour,
		Expiration: expiration.Policy{
			DefaultExpiration: 15 * time.Minute,
			ErrorExpiration:   24 * time.Hour,
		},
	}, WithClock(func() time.Time { return now }))

	processor.Emit(newRecord(logging.InformationLevel, "info"))
	processor.Emit(newRecord(logging.FatalLevel, "fatal"))
	require.NoError(t, processor.Stop())

	docs := store.GetDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, now.Add(15*time.Minute).UTC(), docs[0].Metadata[document.MetadataExpires])
	assert.Equal(t, now.Add(24*time.Hour).UTC(), docs[1].Metadata[document.MetadataExpires])
}

func TestBatchProcessor_NoExpirationLeavesMetadataEmpty(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{})

	processor.Emit(newRecord(logging.ErrorLevel, "kept forever"))
	require.NoError(t, processor.Stop())

	docs := store.GetDocuments()
	require.Len(t, docs, 1)
	assert.NotContains(t, docs[0].Metadata, document.MetadataExpires)
}

func TestBatchProcessor_CallbackPanicIsContained(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     1,
		FlushInterval: time.Hour,
		Expiration: expiration.Policy{Callback: func(r *logging.LogRecord) time.Duration {
			if r.MessageTemplate == "bad" {
				panic("callback exploded")
			}
			return time.Hour
		}},
	})
	processor.Start()

	processor.Emit(newRecord(logging.InformationLevel, "bad"))
	assert.Eventually(t, func() bool {
		return processor.Metrics().GetMetricsStamp().BatchesFailed == 1
	}, waitFor, 5*time.Millisecond)

	processor.Emit(newRecord(logging.InformationLevel, "good"))
	require.NoError(t, processor.Stop())
	assert.Equal(t, []string{"good"}, messages(store.GetDocuments()))
}

func TestBatchProcessor_ShutdownTimeout(t *testing.T) {
	store := &testutils.MockDocumentStore{Delay: 200 * time.Millisecond}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:       10,
		FlushInterval:   time.Hour,
		ShutdownTimeout: 50 * time.Millisecond,
	})
	processor.Start()
	processor.Emit(newRecord(logging.InformationLevel, "slow"))

	start := time.Now()
	err := processor.Stop()
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	// the commit honours ctx but still completes after Stop gave up
	select {
	case <-processor.Done():
	case <-time.After(waitFor):
		t.Fatal("dispatcher did not exit")
	}
	stamp := processor.Metrics().GetMetricsStamp()
	assert.Equal(t, 1, stamp.RecordsPersisted)
	assert.Equal(t, 0, stamp.BatchesFailed)
	assert.Equal(t, 0, stamp.RecordsDropped)
	assert.Equal(t, []string{"slow"}, messages(store.GetDocuments()))
}

func TestBatchProcessor_ShutdownTimeoutDropsUnstartedBatches(t *testing.T) {
	store := &testutils.MockDocumentStore{Delay: 100 * time.Millisecond}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:       1,
		FlushInterval:   time.Hour,
		ShutdownTimeout: 50 * time.Millisecond,
	})
	processor.Emit(newRecord(logging.InformationLevel, "first"))
	processor.Emit(newRecord(logging.InformationLevel, "second"))
	processor.Emit(newRecord(logging.InformationLevel, "third"))

	assert.ErrorIs(t, processor.Stop(), ErrShutdownTimeout)
	<-processor.Done()

	stamp := processor.Metrics().GetMetricsStamp()
	assert.Equal(t, 1, stamp.RecordsPersisted)
	assert.Equal(t, 2, stamp.RecordsDropped)
	assert.Equal(t, []string{"first"}, messages(store.GetDocuments()))
}

func TestBatchProcessor_EmitRacingStopIsAccounted(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     3,
		FlushInterval: time.Hour,
	})
	processor.Start()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				processor.Emit(newRecord(logging.InformationLevel, fmt.Sprintf("w%d-%d", id, i)))
			}
		}(w)
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, processor.Stop())
	wg.Wait()

	stamp := processor.Metrics().GetMetricsStamp()
	assert.Equal(t, 800, stamp.RecordsEnqueued+stamp.RecordsRejected)
	assert.Equal(t, stamp.RecordsEnqueued, stamp.RecordsPersisted)
	assert.Len(t, store.GetDocuments(), stamp.RecordsPersisted)
	assert.Equal(t, 0, processor.Pending())
}

func TestBatchProcessor_EmitAfterStopIsRejected(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{})
	require.NoError(t, processor.Stop())

	processor.Emit(newRecord(logging.InformationLevel, "late"))
	processor.Emit(nil)

	assert.Equal(t, 1, processor.Metrics().GetMetricsStamp().RecordsRejected)
	assert.Equal(t, 0, processor.Pending())
}

func TestBatchProcessor_ConcurrentEmitAndFlush(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	processor := NewBatchProcessor(context.TODO(), store, Config{
		BatchSize:     5,
		FlushInterval: 20 * time.Millisecond,
	})
	processor.Start()

	var wg sync.WaitGroup
	worker := func(id int) {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			processor.Emit(newRecord(logging.InformationLevel, fmt.Sprintf("w%d-%d", id, i)))
			if i%10 == 0 {
				time.Sleep(1 * time.Millisecond)
			}
		}
	}

	wg.Add(5)
	for w := 0; w < 5; w++ {
		go worker(w)
	}
	wg.Wait()
	require.NoError(t, processor.Stop())

	seen := make(map[string]int)
	for _, b := range store.GetBatches() {
		assert.LessOrEqual(t, len(b), 5)
		for _, m := range messages(b) {
			seen[m]++
		}
	}
	assert.Len(t, seen, 250)
	for m, n := range seen {
		assert.Equal(t, 1, n, m)
	}
}
