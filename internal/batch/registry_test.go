package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlatformNetwork/term-executor/internal/metrics"
)

func TestCreateRegistersBatchAsActive(t *testing.T) {
	r := New(time.Hour, nil)

	b, ctx := r.Create(4, 10)
	require.NotNil(t, ctx)

	got, ok := r.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status())
	assert.True(t, r.HasActiveBatch())
}

func TestMarkCompletedUpdatesStatusAndCounters(t *testing.T) {
	r := New(time.Hour, nil)
	b, _ := r.Create(4, 2)
	b.Update(func(res *BatchResult) {
		res.Tasks["t1"] = &TaskResult{TaskID: "t1", Passed: true}
		res.Tasks["t2"] = &TaskResult{TaskID: "t2", Passed: false}
		res.PassedTasks = 1
	})

	r.MarkCompleted(b.ID)

	assert.Equal(t, StatusCompleted, b.Status())
	assert.False(t, r.HasActiveBatch())
	assert.Equal(t, int64(1), r.Stats.BatchesCompleted.Load())
	assert.Equal(t, int64(0), r.Stats.BatchesActive.Load())

	snapshot := b.Snapshot()
	assert.Equal(t, 2, snapshot.CompletedTasks)
	assert.Equal(t, 1, snapshot.FailedTasks)
	assert.Equal(t, snapshot.TotalTasks, snapshot.PassedTasks+snapshot.FailedTasks)
	assert.GreaterOrEqual(t, snapshot.DurationMs, int64(0))
}

func TestMarkFailedUpdatesStatusAndReason(t *testing.T) {
	r := New(time.Hour, nil)
	b, _ := r.Create(4, 10)

	r.MarkFailed(b.ID, "archive extraction failed")

	snapshot := b.Snapshot()
	assert.Equal(t, StatusFailed, snapshot.Status)
	assert.Equal(t, "archive extraction failed", snapshot.Error)
	assert.Equal(t, int64(1), r.Stats.BatchesFailed.Load())
	assert.Equal(t, 0, snapshot.CompletedTasks)
	assert.Equal(t, 0, snapshot.FailedTasks)
	assert.GreaterOrEqual(t, snapshot.DurationMs, int64(0))
}

// TestRegistryDrivesPrometheusBatchMetrics confirms Create/MarkCompleted/
// MarkFailed keep the process-wide batches_total/batches_active/
// batches_completed counters in step, including on the failure path — the
// one New() call in this test binary, since promauto registers against
// the default registry and a second call would panic.
func TestRegistryDrivesPrometheusBatchMetrics(t *testing.T) {
	m := metrics.New()
	r := New(time.Hour, nil).WithMetrics(m)

	ok, _ := r.Create(4, 1)
	r.MarkCompleted(ok.ID)

	failed, _ := r.Create(4, 1)
	r.MarkFailed(failed.ID, "boom")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BatchesTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BatchesActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BatchesCompleted))
}

// TestBatchStatusNeverRegressesToRunningAfterCompletion is the testable
// property spec.md calls out directly: once a batch has reached a terminal
// status, nothing observes it as running again.
func TestBatchStatusNeverRegressesToRunningAfterCompletion(t *testing.T) {
	r := New(time.Hour, nil)
	b, _ := r.Create(4, 10)

	b.Update(func(res *BatchResult) { res.Status = StatusRunning })
	r.MarkCompleted(b.ID)

	assert.Equal(t, StatusCompleted, b.Status())
	assert.False(t, b.Status().IsActive())
}

func TestHasSpawnedDedupesSecondReachedForSameHash(t *testing.T) {
	r := New(time.Hour, nil)

	assert.False(t, r.HasSpawned("hash1"))
	assert.True(t, r.HasSpawned("hash1"))
	assert.True(t, r.HasSpawned("hash1"))
}

func TestReapRemovesExpiredBatchesAndCancelsThem(t *testing.T) {
	r := New(10*time.Millisecond, nil)
	b, ctx := r.Create(4, 10)

	time.Sleep(20 * time.Millisecond)
	removed := r.Reap()

	assert.Equal(t, 1, removed)
	_, ok := r.Get(b.ID)
	assert.False(t, ok)
	assert.Error(t, ctx.Err())
}

func TestReapDoesNotRemoveFreshBatches(t *testing.T) {
	r := New(time.Hour, nil)
	b, _ := r.Create(4, 10)

	removed := r.Reap()

	assert.Equal(t, 0, removed)
	_, ok := r.Get(b.ID)
	assert.True(t, ok)
}

type fakeHistoryStore struct {
	mu       sync.Mutex
	archived []BatchResult
	done     chan struct{}
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{done: make(chan struct{}, 1)}
}

func (f *fakeHistoryStore) Archive(ctx context.Context, result BatchResult) error {
	f.mu.Lock()
	f.archived = append(f.archived, result)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func TestMarkCompletedArchivesToHistoryStore(t *testing.T) {
	store := newFakeHistoryStore()
	r := New(time.Hour, nil).WithHistory(store)
	b, _ := r.Create(4, 10)

	r.MarkCompleted(b.ID)

	select {
	case <-store.done:
	case <-time.After(time.Second):
		t.Fatal("history store was never called")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.archived, 1)
	assert.Equal(t, b.ID, store.archived[0].BatchID)
}

func TestListReturnsSummaryForEveryBatch(t *testing.T) {
	r := New(time.Hour, nil)
	b1, _ := r.Create(4, 10)
	b2, _ := r.Create(4, 10)

	summaries := r.List()
	ids := map[string]bool{}
	for _, s := range summaries {
		ids[s.BatchID] = true
	}
	assert.True(t, ids[b1.ID])
	assert.True(t, ids[b2.ID])
}
