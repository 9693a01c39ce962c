package batch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PlatformNetwork/term-executor/internal/metrics"
)

// HistoryStore archives a finished batch's result. Matches
// internal/history.Store's shape without importing it, so batch has no
// dependency on the archival backend a deployment chooses.
type HistoryStore interface {
	Archive(ctx context.Context, result BatchResult) error
}

// Stats holds the registry's atomic lifecycle counters.
type Stats struct {
	BatchesTotal     atomic.Int64
	BatchesActive    atomic.Int64
	BatchesCompleted atomic.Int64
	BatchesFailed    atomic.Int64
}

// Registry is the lock-free-ish, TTL-reaped store of in-flight and
// recently-finished batches. Backed by a mutex-guarded map; per-entry
// mutation goes through the Batch's own lock so the registry's critical
// sections stay short.
type Registry struct {
	mu      sync.Mutex
	batches map[string]*Batch
	spawned map[string]struct{} // payload hashes already spawned, for I3 dedup

	ttl     time.Duration
	log     *slog.Logger
	history HistoryStore
	metrics *metrics.Metrics

	Stats Stats
}

// New creates an empty Registry with the given batch TTL.
func New(ttl time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		batches: make(map[string]*Batch),
		spawned: make(map[string]struct{}),
		ttl:     ttl,
		log:     log,
	}
}

// WithHistory attaches an archival store; MarkCompleted/MarkFailed call
// it fire-and-forget after updating the live entry. Optional — a nil
// history is never set and the calls are simply skipped.
func (r *Registry) WithHistory(h HistoryStore) *Registry {
	r.history = h
	return r
}

// WithMetrics attaches the process's Prometheus counters; Create and
// MarkCompleted/MarkFailed keep batches_total/batches_active/
// batches_completed in sync alongside the registry's own Stats. Optional
// — a nil metrics is never set and the calls are simply skipped.
func (r *Registry) WithMetrics(m *metrics.Metrics) *Registry {
	r.metrics = m
	return r
}

// Create allocates a new batch with a v4 UUID id, registers it, and
// returns it together with a context the engine should run the batch
// under; cancelling ctx is equivalent to calling Cancel on the batch.
func (r *Registry) Create(concurrentLimit, totalTasks int) (*Batch, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Batch{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		cancel:    cancel,
		result: BatchResult{
			Status:          StatusPending,
			CreatedAt:       time.Now(),
			TotalTasks:      totalTasks,
			ConcurrentTasks: concurrentLimit,
			Tasks:           make(map[string]*TaskResult),
		},
	}
	b.result.BatchID = b.ID

	r.mu.Lock()
	r.batches[b.ID] = b
	r.mu.Unlock()

	r.Stats.BatchesTotal.Add(1)
	r.Stats.BatchesActive.Add(1)
	if r.metrics != nil {
		r.metrics.BatchesTotal.Inc()
		r.metrics.BatchesActive.Inc()
	}

	return b, ctx
}

// HasSpawned reports whether a batch has already been spawned for this
// payload hash, and records hash as spawned if not — an atomic
// check-and-set used to swallow a second Reached for the same hash
// (a late consensus vote that recreated a fresh pending entry after
// the first one was already consumed).
func (r *Registry) HasSpawned(payloadHash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spawned[payloadHash]; ok {
		return true
	}
	r.spawned[payloadHash] = struct{}{}
	return false
}

// Get returns the batch with the given id, if present.
func (r *Registry) Get(batchID string) (*Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	return b, ok
}

// List returns a summary of every currently-registered batch.
func (r *Registry) List() []BatchSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BatchSummary, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, BatchSummary{BatchID: b.ID, CreatedAt: b.CreatedAt, Status: b.Status()})
	}
	return out
}

// HasActiveBatch reports whether any registered batch is pending,
// extracting, or running. The engine only runs one batch at a time
// process-wide, so callers use this to reject new submissions with 503.
func (r *Registry) HasActiveBatch() bool {
	r.mu.Lock()
	batches := make([]*Batch, 0, len(r.batches))
	for _, b := range r.batches {
		batches = append(batches, b)
	}
	r.mu.Unlock()

	for _, b := range batches {
		if b.Status().IsActive() {
			return true
		}
	}
	return false
}

// MarkCompleted transitions a batch to completed and updates counters.
func (r *Registry) MarkCompleted(batchID string) {
	b, ok := r.Get(batchID)
	if !ok {
		return
	}
	b.Update(func(res *BatchResult) {
		res.Status = StatusCompleted
		res.CompletedTasks, res.FailedTasks = taskCounts(res.Tasks)
		res.DurationMs = time.Since(res.CreatedAt).Milliseconds()
	})
	r.Stats.BatchesActive.Add(-1)
	r.Stats.BatchesCompleted.Add(1)
	if r.metrics != nil {
		r.metrics.BatchesActive.Dec()
		r.metrics.BatchesCompleted.Inc()
	}
	r.archive(b)
}

// MarkFailed transitions a batch to failed with reason and updates counters.
// batches_completed is incremented here too, matching the unconditional
// increment on every terminal transition this was grounded on — a failed
// batch still finished, it just finished badly.
func (r *Registry) MarkFailed(batchID, reason string) {
	b, ok := r.Get(batchID)
	if !ok {
		return
	}
	b.Update(func(res *BatchResult) {
		res.Status = StatusFailed
		res.Error = reason
		res.CompletedTasks, res.FailedTasks = taskCounts(res.Tasks)
		res.DurationMs = time.Since(res.CreatedAt).Milliseconds()
	})
	r.Stats.BatchesActive.Add(-1)
	r.Stats.BatchesFailed.Add(1)
	if r.metrics != nil {
		r.metrics.BatchesActive.Dec()
		r.metrics.BatchesCompleted.Inc()
	}
	r.archive(b)
}

// taskCounts derives completed_tasks and failed_tasks from the tasks map
// itself rather than trusting a caller-supplied passed_tasks. Only tasks
// with a recorded result are counted, so passed_tasks + failed_tasks ==
// total_tasks holds once every task has recorded a result.
func taskCounts(tasks map[string]*TaskResult) (completed, failed int) {
	completed = len(tasks)
	for _, t := range tasks {
		if !t.Passed {
			failed++
		}
	}
	return completed, failed
}

// archive fires the configured HistoryStore, if any, in the background;
// a batch's own goroutine is already done mutating it by the time
// MarkCompleted/MarkFailed runs, so Snapshot here is just a cheap copy.
func (r *Registry) archive(b *Batch) {
	if r.history == nil {
		return
	}
	result := b.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.history.Archive(ctx, result); err != nil {
			r.log.Warn("history archive failed", slog.String("batch_id", result.BatchID), slog.String("error", err.Error()))
		}
	}()
}

// Reap removes batches older than the registry's TTL, firing each one's
// cancel signal first so any still-running engine worker observes it at
// its next phase boundary.
func (r *Registry) Reap() int {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Batch
	for id, b := range r.batches {
		if b.CreatedAt.Before(cutoff) {
			expired = append(expired, b)
			delete(r.batches, id)
		}
	}
	r.mu.Unlock()

	for _, b := range expired {
		b.Cancel()
		if b.Status().IsActive() {
			r.Stats.BatchesActive.Add(-1)
			if r.metrics != nil {
				r.metrics.BatchesActive.Dec()
			}
		}
		r.log.Info("reaped expired batch", slog.String("batch_id", b.ID))
	}
	return len(expired)
}

// RunReaperLoop polls every period, reaping expired batches until ctx is
// cancelled.
func (r *Registry) RunReaperLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}
