// Package engine runs a batch's tasks under a concurrency cap with
// per-phase timeouts, process-group isolation, and guaranteed cleanup.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/PlatformNetwork/term-executor/internal/archive"
	"github.com/PlatformNetwork/term-executor/internal/artifacts"
	"github.com/PlatformNetwork/term-executor/internal/batch"
	"github.com/PlatformNetwork/term-executor/internal/eventbus"
	"github.com/PlatformNetwork/term-executor/internal/metrics"
)

// Config holds the phase timeouts and limits the engine enforces. Owned
// by internal/config.Config; engine only sees the fields it needs.
type Config struct {
	WorkspaceBase   string
	CloneTimeout    time.Duration
	AgentTimeout    time.Duration
	TestTimeout     time.Duration
	MaxOutputBytes  int
}

// Engine runs batches to completion. Only one batch runs at a time
// process-wide; callers must check registry.HasActiveBatch before Spawn.
type Engine struct {
	cfg       Config
	registry  *batch.Registry
	metrics   *metrics.Metrics
	log       *slog.Logger
	artifacts artifacts.Store

	busMu sync.Mutex
	buses map[string]*eventbus.Bus
}

// New creates an Engine.
func New(cfg Config, registry *batch.Registry, m *metrics.Metrics, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		metrics:   m,
		log:       log,
		artifacts: artifacts.NoopStore{},
		buses:     make(map[string]*eventbus.Bus),
	}
}

// WithArtifacts attaches an object-store client for post-completion
// output bundle upload. Optional — defaults to a no-op store.
func (e *Engine) WithArtifacts(store artifacts.Store) *Engine {
	e.artifacts = store
	return e
}

// BusFor returns the event bus for batchID, creating it if absent. The
// HTTP WebSocket handler calls this to subscribe; Spawn calls it to publish.
func (e *Engine) BusFor(batchID string) *eventbus.Bus {
	e.busMu.Lock()
	defer e.busMu.Unlock()
	b, ok := e.buses[batchID]
	if !ok {
		b = eventbus.New()
		e.buses[batchID] = b
	}
	return b
}

// dropBus closes and forgets a batch's event bus once it finishes.
func (e *Engine) dropBus(batchID string) {
	e.busMu.Lock()
	defer e.busMu.Unlock()
	if b, ok := e.buses[batchID]; ok {
		b.Close()
		delete(e.buses, batchID)
	}
}

// Spawn schedules a batch for background execution and returns
// immediately; the caller has already created the batch via
// registry.Create and extracted the archive via archive.Loader.
func (e *Engine) Spawn(ctx context.Context, b *batch.Batch, extracted *archive.Extracted, concurrentLimit int) {
	go e.runBatch(ctx, b, extracted, concurrentLimit)
}

func (e *Engine) runBatch(ctx context.Context, b *batch.Batch, extracted *archive.Extracted, concurrentLimit int) {
	bus := e.BusFor(b.ID)
	defer e.dropBus(b.ID)

	b.Update(func(res *batch.BatchResult) { res.Status = batch.StatusExtracting })

	b.Update(func(res *batch.BatchResult) { res.Status = batch.StatusRunning })

	sem := semaphore.NewWeighted(int64(concurrentLimit))
	var wg sync.WaitGroup

	for _, task := range extracted.Tasks {
		task := task

		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled (batch reaped/cancelled) before this task
			// could even start; synthesize a failed result rather than
			// leaving it unrepresented.
			result := batch.TaskResult{TaskID: task.TaskID, Status: batch.TaskFailed, Error: "cancelled"}
			e.recordTaskResult(b, bus, result)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			bus.Publish(batch.WsEvent{Kind: batch.EventTaskStarted, BatchID: b.ID, TaskID: task.TaskID})

			runner := &taskRunner{
				eng:           e,
				task:          task,
				agentCode:     extracted.AgentCode,
				agentLanguage: extracted.AgentLanguage,
				workDir:       filepath.Join(e.cfg.WorkspaceBase, b.ID, task.TaskID),
			}
			result := runner.runSingleTask(ctx)
			e.recordTaskResult(b, bus, result)
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		b.Update(func(res *batch.BatchResult) { res.PassedTasks = countPassed(res.Tasks) })
		e.registry.MarkFailed(b.ID, "cancelled")
		bus.Publish(batch.WsEvent{Kind: batch.EventBatchComplete, BatchID: b.ID})
		e.uploadArtifacts(b)
		return
	}

	snapshot := b.Snapshot()
	reward := aggregateReward(snapshot.Tasks)
	b.Update(func(res *batch.BatchResult) {
		res.AggregateReward = reward
		res.PassedTasks = countPassed(res.Tasks)
	})

	e.registry.MarkCompleted(b.ID)
	bus.Publish(batch.WsEvent{Kind: batch.EventBatchComplete, BatchID: b.ID})
	e.uploadArtifacts(b)
}

// uploadArtifacts bundles and uploads a finished batch's captured output.
// Runs after batch_complete has already been published and never blocks
// it; a dead or unconfigured store only produces a log line.
func (e *Engine) uploadArtifacts(b *batch.Batch) {
	result := b.Snapshot()
	go func() {
		bundle, err := artifacts.Bundle(result)
		if err != nil {
			e.log.Warn("failed to build artifact bundle", slog.String("batch_id", b.ID), slog.String("error", err.Error()))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		key, err := e.artifacts.Upload(ctx, b.ID, bundle)
		if err != nil {
			e.log.Warn("artifact upload failed", slog.String("batch_id", b.ID), slog.String("error", err.Error()))
			return
		}
		if key != "" {
			e.log.Info("artifact uploaded", slog.String("batch_id", b.ID), slog.String("key", key))
		}
	}()
}

func (e *Engine) recordTaskResult(b *batch.Batch, bus *eventbus.Bus, result batch.TaskResult) {
	b.Update(func(res *batch.BatchResult) {
		res.Tasks[result.TaskID] = &result
	})
	if e.metrics != nil {
		e.metrics.RecordTask(result.Passed, time.Duration(result.DurationMs)*time.Millisecond)
	}
	bus.Publish(batch.WsEvent{Kind: batch.EventTaskComplete, BatchID: b.ID, TaskID: result.TaskID, Data: result})
}

func aggregateReward(tasks map[string]*batch.TaskResult) float64 {
	if len(tasks) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tasks {
		sum += t.Reward
	}
	return sum / float64(len(tasks))
}

func countPassed(tasks map[string]*batch.TaskResult) int {
	count := 0
	for _, t := range tasks {
		if t.Passed {
			count++
		}
	}
	return count
}
