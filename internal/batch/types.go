// Package batch defines the mutable batch/task result types and the
// TTL-reaped registry that joins admission, execution, and observers.
package batch

import (
	"context"
	"sync"
	"time"
)

// Status is a batch's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsActive reports whether a batch in this status counts toward
// has_active_batch.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusExtracting || s == StatusRunning
}

// TaskStatus is a single task's phase within the state machine.
type TaskStatus string

const (
	TaskQueued          TaskStatus = "queued"
	TaskCloningRepo      TaskStatus = "cloning_repo"
	TaskInstallingDeps   TaskStatus = "installing_deps"
	TaskRunningAgent     TaskStatus = "running_agent"
	TaskRunningTests     TaskStatus = "running_tests"
	TaskCompleted        TaskStatus = "completed"
	TaskFailed           TaskStatus = "failed"
)

// TestScriptResult is the outcome of a single tests/*.sh invocation.
type TestScriptResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// TaskResult is the mutable, per-task outcome held inside a BatchResult.
type TaskResult struct {
	TaskID      string             `json:"task_id"`
	Status      TaskStatus         `json:"status"`
	Passed      bool               `json:"passed"`
	Reward      float64            `json:"reward"`
	TestResults []TestScriptResult `json:"test_results"`
	AgentOutput string             `json:"agent_output"`
	TestOutput  string             `json:"test_output"`
	Error       string             `json:"error,omitempty"`
	DurationMs  int64              `json:"duration_ms"`
}

// BatchResult is the mutable, per-batch outcome returned by GET /batch/{id}.
type BatchResult struct {
	BatchID         string                 `json:"batch_id"`
	Status          Status                 `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
	TotalTasks      int                    `json:"total_tasks"`
	ConcurrentTasks int                    `json:"concurrent_tasks"`
	Tasks           map[string]*TaskResult `json:"tasks"`
	CompletedTasks  int                    `json:"completed_tasks"`
	PassedTasks     int                    `json:"passed_tasks"`
	FailedTasks     int                    `json:"failed_tasks"`
	AggregateReward float64                `json:"aggregate_reward"`
	Error           string                 `json:"error,omitempty"`
	DurationMs      int64                  `json:"duration_ms"`
}

// BatchSummary is the compact form returned by GET /batches.
type BatchSummary struct {
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
}

// WsEventKind identifies the shape of a WsEvent's payload.
type WsEventKind string

const (
	EventSnapshot     WsEventKind = "snapshot"
	EventTaskStarted  WsEventKind = "task_started"
	EventTaskProgress WsEventKind = "task_progress"
	EventTaskComplete WsEventKind = "task_complete"
	EventBatchComplete WsEventKind = "batch_complete"
)

// WsEvent is a single event published to a batch's subscribers.
type WsEvent struct {
	Kind    WsEventKind `json:"kind"`
	BatchID string      `json:"batch_id"`
	TaskID  string      `json:"task_id,omitempty"`
	Data    any         `json:"data,omitempty"`
}

// Batch is the full in-memory record the registry and engine share.
// result is guarded by mu; readers snapshot-copy and release.
type Batch struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	result BatchResult

	cancel context.CancelFunc
}

// Snapshot returns a deep-enough copy of the batch's current result for
// safe external consumption.
func (b *Batch) Snapshot() BatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyResult(b.result)
}

// Status returns the batch's current status without a full snapshot copy.
func (b *Batch) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.Status
}

// Update runs fn under the batch's lock, allowing the engine to mutate
// status, task results, and aggregates in a single short critical section.
func (b *Batch) Update(fn func(*BatchResult)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.result)
}

// Cancel fires the batch's cancellation signal exactly once.
func (b *Batch) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
}

func copyResult(r BatchResult) BatchResult {
	out := r
	out.Tasks = make(map[string]*TaskResult, len(r.Tasks))
	for id, t := range r.Tasks {
		tc := *t
		tc.TestResults = append([]TestScriptResult(nil), t.TestResults...)
		out.Tasks[id] = &tc
	}
	return out
}
