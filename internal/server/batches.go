package server

import (
	"net/http"
	"sort"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

// GetBatch answers GET /batch/{id} with the full, mutable BatchResult.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, b.Snapshot())
}

// GetBatchTasks answers GET /batch/{id}/tasks with every task's result,
// ordered by task id for a stable response across polls.
func (h *Handler) GetBatchTasks(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	snapshot := b.Snapshot()
	writeJSON(w, http.StatusOK, sortedTasks(snapshot.Tasks))
}

// GetBatchTask answers GET /batch/{id}/task/{task_id} with a single
// task's result, including its test-script results and duration.
func (h *Handler) GetBatchTask(w http.ResponseWriter, r *http.Request) {
	b, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	snapshot := b.Snapshot()
	task, ok := snapshot.Tasks[r.PathValue("task_id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListBatches answers GET /batches with a compact summary of every batch
// the registry still holds (bounded by SESSION_TTL_SECS reaping).
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	summaries := h.registry.List()
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.Before(summaries[j].CreatedAt) })
	writeJSON(w, http.StatusOK, summaries)
}

func sortedTasks(tasks map[string]*batch.TaskResult) []*batch.TaskResult {
	out := make([]*batch.TaskResult, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}
