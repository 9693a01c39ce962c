package server

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Version            string  `json:"version"`
	UptimeSecs         float64 `json:"uptime_secs"`
	ActiveBatches      int64   `json:"active_batches"`
	TotalBatches       int64   `json:"total_batches"`
	CompletedBatches   int64   `json:"completed_batches"`
	TasksPassed        int64   `json:"tasks_passed"`
	TasksFailed        int64   `json:"tasks_failed"`
	MaxConcurrentTasks int     `json:"max_concurrent_tasks"`
	HasActiveBatch     bool    `json:"has_active_batch"`
}

// Health answers GET /health: liveness only, no dependency checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status answers GET /status: a point-in-time snapshot of the process's
// lifecycle counters, cheap enough to poll on every dashboard refresh.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:            apiVersion,
		UptimeSecs:         time.Since(h.startedAt).Seconds(),
		ActiveBatches:      h.registry.Stats.BatchesActive.Load(),
		TotalBatches:       h.registry.Stats.BatchesTotal.Load(),
		CompletedBatches:   h.registry.Stats.BatchesCompleted.Load(),
		MaxConcurrentTasks: h.cfg.MaxConcurrentTasks,
		HasActiveBatch:     h.registry.HasActiveBatch(),
	}
	if h.metrics != nil {
		resp.TasksPassed = h.metrics.TasksPassedCount()
		resp.TasksFailed = h.metrics.TasksFailedCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
