// Package metrics exports the process's Prometheus counters.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "term_executor"

// Metrics holds every counter and gauge the spec names, all atomic
// under the hood courtesy of client_golang.
type Metrics struct {
	BatchesTotal     prometheus.Counter
	BatchesActive    prometheus.Gauge
	BatchesCompleted prometheus.Counter
	TasksTotal       prometheus.Counter
	TasksPassed      prometheus.Counter
	TasksFailed      prometheus.Counter
	DurationSumMs    prometheus.Counter

	WSConnectionsActive prometheus.Gauge

	// tasksPassed/tasksFailed mirror the Prometheus counters above as plain
	// atomics — GET /status reads these directly rather than scraping its
	// own exposition endpoint.
	tasksPassed atomic.Int64
	tasksFailed atomic.Int64
}

// New registers and returns the process's metric set.
func New() *Metrics {
	return &Metrics{
		BatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total batches created",
		}),
		BatchesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_active",
			Help:      "Batches currently pending, extracting, or running",
		}),
		BatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed",
			Help:      "Total batches that finished in any terminal state",
		}),
		TasksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total tasks executed",
		}),
		TasksPassed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_passed",
			Help:      "Total tasks whose test scripts all exited 0",
		}),
		TasksFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed",
			Help:      "Total tasks that failed a phase or a test",
		}),
		DurationSumMs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duration_sum_ms",
			Help:      "Sum of task durations in milliseconds",
		}),
		WSConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Active WebSocket subscriber connections",
		}),
	}
}

// RecordTask updates the task-level counters for one finished task.
func (m *Metrics) RecordTask(passed bool, duration time.Duration) {
	m.TasksTotal.Inc()
	if passed {
		m.TasksPassed.Inc()
		m.tasksPassed.Add(1)
	} else {
		m.TasksFailed.Inc()
		m.tasksFailed.Add(1)
	}
	m.DurationSumMs.Add(float64(duration.Milliseconds()))
}

// TasksPassedCount returns the running total of passed tasks.
func (m *Metrics) TasksPassedCount() int64 { return m.tasksPassed.Load() }

// TasksFailedCount returns the running total of failed tasks.
func (m *Metrics) TasksFailedCount() int64 { return m.tasksFailed.Load() }

// Handler returns the Prometheus text-exposition HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
