package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/PlatformNetwork/term-executor/internal/archive"
	"github.com/PlatformNetwork/term-executor/internal/auth"
	"github.com/PlatformNetwork/term-executor/internal/batch"
	"github.com/PlatformNetwork/term-executor/internal/config"
	"github.com/PlatformNetwork/term-executor/internal/consensus"
	"github.com/PlatformNetwork/term-executor/internal/engine"
	"github.com/PlatformNetwork/term-executor/internal/metrics"
	"github.com/PlatformNetwork/term-executor/internal/validator"
)

// Handler is the process's single HTTP/WebSocket entry point. It holds no
// business logic of its own beyond request parsing and response shaping;
// every decision is delegated to the component it was constructed with.
type Handler struct {
	cfg        *config.Config
	log        *slog.Logger
	validators *validator.Directory
	verifier   *auth.RequestVerifier
	consensus  *consensus.Manager
	registry   *batch.Registry
	engine     *engine.Engine
	loader     *archive.Loader
	metrics    *metrics.Metrics

	startedAt time.Time
}

// NewHandler assembles a Handler from the process's already-constructed
// components. Construction order and wiring happen in cmd/term-executor.
func NewHandler(
	cfg *config.Config,
	log *slog.Logger,
	validators *validator.Directory,
	verifier *auth.RequestVerifier,
	consensusMgr *consensus.Manager,
	registry *batch.Registry,
	eng *engine.Engine,
	loader *archive.Loader,
	m *metrics.Metrics,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg:        cfg,
		log:        log,
		validators: validators,
		verifier:   verifier,
		consensus:  consensusMgr,
		registry:   registry,
		engine:     eng,
		loader:     loader,
		metrics:    m,
		startedAt:  time.Now(),
	}
}

// Router builds the full route table. The WebSocket route lives on a
// separate top-level mux so a future middleware wrapping the REST routes
// (request logging, CORS) never has to worry about double-wrapping a
// hijacked connection.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /status", h.Status)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /submit", h.Submit)
	mux.HandleFunc("GET /batch/{id}", h.GetBatch)
	mux.HandleFunc("GET /batch/{id}/tasks", h.GetBatchTasks)
	mux.HandleFunc("GET /batch/{id}/task/{task_id}", h.GetBatchTask)
	mux.HandleFunc("GET /batches", h.ListBatches)

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws", h.HandleWebSocket)
	topMux.Handle("/", corsMiddleware(mux))
	return topMux
}
