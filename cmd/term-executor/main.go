// Package main term-executor 进程入口
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PlatformNetwork/term-executor/internal/archive"
	"github.com/PlatformNetwork/term-executor/internal/artifacts"
	"github.com/PlatformNetwork/term-executor/internal/audit"
	"github.com/PlatformNetwork/term-executor/internal/auth"
	"github.com/PlatformNetwork/term-executor/internal/batch"
	"github.com/PlatformNetwork/term-executor/internal/config"
	"github.com/PlatformNetwork/term-executor/internal/consensus"
	"github.com/PlatformNetwork/term-executor/internal/engine"
	"github.com/PlatformNetwork/term-executor/internal/history"
	"github.com/PlatformNetwork/term-executor/internal/logging"
	"github.com/PlatformNetwork/term-executor/internal/metrics"
	"github.com/PlatformNetwork/term-executor/internal/server"
	"github.com/PlatformNetwork/term-executor/internal/validator"
)

// staleSessionReapInterval 后台清理孤儿工作目录的轮询间隔
const staleSessionReapInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logging.Default("term-executor")
	cfg.Banner(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metagraphSource := validator.NewHTTPMetagraphSource(cfg.MetagraphURL, nil)
	validators := validator.New(metagraphSource, cfg.MinValidatorStake, log.Logger)

	if cfg.ValidatorCacheRedisAddr != "" {
		bootstrapCache, err := validator.NewBootstrapCache(ctx, cfg.ValidatorCacheRedisAddr, 2*cfg.ValidatorRefreshSecs)
		if err != nil {
			log.Warn("validator bootstrap cache unavailable, starting cold", slog.String("error", err.Error()))
		} else {
			validators.WithCache(bootstrapCache)
			validators.Bootstrap(ctx)
			defer bootstrapCache.Close()
		}
	}
	go validators.RunRefreshLoop(ctx, cfg.ValidatorRefreshSecs)

	auditSink := newAuditSink(cfg, log)
	defer auditSink.Close()

	nonces := auth.NewNonceStore(auth.DefaultNonceTTL)
	go nonces.RunReaper(ctx, time.Minute)

	verifier := auth.NewRequestVerifier(validators, nonces).WithAudit(auditSinkAdapter{sink: auditSink})

	consensusMgr := consensus.New(cfg.MaxPendingConsensus, log.Logger)
	go consensusMgr.RunReaperLoop(ctx, cfg.ConsensusTTL)

	historyStore := newHistoryStore(cfg, log)
	defer historyStore.Close()

	m := metrics.New()

	registry := batch.New(cfg.SessionTTL, log.Logger).WithHistory(historyStore).WithMetrics(m)
	go registry.RunReaperLoop(ctx, 30*time.Second)

	engineCfg := engine.Config{
		WorkspaceBase:  cfg.WorkspaceBase,
		CloneTimeout:   cfg.CloneTimeout,
		AgentTimeout:   cfg.AgentTimeout,
		TestTimeout:    cfg.TestTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
	}
	eng := engine.New(engineCfg, registry, m, log.Logger).WithArtifacts(newArtifactsStore(ctx, cfg, log))

	engine.ReapStaleSessions(log.Logger, cfg.WorkspaceBase, cfg.SessionTTL)
	go engine.RunStaleSessionReaper(ctx, log.Logger, cfg.WorkspaceBase, cfg.SessionTTL, staleSessionReapInterval)

	loader := archive.NewLoader()

	h := server.NewHandler(cfg, log.Logger, validators, verifier, consensusMgr, registry, eng, loader, m)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		cancel()
	}()

	log.Info("term-executor listening", slog.Int("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newAuditSink selects the admission-audit backend per cfg: Postgres when
// AUDIT_DATABASE_URL is set, otherwise an embedded SQLite file under
// WORKSPACE_BASE, falling back to a no-op if neither can be opened.
func newAuditSink(cfg *config.Config, log *logging.Logger) audit.Sink {
	if cfg.AuditDatabaseURL != "" {
		sink, err := audit.NewPostgresSink(cfg.AuditDatabaseURL)
		if err != nil {
			log.Warn("postgres audit sink unavailable, admission attempts will not be recorded", slog.String("error", err.Error()))
			return audit.NoopSink{}
		}
		return sink
	}

	sink, err := audit.NewSQLiteSink(cfg.AuditDBPath())
	if err != nil {
		log.Warn("sqlite audit sink unavailable, admission attempts will not be recorded", slog.String("error", err.Error()))
		return audit.NoopSink{}
	}
	return sink
}

// newHistoryStore selects the batch archival backend per cfg; a no-op
// when HISTORY_MONGO_URI is unset.
func newHistoryStore(cfg *config.Config, log *logging.Logger) history.Store {
	if cfg.HistoryMongoURI == "" {
		return history.NoopStore{}
	}
	store, err := history.NewMongoStore(cfg.HistoryMongoURI, cfg.HistoryMongoDB)
	if err != nil {
		log.Warn("history archival unavailable, completed batches will not be archived", slog.String("error", err.Error()))
		return history.NoopStore{}
	}
	return store
}

// newArtifactsStore selects the output-bundle upload backend per cfg; a
// no-op when ARTIFACTS_ENDPOINT is unset.
func newArtifactsStore(ctx context.Context, cfg *config.Config, log *logging.Logger) artifacts.Store {
	if cfg.ArtifactsEndpoint == "" {
		return artifacts.NoopStore{}
	}
	store, err := artifacts.NewMinioStore(ctx, artifacts.Config{
		Endpoint:  cfg.ArtifactsEndpoint,
		AccessKey: cfg.ArtifactsAccessKey,
		SecretKey: cfg.ArtifactsSecretKey,
		Bucket:    cfg.ArtifactsBucket,
		UseSSL:    cfg.ArtifactsUseSSL,
	})
	if err != nil {
		log.Warn("artifact upload unavailable, batch output will not be archived to object storage", slog.String("error", err.Error()))
		return artifacts.NoopStore{}
	}
	return store
}

// auditSinkAdapter bridges internal/audit.Sink to the narrower
// auth.AuditSink interface the RequestVerifier takes, so internal/auth
// never needs to import internal/audit directly.
type auditSinkAdapter struct {
	sink audit.Sink
}

func (a auditSinkAdapter) Record(ctx context.Context, rec auth.AuditRecord) error {
	return a.sink.Record(ctx, audit.Record{
		Identity:   rec.Identity,
		Nonce:      rec.Nonce,
		Outcome:    rec.Outcome,
		Reason:     rec.Reason,
		ObservedAt: rec.ObservedAt,
	})
}
