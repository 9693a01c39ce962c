package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RemoveWorkDir deletes a batch or task work directory, logging on
// failure rather than propagating it; cleanup is best-effort and must
// never block a caller that is itself reporting a result.
func RemoveWorkDir(log *slog.Logger, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.Warn("failed to clean up work directory", "path", path, "error", err)
	}
}

// ReapStaleSessions removes top-level directories under base whose
// modification time is older than maxAge. It clears anything left behind
// by a prior crashed process when run at startup, and RunStaleSessionReaper
// calls it on every tick.
func ReapStaleSessions(log *slog.Logger, base string, maxAge time.Duration) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return
	}

	now := time.Now()
	var reaped int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(base, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			RemoveWorkDir(log, path)
			reaped++
		}
	}

	if reaped > 0 {
		log.Info("reaped stale session directories", "count", reaped)
	}
}

// RunStaleSessionReaper polls base on interval, removing work
// directories untouched for longer than maxAge, until ctx is cancelled.
func RunStaleSessionReaper(ctx context.Context, log *slog.Logger, base string, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ReapStaleSessions(log, base, maxAge)
		}
	}
}
