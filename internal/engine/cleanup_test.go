package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRemoveWorkDirDeletesDirectory exercises the property spec.md requires:
// a batch/task work directory is absent once its terminal state is reached.
func TestRemoveWorkDirDeletesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "repo"), 0o755))

	RemoveWorkDir(discardLogger(), dir)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveWorkDirToleratesMissingDirectory(t *testing.T) {
	assert.NotPanics(t, func() {
		RemoveWorkDir(discardLogger(), filepath.Join(t.TempDir(), "does-not-exist"))
	})
}

func TestReapStaleSessionsRemovesOnlyOldDirectories(t *testing.T) {
	base := t.TempDir()
	fresh := filepath.Join(base, "fresh")
	stale := filepath.Join(base, "stale")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	require.NoError(t, os.MkdirAll(stale, 0o755))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	ReapStaleSessions(discardLogger(), base, 10*time.Minute)

	_, err := os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRunStaleSessionReaperStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		RunStaleSessionReaper(ctx, discardLogger(), t.TempDir(), time.Hour, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunStaleSessionReaper did not stop after context cancellation")
	}
}
