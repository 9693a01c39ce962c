package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunShellCapturesOutputAndExitCode(t *testing.T) {
	out, err := runShell(context.Background(), "echo hello && exit 0", t.TempDir(), time.Second, nil, 4096)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Output, "hello")
}

func TestRunShellReportsNonZeroExitWithoutError(t *testing.T) {
	out, err := runShell(context.Background(), "exit 7", t.TempDir(), time.Second, nil, 4096)
	require.NoError(t, err)
	assert.Equal(t, 7, out.ExitCode)
}

// TestRunShellEnforcesTimeout exercises the cancellation-on-deadline
// property spec.md requires: a command that outlives its budget is killed
// and reported as timed out rather than hanging the caller.
func TestRunShellEnforcesTimeout(t *testing.T) {
	out, err := runShell(context.Background(), "sleep 5", t.TempDir(), 50*time.Millisecond, nil, 4096)
	require.Error(t, err)
	assert.True(t, out.TimedOut)
}

func TestRunShellRespectsParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runShell(ctx, "echo hi", t.TempDir(), time.Second, nil, 4096)
	assert.Error(t, err)
}

// TestBoundedBufferTruncatesAtMax exercises |output| <= MAX_OUTPUT, the
// bound spec.md requires on every captured stream.
func TestBoundedBufferTruncatesAtMax(t *testing.T) {
	buf := &boundedBuffer{max: 10}

	n, err := buf.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n) // Write always reports the full length to the caller

	got := buf.String()
	assert.True(t, strings.HasPrefix(got, "0123456789"))
	assert.Contains(t, got, truncationMarker)
	assert.LessOrEqual(t, len(got)-len(truncationMarker), 10)
}

func TestBoundedBufferUntouchedUnderLimit(t *testing.T) {
	buf := &boundedBuffer{max: 100}
	buf.Write([]byte("short"))
	assert.Equal(t, "short", buf.String())
}

func TestRunShellOutputIsBoundedByMaxOutputBytes(t *testing.T) {
	out, err := runShell(context.Background(), "printf '%0.sx' $(seq 1 2000)", t.TempDir(), time.Second, nil, 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Output), 100+len(truncationMarker))
}
