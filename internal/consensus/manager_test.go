package consensus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordVoteReachesOnRequiredCount(t *testing.T) {
	m := New(100, nil)

	v1 := m.RecordVote("hash1", "v1", []byte("payload"), nil, 2, 4)
	require.Equal(t, StatusPending, v1.Status)
	require.Equal(t, 1, v1.Votes)

	v2 := m.RecordVote("hash1", "v2", []byte("payload"), nil, 2, 4)
	require.Equal(t, StatusReached, v2.Status)
	assert.Equal(t, []byte("payload"), v2.ArchiveData)
}

func TestRecordVoteSingleVoterMeetingThresholdReachesImmediately(t *testing.T) {
	m := New(100, nil)

	v := m.RecordVote("hash1", "v1", []byte("payload"), nil, 1, 1)
	assert.Equal(t, StatusReached, v.Status)
}

func TestRecordVoteSameVoterTwiceIsAlreadyVoted(t *testing.T) {
	m := New(100, nil)

	m.RecordVote("hash1", "v1", []byte("payload"), nil, 3, 5)
	v := m.RecordVote("hash1", "v1", []byte("payload"), nil, 3, 5)
	assert.Equal(t, StatusAlreadyVoted, v.Status)
}

// TestRecordVoteExactlyOneReachedUnderConcurrency is the testable property
// spec.md demands directly: N validators racing to cast the deciding vote
// for the same hash must produce exactly one StatusReached.
func TestRecordVoteExactlyOneReachedUnderConcurrency(t *testing.T) {
	m := New(100, nil)

	const voters = 20
	required := 10

	var wg sync.WaitGroup
	var reachedCount int
	var mu sync.Mutex

	wg.Add(voters)
	for i := 0; i < voters; i++ {
		hotkey := string(rune('a' + i))
		go func(hotkey string) {
			defer wg.Done()
			v := m.RecordVote("hash1", hotkey, []byte("payload"), nil, required, voters)
			if v.Status == StatusReached {
				mu.Lock()
				reachedCount++
				mu.Unlock()
			}
		}(hotkey)
	}
	wg.Wait()

	assert.Equal(t, 1, reachedCount)
}

func TestRecordVoteDistinctHashesAreIndependent(t *testing.T) {
	m := New(100, nil)

	v := m.RecordVote("hashA", "v1", []byte("a"), nil, 5, 10)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, 1, m.PendingCount())

	v2 := m.RecordVote("hashB", "v1", []byte("b"), nil, 5, 10)
	assert.Equal(t, StatusPending, v2.Status)
	assert.Equal(t, 2, m.PendingCount())
}

func TestIsAtCapacity(t *testing.T) {
	m := New(1, nil)

	m.RecordVote("hash1", "v1", []byte("a"), nil, 5, 10)
	assert.True(t, m.IsAtCapacity())
}

func TestReapRemovesOnlyExpiredEntries(t *testing.T) {
	m := New(100, nil)

	m.RecordVote("hash1", "v1", []byte("a"), nil, 5, 10)
	time.Sleep(20 * time.Millisecond)
	m.RecordVote("hash2", "v1", []byte("b"), nil, 5, 10)

	removed := m.Reap(10 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.PendingCount())
}

func TestRecordVoteConcurrentTasksCarriedFromFirstVote(t *testing.T) {
	m := New(100, nil)
	n := 3

	m.RecordVote("hash1", "v1", []byte("a"), &n, 2, 5)
	v := m.RecordVote("hash1", "v2", []byte("a"), nil, 2, 5)

	require.Equal(t, StatusReached, v.Status)
	require.NotNil(t, v.ConcurrentTasks)
	assert.Equal(t, 3, *v.ConcurrentTasks)
}
