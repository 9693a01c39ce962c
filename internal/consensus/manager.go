// Package consensus implements N-of-M payload voting: a submitted
// archive is only executed once enough distinct validators have voted
// for the same content hash.
package consensus

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const shardCount = 16

// reaperInterval matches the polling cadence of the pending-entry reaper.
const reaperInterval = 30 * time.Second

// Status is the outcome of a RecordVote call.
type Status int

const (
	// StatusPending means the hash has not yet reached its required vote count.
	StatusPending Status = iota
	// StatusReached means this vote pushed the hash over its required count;
	// the caller receives the archive payload and the entry is removed.
	StatusReached
	// StatusAlreadyVoted means this voter had already voted for this hash.
	StatusAlreadyVoted
)

// pendingEntry holds state for an archive hash awaiting enough votes.
type pendingEntry struct {
	archiveData     []byte
	voters          map[string]struct{}
	createdAt       time.Time
	concurrentTasks *int
}

// VoteResult describes the outcome of a vote, including the data needed
// to spawn a batch on StatusReached.
type VoteResult struct {
	Status          Status
	Votes           int
	Required        int
	TotalValidators int
	ArchiveData     []byte
	ConcurrentTasks *int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

// Manager tracks pending consensus votes per archive content hash.
// Operations are atomic per key via the owning shard's mutex, mirroring
// a DashMap's per-key entry API: a vote is read-checked and mutated under
// a single critical section, never a separate contains-then-insert.
type Manager struct {
	shards     [shardCount]*shard
	maxPending int
	log        *slog.Logger

	mu    sync.Mutex // guards len() accounting across shards for IsAtCapacity
	count int
}

// New creates a Manager that refuses new hashes once maxPending distinct
// entries are outstanding.
func New(maxPending int, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{maxPending: maxPending, log: log}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*pendingEntry)}
	}
	return m
}

func (m *Manager) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// RecordVote records hotkey's vote for archiveHash. archiveData and
// concurrentTasks are only consulted the first time this hash is seen
// and are returned verbatim on StatusReached.
func (m *Manager) RecordVote(archiveHash, hotkey string, archiveData []byte, concurrentTasks *int, required, totalValidators int) VoteResult {
	s := m.shardFor(archiveHash)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[archiveHash]
	if !ok {
		voters := map[string]struct{}{hotkey: {}}
		votes := 1

		if votes >= required {
			m.log.Info("consensus reached", slog.String("archive_hash", archiveHash), slog.Int("votes", votes), slog.Int("required", required))
			return VoteResult{
				Status:          StatusReached,
				Votes:           votes,
				Required:        required,
				TotalValidators: totalValidators,
				ArchiveData:     archiveData,
				ConcurrentTasks: concurrentTasks,
			}
		}

		s.entries[archiveHash] = &pendingEntry{
			archiveData:     archiveData,
			voters:          voters,
			createdAt:       time.Now(),
			concurrentTasks: concurrentTasks,
		}
		m.incr()
		m.log.Info("new consensus entry created", slog.String("archive_hash", archiveHash))
		return VoteResult{Status: StatusPending, Votes: votes, Required: required, TotalValidators: totalValidators}
	}

	if _, voted := entry.voters[hotkey]; voted {
		return VoteResult{Status: StatusAlreadyVoted, Votes: len(entry.voters), Required: required, TotalValidators: totalValidators}
	}

	entry.voters[hotkey] = struct{}{}
	votes := len(entry.voters)

	if votes >= required {
		delete(s.entries, archiveHash)
		m.decr()
		m.log.Info("consensus reached", slog.String("archive_hash", archiveHash), slog.Int("votes", votes), slog.Int("required", required))
		return VoteResult{
			Status:          StatusReached,
			Votes:           votes,
			Required:        required,
			TotalValidators: totalValidators,
			ArchiveData:     entry.archiveData,
			ConcurrentTasks: entry.concurrentTasks,
		}
	}

	return VoteResult{Status: StatusPending, Votes: votes, Required: required, TotalValidators: totalValidators}
}

func (m *Manager) incr() {
	m.mu.Lock()
	m.count++
	m.mu.Unlock()
}

func (m *Manager) decr() {
	m.mu.Lock()
	m.count--
	m.mu.Unlock()
}

// IsAtCapacity reports whether the number of outstanding pending entries
// has reached maxPending.
func (m *Manager) IsAtCapacity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count >= m.maxPending
}

// PendingCount returns the number of outstanding pending entries. Test helper.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Reap removes entries older than ttl, returning the number removed.
func (m *Manager) Reap(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for hash, entry := range s.entries {
			if entry.createdAt.Before(cutoff) {
				delete(s.entries, hash)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		m.mu.Lock()
		m.count -= removed
		m.mu.Unlock()
		m.log.Info("reaped expired consensus entries", slog.Int("removed", removed))
	}
	return removed
}

// RunReaperLoop polls every 30s, removing entries older than ttl, until
// ctx is cancelled.
func (m *Manager) RunReaperLoop(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ttl)
		}
	}
}
