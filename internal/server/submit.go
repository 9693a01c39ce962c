package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/containerd/errdefs"

	"github.com/PlatformNetwork/term-executor/internal/auth"
	"github.com/PlatformNetwork/term-executor/internal/batch"
	"github.com/PlatformNetwork/term-executor/internal/consensus"
)

// archiveFieldName is the multipart field a submitted archive must arrive
// under, per spec.md §6.
const archiveFieldName = "archive"

// extractTimeout bounds archive extraction independent of the batch's own
// per-task cancellation context, which does not exist yet at this point.
const extractTimeout = 30 * time.Second

// Submit answers POST /submit: the full admission pipeline — whitelist
// liveness, single-active-batch gate, signature/nonce verification,
// bounded archive read, and quorum voting — ending either in a fresh
// pending vote tally or a spawned batch.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.validators.Count() == 0 {
		writeError(w, http.StatusServiceUnavailable, "whitelist_empty", "validator whitelist is not yet populated")
		return
	}
	if h.registry.HasActiveBatch() {
		writeError(w, http.StatusServiceUnavailable, "has_active_batch", "a batch is already in progress")
		return
	}

	env := auth.Envelope{
		Identity:  r.Header.Get("X-Hotkey"),
		Nonce:     r.Header.Get("X-Nonce"),
		Signature: r.Header.Get("X-Signature"),
	}
	if err := h.verifier.Verify(env); err != nil {
		code, message := authErrorResponse(err)
		writeError(w, http.StatusUnauthorized, code, message)
		return
	}

	concurrentTasks := h.cfg.MaxConcurrentTasks
	if raw := r.URL.Query().Get("concurrent_tasks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.cfg.MaxConcurrentTasks {
			writeError(w, http.StatusBadRequest, "invalid_archive", "concurrent_tasks out of range")
			return
		}
		concurrentTasks = n
	}

	archiveData, err := readArchiveField(r, h.cfg.MaxArchiveBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_archive", "failed to read archive upload")
		return
	}

	if h.consensus.IsAtCapacity() {
		writeError(w, http.StatusTooManyRequests, "consensus_at_capacity", "too many archives awaiting consensus")
		return
	}

	sum := sha256.Sum256(archiveData)
	archiveHash := hex.EncodeToString(sum[:])

	totalValidators := h.validators.Count()
	required := requiredVotes(h.cfg.ConsensusThreshold, totalValidators)

	vote := h.consensus.RecordVote(archiveHash, env.Identity, archiveData, &concurrentTasks, required, totalValidators)

	switch vote.Status {
	case consensus.StatusReached:
		h.spawnBatch(w, archiveHash, vote)
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "pending_consensus",
			"votes":    vote.Votes,
			"required": vote.Required,
		})
	}
}

// spawnBatch extracts the archive that just reached consensus and hands
// it to the engine. HasSpawned guards the rare case of a second Reached
// for the same hash (a late vote that rebuilt a fresh pending entry after
// the first one was already consumed) — see SPEC_FULL.md §9.1.
func (h *Handler) spawnBatch(w http.ResponseWriter, archiveHash string, vote consensus.VoteResult) {
	if h.registry.HasSpawned(archiveHash) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "pending_consensus",
			"votes":    1,
			"required": vote.Required,
		})
		return
	}

	concurrentLimit := h.cfg.MaxConcurrentTasks
	if vote.ConcurrentTasks != nil {
		concurrentLimit = *vote.ConcurrentTasks
	}

	b, runCtx := h.registry.Create(concurrentLimit, 0)

	extractCtx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	workDir := filepath.Join(h.cfg.WorkspaceBase, b.ID)
	extracted, err := h.loader.Load(extractCtx, vote.ArchiveData, workDir)
	if err != nil {
		h.log.Warn("archive extraction failed", slog.String("batch_id", b.ID), slog.String("error", err.Error()))
		h.registry.MarkFailed(b.ID, "invalid_archive")
		if errdefs.IsInvalidArgument(err) {
			writeError(w, http.StatusBadRequest, "invalid_archive", "submitted archive could not be extracted")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to prepare batch workspace")
		return
	}

	b.Update(func(res *batch.BatchResult) { res.TotalTasks = len(extracted.Tasks) })

	h.engine.Spawn(runCtx, b, extracted, concurrentLimit)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":         b.ID,
		"total_tasks":      len(extracted.Tasks),
		"concurrent_tasks": concurrentLimit,
		"ws_url":           fmt.Sprintf("/ws?batch_id=%s", b.ID),
	})
}

// readArchiveField streams the multipart body looking for the "archive"
// part, never buffering more than maxBytes+1 so an oversized upload is
// rejected without accumulating the whole payload in memory.
func readArchiveField(r *http.Request, maxBytes int64) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("not a multipart request: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("multipart request has no %q field", archiveFieldName)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != archiveFieldName {
			part.Close()
			continue
		}

		limited := io.LimitReader(part, maxBytes+1)
		data, err := io.ReadAll(limited)
		part.Close()
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > maxBytes {
			return nil, fmt.Errorf("archive exceeds MAX_ARCHIVE_BYTES")
		}
		return data, nil
	}
}

// requiredVotes implements ceil(threshold * totalValidators), floored at 1
// so a single-validator whitelist can still reach consensus on its own.
func requiredVotes(threshold float64, totalValidators int) int {
	if totalValidators <= 0 {
		return 1
	}
	n := int(math.Ceil(threshold * float64(totalValidators)))
	if n < 1 {
		n = 1
	}
	return n
}

func authErrorResponse(err error) (code, message string) {
	if ae, ok := auth.AsAuthError(err); ok {
		return ae.Code, ae.Message
	}
	return "auth_error", "authentication failed"
}
