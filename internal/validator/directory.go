// Package validator maintains the authoritative set of addresses currently
// permitted to submit batches, refreshed periodically from an external
// metagraph source.
package validator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Neuron is a single metagraph entry as returned by a MetagraphSource.
type Neuron struct {
	Hotkey          string
	Active          bool
	ValidatorPermit bool
	StakeTao        float64
}

// MetagraphSource abstracts the external blockchain RPC client used to
// sync the current metagraph state. Modeled abstractly per spec: the real
// implementation would talk to a subtensor node; here it is any fetcher
// that returns the current neuron set.
type MetagraphSource interface {
	SyncMetagraph(ctx context.Context) ([]Neuron, error)
}

// Directory holds the current set of authorized validator identities.
// Reads are non-blocking relative to each other; writes (refresh) replace
// the set wholesale so readers never observe a half-updated view.
type Directory struct {
	mu       sync.RWMutex
	hotkeys  map[string]struct{}
	source   MetagraphSource
	minStake float64
	log      *slog.Logger
	cache    *BootstrapCache
}

// WithCache attaches a Redis bootstrap cache; every successful refresh
// writes the fresh set through to it. Optional — a nil cache is never
// set and Bootstrap/refresh simply skip it.
func (d *Directory) WithCache(cache *BootstrapCache) *Directory {
	d.cache = cache
	return d
}

// Bootstrap seeds the directory from the attached cache, if any, before
// the first RefreshOnce completes. A no-op when no cache is attached or
// the cache holds nothing yet.
func (d *Directory) Bootstrap(ctx context.Context) {
	if d.cache == nil {
		return
	}
	hotkeys, err := d.cache.Load(ctx)
	if err != nil {
		d.log.Warn("validator bootstrap cache load failed", slog.String("error", err.Error()))
		return
	}
	if len(hotkeys) > 0 {
		d.Hydrate(hotkeys)
		d.log.Info("validator directory bootstrapped from cache", slog.Int("count", len(hotkeys)))
	}
}

// New creates an empty Directory. Call RefreshOnce or RunRefreshLoop to
// populate it from source.
func New(source MetagraphSource, minStake float64, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		hotkeys:  make(map[string]struct{}),
		source:   source,
		minStake: minStake,
		log:      log,
	}
}

// Contains reports whether identity is in the current authorized set.
func (d *Directory) Contains(identity string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.hotkeys[identity]
	return ok
}

// Count returns the number of currently authorized validators.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hotkeys)
}

// InsertForTest directly adds an identity, bypassing refresh. Test-only helper.
func (d *Directory) InsertForTest(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hotkeys[identity] = struct{}{}
}

// Snapshot returns the current authorized set as a slice, for persisting
// to a BootstrapCache.
func (d *Directory) Snapshot() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.hotkeys))
	for k := range d.hotkeys {
		out = append(out, k)
	}
	return out
}

// Hydrate seeds the directory from a previously persisted set, used on
// cold start before the first metagraph refresh completes.
func (d *Directory) Hydrate(hotkeys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range hotkeys {
		d.hotkeys[k] = struct{}{}
	}
}

// RefreshOnce fetches the current metagraph, filters to validators that
// are active, carry a validator permit, and meet the minimum stake, and
// atomically replaces the authorized set. Retries up to 3 times with
// exponential backoff (base 2) on failure; if all retries fail the
// existing set is retained.
func (d *Directory) RefreshOnce(ctx context.Context) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		count, err := d.tryRefresh(ctx)
		if err == nil {
			d.log.Info("validator directory refreshed", slog.Int("count", count))
			return
		}
		lastErr = err
		d.log.Warn("validator directory refresh attempt failed",
			slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
	}
	if lastErr != nil {
		d.log.Warn("all retry attempts failed for validator directory refresh, keeping cached set",
			slog.String("error", lastErr.Error()))
	}
}

func (d *Directory) tryRefresh(ctx context.Context) (int, error) {
	neurons, err := d.source.SyncMetagraph(ctx)
	if err != nil {
		return 0, err
	}

	fresh := make(map[string]struct{}, len(neurons))
	for _, n := range neurons {
		if n.Active && n.ValidatorPermit && n.StakeTao >= d.minStake {
			fresh[n.Hotkey] = struct{}{}
		}
	}

	d.mu.Lock()
	d.hotkeys = fresh
	d.mu.Unlock()

	if d.cache != nil {
		keys := make([]string, 0, len(fresh))
		for k := range fresh {
			keys = append(keys, k)
		}
		if err := d.cache.Store(ctx, keys); err != nil {
			d.log.Warn("validator bootstrap cache write-through failed", slog.String("error", err.Error()))
		}
	}

	return len(fresh), nil
}

// RunRefreshLoop calls RefreshOnce every interval until ctx is cancelled.
func (d *Directory) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RefreshOnce(ctx)
		}
	}
}
