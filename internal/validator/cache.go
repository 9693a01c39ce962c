package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BootstrapCacheKey is the Redis key the last-known-good validator set is
// stored under, so a restarting process is not left with an empty
// whitelist until the first successful metagraph refresh.
const BootstrapCacheKey = "term_executor:validator_directory:bootstrap"

// BootstrapCache persists the last successfully refreshed validator set
// to Redis so a cold-started process can serve requests immediately,
// rather than returning 503 whitelist_empty until the first refresh.
type BootstrapCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBootstrapCache connects to addr and returns a BootstrapCache. Returns
// an error if the Redis connection cannot be established.
func NewBootstrapCache(ctx context.Context, addr string, ttl time.Duration) (*BootstrapCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to validator bootstrap cache: %w", err)
	}

	return &BootstrapCache{client: client, ttl: ttl}, nil
}

// Store persists the current set of hotkeys.
func (c *BootstrapCache) Store(ctx context.Context, hotkeys []string) error {
	payload, err := json.Marshal(hotkeys)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, BootstrapCacheKey, payload, c.ttl).Err()
}

// Load returns the last persisted set of hotkeys, or nil if none is cached.
func (c *BootstrapCache) Load(ctx context.Context) ([]string, error) {
	payload, err := c.client.Get(ctx, BootstrapCacheKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var hotkeys []string
	if err := json.Unmarshal(payload, &hotkeys); err != nil {
		return nil, err
	}
	return hotkeys, nil
}

// Close releases the underlying Redis connection.
func (c *BootstrapCache) Close() error {
	return c.client.Close()
}
