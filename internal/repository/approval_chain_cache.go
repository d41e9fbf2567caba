package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ops-reports/internal/platform/metrics"
)

// ChainSource is the uncached approval chain lookup.
type ChainSource interface {
	ChainFor(ctx context.Context, orgID string) ([]ApprovalStep, error)
	GetStep(ctx context.Context, id string) (*ApprovalStep, error)
}

// chainCacheClient is the subset of *redis.Client the cache uses.
type chainCacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedApprovalChainStore is a read-through Redis cache over chain
// definitions. Only the configured chain is cached; who holds an approver
// position is always read live from the directory.
type CachedApprovalChainStore struct {
	source ChainSource
	client chainCacheClient
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedApprovalChainStore wraps source with a Redis cache.
func NewCachedApprovalChainStore(source ChainSource, client chainCacheClient, ttl time.Duration, log zerolog.Logger) *CachedApprovalChainStore {
	return &CachedApprovalChainStore{
		source: source,
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "approval_chain_cache").Logger(),
	}
}

func chainCacheKey(orgID string) string {
	return "reports:approval_chain:" + orgID
}

// ChainFor returns the cached chain or loads and caches it. Redis failures
// degrade to the source and are logged.
func (c *CachedApprovalChainStore) ChainFor(ctx context.Context, orgID string) ([]ApprovalStep, error) {
	key := chainCacheKey(orgID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var steps []ApprovalStep
		if jsonErr := json.Unmarshal(raw, &steps); jsonErr == nil {
			metrics.ObserveChainCache("hit")
			return steps, nil
		}
		c.log.Warn().Str("org_id", orgID).Msg("Discarding undecodable cached approval chain")
	case err == redis.Nil:
		metrics.ObserveChainCache("miss")
	default:
		metrics.ObserveChainCache("error")
		c.log.Warn().Err(err).Str("org_id", orgID).Msg("Approval chain cache read failed")
	}

	steps, err := c.source.ChainFor(ctx, orgID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(steps)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.log.Warn().Err(err).Str("org_id", orgID).Msg("Approval chain cache write failed")
	}
	return steps, nil
}

// GetStep is not cached.
func (c *CachedApprovalChainStore) GetStep(ctx context.Context, id string) (*ApprovalStep, error) {
	return c.source.GetStep(ctx, id)
}

// Invalidate drops cached chains for the given organizations.
func (c *CachedApprovalChainStore) Invalidate(ctx context.Context, orgIDs ...string) error {
	if len(orgIDs) == 0 {
		return nil
	}
	keys := make([]string, len(orgIDs))
	for i, id := range orgIDs {
		keys[i] = chainCacheKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
