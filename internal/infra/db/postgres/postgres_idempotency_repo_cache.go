package postgres

import (
	"context"
	"time"

	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/metrics"
	red "khm-membership/internal/infra/redis"
)

var _ repository.IdempotencyStore = (*idempotencyCacheDecorator)(nil)

type idempotencyCacheDecorator struct {
	inner repository.IdempotencyStore
	cache red.RedisClient
	ttl   time.Duration
}

// NewIdempotencyCacheDecorator short-circuits repeat deliveries from Redis.
// Only positive answers are cached; a miss always falls through to Postgres.
func NewIdempotencyCacheDecorator(inner repository.IdempotencyStore, cache red.RedisClient, ttl time.Duration) repository.IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &idempotencyCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func webhookEventKey(eventID string) string { return "webhook:event:" + eventID }

func (d *idempotencyCacheDecorator) HasProcessed(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	if val, err := d.cache.Get(ctx, webhookEventKey(eventID)); err == nil && val == "1" {
		metrics.ObserveCacheLookup(metrics.CacheWebhookEvent, true)
		return true, nil
	}

	metrics.ObserveCacheLookup(metrics.CacheWebhookEvent, false)
	ok, err := d.inner.HasProcessed(ctx, tx, eventID)
	if err != nil {
		return false, err
	}
	if ok {
		_ = d.cache.Set(ctx, webhookEventKey(eventID), "1", d.ttl)
	}
	return ok, nil
}

// MarkProcessed is not cached here: inside a transaction the row is not
// durable until commit.
func (d *idempotencyCacheDecorator) MarkProcessed(ctx context.Context, tx repository.Tx, eventID, gateway string, metadata map[string]any) error {
	return d.inner.MarkProcessed(ctx, tx, eventID, gateway, metadata)
}
