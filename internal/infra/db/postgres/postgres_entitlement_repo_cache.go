package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
	"formative-compliance/internal/infra/metrics"
	red "formative-compliance/internal/infra/redis"
)

var _ repository.EntitlementRepository = (*entitlementRepoCacheDecorator)(nil)

// entitlementRepoCacheDecorator caches the per-user list of active entitlements. Expiry is
// re-checked against the caller's clock on every hit, so a cached row never outlives expires_at.
type entitlementRepoCacheDecorator struct {
	inner repository.EntitlementRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewEntitlementRepoCacheDecorator(inner repository.EntitlementRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.EntitlementRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &entitlementRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger,
	}
}

func entitlementsKey(userID string) string {
	return fmt.Sprintf("entitlements:%s", userID)
}

func (d *entitlementRepoCacheDecorator) FindValidByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Entitlement, error) {
	// reads inside a transaction must see uncommitted writes
	if tx != nil {
		return d.inner.FindValidByUser(ctx, tx, userID, now)
	}
	key := entitlementsKey(userID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var cached []*model.Entitlement
		if json.Unmarshal([]byte(val), &cached) == nil {
			metrics.IncCacheRequest("entitlement", "hit")
			return validAt(cached, now), nil
		}
	} else if err != red.Nil {
		d.log.Warn().Err(err).Str("key", key).Msg("entitlement cache read failed")
	}

	metrics.IncCacheRequest("entitlement", "miss")
	// cache the active rows regardless of expiry; validity is evaluated per call
	ents, err := d.inner.FindValidByUser(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(ents); err == nil {
		if err := d.cache.Set(ctx, key, bytes, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("entitlement cache write failed")
		}
	}
	return ents, nil
}

// Writes invalidate up front and again once the write is visible to other readers: after
// the commit inside a transaction, right away otherwise. A read that lands between the
// write and the commit repopulates the key from the old rows; the second delete drops it.
func (d *entitlementRepoCacheDecorator) Grant(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	d.invalidate(ctx, e.UserID)
	if err := d.inner.Grant(ctx, tx, e); err != nil {
		return err
	}
	d.invalidateAfterCommit(ctx, e.UserID)
	return nil
}

func (d *entitlementRepoCacheDecorator) RevokeByAccessType(ctx context.Context, tx repository.Tx, userID string, accessType model.AccessType, at time.Time) (int, error) {
	d.invalidate(ctx, userID)
	n, err := d.inner.RevokeByAccessType(ctx, tx, userID, accessType, at)
	if err != nil {
		return 0, err
	}
	d.invalidateAfterCommit(ctx, userID)
	return n, nil
}

func (d *entitlementRepoCacheDecorator) FindValidByProduct(ctx context.Context, tx repository.Tx, userID, productName string, now time.Time) (*model.Entitlement, error) {
	return d.inner.FindValidByProduct(ctx, tx, userID, productName, now)
}

func (d *entitlementRepoCacheDecorator) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	return d.inner.ListByUser(ctx, tx, userID)
}

func (d *entitlementRepoCacheDecorator) invalidate(ctx context.Context, userID string) {
	if err := d.cache.Del(ctx, entitlementsKey(userID)); err != nil {
		d.log.Warn().Err(err).Str("user_id", userID).Msg("entitlement cache invalidation failed")
	}
}

func (d *entitlementRepoCacheDecorator) invalidateAfterCommit(ctx context.Context, userID string) {
	repository.AfterCommit(ctx, func(ctx context.Context) { d.invalidate(ctx, userID) })
}

func validAt(ents []*model.Entitlement, now time.Time) []*model.Entitlement {
	out := ents[:0]
	for _, e := range ents {
		if e.IsValidAt(now) {
			out = append(out, e)
		}
	}
	return out
}
