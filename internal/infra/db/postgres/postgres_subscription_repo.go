package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, stripe_subscription_id, stripe_customer_id, product_name, price_id, tier, status,
  current_period_start, current_period_end, cancel_at_period_end, canceled_at, created_at, updated_at`

func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO user_subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (stripe_subscription_id) DO UPDATE SET
  stripe_customer_id=COALESCE(NULLIF(EXCLUDED.stripe_customer_id, ''), user_subscriptions.stripe_customer_id),
  product_name=COALESCE(NULLIF(EXCLUDED.product_name, ''), user_subscriptions.product_name),
  price_id=COALESCE(NULLIF(EXCLUDED.price_id, ''), user_subscriptions.price_id),
  tier=COALESCE(EXCLUDED.tier, user_subscriptions.tier),
  status=EXCLUDED.status,
  current_period_start=COALESCE(EXCLUDED.current_period_start, user_subscriptions.current_period_start),
  current_period_end=COALESCE(EXCLUDED.current_period_end, user_subscriptions.current_period_end),
  cancel_at_period_end=EXCLUDED.cancel_at_period_end,
  canceled_at=COALESCE(EXCLUDED.canceled_at, user_subscriptions.canceled_at),
  updated_at=EXCLUDED.updated_at
RETURNING id, user_id, created_at;`

	var tier *string
	if s.Tier != "" && s.Tier != model.TierNone {
		tier = nullIfEmpty(string(s.Tier))
	}
	row, err := pickRow(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.StripeSubscriptionID, s.StripeCustomerID, s.ProductName, s.PriceID, tier, string(s.Status),
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.CanceledAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	// the row may already exist under another id; keep the caller's copy in sync
	if err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *subscriptionRepo) FindByStripeID(ctx context.Context, tx repository.Tx, stripeSubscriptionID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE stripe_subscription_id=$1;`
	return r.queryOne(ctx, tx, q, stripeSubscriptionID)
}

func (r *subscriptionRepo) FindUserByCustomer(ctx context.Context, tx repository.Tx, stripeCustomerID string) (string, error) {
	if stripeCustomerID == "" {
		return "", domain.ErrInvalidArgument
	}
	const q = `
SELECT user_id
  FROM user_subscriptions
 WHERE stripe_customer_id=$1
 ORDER BY created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, stripeCustomerID)
	if err != nil {
		return "", err
	}
	var userID string
	if err := row.Scan(&userID); err != nil {
		return "", mapError(err)
	}
	return userID, nil
}

func (r *subscriptionRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE user_id=$1 AND status='active'
 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *subscriptionRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE cancel_at_period_end
   AND status <> 'canceled'
   AND current_period_end IS NOT NULL
   AND current_period_end <= $1
 ORDER BY current_period_end ASC;`
	return r.queryMany(ctx, tx, q, now)
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM user_subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var (
		s      model.Subscription
		tier   *string
		status string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.StripeSubscriptionID, &s.StripeCustomerID, &s.ProductName, &s.PriceID,
		&tier, &status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CanceledAt,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if tier != nil {
		s.Tier = model.ParseTier(*tier)
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}
