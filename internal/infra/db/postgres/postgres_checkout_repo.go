package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
)

var _ repository.CheckoutRepository = (*checkoutRepo)(nil)

type checkoutRepo struct {
	pool *pgxpool.Pool
}

func NewCheckoutRepo(pool *pgxpool.Pool) *checkoutRepo {
	return &checkoutRepo{pool: pool}
}

func (r *checkoutRepo) Save(ctx context.Context, tx repository.Tx, c *model.CheckoutSession) error {
	const q = `
INSERT INTO checkout_sessions (id, user_id, stripe_session_id, price_id, product_name, mode, status, amount_total, currency, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.UserID, c.StripeSessionID, c.PriceID, c.ProductName,
		string(c.Mode), string(c.Status), c.AmountTotal, c.Currency, c.CreatedAt, c.CompletedAt)
	return mapError(err)
}

func (r *checkoutRepo) FindByStripeID(ctx context.Context, tx repository.Tx, stripeSessionID string) (*model.CheckoutSession, error) {
	const q = `
SELECT id, user_id, stripe_session_id, price_id, product_name, mode, status, amount_total, currency, created_at, completed_at
  FROM checkout_sessions
 WHERE stripe_session_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, stripeSessionID)
	if err != nil {
		return nil, err
	}
	var (
		c            model.CheckoutSession
		mode, status string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.StripeSessionID, &c.PriceID, &c.ProductName, &mode, &status,
		&c.AmountTotal, &c.Currency, &c.CreatedAt, &c.CompletedAt); err != nil {
		return nil, mapError(err)
	}
	c.Mode = model.CheckoutMode(mode)
	c.Status = model.CheckoutStatus(status)
	return &c, nil
}

// MarkCompleted is idempotent; a session that already completed is left untouched.
func (r *checkoutRepo) MarkCompleted(ctx context.Context, tx repository.Tx, stripeSessionID string, amountTotal int64, currency string, at time.Time) error {
	const q = `
UPDATE checkout_sessions
   SET status='completed', amount_total=$2, currency=$3, completed_at=$4
 WHERE stripe_session_id=$1 AND status <> 'completed';`
	ct, err := execSQL(ctx, r.pool, tx, q, stripeSessionID, amountTotal, currency, at)
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.FindByStripeID(ctx, tx, stripeSessionID); err != nil {
			return err
		}
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *checkoutRepo) ExpirePendingBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `
UPDATE checkout_sessions
   SET status='expired'
 WHERE status='pending' AND created_at < $1;`
	ct, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	return int(ct.RowsAffected()), nil
}
