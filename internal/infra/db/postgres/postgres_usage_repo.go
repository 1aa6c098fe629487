package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

type usageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *usageRepo {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) Append(ctx context.Context, tx repository.Tx, u *model.UsageRecord) error {
	const q = `
INSERT INTO usage_records (id, user_id, document_id, created_at, deleted_at)
VALUES ($1,$2,$3,$4,$5);`
	if _, err := execSQL(ctx, r.pool, tx, q, u.ID, u.UserID, u.DocumentID, u.CreatedAt, u.DeletedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *usageRepo) CountSince(ctx context.Context, tx repository.Tx, userID string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
  FROM usage_records
 WHERE user_id=$1 AND created_at >= $2 AND deleted_at IS NULL;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *usageRepo) SoftDeleteByDocument(ctx context.Context, tx repository.Tx, userID, documentID string, at time.Time) error {
	const q = `
UPDATE usage_records
   SET deleted_at=$3
 WHERE user_id=$1 AND document_id=$2 AND deleted_at IS NULL;`
	if _, err := execSQL(ctx, r.pool, tx, q, userID, documentID, at); err != nil {
		return mapError(err)
	}
	return nil
}
