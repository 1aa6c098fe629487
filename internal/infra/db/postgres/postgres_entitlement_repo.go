package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

const entitlementColumns = `id, user_id, product_name, access_type, tier, is_active, granted_at, revoked_at, expires_at, metadata`

func (r *entitlementRepo) Grant(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	const q = `
INSERT INTO user_access (` + entitlementColumns + `)
VALUES ($1,$2,$3,$4,$5,TRUE,$6,NULL,$7,$8::jsonb)
ON CONFLICT (user_id, product_name, access_type) DO UPDATE SET
  tier=EXCLUDED.tier, is_active=TRUE, granted_at=EXCLUDED.granted_at,
  revoked_at=NULL, expires_at=EXCLUDED.expires_at, metadata=EXCLUDED.metadata
RETURNING id;`
	meta, err := json.Marshal(orEmpty(e.Metadata))
	if err != nil {
		return domain.ErrInvalidArgument
	}
	row, err := pickRow(ctx, r.pool, tx, q, e.ID, e.UserID, e.ProductName, string(e.AccessType), nullIfEmpty(string(e.Tier)), e.GrantedAt, e.ExpiresAt, string(meta))
	if err != nil {
		return err
	}
	// the upsert may hit an existing row; keep the caller's copy in sync with the stored id
	if err := row.Scan(&e.ID); err != nil {
		return mapError(err)
	}
	e.IsActive = true
	e.RevokedAt = nil
	return nil
}

func (r *entitlementRepo) RevokeByAccessType(ctx context.Context, tx repository.Tx, userID string, accessType model.AccessType, at time.Time) (int, error) {
	const q = `
UPDATE user_access
   SET is_active=FALSE, revoked_at=$3
 WHERE user_id=$1 AND access_type=$2 AND is_active;`
	ct, err := execSQL(ctx, r.pool, tx, q, userID, string(accessType), at)
	if err != nil {
		return 0, mapError(err)
	}
	return int(ct.RowsAffected()), nil
}

func (r *entitlementRepo) FindValidByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Entitlement, error) {
	const q = `
SELECT ` + entitlementColumns + `
  FROM user_access
 WHERE user_id=$1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
 ORDER BY granted_at DESC;`
	return r.queryMany(ctx, tx, q, userID, now)
}

func (r *entitlementRepo) FindValidByProduct(ctx context.Context, tx repository.Tx, userID, productName string, now time.Time) (*model.Entitlement, error) {
	const q = `
SELECT ` + entitlementColumns + `
  FROM user_access
 WHERE user_id=$1 AND product_name=$2 AND is_active AND (expires_at IS NULL OR expires_at > $3)
 ORDER BY granted_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, productName, now)
	if err != nil {
		return nil, err
	}
	e, err := scanEntitlement(row)
	if err != nil {
		return nil, mapError(err)
	}
	return e, nil
}

func (r *entitlementRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	const q = `
SELECT ` + entitlementColumns + `
  FROM user_access
 WHERE user_id=$1
 ORDER BY granted_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *entitlementRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Entitlement, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*model.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	var (
		e          model.Entitlement
		accessType string
		tier       *string
		meta       []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.ProductName, &accessType, &tier, &e.IsActive, &e.GrantedAt, &e.RevokedAt, &e.ExpiresAt, &meta); err != nil {
		return nil, err
	}
	e.AccessType = model.AccessType(accessType)
	if tier != nil {
		e.Tier = model.ParseTier(*tier)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &e.Metadata)
	}
	return &e, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
