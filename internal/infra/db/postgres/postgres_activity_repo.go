package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
)

var (
	_ repository.DownloadRepository = (*downloadRepo)(nil)
	_ repository.ActivityRepository = (*activityRepo)(nil)
)

type downloadRepo struct {
	pool *pgxpool.Pool
}

func NewDownloadRepo(pool *pgxpool.Pool) *downloadRepo {
	return &downloadRepo{pool: pool}
}

func (r *downloadRepo) Save(ctx context.Context, tx repository.Tx, d *model.Download) error {
	const q = `
INSERT INTO document_downloads (id, user_id, document_id, download_type, ip_address, user_agent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.UserID, d.DocumentID, string(d.Type),
		nullIfEmpty(d.IPAddress), nullIfEmpty(d.UserAgent), d.CreatedAt)
	return mapError(err)
}

func (r *downloadRepo) CountByDocument(ctx context.Context, tx repository.Tx, documentID string) (int, error) {
	const q = `SELECT COUNT(*) FROM document_downloads WHERE document_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, documentID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

type activityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *activityRepo {
	return &activityRepo{pool: pool}
}

func (r *activityRepo) Save(ctx context.Context, tx repository.Tx, a *model.Activity) error {
	const q = `
INSERT INTO user_activity (id, user_id, type, details, created_at)
VALUES ($1,$2,$3,$4::jsonb,$5);`
	details, err := json.Marshal(orEmpty(a.Details))
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q, a.ID, a.UserID, string(a.Type), string(details), a.CreatedAt)
	return mapError(err)
}

func (r *activityRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, type, details, created_at
  FROM user_activity
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*model.Activity
	for rows.Next() {
		var (
			a       model.Activity
			typ     string
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &typ, &details, &a.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		a.Type = model.ActivityType(typ)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &a.Details)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
