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

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

const documentColumns = `id, user_id, industry_id, pack_id, document_type, title, format, storage_key, size_bytes,
  business_info, download_count, created_at, deleted_at`

func (r *documentRepo) Save(ctx context.Context, tx repository.Tx, d *model.Document) error {
	const q = `
INSERT INTO user_documents (` + documentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  title=EXCLUDED.title, storage_key=EXCLUDED.storage_key, size_bytes=EXCLUDED.size_bytes,
  business_info=EXCLUDED.business_info;`
	info, err := json.Marshal(d.Business)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q, d.ID, d.UserID, d.IndustryID, d.PackID, d.DocumentType, d.Title,
		string(d.Format), d.StorageKey, d.SizeBytes, string(info), d.DownloadCount, d.CreatedAt, d.DeletedAt)
	return mapError(err)
}

func (r *documentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	const q = `
SELECT ` + documentColumns + `
  FROM user_documents
 WHERE id=$1 AND deleted_at IS NULL;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	d, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err)
	}
	return d, nil
}

func (r *documentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT ` + documentColumns + `
  FROM user_documents
 WHERE user_id=$1 AND deleted_at IS NULL
 ORDER BY created_at DESC
 OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// IncrementDownloads bumps the counter in place rather than read-modify-write.
func (r *documentRepo) IncrementDownloads(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE user_documents SET download_count = download_count + 1 WHERE id=$1 AND deleted_at IS NULL;`
	ct, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *documentRepo) SoftDelete(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE user_documents SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL;`
	ct, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *documentRepo) Stats(ctx context.Context, tx repository.Tx, userID string, monthStart time.Time) (*model.DocumentStats, error) {
	const totals = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE created_at >= $2),
       MAX(created_at)
  FROM user_documents
 WHERE user_id=$1 AND deleted_at IS NULL;`
	const downloads = `SELECT COUNT(*) FROM document_downloads WHERE user_id=$1;`
	const industry = `
SELECT industry_id
  FROM user_documents
 WHERE user_id=$1 AND deleted_at IS NULL
 GROUP BY industry_id
 ORDER BY COUNT(*) DESC, MAX(created_at) DESC
 LIMIT 1;`
	const format = `
SELECT format
  FROM user_documents
 WHERE user_id=$1 AND deleted_at IS NULL
 GROUP BY format
 ORDER BY COUNT(*) DESC, format ASC
 LIMIT 1;`

	st := &model.DocumentStats{}
	row, err := pickRow(ctx, r.pool, tx, totals, userID, monthStart)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&st.TotalDocuments, &st.MonthlyDocuments, &st.LastGeneratedAt); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}

	row, err = pickRow(ctx, r.pool, tx, downloads, userID)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&st.TotalDownloads); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if st.TotalDocuments == 0 {
		return st, nil
	}

	row, err = pickRow(ctx, r.pool, tx, industry, userID)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&st.FavoriteIndustry); err != nil && err != pgx.ErrNoRows {
		return nil, domain.ErrReadDatabaseRow
	}

	var f string
	row, err = pickRow(ctx, r.pool, tx, format, userID)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&f); err != nil && err != pgx.ErrNoRows {
		return nil, domain.ErrReadDatabaseRow
	}
	st.MostUsedFormat = model.Format(f)
	return st, nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		d      model.Document
		format string
		info   []byte
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.IndustryID, &d.PackID, &d.DocumentType, &d.Title, &format,
		&d.StorageKey, &d.SizeBytes, &info, &d.DownloadCount, &d.CreatedAt, &d.DeletedAt); err != nil {
		return nil, err
	}
	d.Format = model.Format(format)
	if len(info) > 0 {
		_ = json.Unmarshal(info, &d.Business)
	}
	return &d, nil
}
