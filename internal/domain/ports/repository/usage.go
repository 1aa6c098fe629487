package repository

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
)

// -----------------------------
// Usage ledger
// -----------------------------

type UsageRepository interface {
	Append(ctx context.Context, tx Tx, r *model.UsageRecord) error
	// CountSince counts non-deleted records with created_at >= since.
	CountSince(ctx context.Context, tx Tx, userID string, since time.Time) (int, error)
	SoftDeleteByDocument(ctx context.Context, tx Tx, userID, documentID string, at time.Time) error
}
