package repository

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
)

// -----------------------------
// Documents, downloads, activity
// -----------------------------

type DocumentRepository interface {
	Save(ctx context.Context, tx Tx, d *model.Document) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Document, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.Document, error)
	IncrementDownloads(ctx context.Context, tx Tx, id string) error
	SoftDelete(ctx context.Context, tx Tx, id string, at time.Time) error
	Stats(ctx context.Context, tx Tx, userID string, monthStart time.Time) (*model.DocumentStats, error)
}

type DownloadRepository interface {
	Save(ctx context.Context, tx Tx, d *model.Download) error
	CountByDocument(ctx context.Context, tx Tx, documentID string) (int, error)
}

type ActivityRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Activity) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Activity, error)
}

type CheckoutRepository interface {
	Save(ctx context.Context, tx Tx, c *model.CheckoutSession) error
	FindByStripeID(ctx context.Context, tx Tx, stripeSessionID string) (*model.CheckoutSession, error)
	MarkCompleted(ctx context.Context, tx Tx, stripeSessionID string, amountTotal int64, currency string, at time.Time) error
	// ExpirePendingBefore marks pending sessions created before cutoff as expired.
	ExpirePendingBefore(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
