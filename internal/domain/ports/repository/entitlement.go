package repository

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
)

// -----------------------------
// Entitlements
// -----------------------------

type EntitlementRepository interface {
	// Grant upserts on (user_id, product_name, access_type) and reactivates a revoked row.
	Grant(ctx context.Context, tx Tx, e *model.Entitlement) error
	// RevokeByAccessType deactivates every active entitlement of the given access type.
	RevokeByAccessType(ctx context.Context, tx Tx, userID string, accessType model.AccessType, at time.Time) (int, error)
	// FindValidByUser returns entitlements that are active and unexpired at now.
	FindValidByUser(ctx context.Context, tx Tx, userID string, now time.Time) ([]*model.Entitlement, error)
	// FindValidByProduct returns the valid entitlement for an exact product name.
	FindValidByProduct(ctx context.Context, tx Tx, userID, productName string, now time.Time) (*model.Entitlement, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Entitlement, error)
}
