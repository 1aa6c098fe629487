package repository

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
)

// -----------------------------
// Subscriptions
// -----------------------------

type SubscriptionRepository interface {
	// Upsert saves on conflict of stripe_subscription_id.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByStripeID(ctx context.Context, tx Tx, stripeSubscriptionID string) (*model.Subscription, error)
	FindUserByCustomer(ctx context.Context, tx Tx, stripeCustomerID string) (string, error)
	ListActiveByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	ListLapsed(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
