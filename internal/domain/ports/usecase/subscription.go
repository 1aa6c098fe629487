package usecase

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
)

// SubscriptionSweeper defines the subscription maintenance needed by background workers.
type SubscriptionSweeper interface {
	// SweepLapsed cancels subscriptions whose scheduled cancellation has passed and revokes
	// the access they granted. It returns how many were processed.
	SweepLapsed(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error)
	// ExpireStaleCheckouts marks hosted checkouts that never completed as expired.
	ExpireStaleCheckouts(ctx context.Context, olderThan time.Duration) (int, error)
}
