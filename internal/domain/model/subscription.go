package model

import (
	"time"

	"formative-compliance/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// AllSubscriptionStatuses is the order used when publishing status gauges.
var AllSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusTrialing,
	SubscriptionStatusPastDue,
	SubscriptionStatusCanceled,
	SubscriptionStatusUnpaid,
	SubscriptionStatusIncomplete,
}

// RevokesAccess reports whether entering this status should revoke subscription access.
func (s SubscriptionStatus) RevokesAccess() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusUnpaid
}

// Subscription mirrors a recurring plan at the payment processor.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"userId"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId"`
	StripeCustomerID     string             `json:"stripeCustomerId"`
	ProductName          string             `json:"productName"`
	PriceID              string             `json:"priceId"`
	Tier                 Tier               `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   *time.Time         `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd"`
	CanceledAt           *time.Time         `json:"canceledAt,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// NewSubscription creates a subscription record for a processor subscription.
func NewSubscription(id, userID, stripeSubscriptionID string, status SubscriptionStatus, now time.Time) (*Subscription, error) {
	if id == "" || userID == "" || stripeSubscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:                   id,
		UserID:               userID,
		StripeSubscriptionID: stripeSubscriptionID,
		Status:               status,
		Tier:                 TierNone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// IsCurrent reports whether the processor considers the subscription active. Period end
// is not consulted; renewals arrive asynchronously and lapses are swept separately.
func (s *Subscription) IsCurrent() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// EffectiveTier returns the stored tier, classifying legacy rows by product name.
func (s *Subscription) EffectiveTier() Tier {
	if s.Tier == "" {
		return ClassifyProduct(s.ProductName, nil)
	}
	return s.Tier
}

// PeriodLapsed reports whether a subscription scheduled to cancel has passed its period end.
func (s *Subscription) PeriodLapsed(now time.Time) bool {
	return s.CancelAtPeriodEnd && s.Status != SubscriptionStatusCanceled &&
		s.CurrentPeriodEnd != nil && !s.CurrentPeriodEnd.After(now)
}
