package model

import "time"

type CheckoutStatus string

const (
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusCompleted CheckoutStatus = "completed"
	CheckoutStatusExpired   CheckoutStatus = "expired"
)

type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// CheckoutSession tracks a hosted checkout started by a user.
type CheckoutSession struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	StripeSessionID string         `json:"stripeSessionId"`
	PriceID         string         `json:"priceId"`
	ProductName     string         `json:"productName"`
	Mode            CheckoutMode   `json:"mode"`
	Status          CheckoutStatus `json:"status"`
	AmountTotal     int64          `json:"amountTotal"`
	Currency        string         `json:"currency"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}
