package adapter

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
)

// PriceInfo is what checkout needs to know about a processor price.
type PriceInfo struct {
	ID          string
	ProductID   string
	ProductName string
	Recurring   bool
	UnitAmount  int64
	Currency    string
}

type CheckoutRequest struct {
	UserID              string
	CustomerEmail       string
	Price               PriceInfo
	Mode                model.CheckoutMode
	SuccessURL          string
	CancelURL           string
	Coupon              string
	AllowPromotionCodes bool
}

type CheckoutResult struct {
	SessionID string
	URL       string
}

// Billing event kinds the billing use case reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
)

type CheckoutCompleted struct {
	SessionID      string
	Mode           model.CheckoutMode
	UserID         string
	PriceID        string
	ProductName    string
	CustomerID     string
	SubscriptionID string
	AmountTotal    int64
	Currency       string
}

type SubscriptionChange struct {
	StripeSubscriptionID string
	CustomerID           string
	UserID               string
	Status               model.SubscriptionStatus
	PriceID              string
	ProductName          string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	CanceledAt           *time.Time
}

// BillingEvent is a verified processor event reduced to the fields the service consumes.
// At most one of Checkout and Subscription is set.
type BillingEvent struct {
	ID            string
	Type          string
	BillingReason string
	Checkout      *CheckoutCompleted
	Subscription  *SubscriptionChange
}

// PaymentGateway is the hex port for the payment processor.
type PaymentGateway interface {
	Name() string
	LookupPrice(ctx context.Context, priceID string) (*PriceInfo, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	// ParseEvent verifies the signature and decodes the event payload.
	ParseEvent(ctx context.Context, payload []byte, signature string) (*BillingEvent, error)
}
