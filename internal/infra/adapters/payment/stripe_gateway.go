package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// Metadata keys stamped on checkout sessions and subscriptions.
const (
	MetaUserID      = "userId"
	MetaPriceID     = "priceId"
	MetaProductName = "productName"
	MetaMode        = "mode"
)

// StripeGateway implements adapter.PaymentGateway on Stripe Checkout and webhooks.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}, nil
}

func (s *StripeGateway) Name() string { return "stripe" }

func (s *StripeGateway) LookupPrice(ctx context.Context, priceID string) (*adapter.PriceInfo, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	params.AddExpand("product")
	p, err := s.api.Prices.Get(priceID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, priceID)
		}
		return nil, err
	}
	info := &adapter.PriceInfo{
		ID:         p.ID,
		Recurring:  p.Recurring != nil,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
	}
	if p.Product != nil {
		info.ProductID = p.Product.ID
		info.ProductName = p.Product.Name
	}
	return info, nil
}

func (s *StripeGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutResult, error) {
	meta := map[string]string{
		MetaUserID:      req.UserID,
		MetaPriceID:     req.Price.ID,
		MetaProductName: req.Price.ProductName,
		MetaMode:        string(req.Mode),
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(req.Mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.Price.ID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          meta,
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.Coupon != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(req.Coupon)}}
	} else if req.AllowPromotionCodes {
		params.AllowPromotionCodes = stripe.Bool(true)
	}
	if req.Mode == model.CheckoutModeSubscription {
		// subscription events carry the same metadata so they can be attributed
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &adapter.CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header and reduces the event to the fields the
// billing use case consumes. Unhandled event types decode to an event with no payload.
func (s *StripeGateway) ParseEvent(ctx context.Context, payload []byte, signature string) (*adapter.BillingEvent, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return DecodeEvent(ev)
}

// DecodeEvent converts a verified Stripe event.
func DecodeEvent(ev stripe.Event) (*adapter.BillingEvent, error) {
	out := &adapter.BillingEvent{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case adapter.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Checkout = checkoutFromStripe(&sess)

	case adapter.EventSubscriptionCreated, adapter.EventSubscriptionUpdated, adapter.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Subscription = subscriptionFromStripe(&sub)

	case adapter.EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out.BillingReason = string(inv.BillingReason)
		if inv.Subscription != nil {
			out.Subscription = &adapter.SubscriptionChange{
				StripeSubscriptionID: inv.Subscription.ID,
				Status:               model.SubscriptionStatusActive,
			}
			if inv.Customer != nil {
				out.Subscription.CustomerID = inv.Customer.ID
			}
		}
	}
	return out, nil
}

func checkoutFromStripe(sess *stripe.CheckoutSession) *adapter.CheckoutCompleted {
	c := &adapter.CheckoutCompleted{
		SessionID:   sess.ID,
		Mode:        model.CheckoutMode(sess.Mode),
		UserID:      sess.Metadata[MetaUserID],
		PriceID:     sess.Metadata[MetaPriceID],
		ProductName: sess.Metadata[MetaProductName],
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
	}
	if c.UserID == "" {
		c.UserID = sess.ClientReferenceID
	}
	if sess.Customer != nil {
		c.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		c.SubscriptionID = sess.Subscription.ID
	}
	return c
}

func subscriptionFromStripe(sub *stripe.Subscription) *adapter.SubscriptionChange {
	c := &adapter.SubscriptionChange{
		StripeSubscriptionID: sub.ID,
		UserID:               sub.Metadata[MetaUserID],
		Status:               model.SubscriptionStatus(sub.Status),
		PriceID:              sub.Metadata[MetaPriceID],
		ProductName:          sub.Metadata[MetaProductName],
		CurrentPeriodStart:   unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixPtr(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CanceledAt:           unixPtr(sub.CanceledAt),
	}
	if sub.Customer != nil {
		c.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		p := sub.Items.Data[0].Price
		if c.PriceID == "" {
			c.PriceID = p.ID
		}
		if c.ProductName == "" && p.Product != nil {
			c.ProductName = p.Product.Name
		}
	}
	return c
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
