package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	"formative-compliance/internal/domain/ports/repository"
	portsuc "formative-compliance/internal/domain/ports/usecase"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/infra/metrics"
)

// Compile-time checks
var (
	_ BillingUseCase              = (*billingUC)(nil)
	_ portsuc.SubscriptionSweeper = (*billingUC)(nil)
)

// BillingUseCase turns verified payment processor events into entitlement changes.
type BillingUseCase interface {
	// HandleWebhook verifies and applies a raw webhook delivery.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	HandleEvent(ctx context.Context, ev *adapter.BillingEvent) error
}

const billingReasonCycle = "subscription_cycle"

type billingUC struct {
	gateway      adapter.PaymentGateway
	tm           repository.TransactionManager
	subs         repository.SubscriptionRepository
	entitlements repository.EntitlementRepository
	checkouts    repository.CheckoutRepository
	overrides    map[string]model.Tier
	now          func() time.Time
	log          *zerolog.Logger
}

func NewBillingUseCase(
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	subs repository.SubscriptionRepository,
	entitlements repository.EntitlementRepository,
	checkouts repository.CheckoutRepository,
	overrides map[string]model.Tier,
	logger *zerolog.Logger,
) *billingUC {
	return &billingUC{
		gateway:      gateway,
		tm:           tm,
		subs:         subs,
		entitlements: entitlements,
		checkouts:    checkouts,
		overrides:    overrides,
		now:          time.Now,
		log:          logger,
	}
}

func (u *billingUC) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := u.gateway.ParseEvent(ctx, payload, signature)
	if err != nil {
		metrics.IncWebhookEvent("unknown", "invalid")
		return err
	}
	return u.HandleEvent(ctx, ev)
}

func (u *billingUC) HandleEvent(ctx context.Context, ev *adapter.BillingEvent) error {
	defer logging.TraceDuration(u.log, "BillingUC.HandleEvent")()

	var err error
	switch ev.Type {
	case adapter.EventCheckoutCompleted:
		err = u.onCheckoutCompleted(ctx, ev)
	case adapter.EventSubscriptionCreated, adapter.EventSubscriptionUpdated, adapter.EventSubscriptionDeleted:
		err = u.onSubscriptionChanged(ctx, ev)
	case adapter.EventInvoicePaid:
		err = u.onInvoicePaid(ctx, ev)
	default:
		u.log.Debug().Str("event_id", ev.ID).Str("type", ev.Type).Msg("billing event ignored")
		metrics.IncWebhookEvent(ev.Type, "ignored")
		return nil
	}
	if err != nil {
		metrics.IncWebhookEvent(ev.Type, "error")
		u.log.Error().Err(err).Str("event_id", ev.ID).Str("type", ev.Type).
			Str("op", "BillingUC.HandleEvent").Msg("billing event failed")
		return err
	}
	metrics.IncWebhookEvent(ev.Type, "ok")
	return nil
}

func (u *billingUC) onCheckoutCompleted(ctx context.Context, ev *adapter.BillingEvent) error {
	c := ev.Checkout
	if c == nil {
		return fmt.Errorf("%w: checkout payload missing", domain.ErrInvalidArgument)
	}
	now := u.now()
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		err := u.checkouts.MarkCompleted(ctx, tx, c.SessionID, c.AmountTotal, c.Currency, now)
		switch {
		case err == nil:
			if c.AmountTotal > 0 {
				metrics.AddPaymentRevenue(c.Currency, c.AmountTotal)
			}
		case errors.Is(err, domain.ErrAlreadyExists):
			u.log.Info().Str("session_id", c.SessionID).Msg("checkout already completed; re-applying grant")
		case errors.Is(err, domain.ErrNotFound):
			u.log.Warn().Str("session_id", c.SessionID).Msg("checkout session not recorded locally")
		default:
			return err
		}

		// subscription checkouts are granted by the subscription events
		if c.Mode != model.CheckoutModePayment {
			return nil
		}
		if c.UserID == "" {
			return fmt.Errorf("%w: session %s", domain.ErrUnknownBillingOwner, c.SessionID)
		}
		if strings.TrimSpace(c.ProductName) == "" {
			return fmt.Errorf("%w: session %s has no product name", domain.ErrInvalidArgument, c.SessionID)
		}
		return u.grant(ctx, tx, c.UserID, c.ProductName, model.AccessTypeOneTime, map[string]any{
			"sessionId": c.SessionID,
			"priceId":   c.PriceID,
		}, now)
	})
	if err != nil {
		return err
	}
	metrics.IncCheckout(string(c.Mode), "completed")
	return nil
}

func (u *billingUC) onSubscriptionChanged(ctx context.Context, ev *adapter.BillingEvent) error {
	ch := ev.Subscription
	if ch == nil || ch.StripeSubscriptionID == "" {
		return fmt.Errorf("%w: subscription payload missing", domain.ErrInvalidArgument)
	}
	now := u.now()
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.subs.FindByStripeID(ctx, tx, ch.StripeSubscriptionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		userID, err := u.resolveUser(ctx, tx, ch, existing)
		if err != nil {
			return err
		}

		prevProduct := ""
		s := existing
		if s != nil {
			prevProduct = s.ProductName
		}
		if s == nil {
			s, err = model.NewSubscription(uuid.NewString(), userID, ch.StripeSubscriptionID, ch.Status, now)
			if err != nil {
				return err
			}
		}
		s.UserID = userID
		s.Status = ch.Status
		if ev.Type == adapter.EventSubscriptionDeleted {
			s.Status = model.SubscriptionStatusCanceled
		}
		if ch.CustomerID != "" {
			s.StripeCustomerID = ch.CustomerID
		}
		if ch.PriceID != "" {
			s.PriceID = ch.PriceID
		}
		if ch.ProductName != "" {
			s.ProductName = ch.ProductName
		}
		s.Tier = model.ClassifyProduct(s.ProductName, u.overrides)
		s.CurrentPeriodStart = ch.CurrentPeriodStart
		s.CurrentPeriodEnd = ch.CurrentPeriodEnd
		s.CancelAtPeriodEnd = ch.CancelAtPeriodEnd
		s.CanceledAt = ch.CanceledAt
		if s.Status == model.SubscriptionStatusCanceled && s.CanceledAt == nil {
			s.CanceledAt = &now
		}
		s.UpdatedAt = now
		if err := u.subs.Upsert(ctx, tx, s); err != nil {
			return err
		}

		switch {
		case s.Status == model.SubscriptionStatusActive:
			if s.ProductName == "" {
				u.log.Warn().Str("subscription_id", s.StripeSubscriptionID).Msg("active subscription without product name; no grant")
				return nil
			}
			// plan change: the old product's grant goes before the new one is issued
			if prevProduct != "" && prevProduct != s.ProductName {
				if err := u.revokeSubscriptionAccess(ctx, tx, userID, s.StripeSubscriptionID, now); err != nil {
					return err
				}
			}
			return u.grant(ctx, tx, userID, s.ProductName, model.AccessTypeSubscription, map[string]any{
				"subscriptionId": s.StripeSubscriptionID,
				"priceId":        s.PriceID,
			}, now)
		case s.Status.RevokesAccess():
			return u.revokeSubscriptionAccess(ctx, tx, userID, s.StripeSubscriptionID, now)
		}
		return nil
	})
}

func (u *billingUC) onInvoicePaid(ctx context.Context, ev *adapter.BillingEvent) error {
	if ev.BillingReason != billingReasonCycle || ev.Subscription == nil {
		u.log.Debug().Str("event_id", ev.ID).Str("billing_reason", ev.BillingReason).Msg("invoice not a renewal; ignored")
		return nil
	}
	now := u.now()
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.subs.FindByStripeID(ctx, tx, ev.Subscription.StripeSubscriptionID)
		if errors.Is(err, domain.ErrNotFound) {
			// the subscription events will create it
			u.log.Warn().Str("subscription_id", ev.Subscription.StripeSubscriptionID).Msg("renewal for unknown subscription")
			return nil
		}
		if err != nil {
			return err
		}
		if s.ProductName == "" {
			return nil
		}
		if s.Status != model.SubscriptionStatusActive {
			s.Status = model.SubscriptionStatusActive
			s.UpdatedAt = now
			if err := u.subs.Upsert(ctx, tx, s); err != nil {
				return err
			}
		}
		return u.grant(ctx, tx, s.UserID, s.ProductName, model.AccessTypeSubscription, map[string]any{
			"subscriptionId": s.StripeSubscriptionID,
			"renewedAt":      now.Format(time.RFC3339),
		}, now)
	})
}

func (u *billingUC) resolveUser(ctx context.Context, tx repository.Tx, ch *adapter.SubscriptionChange, existing *model.Subscription) (string, error) {
	if ch.UserID != "" {
		return ch.UserID, nil
	}
	if existing != nil && existing.UserID != "" {
		return existing.UserID, nil
	}
	if ch.CustomerID != "" {
		id, err := u.subs.FindUserByCustomer(ctx, tx, ch.CustomerID)
		if err == nil && id != "" {
			return id, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: subscription %s", domain.ErrUnknownBillingOwner, ch.StripeSubscriptionID)
}

func (u *billingUC) grant(ctx context.Context, tx repository.Tx, userID, productName string, at model.AccessType, meta map[string]any, now time.Time) error {
	e, err := model.NewEntitlement(uuid.NewString(), userID, productName, at, u.overrides, now)
	if err != nil {
		return err
	}
	e.Metadata = meta
	if err := u.entitlements.Grant(ctx, tx, e); err != nil {
		return err
	}
	metrics.AddEntitlementChange("grant", string(at), 1)
	u.log.Info().Str("user_id", userID).Str("product", productName).Str("access_type", string(at)).
		Str("tier", string(e.Tier)).Msg("entitlement granted")
	return nil
}

// revokeSubscriptionAccess deactivates the user's subscription entitlements, then restores
// the ones still backed by another active subscription.
func (u *billingUC) revokeSubscriptionAccess(ctx context.Context, tx repository.Tx, userID, endedStripeID string, now time.Time) error {
	n, err := u.entitlements.RevokeByAccessType(ctx, tx, userID, model.AccessTypeSubscription, now)
	if err != nil {
		return err
	}
	metrics.AddEntitlementChange("revoke", string(model.AccessTypeSubscription), n)
	u.log.Info().Str("user_id", userID).Str("subscription_id", endedStripeID).Int("revoked", n).Msg("subscription access revoked")

	others, err := u.subs.ListActiveByUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	for _, s := range others {
		if s.StripeSubscriptionID == endedStripeID || s.ProductName == "" || !s.IsCurrent() {
			continue
		}
		if err := u.grant(ctx, tx, userID, s.ProductName, model.AccessTypeSubscription, map[string]any{
			"subscriptionId": s.StripeSubscriptionID,
		}, now); err != nil {
			return err
		}
	}
	return nil
}

// SweepLapsed cancels subscriptions whose scheduled end has passed without a processor
// event and revokes the access they granted.
func (u *billingUC) SweepLapsed(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "BillingUC.SweepLapsed")()

	now := u.now()
	lapsed, err := u.subs.ListLapsed(ctx, repository.NoTX, now)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, s := range lapsed {
		if !s.PeriodLapsed(now) {
			continue
		}
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			s.Status = model.SubscriptionStatusCanceled
			s.CanceledAt = &now
			s.UpdatedAt = now
			if err := u.subs.Upsert(ctx, tx, s); err != nil {
				return err
			}
			return u.revokeSubscriptionAccess(ctx, tx, s.UserID, s.StripeSubscriptionID, now)
		})
		if err != nil {
			u.log.Error().Err(err).Str("subscription_id", s.StripeSubscriptionID).
				Str("op", "BillingUC.SweepLapsed").Msg("lapse subscription failed")
			continue
		}
		done++
	}
	if done > 0 {
		metrics.IncSubscriptionsLapsed(done)
	}
	return done, nil
}

// ExpireStaleCheckouts closes out pending sessions the processor will no longer complete.
func (u *billingUC) ExpireStaleCheckouts(ctx context.Context, olderThan time.Duration) (int, error) {
	defer logging.TraceDuration(u.log, "BillingUC.ExpireStaleCheckouts")()

	n, err := u.checkouts.ExpirePendingBefore(ctx, repository.NoTX, u.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddCheckoutsExpired(n)
	}
	return n, nil
}

func (u *billingUC) StatusCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return u.subs.CountByStatus(ctx, repository.NoTX)
}
