package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	"formative-compliance/internal/domain/ports/repository"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	Start(ctx context.Context, req CheckoutInput) (*adapter.CheckoutResult, error)
}

type CheckoutInput struct {
	UserID        string `json:"-"`
	CustomerEmail string `json:"-"`
	PriceID       string `json:"priceId"`
	Coupon        string `json:"coupon,omitempty"`
}

type CheckoutConfig struct {
	PublicURL   string
	SuccessPath string
	CancelPath  string
}

type checkoutUC struct {
	gateway   adapter.PaymentGateway
	checkouts repository.CheckoutRepository
	activity  repository.ActivityRepository
	cfg       CheckoutConfig
	now       func() time.Time
	log       *zerolog.Logger
}

func NewCheckoutUseCase(
	gateway adapter.PaymentGateway,
	checkouts repository.CheckoutRepository,
	activity repository.ActivityRepository,
	cfg CheckoutConfig,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		gateway:   gateway,
		checkouts: checkouts,
		activity:  activity,
		cfg:       cfg,
		now:       time.Now,
		log:       logger,
	}
}

// placeholderPrices are the unreplaced ids shipped in sample configuration.
var placeholderPrices = []string{"price_xxx", "price_placeholder", "price_test", "price_your"}

func validPriceID(id string) bool {
	if !strings.HasPrefix(id, "price_") || len(id) <= len("price_") {
		return false
	}
	l := strings.ToLower(id)
	for _, p := range placeholderPrices {
		if strings.HasPrefix(l, p) {
			return false
		}
	}
	return true
}

func (u *checkoutUC) Start(ctx context.Context, in CheckoutInput) (*adapter.CheckoutResult, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.Start")()

	if in.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	in.PriceID = strings.TrimSpace(in.PriceID)
	if !validPriceID(in.PriceID) {
		metrics.IncCheckout("unknown", "invalid_price")
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPrice, in.PriceID)
	}

	price, err := u.gateway.LookupPrice(ctx, in.PriceID)
	if err != nil {
		metrics.IncCheckout("unknown", "lookup_failed")
		return nil, err
	}
	mode := model.CheckoutModePayment
	if price.Recurring {
		mode = model.CheckoutModeSubscription
	}

	base := strings.TrimRight(u.cfg.PublicURL, "/")
	res, err := u.gateway.CreateCheckout(ctx, adapter.CheckoutRequest{
		UserID:              in.UserID,
		CustomerEmail:       in.CustomerEmail,
		Price:               *price,
		Mode:                mode,
		SuccessURL:          base + u.cfg.SuccessPath,
		CancelURL:           base + u.cfg.CancelPath,
		Coupon:              strings.TrimSpace(in.Coupon),
		AllowPromotionCodes: true,
	})
	if err != nil {
		metrics.IncCheckout(string(mode), "gateway_error")
		return nil, err
	}

	now := u.now()
	sess := &model.CheckoutSession{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		StripeSessionID: res.SessionID,
		PriceID:         price.ID,
		ProductName:     price.ProductName,
		Mode:            mode,
		Status:          model.CheckoutStatusPending,
		AmountTotal:     price.UnitAmount,
		Currency:        price.Currency,
		CreatedAt:       now,
	}
	if err := u.checkouts.Save(ctx, repository.NoTX, sess); err != nil {
		// the hosted page is already live; the webhook carries everything needed to grant
		u.log.Error().Err(err).Str("user_id", in.UserID).Str("session_id", res.SessionID).
			Str("op", "CheckoutUC.Start").Msg("persist checkout session failed")
	}
	if err := u.activity.Save(ctx, repository.NoTX, &model.Activity{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Type:      model.ActivityCheckoutStarted,
		Details:   map[string]any{"priceId": price.ID, "productName": price.ProductName, "mode": string(mode)},
		CreatedAt: now,
	}); err != nil {
		u.log.Warn().Err(err).Str("user_id", in.UserID).Msg("checkout activity not recorded")
	}

	metrics.IncCheckout(string(mode), "created")
	u.log.Info().Str("user_id", in.UserID).Str("price_id", price.ID).Str("mode", string(mode)).
		Msg("checkout session created")
	return res, nil
}
