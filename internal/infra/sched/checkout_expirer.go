package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"formative-compliance/internal/domain/ports/usecase"
)

// CheckoutExpirer marks hosted checkouts that stayed pending past ttl as expired. The
// processor discards the session by then, so no completion event can arrive.
type CheckoutExpirer struct {
	sweeper  usecase.SubscriptionSweeper
	interval time.Duration
	ttl      time.Duration
	log      *zerolog.Logger
}

func NewCheckoutExpirer(sweeper usecase.SubscriptionSweeper, interval, ttl time.Duration, logger *zerolog.Logger) *CheckoutExpirer {
	if interval <= 0 {
		interval = time.Hour
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	l := logger.With().Str("component", "CheckoutExpirer").Logger()
	return &CheckoutExpirer{sweeper: sweeper, interval: interval, ttl: ttl, log: &l}
}

func (w *CheckoutExpirer) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *CheckoutExpirer) tick(ctx context.Context) {
	n, err := w.sweeper.ExpireStaleCheckouts(ctx, w.ttl)
	if err != nil {
		w.log.Error().Err(err).Msg("expire stale checkouts failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("count", n).Dur("ttl", w.ttl).Msg("stale checkouts expired")
	}
}
