package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"formative-compliance/internal/domain/ports/usecase"
	"formative-compliance/internal/infra/metrics"
)

// SweepWorker periodically lapses subscriptions whose cancellation took effect without a
// processor event and refreshes the subscription gauges.
type SweepWorker struct {
	interval time.Duration
	sweeper  usecase.SubscriptionSweeper
	log      *zerolog.Logger
}

func NewSweepWorker(interval time.Duration, sweeper usecase.SubscriptionSweeper, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{
		interval: interval,
		sweeper:  sweeper,
		log:      &l,
	}
}

// Run sweeps once on start and then on every tick until ctx is done.
func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sweep worker")
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SweepWorker) tick(ctx context.Context) {
	n, err := w.sweeper.SweepLapsed(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep lapsed subscriptions failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("lapsed subscriptions canceled")
	}

	counts, err := w.sweeper.StatusCounts(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("subscription status counts failed")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}
