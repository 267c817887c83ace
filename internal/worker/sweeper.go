// Package worker holds background loops that run beside the HTTP server.
package worker

import (
	"context"
	"time"

	"marketplace-ledger/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// sweptOrders counts orders cancelled by the expiry sweeper.
var sweptOrders = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "sweeper",
	Name:      "orders_cancelled_total",
	Help:      "Total unpaid orders cancelled after their pickup deadline.",
})

// sweepErrors counts failed sweep passes.
var sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "sweeper",
	Name:      "errors_total",
	Help:      "Total failed sweep passes.",
})

// Sweeper periodically cancels unpaid orders whose pickup deadline has
// passed. One pass is a single conditional UPDATE, so it never races a
// concurrent pickup into a double transition.
type Sweeper struct {
	orderSvc ports.OrderService
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper creates a Sweeper running one pass per interval.
func NewSweeper(orderSvc ports.OrderService, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		orderSvc: orderSvc,
		interval: interval,
		log:      log,
	}
}

// Run blocks, sweeping once immediately and then once per interval,
// until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cancelled, err := s.orderSvc.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		sweepErrors.Inc()
		s.log.Error().Err(err).Msg("sweep pass failed")
		return
	}
	if cancelled > 0 {
		sweptOrders.Add(float64(cancelled))
		s.log.Info().Int64("cancelled", cancelled).Msg("expired orders cancelled")
	}
}
