package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

const sweepBatchSize = 500

// Sweeper periodically cancels PENDING orders older than a TTL, releasing
// their reservations through the same Cancel path as a customer request.
type Sweeper struct {
	interval time.Duration
	ttl      time.Duration
	store    store.Store
	manager  *Manager
	logger   *slog.Logger
	done     chan struct{}
}

// NewSweeper creates a Sweeper. A non-positive ttl makes Start a no-op.
func NewSweeper(interval, ttl time.Duration, s store.Store, manager *Manager, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		interval: interval,
		ttl:      ttl,
		store:    s,
		manager:  manager,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled; Wait blocks until it has.
func (s *Sweeper) Start(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.tick(ctx, t)
			}
		}
	}()
}

// Wait blocks until the goroutine launched by Start returns, so no sweep
// publishes after the caller tears down event sinks. It returns at once if
// Start launched nothing.
func (s *Sweeper) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// tick cancels every PENDING order created before now-ttl and returns how
// many it canceled.
func (s *Sweeper) tick(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.ttl)
	canceled := 0

	for {
		stale, err := s.store.ListPendingOrdersBefore(ctx, cutoff, sweepBatchSize)
		if err != nil {
			s.logger.Error("list stale orders", slog.String("error", err.Error()))
			return canceled
		}

		progressed := false
		for _, o := range stale {
			_, err := s.manager.Cancel(ctx, o.OrderID)
			switch {
			case err == nil:
				canceled++
				progressed = true
			case errors.Is(err, domain.ErrInvalidState):
				// Matched or canceled since it was listed.
				progressed = true
			default:
				s.logger.Warn("expire order",
					slog.String("order_id", o.OrderID),
					slog.String("error", err.Error()),
				)
			}
		}
		if len(stale) < sweepBatchSize || !progressed || ctx.Err() != nil {
			break
		}
	}

	if canceled > 0 {
		s.logger.Info("expired stale orders", slog.Int("count", canceled), slog.Duration("ttl", s.ttl))
	}
	return canceled
}
