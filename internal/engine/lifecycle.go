package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

// EventSink receives an event for every committed order transition.
// Publish is called after commit and must not block for long.
type EventSink interface {
	Publish(ctx context.Context, ev domain.OrderEvent)
}

// Metrics is the subset of instrumentation the manager reports to.
type Metrics interface {
	ObserveOrderOp(op, outcome string, d time.Duration)
	IncLockContention()
}

// CreateParams describes a validated order to place.
type CreateParams struct {
	CustomerID string
	AssetName  string
	Side       domain.OrderSide
	Size       decimal.Decimal
	Price      decimal.Decimal
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	LockRetries  int
	RetryBackoff time.Duration
	Events       EventSink
	Metrics      Metrics
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
}

// Manager drives orders through PENDING → MATCHED | CANCELED. Each
// operation is one unit of work: row locks are taken in a fixed order
// (order row, then asset rows by ascending symbol), invariants are checked,
// and the ledger and the order change together or not at all.
type Manager struct {
	store        store.Store
	lockRetries  int
	retryBackoff time.Duration
	events       EventSink
	metrics      Metrics
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// NewManager creates a Manager over s.
func NewManager(s store.Store, opts Options) *Manager {
	m := &Manager{
		store:        s,
		lockRetries:  opts.LockRetries,
		retryBackoff: opts.RetryBackoff,
		events:       opts.Events,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if m.lockRetries < 0 {
		m.lockRetries = 0
	}
	if m.retryBackoff <= 0 {
		m.retryBackoff = 10 * time.Millisecond
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.New().String() }
	}
	return m
}

// Create reserves the order's funding and records it as PENDING. Orders
// whose notional needs more than domain.AmountScale places are rejected.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*domain.Order, error) {
	if err := domain.CheckNotional(p.Size, p.Price); err != nil {
		return nil, err
	}
	var created *domain.Order
	err := m.run(ctx, "create", func(tx store.Tx) error {
		if _, err := tx.GetCustomer(ctx, p.CustomerID); err != nil {
			return err
		}

		now := m.now()
		r := domain.ReservationFor(p.Side, p.AssetName, p.Size, p.Price)
		asset, err := tx.GetAssetForUpdate(ctx, p.CustomerID, r.Symbol)
		if err != nil {
			return err
		}
		if asset.UsableSize.LessThan(r.Amount) {
			return &domain.InsufficientFundsError{
				Symbol:    r.Symbol,
				Required:  r.Amount,
				Available: asset.UsableSize,
			}
		}
		asset.UsableSize = asset.UsableSize.Sub(r.Amount)
		asset.UpdatedAt = now
		if err := tx.SaveAsset(ctx, asset); err != nil {
			return err
		}

		o := &domain.Order{
			OrderID:    m.newID(),
			CustomerID: p.CustomerID,
			AssetName:  p.AssetName,
			Side:       p.Side,
			Size:       p.Size,
			Price:      p.Price,
			Status:     domain.OrderStatusPending,
			CreateDate: now,
			UpdatedAt:  now,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.committed(ctx, domain.EventOrderCreated, created)
	return created, nil
}

// Cancel releases a PENDING order's reservation and marks it CANCELED.
func (m *Manager) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	var canceled *domain.Order
	err := m.run(ctx, "cancel", func(tx store.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusPending {
			return &domain.InvalidStateError{OrderID: o.OrderID, Status: o.Status, Op: "canceled"}
		}

		now := m.now()
		r := o.Reservation()
		asset, err := tx.GetAssetForUpdate(ctx, o.CustomerID, r.Symbol)
		if err != nil {
			return fmt.Errorf("release reservation of order %s: %w", o.OrderID, err)
		}
		asset.UsableSize = asset.UsableSize.Add(r.Amount)
		asset.UpdatedAt = now
		if err := tx.SaveAsset(ctx, asset); err != nil {
			return err
		}

		if err := o.TransitionTo(domain.OrderStatusCanceled, "canceled", now); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		canceled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.committed(ctx, domain.EventOrderCanceled, canceled)
	return canceled, nil
}

// Match settles a PENDING order at its stated price and marks it MATCHED.
func (m *Manager) Match(ctx context.Context, orderID string) (*domain.Order, error) {
	var matched *domain.Order
	err := m.run(ctx, "match", func(tx store.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusPending {
			return &domain.InvalidStateError{OrderID: o.OrderID, Status: o.Status, Op: "matched"}
		}

		now := m.now()
		if err := settle(ctx, tx, o, now); err != nil {
			return err
		}
		if err := o.TransitionTo(domain.OrderStatusMatched, "matched", now); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		matched = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.committed(ctx, domain.EventOrderMatched, matched)
	return matched, nil
}

// run executes fn in a unit of work, retrying lock contention up to
// lockRetries times with jittered linear backoff.
func (m *Manager) run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		err = m.store.WithinTx(ctx, fn)
		if err == nil || !domain.IsRetryable(err) {
			break
		}
		if m.metrics != nil {
			m.metrics.IncLockContention()
		}
		if attempt >= m.lockRetries {
			break
		}

		wait := m.retryBackoff*time.Duration(attempt+1) + rand.N(m.retryBackoff)
		m.logger.Warn("lock contention, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	if m.metrics != nil {
		m.metrics.ObserveOrderOp(op, outcome(err), time.Since(start))
	}
	return err
}

func (m *Manager) committed(ctx context.Context, typ domain.EventType, o *domain.Order) {
	m.logger.Info("order transition committed",
		slog.String("event", string(typ)),
		slog.String("order_id", o.OrderID),
		slog.String("customer_id", o.CustomerID),
		slog.String("asset", o.AssetName),
		slog.String("side", string(o.Side)),
		slog.String("status", string(o.Status)),
	)
	if m.events == nil {
		return
	}
	m.events.Publish(ctx, domain.OrderEvent{
		EventID:    uuid.New().String(),
		Type:       typ,
		Order:      o.Clone(),
		OccurredAt: o.UpdatedAt,
	})
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}
