package engine

import (
	"context"
	"testing"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

func newTestSweeper(ttl time.Duration, clock *time.Time) (*Sweeper, *testEnv) {
	s := store.NewMemory(200 * time.Millisecond)
	sink := &recordingSink{}
	m := NewManager(s, Options{Events: sink, Now: func() time.Time { return *clock }})
	env := &testEnv{store: s, manager: m, events: sink}
	return NewSweeper(time.Hour, ttl, s, m, nil), env
}

func TestSweeper_CancelsStaleOrders(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sw, env := newTestSweeper(time.Hour, &clock)
	env.fund(t, "c1", map[string]string{domain.CashSymbol: "1000", "AAPL": "10"})
	ctx := context.Background()

	old, err := env.manager.Create(ctx, buy("AAPL", "1", "100"))
	if err != nil {
		t.Fatal(err)
	}
	oldSell, err := env.manager.Create(ctx, sell("AAPL", "4", "10"))
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(30 * time.Minute)
	fresh, err := env.manager.Create(ctx, buy("AAPL", "1", "100"))
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(45 * time.Minute)
	if n := sw.tick(ctx, clock); n != 2 {
		t.Fatalf("tick canceled %d orders, want 2", n)
	}

	for _, id := range []string{old.OrderID, oldSell.OrderID} {
		o, _ := env.store.GetOrder(ctx, id)
		if o.Status != domain.OrderStatusCanceled {
			t.Errorf("order %s status = %s, want CANCELED", id, o.Status)
		}
	}
	f, _ := env.store.GetOrder(ctx, fresh.OrderID)
	if f.Status != domain.OrderStatusPending {
		t.Errorf("fresh order status = %s, want PENDING", f.Status)
	}

	// Only the fresh order's reservation remains.
	assertAsset(t, env.asset(t, "c1", domain.CashSymbol), "1000", "900")
	assertAsset(t, env.asset(t, "c1", "AAPL"), "10", "10")
}

func TestSweeper_SkipsOrdersClosedMeanwhile(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sw, env := newTestSweeper(time.Minute, &clock)
	env.fund(t, "c1", map[string]string{domain.CashSymbol: "1000"})
	ctx := context.Background()

	o, err := env.manager.Create(ctx, buy("AAPL", "1", "100"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.manager.Match(ctx, o.OrderID); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(time.Hour)
	if n := sw.tick(ctx, clock); n != 0 {
		t.Fatalf("tick canceled %d orders, want 0", n)
	}
	assertAsset(t, env.asset(t, "c1", domain.CashSymbol), "900", "900")
}

func TestSweeper_PublishesCanceledEvents(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sw, env := newTestSweeper(time.Minute, &clock)
	env.fund(t, "c1", map[string]string{domain.CashSymbol: "1000"})
	ctx := context.Background()

	if _, err := env.manager.Create(ctx, buy("AAPL", "1", "1")); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Minute)
	sw.tick(ctx, clock)

	got := env.events.types()
	if len(got) != 2 || got[1] != domain.EventOrderCanceled {
		t.Fatalf("events = %v, want [order.created order.canceled]", got)
	}
}

func TestSweeper_DisabledWithoutTTL(t *testing.T) {
	clock := time.Now()
	sw, _ := newTestSweeper(0, &clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Start must return without launching a ticker, so Wait returns at once.
	sw.Start(ctx)
	sw.Wait()
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	clock := time.Now()
	s := store.NewMemory(time.Second)
	m := NewManager(s, Options{Now: func() time.Time { return clock }})
	sw := NewSweeper(5*time.Millisecond, time.Minute, s, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	waited := make(chan struct{})
	go func() {
		sw.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestSweeper_WaitCoversInFlightTick(t *testing.T) {
	clock := time.Date(2020, 3, 1, 9, 0, 0, 0, time.UTC)
	s := store.NewMemory(time.Second)
	sink := &recordingSink{}
	m := NewManager(s, Options{Events: sink, Now: func() time.Time { return clock }})
	env := &testEnv{store: s, manager: m, events: sink}
	env.fund(t, "c1", map[string]string{domain.CashSymbol: "1000"})
	if _, err := m.Create(context.Background(), buy("AAPL", "1", "100")); err != nil {
		t.Fatal(err)
	}

	// The order is dated in the past, so the first real tick finds it stale.
	sw := NewSweeper(time.Millisecond, time.Nanosecond, s, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx)
	deadline := time.Now().Add(time.Second)
	for len(sink.types()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	sw.Wait()

	// Nothing publishes once Wait has returned.
	n := len(sink.types())
	time.Sleep(10 * time.Millisecond)
	if got := len(sink.types()); got != n {
		t.Errorf("events grew from %d to %d after Wait", n, got)
	}
	if n != 2 {
		t.Errorf("events = %d, want created and canceled", n)
	}
}
