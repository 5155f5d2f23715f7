package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

// Re-registering the same (customer, event) pair keeps the webhook id
// stable; changing the URL updates it in place.
func TestProperty_WebhookUpsertIdempotency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := store.NewMemory(time.Second)
		customerID := fmt.Sprintf("cust-%d", rapid.IntRange(1, 9999).Draw(t, "customerSuffix"))
		if err := s.CreateCustomer(context.Background(), &domain.Customer{
			CustomerID: customerID,
			Username:   customerID,
			Role:       domain.RoleCustomer,
		}, nil); err != nil {
			t.Fatalf("failed to create customer: %v", err)
		}
		svc := NewWebhookService(store.NewWebhookStore(), s, 5*time.Second, nil, nil)
		caller := Caller{CustomerID: customerID}

		event := string(rapid.SampledFrom(domain.EventTypes).Draw(t, "event"))
		url1 := fmt.Sprintf("https://example.com/hook/%d", rapid.IntRange(1, 99999).Draw(t, "urlSuffix1"))
		url2 := fmt.Sprintf("https://other.example.com/hook/%d", rapid.IntRange(1, 99999).Draw(t, "urlSuffix2"))

		first, created, err := svc.Upsert(context.Background(), UpsertWebhookRequest{
			CustomerID: customerID, URL: url1, Events: []string{event},
		}, caller)
		if err != nil {
			t.Fatalf("initial upsert failed: %v", err)
		}
		if !created || len(first) != 1 {
			t.Fatalf("initial upsert: created=%v len=%d", created, len(first))
		}
		originalID := first[0].WebhookID

		repeats := rapid.IntRange(1, 5).Draw(t, "repeats")
		for i := 0; i < repeats; i++ {
			again, created, err := svc.Upsert(context.Background(), UpsertWebhookRequest{
				CustomerID: customerID, URL: url1, Events: []string{event},
			}, caller)
			if err != nil {
				t.Fatalf("repeat %d failed: %v", i, err)
			}
			if created {
				t.Fatalf("repeat %d: expected created=false", i)
			}
			if again[0].WebhookID != originalID || again[0].URL != url1 {
				t.Fatalf("repeat %d: got %s %s, want %s %s", i, again[0].WebhookID, again[0].URL, originalID, url1)
			}
		}

		updated, created, err := svc.Upsert(context.Background(), UpsertWebhookRequest{
			CustomerID: customerID, URL: url2, Events: []string{event},
		}, caller)
		if err != nil {
			t.Fatalf("url update failed: %v", err)
		}
		if created || updated[0].WebhookID != originalID || updated[0].URL != url2 {
			t.Fatalf("url update: created=%v id=%s url=%s", created, updated[0].WebhookID, updated[0].URL)
		}

		list, err := svc.List(context.Background(), customerID, caller)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("got %d subscriptions, want 1", len(list))
		}
	})
}
