package store

import (
	"slices"
	"strings"
	"sync"

	"github.com/efreitasn/minibroker/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for webhook subscriptions.
// Primary index: webhook_id → webhook.
// Secondary index: customer_id → event → webhook.
type WebhookStore struct {
	mu         sync.RWMutex
	webhooks   map[string]*domain.Webhook
	byCustomer map[string]map[domain.EventType]*domain.Webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks:   make(map[string]*domain.Webhook),
		byCustomer: make(map[string]map[domain.EventType]*domain.Webhook),
	}
}

// Upsert inserts or updates the subscription keyed by (customer_id, event).
// An existing subscription keeps its webhook_id and only takes the new URL.
// It returns the stored subscription and whether it was newly created.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byCustomer[w.CustomerID][w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		c := *existing
		return &c, false
	}

	stored := *w
	s.webhooks[w.WebhookID] = &stored
	if s.byCustomer[w.CustomerID] == nil {
		s.byCustomer[w.CustomerID] = make(map[domain.EventType]*domain.Webhook)
	}
	s.byCustomer[w.CustomerID][w.Event] = &stored

	c := stored
	return &c, true
}

// Get retrieves a webhook by ID.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	c := *w
	return &c, nil
}

// ListByCustomer returns a customer's subscriptions ordered by event.
func (s *WebhookStore) ListByCustomer(customerID string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byCustomer[customerID]
	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		c := *w
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *domain.Webhook) int {
		return strings.Compare(string(a.Event), string(b.Event))
	})
	return result
}

// Delete removes a webhook by ID from both indexes.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, id)

	if events, ok := s.byCustomer[w.CustomerID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byCustomer, w.CustomerID)
		}
	}
	return nil
}

// GetByCustomerEvent returns the subscription for a customer+event pair,
// or nil if there is none.
func (s *WebhookStore) GetByCustomerEvent(customerID string, event domain.EventType) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byCustomer[customerID][event]
	if !ok {
		return nil
	}
	c := *w
	return &c
}
