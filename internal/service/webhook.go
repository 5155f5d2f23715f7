package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/events"
	"github.com/efreitasn/minibroker/internal/store"
)

const maxWebhookURLLength = 2048

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	CustomerID string
	URL        string
	Events     []string
}

// WebhookService manages webhook subscriptions and delivers order events
// to them.
type WebhookService struct {
	store     *store.WebhookStore
	customers store.Store
	client    *http.Client
	logger    *slog.Logger
	counter   events.Counter
	now       func() time.Time
	inflight  sync.WaitGroup
}

// NewWebhookService creates a new WebhookService. counter may be nil.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	customers store.Store,
	webhookTimeout time.Duration,
	logger *slog.Logger,
	counter events.Counter,
) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		store:     webhookStore,
		customers: customers,
		client:    &http.Client{Timeout: webhookTimeout},
		logger:    logger,
		counter:   counter,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Upsert validates the request and creates or updates one subscription per
// event. It returns the resulting webhooks and whether any was new.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest, caller Caller) ([]*domain.Webhook, bool, error) {
	customerID := req.CustomerID
	if customerID == "" {
		customerID = caller.CustomerID
	}
	if err := s.checkCustomer(ctx, customerID, caller); err != nil {
		return nil, false, err
	}
	if err := validateWebhookURL(req.URL); err != nil {
		return nil, false, err
	}
	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Field: "events", Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order.
	seen := make(map[domain.EventType]bool, len(req.Events))
	deduped := make([]domain.EventType, 0, len(req.Events))
	for _, raw := range req.Events {
		event, ok := domain.ParseEventType(raw)
		if !ok {
			return nil, false, &domain.ValidationError{
				Field:   "events",
				Message: "Unknown event type: " + raw + ". Must be one of: " + eventTypeList(),
			}
		}
		if !seen[event] {
			seen[event] = true
			deduped = append(deduped, event)
		}
	}

	now := s.now().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(deduped))
	for _, event := range deduped {
		stored, created := s.store.Upsert(&domain.Webhook{
			WebhookID:  uuid.New().String(),
			CustomerID: customerID,
			Event:      event,
			URL:        req.URL,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, stored)
	}
	return webhooks, anyCreated, nil
}

// List returns the customer's subscriptions ordered by event.
func (s *WebhookService) List(ctx context.Context, customerID string, caller Caller) ([]*domain.Webhook, error) {
	if customerID == "" {
		customerID = caller.CustomerID
	}
	if err := s.checkCustomer(ctx, customerID, caller); err != nil {
		return nil, err
	}
	return s.store.ListByCustomer(customerID), nil
}

// Delete removes a subscription the caller owns.
func (s *WebhookService) Delete(_ context.Context, webhookID string, caller Caller) error {
	w, err := s.store.Get(webhookID)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", webhookID, err)
	}
	if err := authorize(caller, w.CustomerID); err != nil {
		return err
	}
	return s.store.Delete(webhookID)
}

func (s *WebhookService) checkCustomer(ctx context.Context, customerID string, caller Caller) error {
	if customerID == "" {
		return &domain.ValidationError{Field: "customerId", Message: "customerId is required"}
	}
	if err := authorize(caller, customerID); err != nil {
		return err
	}
	_, err := s.customers.GetCustomer(ctx, customerID)
	return err
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return &domain.ValidationError{Field: "url", Message: "url is required"}
	}
	if len(raw) > maxWebhookURLLength {
		return &domain.ValidationError{Field: "url", Message: fmt.Sprintf("url must be at most %d characters", maxWebhookURLLength)}
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return &domain.ValidationError{Field: "url", Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return &domain.ValidationError{Field: "url", Message: "url must use https scheme"}
	}
	return nil
}

func eventTypeList() string {
	names := make([]string, len(domain.EventTypes))
	for i, e := range domain.EventTypes {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

// webhookPayload is the JSON body POSTed to subscribers.
type webhookPayload struct {
	Event     string              `json:"event"`
	EventID   string              `json:"event_id"`
	Timestamp string              `json:"timestamp"`
	Data      events.OrderPayload `json:"data"`
}

// Publish delivers ev to the order owner's subscription for its type, if
// any. Delivery runs in the background and never blocks the caller.
func (s *WebhookService) Publish(_ context.Context, ev domain.OrderEvent) {
	if ev.Order == nil {
		return
	}
	wh := s.store.GetByCustomerEvent(ev.Order.CustomerID, ev.Type)
	if wh == nil {
		return
	}

	payload := webhookPayload{
		Event:     string(ev.Type),
		EventID:   ev.EventID,
		Timestamp: ev.OccurredAt.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      events.NewOrderPayload(ev.Order),
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.deliver(wh, ev.Type, payload)
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (s *WebhookService) Wait() {
	s.inflight.Wait()
}

// deliver POSTs the payload with the delivery headers. Failures are logged
// and counted; there is no redelivery.
func (s *WebhookService) deliver(wh *domain.Webhook, eventType domain.EventType, payload webhookPayload) {
	err := s.post(wh, eventType, payload)
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Warn("webhook delivery failed",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
	if s.counter != nil {
		s.counter.IncEventPublished("webhook", status)
	}
}

func (s *WebhookService) post(wh *domain.Webhook, eventType domain.EventType, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", string(eventType))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("subscriber answered %d", resp.StatusCode)
	}
	return nil
}
