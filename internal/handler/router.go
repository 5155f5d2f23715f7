package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/efreitasn/minibroker/internal/metrics"
	"github.com/efreitasn/minibroker/internal/service"
)

// Services bundles the service layer the router dispatches to.
type Services struct {
	Orders    *service.OrderService
	Assets    *service.AssetService
	Customers *service.CustomerService
	Auth      *service.AuthService
	Webhooks  *service.WebhookService
}

// NewRouter creates a chi router with all routes registered, request id,
// logging, metrics, Content-Type validation and bearer authentication.
// m may be nil, in which case /metrics is not mounted.
func NewRouter(svc Services, m *metrics.Metrics, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(logger, m))
	r.Use(contentTypeJSON)

	// Create handlers.
	authH := NewAuthHandler(svc.Auth, logger)
	customerH := NewCustomerHandler(svc.Customers, logger)
	orderH := NewOrderHandler(svc.Orders, logger)
	assetH := NewAssetHandler(svc.Assets, logger)
	webhookH := NewWebhookHandler(svc.Webhooks, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authH.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(svc.Auth))

			// Admin routes.
			r.With(requireAdmin).Post("/customers", customerH.Register)
			r.With(requireAdmin).Post("/orders/match", orderH.MatchOrder)

			// Order routes.
			r.Post("/orders", orderH.CreateOrder)
			r.Get("/orders", orderH.ListOrders)
			r.Get("/orders/{order_id}", orderH.GetOrder)
			r.Delete("/orders/{order_id}", orderH.CancelOrder)

			// Asset routes.
			r.Get("/assets", assetH.ListAssets)

			// Webhook routes.
			r.Post("/webhooks", webhookH.Upsert)
			r.Get("/webhooks", webhookH.List)
			r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
		})
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, duration and request id using slog, and records the request
// in m under its route pattern.
func requestLogging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			m.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, elapsed)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", elapsed),
				slog.String("request_id", RequestIDFrom(r.Context())),
			)
		})
	}
}

// routePattern returns the matched chi pattern so metric labels stay
// bounded. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
