package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"checkout/api/internal/checkout"
	"checkout/api/internal/config"
	"checkout/api/internal/middleware"
	"checkout/api/internal/reconcile"
	"checkout/api/internal/repository"
	"checkout/api/internal/webhook"
)

// Handler provides the REST endpoints of the checkout service.
type Handler struct {
	cfg      *config.Config
	store    *repository.Store
	checkout *checkout.Service
	loop     *reconcile.Loop
	ingestor *webhook.Ingestor
	hub      *reconcile.Hub
	limiter  *middleware.RateLimiter

	watches     context.Context
	stopWatches context.CancelFunc
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	cfg *config.Config,
	store *repository.Store,
	svc *checkout.Service,
	loop *reconcile.Loop,
	ingestor *webhook.Ingestor,
	hub *reconcile.Hub,
) *Handler {
	watches, stopWatches := context.WithCancel(context.Background())
	return &Handler{
		cfg:         cfg,
		store:       store,
		checkout:    svc,
		loop:        loop,
		ingestor:    ingestor,
		hub:         hub,
		limiter:     middleware.NewRateLimiter(cfg.CheckoutRateLimit),
		watches:     watches,
		stopWatches: stopWatches,
	}
}

// StopWatches ends every running payment long-poll with 503 and makes new
// ones fail the same way. Other requests are not affected.
func (h *Handler) StopWatches() { h.stopWatches() }

// Limiter exposes the checkout rate limiter so main can prune it.
func (h *Handler) Limiter() *middleware.RateLimiter { return h.limiter }

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/v1/checkout", h.limiter.Wrap(http.HandlerFunc(h.CreateCheckout)))
	mux.HandleFunc("/v1/payment/status", h.GetPaymentStatus)
	mux.HandleFunc("/v1/payment/wait", h.WaitPayment)
	mux.HandleFunc("/v1/webhook/asaas", h.HandleWebhook)

	mux.HandleFunc("/v1/admin/login", h.AdminLogin)
	mux.HandleFunc("/v1/admin/orders", h.AdminListOrders)
	mux.HandleFunc("/v1/admin/orders/status", h.AdminSetStatus)
	mux.HandleFunc("/v1/admin/orders/retry-charge", h.AdminRetryCharge)
	mux.HandleFunc("/v1/admin/orders/history", h.AdminOrderHistory)

	mux.HandleFunc("/healthz", h.Health)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// parseOrderID reads a positive integer order id.
func parseOrderID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return id, err == nil && id > 0
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
