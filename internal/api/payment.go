package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"checkout/api/internal/logger"
	"checkout/api/internal/order"
	"checkout/api/internal/reconcile"
)

// GetPaymentStatus handles GET /v1/payment/status?orderId=xxx
// Frontend polls this to check if PIX was paid. The answer comes from the
// local database only, so "paid" is never shown before a writer stored it.
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, ok := parseOrderID(r.URL.Query().Get("orderId"))
	if !ok {
		respondError(w, http.StatusBadRequest, "orderId é obrigatório")
		return
	}

	o, err := h.store.OrderByID(r.Context(), id)
	if err != nil {
		logger.Errorf("[STATUS] Erro ao carregar pedido %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "erro ao consultar pedido")
		return
	}
	if o == nil {
		respondError(w, http.StatusNotFound, "pedido não encontrado")
		return
	}

	status := order.ResolveStatus(string(o.Status))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  status,
		"paid":    status == order.StatusPaid,
	})
}

// WaitPayment handles GET /v1/payment/wait?orderId=xxx
// Long-poll: blocks until the order settles, the reconciliation ceiling is
// reached or the client disconnects.
func (h *Handler) WaitPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, ok := parseOrderID(r.URL.Query().Get("orderId"))
	if !ok {
		respondError(w, http.StatusBadRequest, "orderId é obrigatório")
		return
	}

	// the server's WriteTimeout is shorter than a watch
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(h.cfg.PollTimeout + 30*time.Second)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warnf("[RECONCILE] Não foi possível estender o prazo de escrita: %v", err)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.watches, cancel)
	defer stop()

	out, err := h.loop.Watch(ctx, id)
	switch {
	case errors.Is(err, reconcile.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "pedido não encontrado")
		return
	case err != nil && ctx.Err() != nil && h.watches.Err() != nil:
		respondError(w, http.StatusServiceUnavailable, "servidor reiniciando, tente novamente")
		return
	case out.Result == reconcile.ResultCancelled:
		// client went away; nobody is listening for the answer
		return
	case err != nil:
		logger.Errorf("[RECONCILE] Erro ao acompanhar pedido %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "erro ao consultar pedido")
		return
	}

	body := map[string]interface{}{
		"success": true,
		"result":  out.Result,
		"paid":    out.Result == reconcile.ResultPaid,
	}
	if out.Order != nil {
		body["status"] = out.Order.Status
		body["order"] = out.Order
	}
	respondJSON(w, http.StatusOK, body)
}
