package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"checkout/api/internal/auth"
	"checkout/api/internal/logger"
	"checkout/api/internal/middleware"
	"checkout/api/internal/order"
	"checkout/api/internal/repository"
)

// SourceAdmin marks status changes made by an administrator.
const SourceAdmin = "admin"

// requireAdmin writes 401 and returns "" when the request is anonymous.
func requireAdmin(w http.ResponseWriter, r *http.Request) string {
	adminID := middleware.AdminID(r.Context())
	if adminID == "" {
		respondError(w, http.StatusUnauthorized, "não autenticado")
	}
	return adminID
}

// AdminLogin handles POST /v1/admin/login
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}

	admin, err := h.store.AdminByEmail(r.Context(), req.Email)
	if err != nil {
		logger.Errorf("[ADMIN] Erro ao buscar admin: %v", err)
		respondError(w, http.StatusInternalServerError, "erro ao autenticar")
		return
	}
	if admin == nil || !auth.CheckPassword(admin.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "email ou senha inválidos")
		return
	}

	token, err := auth.IssueToken(h.cfg.JWTSecret, admin.ID, admin.Email)
	if err != nil {
		logger.Errorf("[ADMIN] Erro ao gerar token: %v", err)
		respondError(w, http.StatusInternalServerError, "erro ao autenticar")
		return
	}
	logger.Infof("[ADMIN] Login de %s", admin.Email)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"token":     token,
		"expiresAt": time.Now().Add(auth.TokenTTL).UTC().Format(time.RFC3339),
	})
}

// AdminSetStatus handles POST /v1/admin/orders/status
// Forces a terminal status. PENDING can never be set by hand.
func (h *Handler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	adminID := requireAdmin(w, r)
	if adminID == "" {
		return
	}

	var req struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if req.OrderID <= 0 {
		respondError(w, http.StatusBadRequest, "orderId é obrigatório")
		return
	}
	status := order.ResolveStatus(req.Status)
	if !status.IsTerminal() {
		respondError(w, http.StatusUnprocessableEntity, "status deve ser PAID ou DENIED")
		return
	}

	applied, err := h.store.CorrectStatus(r.Context(), req.OrderID, status, repository.StatusChange{
		Reason: fmt.Sprintf("ajuste manual (%s)", req.Status),
		Source: SourceAdmin,
	})
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "pedido não encontrado")
		return
	}
	if err != nil {
		logger.Errorf("[ADMIN] Erro ao alterar status do pedido %d: %v", req.OrderID, err)
		respondError(w, http.StatusInternalServerError, "erro ao alterar status")
		return
	}
	if applied {
		logger.Infof("[ADMIN] Admin %s alterou pedido %d para %s", adminID, req.OrderID, status)
		h.hub.Publish(req.OrderID)
	}

	o, err := h.store.OrderByID(r.Context(), req.OrderID)
	if err != nil || o == nil {
		respondError(w, http.StatusInternalServerError, "erro ao consultar pedido")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"applied": applied,
		"order":   o,
	})
}

// AdminRetryCharge handles POST /v1/admin/orders/retry-charge
func (h *Handler) AdminRetryCharge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if requireAdmin(w, r) == "" {
		return
	}

	var req struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil || req.OrderID <= 0 {
		respondError(w, http.StatusBadRequest, "orderId é obrigatório")
		return
	}

	o, err := h.checkout.RegisterCharge(r.Context(), req.OrderID)
	if err != nil {
		status, msg := checkoutErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Errorf("[ADMIN] Erro ao gerar cobrança do pedido %d: %v", req.OrderID, err)
		}
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": o})
}

// AdminListOrders handles GET /v1/admin/orders?method=&status=&limit=
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if requireAdmin(w, r) == "" {
		return
	}

	q := r.URL.Query()
	var f repository.OrderFilter
	if m := q.Get("method"); m != "" {
		method, err := order.ParseMethod(m)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Method = method
	}
	if s := q.Get("status"); s != "" {
		f.Status = order.ResolveStatus(s)
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit inválido")
			return
		}
		f.Limit = n
	}

	orders, err := h.store.ListOrders(r.Context(), f)
	if err != nil {
		logger.Errorf("[ADMIN] Erro ao listar pedidos: %v", err)
		respondError(w, http.StatusInternalServerError, "erro ao listar pedidos")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "orders": orders})
}

// AdminOrderHistory handles GET /v1/admin/orders/history?orderId=
func (h *Handler) AdminOrderHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if requireAdmin(w, r) == "" {
		return
	}
	id, ok := parseOrderID(r.URL.Query().Get("orderId"))
	if !ok {
		respondError(w, http.StatusBadRequest, "orderId é obrigatório")
		return
	}

	history, err := h.store.StatusHistory(r.Context(), id)
	if err != nil {
		logger.Errorf("[ADMIN] Erro ao listar histórico do pedido %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "erro ao listar histórico")
		return
	}
	type entry struct {
		OldStatus order.Status `json:"oldStatus,omitempty"`
		NewStatus order.Status `json:"newStatus"`
		Reason    string       `json:"reason,omitempty"`
		Source    string       `json:"source"`
		ChargeID  string       `json:"chargeId,omitempty"`
		CreatedAt time.Time    `json:"createdAt"`
	}
	entries := make([]entry, 0, len(history))
	for _, c := range history {
		entries = append(entries, entry{c.OldStatus, c.NewStatus, c.Reason, c.Source, c.ChargeID, c.CreatedAt})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "history": entries})
}
