package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout/api/internal/checkout"
	"checkout/api/internal/logger"
	"checkout/api/internal/order"
)

type checkoutRequest struct {
	AttemptID  string         `json:"attemptId"`
	Method     string         `json:"method"`
	BaseStatus string         `json:"baseStatus"`
	ProductID  int64          `json:"productId"`
	Customer   order.Customer `json:"customer"`
	Card       *struct {
		Number      string `json:"number"`
		ExpiryMonth string `json:"expiryMonth"`
		ExpiryYear  string `json:"expiryYear"`
		Holder      string `json:"holder"`
	} `json:"card"`
	Pix *struct {
		QRCode         string `json:"qrCode"`
		QRCodeImage    string `json:"qrCodeImage"`
		ExpirationDate string `json:"expirationDate"`
	} `json:"pix"`
	ChargeID string `json:"chargeId"`
}

// CreateCheckout handles POST /v1/checkout
// Creates the order for a payment attempt. Resubmitting the same attempt
// returns the stored order.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 65536)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo inválido")
		return
	}

	method, err := order.ParseMethod(req.Method)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "productId é obrigatório")
		return
	}

	product, err := h.store.ProductByID(r.Context(), req.ProductID)
	if err != nil {
		logger.Errorf("[CHECKOUT] Erro ao carregar produto %d: %v", req.ProductID, err)
		respondError(w, http.StatusInternalServerError, "erro ao carregar produto")
		return
	}
	if product == nil {
		respondError(w, http.StatusNotFound, "produto não encontrado")
		return
	}

	attemptID := strings.TrimSpace(req.AttemptID)
	if attemptID == "" {
		attemptID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	att := checkout.Attempt{
		ID:         attemptID,
		Method:     method,
		BaseStatus: req.BaseStatus,
		ChargeID:   req.ChargeID,
		DeviceType: order.DetectDevice(r.UserAgent()),
	}

	switch method {
	case order.MethodCard:
		if req.Card == nil {
			respondError(w, http.StatusUnprocessableEntity, "dados do cartão são obrigatórios")
			return
		}
		card, err := order.MaskCard(req.Card.Number, req.Card.ExpiryMonth, req.Card.ExpiryYear)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		att.Card = card
	case order.MethodPix:
		if req.Pix != nil && req.Pix.QRCode != "" {
			pix := &order.PixDetails{QRCode: req.Pix.QRCode, QRCodeImage: req.Pix.QRCodeImage}
			if req.Pix.ExpirationDate != "" {
				exp, err := time.Parse(time.RFC3339, req.Pix.ExpirationDate)
				if err != nil {
					respondError(w, http.StatusUnprocessableEntity, "expirationDate inválida")
					return
				}
				pix.ExpirationDate = exp
			}
			att.Pix = pix
		}
	}

	res, err := h.checkout.CreateOrder(r.Context(), att, req.Customer, *product)
	if err != nil {
		if errors.Is(err, checkout.ErrProviderIntegration) && res != nil {
			respondJSON(w, http.StatusAccepted, checkoutResponse(res, checkout.Message(err, "")))
			return
		}
		status, msg := checkoutErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Errorf("[CHECKOUT] Erro ao criar pedido: %v", err)
		}
		respondError(w, status, msg)
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	respondJSON(w, status, checkoutResponse(res, ""))
}

func checkoutResponse(res *checkout.Result, warning string) map[string]interface{} {
	body := map[string]interface{}{
		"success":  true,
		"orderId":  res.Order.ID,
		"status":   res.Status,
		"paid":     res.Status == order.StatusPaid,
		"existing": res.Existing,
		"order":    res.Order,
	}
	if res.RuleApplied != "" {
		body["rule"] = res.RuleApplied
	}
	if warning != "" {
		body["warning"] = warning
	}
	return body
}

// checkoutErrorStatus maps pipeline errors to HTTP status codes.
func checkoutErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrValidation):
		return http.StatusUnprocessableEntity, checkout.Message(err, "dados inválidos")
	case errors.Is(err, checkout.ErrNotFound):
		return http.StatusNotFound, checkout.Message(err, "pedido não encontrado")
	case errors.Is(err, checkout.ErrDuplicateAttempt):
		return http.StatusConflict, checkout.Message(err, "pagamento já está sendo processado")
	case errors.Is(err, checkout.ErrProviderDisabled):
		return http.StatusServiceUnavailable, checkout.Message(err, "pagamentos temporariamente indisponíveis")
	case errors.Is(err, checkout.ErrProviderIntegration):
		return http.StatusBadGateway, checkout.Message(err, "erro ao comunicar com o provedor de pagamento")
	default:
		return http.StatusInternalServerError, "erro ao processar pagamento"
	}
}
