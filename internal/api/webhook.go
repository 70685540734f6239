package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"checkout/api/internal/logger"
	"checkout/api/internal/webhook"
)

// webhookPayload accepts both the plain {chargeId, status} body and the
// Asaas event body {id, event, payment: {id, status}}.
type webhookPayload struct {
	ID       string `json:"id"`
	Event    string `json:"event"`
	ChargeID string `json:"chargeId"`
	Status   string `json:"status"`
	Payment  *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
}

func (p webhookPayload) notification() webhook.Notification {
	n := webhook.Notification{EventID: p.ID, Event: p.Event, ChargeID: p.ChargeID, RawStatus: p.Status}
	if p.Payment != nil {
		if p.Payment.ID != "" {
			n.ChargeID = p.Payment.ID
		}
		if p.Payment.Status != "" {
			n.RawStatus = p.Payment.Status
		}
	}
	return n
}

// HandleWebhook handles POST /v1/webhook/asaas
// Verifies the access token (when configured) and hands the notification to
// the ingestor. Unknown charges are acknowledged so the provider stops
// retrying.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if token := h.cfg.AsaasWebhookToken; token != "" {
		got := r.Header.Get("asaas-access-token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warnf("[WEBHOOK] Token de acesso inválido de %s", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "token inválido")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		logger.Errorf("[WEBHOOK] Erro ao ler corpo: %v", err)
		respondError(w, http.StatusBadRequest, "erro ao ler corpo")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warnf("[WEBHOOK] Erro ao parsear payload: %v", err)
		respondError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	n := payload.notification()
	logger.Debugf("[WEBHOOK] Evento recebido: id=%s event=%s charge=%s status=%s", n.EventID, n.Event, n.ChargeID, n.RawStatus)

	res, err := h.ingestor.Ingest(r.Context(), n)
	if errors.Is(err, webhook.ErrMalformed) {
		respondError(w, http.StatusBadRequest, "chargeId é obrigatório")
		return
	}
	if err != nil {
		logger.Errorf("[WEBHOOK] Erro ao processar cobrança %s: %v", n.ChargeID, err)
		respondError(w, http.StatusInternalServerError, "erro ao processar webhook")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"received":  true,
		"matched":   res.Matched,
		"applied":   res.Applied,
		"duplicate": res.Duplicate,
		"status":    res.Status,
	})
}
