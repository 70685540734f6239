// Package webhook applies provider status notifications to stored orders.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"checkout/api/internal/logger"
	"checkout/api/internal/order"
	"checkout/api/internal/repository"
)

// SourceWebhook marks status changes written by provider notifications.
const SourceWebhook = "webhook"

// ErrMalformed is returned for notifications without a charge id.
var ErrMalformed = errors.New("malformed notification: missing charge id")

// Notification is one provider push.
type Notification struct {
	EventID   string
	Event     string
	ChargeID  string
	RawStatus string
}

// rawStatus falls back to the event name (PAYMENT_RECEIVED → RECEIVED) when
// the payload carries no status.
func (n Notification) rawStatus() string {
	if s := strings.TrimSpace(n.RawStatus); s != "" {
		return s
	}
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(n.Event)), "PAYMENT_")
}

// Result describes what Ingest did.
type Result struct {
	// Matched is false when no order carries the charge id.
	Matched bool
	// Applied is true when the order's status changed.
	Applied bool
	// Duplicate is true for an event id that was already processed.
	Duplicate bool
	Status    order.Status
	OrderID   int64
}

type Store interface {
	OrderByChargeID(ctx context.Context, chargeID string) (*order.Order, error)
	ApplyStatus(ctx context.Context, id int64, to order.Status, change repository.StatusChange) (bool, error)
	WebhookEventProcessed(ctx context.Context, eventID string) bool
	InsertWebhookEvent(ctx context.Context, eventID, eventType, chargeID string) error
	MarkWebhookEventProcessed(ctx context.Context, eventID string) error
}

// Publisher is notified after an order changed.
type Publisher interface {
	Publish(orderID int64)
}

type Ingestor struct {
	store Store
	hub   Publisher
}

func NewIngestor(store Store, hub Publisher) *Ingestor {
	return &Ingestor{store: store, hub: hub}
}

// Ingest resolves the notification's status and moves the matching PENDING
// order to it. Unknown charges and non-decisive statuses are acknowledged
// without changes; terminal orders are never modified.
func (i *Ingestor) Ingest(ctx context.Context, n Notification) (Result, error) {
	n.ChargeID = strings.TrimSpace(n.ChargeID)
	n.EventID = strings.TrimSpace(n.EventID)
	if n.ChargeID == "" {
		return Result{}, ErrMalformed
	}

	// Idempotency check - prevent processing same event twice
	if n.EventID != "" {
		if i.store.WebhookEventProcessed(ctx, n.EventID) {
			logger.Infof("[WEBHOOK] Evento %s já processado, ignorando.", n.EventID)
			return Result{Duplicate: true}, nil
		}
		if err := i.store.InsertWebhookEvent(ctx, n.EventID, n.Event, n.ChargeID); err != nil {
			return Result{}, fmt.Errorf("log webhook event %s: %w", n.EventID, err)
		}
	}

	raw := n.rawStatus()
	status := order.ResolveStatus(raw)

	o, err := i.store.OrderByChargeID(ctx, n.ChargeID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup charge %s: %w", n.ChargeID, err)
	}
	if o == nil {
		logger.Warnf("[WEBHOOK] Nenhum pedido para a cobrança %s (status %s)", n.ChargeID, raw)
		i.markProcessed(ctx, n.EventID)
		return Result{Status: status}, nil
	}

	res := Result{Matched: true, OrderID: o.ID, Status: o.Status}
	if status.IsTerminal() {
		applied, err := i.store.ApplyStatus(ctx, o.ID, status, repository.StatusChange{
			Reason:   raw,
			Source:   SourceWebhook,
			ChargeID: n.ChargeID,
		})
		if err != nil {
			return Result{}, fmt.Errorf("apply status to order %d: %w", o.ID, err)
		}
		if applied {
			res.Applied = true
			res.Status = status
			logger.Infof("[WEBHOOK] Pedido %d: %s -> %s (cobrança %s, %s)", o.ID, o.Status, status, n.ChargeID, raw)
			if i.hub != nil {
				i.hub.Publish(o.ID)
			}
		} else {
			logger.Infof("[WEBHOOK] Pedido %d já está %s; %s ignorado", o.ID, o.Status, raw)
		}
	} else {
		logger.Infof("[WEBHOOK] Status %s não é decisivo para o pedido %d", raw, o.ID)
	}

	i.markProcessed(ctx, n.EventID)
	return res, nil
}

func (i *Ingestor) markProcessed(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	if err := i.store.MarkWebhookEventProcessed(ctx, eventID); err != nil {
		logger.Errorf("[WEBHOOK] Erro ao marcar evento %s como processado: %v", eventID, err)
	}
}
