// Package reconcile waits for a PENDING order to reach a terminal status,
// combining periodic polling with push signals from the webhook.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout/api/internal/asaas"
	"checkout/api/internal/logger"
	"checkout/api/internal/order"
	"checkout/api/internal/repository"
)

// SourcePoll marks status changes written by a provider pull.
const SourcePoll = "poll"

// Result is how a watch ended.
type Result string

const (
	ResultPaid      Result = "PAID"
	ResultDenied    Result = "DENIED"
	ResultTimeout   Result = "TIMEOUT"
	ResultCancelled Result = "CANCELLED"
)

// ErrOrderNotFound is returned when the watched order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Outcome is the final state observed by Watch. Order is the last copy read
// from storage.
type Outcome struct {
	Result Result
	Order  *order.Order
}

// Store is what the loop reads and, when pulling from the provider, writes.
type Store interface {
	OrderByID(ctx context.Context, id int64) (*order.Order, error)
	ApplyStatus(ctx context.Context, id int64, to order.Status, change repository.StatusChange) (bool, error)
}

// ChargeFetcher pulls the provider's view of a charge.
type ChargeFetcher interface {
	GetCharge(ctx context.Context, chargeID string) (*asaas.Charge, error)
}

// Loop watches orders until they settle.
type Loop struct {
	store    Store
	hub      *Hub
	charges  ChargeFetcher
	interval time.Duration
	timeout  time.Duration
}

// NewLoop builds a loop. charges may be nil, in which case only storage is
// polled and the webhook is the sole writer.
func NewLoop(store Store, hub *Hub, charges ChargeFetcher, interval, timeout time.Duration) *Loop {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Loop{store: store, hub: hub, charges: charges, interval: interval, timeout: timeout}
}

// Watch blocks until orderID is PAID or DENIED, the loop's ceiling elapses
// (ResultTimeout, no error) or ctx is done (ResultCancelled and ctx.Err()).
func (l *Loop) Watch(ctx context.Context, orderID int64) (Outcome, error) {
	var signals <-chan struct{}
	if l.hub != nil {
		ch, unsubscribe := l.hub.Subscribe(orderID)
		defer unsubscribe()
		signals = ch
	}

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	last, done, err := l.check(ctx, orderID, true)
	if err != nil || done {
		return last, err
	}

	for {
		pull := false
		select {
		case <-ctx.Done():
			logger.Infof("[RECONCILE] Pedido %d: acompanhamento cancelado", orderID)
			last.Result = ResultCancelled
			return last, ctx.Err()
		case <-deadline.C:
			logger.Warnf("[RECONCILE] Pedido %d: sem confirmação após %s", orderID, l.timeout)
			last.Result = ResultTimeout
			return last, nil
		case <-ticker.C:
			pull = true
		case <-signals:
		}

		out, done, err := l.check(ctx, orderID, pull)
		if err != nil {
			if ctx.Err() != nil {
				last.Result = ResultCancelled
				return last, ctx.Err()
			}
			return out, err
		}
		last = out
		if done {
			return out, nil
		}
	}
}

// check re-reads the order. When pull is set and the order is still PENDING
// with a charge, the provider is asked as well and a decisive answer is
// written through the monotonic update.
func (l *Loop) check(ctx context.Context, orderID int64, pull bool) (Outcome, bool, error) {
	o, err := l.store.OrderByID(ctx, orderID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if o == nil {
		return Outcome{}, false, ErrOrderNotFound
	}
	if out, done := settled(o); done {
		return out, true, nil
	}

	if !pull || l.charges == nil || o.ChargeID == "" {
		return Outcome{Order: o}, false, nil
	}

	ch, err := l.charges.GetCharge(ctx, o.ChargeID)
	if err != nil {
		logger.Warnf("[RECONCILE] Pedido %d: erro ao consultar cobrança %s: %v", orderID, o.ChargeID, err)
		return Outcome{Order: o}, false, nil
	}
	status := order.ResolveStatus(ch.Status)
	if !status.IsTerminal() {
		return Outcome{Order: o}, false, nil
	}

	applied, err := l.store.ApplyStatus(ctx, orderID, status, repository.StatusChange{
		Reason:   ch.Status,
		Source:   SourcePoll,
		ChargeID: o.ChargeID,
	})
	if err != nil {
		return Outcome{}, false, fmt.Errorf("apply polled status to order %d: %w", orderID, err)
	}
	if applied {
		logger.Infof("[RECONCILE] Pedido %d: %s pela consulta ao provedor (%s)", orderID, status, ch.Status)
		if l.hub != nil {
			l.hub.Publish(orderID)
		}
	}

	o, err = l.store.OrderByID(ctx, orderID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("reload order %d: %w", orderID, err)
	}
	if o == nil {
		return Outcome{}, false, ErrOrderNotFound
	}
	out, done := settled(o)
	return out, done, nil
}

func settled(o *order.Order) (Outcome, bool) {
	switch order.ResolveStatus(string(o.Status)) {
	case order.StatusPaid:
		return Outcome{Result: ResultPaid, Order: o}, true
	case order.StatusDenied:
		return Outcome{Result: ResultDenied, Order: o}, true
	}
	return Outcome{Order: o}, false
}
