package webhook

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"checkout/api/internal/db"
	"checkout/api/internal/order"
	"checkout/api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu        sync.Mutex
	published []int64
}

func (h *recordingHub) Publish(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, id)
}

func setup(t *testing.T) (*repository.Store, *Ingestor, *recordingHub) {
	t.Helper()
	sqlite, err := db.OpenSQLite(filepath.Join(t.TempDir(), "webhook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	require.NoError(t, db.Migrate(sqlite))

	store := repository.NewStore(sqlite)
	hub := &recordingHub{}
	return store, NewIngestor(store, hub), hub
}

func insertPix(t *testing.T, store *repository.Store, paymentID, chargeID string, status order.Status) *order.Order {
	t.Helper()
	o := &order.Order{
		Customer:    order.Customer{Name: "João", Email: "joao@email.com", CPF: "12345678900"},
		ProductName: "Assinatura",
		Price:       decimal.NewFromInt(10),
		Method:      order.MethodPix,
		Status:      status,
		PaymentID:   paymentID,
		ChargeID:    chargeID,
	}
	inserted, err := store.InsertOrder(context.Background(), o)
	require.NoError(t, err)
	require.True(t, inserted)
	return o
}

func TestIngestAppliesDecisiveStatus(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		event     string
		want      order.Status
		wantApply bool
	}{
		{"recebido vira pago", "RECEIVED", "", order.StatusPaid, true},
		{"confirmado minúsculo", " confirmed ", "", order.StatusPaid, true},
		{"cancelado vira negado", "CANCELLED", "", order.StatusDenied, true},
		{"status pelo nome do evento", "", "PAYMENT_RECEIVED", order.StatusPaid, true},
		{"vencido não é decisivo", "OVERDUE", "", order.StatusPending, false},
		{"pendente não muda nada", "PENDING", "", order.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, ing, hub := setup(t)
			o := insertPix(t, store, "pix_1", "pay_1", order.StatusPending)

			res, err := ing.Ingest(context.Background(), Notification{ChargeID: "pay_1", RawStatus: tt.raw, Event: tt.event})
			require.NoError(t, err)
			assert.True(t, res.Matched)
			assert.Equal(t, tt.wantApply, res.Applied)
			assert.Equal(t, tt.want, res.Status)

			got, err := store.OrderByID(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			if tt.wantApply {
				assert.Equal(t, []int64{o.ID}, hub.published)
			} else {
				assert.Empty(t, hub.published)
			}
		})
	}
}

func TestIngestUnknownChargeIsAcknowledged(t *testing.T) {
	_, ing, hub := setup(t)

	res, err := ing.Ingest(context.Background(), Notification{ChargeID: "pay_unknown", RawStatus: "RECEIVED"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.False(t, res.Applied)
	assert.Empty(t, hub.published)
}

func TestIngestMalformed(t *testing.T) {
	_, ing, _ := setup(t)

	_, err := ing.Ingest(context.Background(), Notification{ChargeID: "  ", RawStatus: "RECEIVED"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIngestNeverLeavesTerminalStatus(t *testing.T) {
	store, ing, hub := setup(t)
	o := insertPix(t, store, "pix_1", "pay_1", order.StatusPending)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, Notification{ChargeID: "pay_1", RawStatus: "RECEIVED"})
	require.NoError(t, err)
	require.True(t, res.Applied)

	for _, raw := range []string{"PENDING", "CANCELLED", "REFUNDED", "CONFIRMED"} {
		res, err := ing.Ingest(ctx, Notification{ChargeID: "pay_1", RawStatus: raw})
		require.NoError(t, err)
		assert.False(t, res.Applied, "PAID must not move on %s", raw)
		assert.Equal(t, order.StatusPaid, res.Status)
	}

	got, err := store.OrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Len(t, hub.published, 1)

	history, err := store.StatusHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, SourceWebhook, history[0].Source)
	assert.Equal(t, "RECEIVED", history[0].Reason)
}

func TestIngestRedeliveredEventIsIgnored(t *testing.T) {
	store, ing, hub := setup(t)
	insertPix(t, store, "pix_1", "pay_1", order.StatusPending)
	ctx := context.Background()

	n := Notification{EventID: "evt_1", Event: "PAYMENT_RECEIVED", ChargeID: "pay_1", RawStatus: "RECEIVED"}
	first, err := ing.Ingest(ctx, n)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	again, err := ing.Ingest(ctx, n)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.False(t, again.Applied)
	assert.Len(t, hub.published, 1)
	assert.True(t, store.WebhookEventProcessed(ctx, "evt_1"))
}

func TestIngestConcurrentDeliveries(t *testing.T) {
	store, ing, hub := setup(t)
	o := insertPix(t, store, "pix_1", "pay_1", order.StatusPending)

	var wg sync.WaitGroup
	for _, raw := range []string{"RECEIVED", "CONFIRMED", "RECEIVED", "CONFIRMED"} {
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			_, err := ing.Ingest(context.Background(), Notification{ChargeID: "pay_1", RawStatus: raw})
			assert.NoError(t, err)
		}(raw)
	}
	wg.Wait()

	assert.Len(t, hub.published, 1, "exactly one writer wins the transition")
	history, err := store.StatusHistory(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
