package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout/api/internal/order"
)

// Store binds the query functions to a database handle so services can depend
// on narrow interfaces instead of *sql.DB.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Settings(ctx context.Context) (*Settings, error) {
	return GetSettings(ctx, s.db)
}

func (s *Store) ProductByID(ctx context.Context, id int64) (*order.Product, error) {
	return ProductByID(ctx, s.db, id)
}

func (s *Store) FindOrder(ctx context.Context, paymentID, chargeID string) (*order.Order, error) {
	return FindOrderByPaymentOrCharge(ctx, s.db, paymentID, chargeID)
}

func (s *Store) InsertOrder(ctx context.Context, o *order.Order) (bool, error) {
	return InsertOrder(ctx, s.db, o)
}

func (s *Store) OrderByID(ctx context.Context, id int64) (*order.Order, error) {
	return OrderByID(ctx, s.db, id)
}

func (s *Store) OrderByChargeID(ctx context.Context, chargeID string) (*order.Order, error) {
	return OrderByChargeID(ctx, s.db, chargeID)
}

func (s *Store) LinkCharge(ctx context.Context, id int64, chargeID string, pix *order.PixDetails) (bool, error) {
	return LinkCharge(ctx, s.db, id, chargeID, pix)
}

func (s *Store) RecordStatusChange(ctx context.Context, c StatusChange) error {
	return RecordStatusChange(ctx, s.db, c)
}

func (s *Store) StatusHistory(ctx context.Context, orderID int64) ([]StatusChange, error) {
	return StatusHistory(ctx, s.db, orderID)
}

func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]order.Order, error) {
	return ListOrders(ctx, s.db, f)
}

func (s *Store) SetPixSnapshot(ctx context.Context, id int64, chargeID string, pix order.PixDetails) (bool, error) {
	return SetPixSnapshot(ctx, s.db, id, chargeID, pix)
}

func (s *Store) PixOrdersAwaitingCharge(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	return PixOrdersAwaitingCharge(ctx, s.db, olderThan, limit)
}

// ApplyStatus moves a PENDING order to a terminal status and records the
// change in the same transaction. applied is false when the order was already
// terminal or to is PENDING.
func (s *Store) ApplyStatus(ctx context.Context, id int64, to order.Status, change StatusChange) (applied bool, err error) {
	return s.updateStatus(ctx, id, to, change, TransitionOrderStatus)
}

// CorrectStatus is ApplyStatus for administrators: terminal statuses may be
// swapped, PENDING is still never written.
func (s *Store) CorrectStatus(ctx context.Context, id int64, to order.Status, change StatusChange) (applied bool, err error) {
	return s.updateStatus(ctx, id, to, change, CorrectOrderStatus)
}

func (s *Store) updateStatus(
	ctx context.Context, id int64, to order.Status, change StatusChange,
	update func(context.Context, DBTX, int64, order.Status) (bool, error),
) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := OrderByID(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, sql.ErrNoRows
	}
	applied, err := update(ctx, tx, id, to)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	change.OrderID = id
	change.OldStatus = current.Status
	change.NewStatus = to
	if err := RecordStatusChange(ctx, tx, change); err != nil {
		return false, fmt.Errorf("record status change: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// WebhookEventProcessed, InsertWebhookEvent and MarkWebhookEventProcessed are
// the idempotency log for provider deliveries.
func (s *Store) WebhookEventProcessed(ctx context.Context, eventID string) bool {
	return WebhookEventProcessed(ctx, s.db, eventID)
}

func (s *Store) InsertWebhookEvent(ctx context.Context, eventID, eventType, chargeID string) error {
	return InsertWebhookEvent(ctx, s.db, eventID, eventType, chargeID)
}

func (s *Store) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	return MarkWebhookEventProcessed(ctx, s.db, eventID)
}

func (s *Store) AdminByEmail(ctx context.Context, email string) (*AdminRow, error) {
	return AdminByEmail(ctx, s.db, email)
}
