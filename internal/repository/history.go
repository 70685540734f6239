package repository

import (
	"context"
	"database/sql"
	"time"

	"checkout/api/internal/order"

	"github.com/google/uuid"
)

// StatusChange is one row of the order status audit trail.
type StatusChange struct {
	ID        string
	OrderID   int64
	OldStatus order.Status
	NewStatus order.Status
	Reason    string
	Source    string // pipeline, charge, webhook, poll, admin, cli
	ChargeID  string
	CreatedAt time.Time
}

// RecordStatusChange logs an order status transition for audit purposes.
func RecordStatusChange(ctx context.Context, q DBTX, c StatusChange) error {
	id := uuid.New().String()
	_, err := q.ExecContext(ctx,
		`INSERT INTO order_status_history (id, order_id, old_status, new_status, reason, source, charge_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.OrderID, nullString(string(c.OldStatus)), string(c.NewStatus), nullString(c.Reason), c.Source, nullString(c.ChargeID), formatTime(time.Now()),
	)
	return err
}

// StatusHistory lists the audit trail of an order, oldest first.
func StatusHistory(ctx context.Context, q DBTX, orderID int64) ([]StatusChange, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, old_status, new_status, reason, source, charge_id, created_at FROM order_status_history WHERE order_id = ? ORDER BY created_at, rowid`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []StatusChange
	for rows.Next() {
		var (
			c                           StatusChange
			oldStatus, reason, chargeID sql.NullString
			newStatus, createdAt        string
		)
		if err := rows.Scan(&c.ID, &c.OrderID, &oldStatus, &newStatus, &reason, &c.Source, &chargeID, &createdAt); err != nil {
			return nil, err
		}
		c.OldStatus = order.Status(oldStatus.String)
		c.NewStatus = order.Status(newStatus)
		c.Reason = reason.String
		c.ChargeID = chargeID.String
		c.CreatedAt = parseTime(createdAt)
		list = append(list, c)
	}
	return list, rows.Err()
}
