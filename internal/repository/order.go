package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"checkout/api/internal/order"

	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer_name, customer_email, customer_cpf, customer_phone, customer_address,
	product_id, product_name, price, is_digital_product, payment_method, payment_status,
	payment_id, charge_id, card_brand, card_last4, card_expiry,
	qr_code, qr_code_image, qr_expires_at, device_type, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                                  order.Order
		phone, address                     sql.NullString
		productID                          sql.NullInt64
		price, method, status              string
		isDigital                          int
		paymentID, chargeID                sql.NullString
		cardBrand, cardLast4, cardExpiry   sql.NullString
		qrCode, qrImage, qrExpires, device sql.NullString
		createdAt, updatedAt               string
	)
	err := row.Scan(
		&o.ID, &o.Customer.Name, &o.Customer.Email, &o.Customer.CPF, &phone, &address,
		&productID, &o.ProductName, &price, &isDigital, &method, &status,
		&paymentID, &chargeID, &cardBrand, &cardLast4, &cardExpiry,
		&qrCode, &qrImage, &qrExpires, &device, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Customer.Phone = phone.String
	if address.Valid && address.String != "" {
		var a order.Address
		if err := json.Unmarshal([]byte(address.String), &a); err != nil {
			return nil, fmt.Errorf("decode address of order %d: %w", o.ID, err)
		}
		o.Customer.Address = &a
	}
	o.ProductID = productID.Int64
	o.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decode price of order %d: %w", o.ID, err)
	}
	o.IsDigitalProduct = isDigital == 1
	o.Method = order.Method(method)
	o.Status = order.ResolveStatus(status)
	o.PaymentID = paymentID.String
	o.ChargeID = chargeID.String
	if cardLast4.Valid {
		o.Card = &order.CardDetails{Brand: cardBrand.String, Last4: cardLast4.String, Expiry: cardExpiry.String}
	}
	if qrCode.Valid || qrImage.Valid {
		o.Pix = &order.PixDetails{QRCode: qrCode.String, QRCodeImage: qrImage.String}
		if qrExpires.Valid {
			o.Pix.ExpirationDate = parseTime(qrExpires.String)
		}
	}
	o.DeviceType = order.DeviceType(device.String)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

// InsertOrder stores o and fills in its ID and timestamps. When another row
// already holds the same payment_id or charge_id nothing is written and
// inserted is false; the caller is expected to look the winner up.
func InsertOrder(ctx context.Context, q DBTX, o *order.Order) (inserted bool, err error) {
	if err := o.Validate(); err != nil {
		return false, err
	}
	now := time.Now()
	var address sql.NullString
	if o.Customer.Address != nil {
		b, err := json.Marshal(o.Customer.Address)
		if err != nil {
			return false, fmt.Errorf("encode address: %w", err)
		}
		address = sql.NullString{String: string(b), Valid: true}
	}
	var cardBrand, cardLast4, cardExpiry sql.NullString
	if o.Card != nil {
		cardBrand, cardLast4, cardExpiry = nullString(o.Card.Brand), nullString(o.Card.Last4), nullString(o.Card.Expiry)
	}
	var qrCode, qrImage, qrExpires sql.NullString
	if o.Pix != nil {
		qrCode, qrImage = nullString(o.Pix.QRCode), nullString(o.Pix.QRCodeImage)
		if !o.Pix.ExpirationDate.IsZero() {
			qrExpires = nullString(formatTime(o.Pix.ExpirationDate))
		}
	}
	device := o.DeviceType
	if device == "" {
		device = order.DeviceDesktop
	}
	status := o.Status
	if status == "" {
		status = order.StatusPending
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO orders (
			customer_name, customer_email, customer_cpf, customer_phone, customer_address,
			product_id, product_name, price, is_digital_product, payment_method, payment_status,
			payment_id, charge_id, card_brand, card_last4, card_expiry,
			qr_code, qr_code_image, qr_expires_at, device_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		o.Customer.Name, o.Customer.Email, o.Customer.CPF, nullString(o.Customer.Phone), address,
		sql.NullInt64{Int64: o.ProductID, Valid: o.ProductID != 0}, o.ProductName, o.Price.String(),
		boolInt(o.IsDigitalProduct), string(o.Method), string(status),
		nullString(o.PaymentID), nullString(o.ChargeID), cardBrand, cardLast4, cardExpiry,
		qrCode, qrImage, qrExpires, string(device), formatTime(now), formatTime(now),
	)
	if err != nil {
		return false, err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if ra == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	o.ID = id
	o.Status = status
	o.DeviceType = device
	o.CreatedAt = parseTime(formatTime(now))
	o.UpdatedAt = o.CreatedAt
	return true, nil
}

// OrderByID returns nil, nil when no order has the given id.
func OrderByID(ctx context.Context, q DBTX, id int64) (*order.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// OrderByChargeID returns nil, nil when no order is linked to chargeID.
func OrderByChargeID(ctx context.Context, q DBTX, chargeID string) (*order.Order, error) {
	if chargeID == "" {
		return nil, nil
	}
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE charge_id = ?`, chargeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// FindOrderByPaymentOrCharge looks an order up by attempt id or provider charge
// id, whichever is set. Returns nil, nil when neither matches.
func FindOrderByPaymentOrCharge(ctx context.Context, q DBTX, paymentID, chargeID string) (*order.Order, error) {
	if paymentID == "" && chargeID == "" {
		return nil, nil
	}
	var conds []string
	var args []any
	if paymentID != "" {
		conds = append(conds, "payment_id = ?")
		args = append(args, paymentID)
	}
	if chargeID != "" {
		conds = append(conds, "charge_id = ?")
		args = append(args, chargeID)
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(conds, " OR ") + ` ORDER BY id LIMIT 1`
	o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// TransitionOrderStatus moves a PENDING order to a terminal status. Terminal
// orders and PENDING targets are left untouched (applied == false), which
// keeps concurrent webhook and poll writers from ever regressing a status.
func TransitionOrderStatus(ctx context.Context, q DBTX, id int64, to order.Status) (applied bool, err error) {
	if !to.IsTerminal() {
		return false, nil
	}
	res, err := q.ExecContext(ctx,
		`UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ? AND payment_status = 'PENDING'`,
		string(to), formatTime(time.Now()), id,
	)
	if err != nil {
		return false, err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return ra == 1, nil
}

// CorrectOrderStatus is the administrative variant: it may swap one terminal
// status for another but, like TransitionOrderStatus, never writes PENDING.
func CorrectOrderStatus(ctx context.Context, q DBTX, id int64, to order.Status) (applied bool, err error) {
	if !to.IsTerminal() {
		return false, nil
	}
	res, err := q.ExecContext(ctx,
		`UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ? AND payment_status <> ?`,
		string(to), formatTime(time.Now()), id, string(to),
	)
	if err != nil {
		return false, err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return ra == 1, nil
}

// LinkCharge stores the provider charge id and QR snapshot on a PIX order that
// has none yet. Returns false when the order already has a charge.
func LinkCharge(ctx context.Context, q DBTX, id int64, chargeID string, pix *order.PixDetails) (bool, error) {
	var qrCode, qrImage, qrExpires sql.NullString
	if pix != nil {
		qrCode, qrImage = nullString(pix.QRCode), nullString(pix.QRCodeImage)
		if !pix.ExpirationDate.IsZero() {
			qrExpires = nullString(formatTime(pix.ExpirationDate))
		}
	}
	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET charge_id = ?,
		    qr_code = COALESCE(?, qr_code),
		    qr_code_image = COALESCE(?, qr_code_image),
		    qr_expires_at = COALESCE(?, qr_expires_at),
		    updated_at = ?
		WHERE id = ? AND payment_method = 'PIX' AND charge_id IS NULL`,
		chargeID, qrCode, qrImage, qrExpires, formatTime(time.Now()), id,
	)
	if err != nil {
		return false, err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return ra == 1, nil
}

// SetPixSnapshot fills the QR snapshot of an order already linked to chargeID
// whose snapshot is still missing. Returns false when there is nothing to fill.
func SetPixSnapshot(ctx context.Context, q DBTX, id int64, chargeID string, pix order.PixDetails) (bool, error) {
	var qrExpires sql.NullString
	if !pix.ExpirationDate.IsZero() {
		qrExpires = nullString(formatTime(pix.ExpirationDate))
	}
	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET qr_code = ?, qr_code_image = ?, qr_expires_at = ?, updated_at = ?
		WHERE id = ? AND charge_id = ? AND qr_code IS NULL`,
		pix.QRCode, nullString(pix.QRCodeImage), qrExpires, formatTime(time.Now()), id, chargeID,
	)
	if err != nil {
		return false, err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return ra == 1, nil
}

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	Method order.Method
	Status order.Status
	Limit  int
}

func ListOrders(ctx context.Context, q DBTX, f OrderFilter) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if f.Method != "" {
		query += ` AND payment_method = ?`
		args = append(args, string(f.Method))
	}
	if f.Status != "" {
		query += ` AND payment_status = ?`
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// PixOrdersAwaitingCharge returns ids of PENDING PIX orders created before
// olderThan that still have no provider charge or no QR snapshot.
func PixOrdersAwaitingCharge(ctx context.Context, q DBTX, olderThan time.Time, limit int) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE payment_method = 'PIX' AND payment_status = 'PENDING' AND (charge_id IS NULL OR qr_code IS NULL) AND created_at <= ?
		ORDER BY id LIMIT ?`,
		formatTime(olderThan), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
