package repository

import (
	"context"
	"database/sql"
	"fmt"

	"checkout/api/internal/order"

	"github.com/shopspring/decimal"
)

func scanProduct(row rowScanner) (*order.Product, error) {
	var (
		p                  order.Product
		price              string
		digital, override  int
		customManualStatus sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &price, &digital, &override, &customManualStatus); err != nil {
		return nil, err
	}
	var err error
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decode price of product %d: %w", p.ID, err)
	}
	p.IsDigital = digital == 1
	p.OverrideGlobalStatus = override == 1
	p.CustomManualStatus = customManualStatus.String
	return &p, nil
}

// ProductByID returns nil, nil when the product does not exist.
func ProductByID(ctx context.Context, q DBTX, id int64) (*order.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx,
		`SELECT id, name, slug, price, is_digital, override_global_status, custom_manual_status FROM products WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// CreateProduct inserts p and sets its ID.
func CreateProduct(ctx context.Context, q DBTX, p *order.Product) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO products (name, slug, price, is_digital, override_global_status, custom_manual_status) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Slug, p.Price.StringFixed(2), boolInt(p.IsDigital), boolInt(p.OverrideGlobalStatus), nullString(p.CustomManualStatus),
	)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}
