package seeds

import (
	"context"
	"database/sql"
	"fmt"

	"checkout/api/internal/auth"
	"checkout/api/internal/order"
	"checkout/api/internal/repository"

	"github.com/shopspring/decimal"
)

// Admin is the administrator account created by Run.
type Admin struct {
	Email    string
	Password string
}

// Run clears seed-related data and inserts fresh seed data.
// Safe to run multiple times (resets to seed state).
func Run(ctx context.Context, db *sql.DB, admin Admin) error {
	if err := clear(ctx, db); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := insert(ctx, db, admin); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func clear(ctx context.Context, db *sql.DB) error {
	tables := []string{
		"order_status_history", "webhook_events", "orders",
		"products", "admins",
	}
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("delete %s: %w", t, err)
		}
	}
	return nil
}

func insert(ctx context.Context, db *sql.DB, admin Admin) error {
	// Sandbox defaults: provider on, both methods allowed, manual card review.
	settings := repository.Settings{
		AsaasEnabled:         true,
		AllowCreditCard:      true,
		AllowPix:             true,
		ManualCardProcessing: false,
		ManualCardStatus:     "ANALYSIS",
		SandboxMode:          true,
	}
	if err := repository.SaveSettings(ctx, db, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	products := []order.Product{
		{Name: "E-book Receitas Fit", Slug: "ebook-receitas-fit", Price: decimal.RequireFromString("29.90"), IsDigital: true},
		{Name: "Curso Online de Fotografia", Slug: "curso-fotografia", Price: decimal.RequireFromString("197.00"), IsDigital: true},
		{Name: "Kit Camisetas Básicas", Slug: "kit-camisetas", Price: decimal.RequireFromString("89.90")},
		{Name: "Mentoria Individual", Slug: "mentoria-individual", Price: decimal.RequireFromString("497.00"), IsDigital: true,
			OverrideGlobalStatus: true, CustomManualStatus: "PENDING"},
		{Name: "Assinatura Anual", Slug: "assinatura-anual", Price: decimal.RequireFromString("358.80"), IsDigital: true,
			OverrideGlobalStatus: true, CustomManualStatus: "APPROVED"},
	}
	for i := range products {
		if err := repository.CreateProduct(ctx, db, &products[i]); err != nil {
			return fmt.Errorf("insert product %s: %w", products[i].Slug, err)
		}
	}

	if admin.Email == "" {
		return nil
	}
	passwordHash, err := auth.HashPassword(admin.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := repository.UpsertAdmin(ctx, db, admin.Email, passwordHash); err != nil {
		return fmt.Errorf("insert admin %s: %w", admin.Email, err)
	}
	return nil
}
