package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
)

type AdminRow struct {
	ID           string
	Email        string
	PasswordHash string
}

// AdminByEmail returns nil, nil when no admin has that email.
func AdminByEmail(ctx context.Context, q DBTX, email string) (*AdminRow, error) {
	var a AdminRow
	err := q.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM admins WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&a.ID, &a.Email, &a.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAdmin creates the admin or replaces its password hash.
func UpsertAdmin(ctx context.Context, q DBTX, email, passwordHash string) (string, error) {
	id := uuid.New().String()
	_, err := q.ExecContext(ctx, `
		INSERT INTO admins (id, email, password_hash) VALUES (?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET password_hash = excluded.password_hash`,
		id, strings.ToLower(strings.TrimSpace(email)), passwordHash,
	)
	if err != nil {
		return "", err
	}
	a, err := AdminByEmail(ctx, q, email)
	if err != nil || a == nil {
		return "", err
	}
	return a.ID, nil
}
