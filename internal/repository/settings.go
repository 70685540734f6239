package repository

import (
	"context"
	"time"
)

// Settings is the single-row checkout configuration managed by the store admin.
type Settings struct {
	AsaasEnabled         bool
	AllowCreditCard      bool
	AllowPix             bool
	ManualCardProcessing bool
	ManualCardStatus     string
	SandboxMode          bool
}

func GetSettings(ctx context.Context, q DBTX) (*Settings, error) {
	var s Settings
	var enabled, card, pix, manual, sandbox int
	err := q.QueryRowContext(ctx, `
		SELECT asaas_enabled, allow_credit_card, allow_pix, manual_card_processing, manual_card_status, sandbox_mode
		FROM settings WHERE id = 1`,
	).Scan(&enabled, &card, &pix, &manual, &s.ManualCardStatus, &sandbox)
	if err != nil {
		return nil, err
	}
	s.AsaasEnabled = enabled == 1
	s.AllowCreditCard = card == 1
	s.AllowPix = pix == 1
	s.ManualCardProcessing = manual == 1
	s.SandboxMode = sandbox == 1
	return &s, nil
}

func SaveSettings(ctx context.Context, q DBTX, s Settings) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (id, asaas_enabled, allow_credit_card, allow_pix, manual_card_processing, manual_card_status, sandbox_mode, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			asaas_enabled = excluded.asaas_enabled,
			allow_credit_card = excluded.allow_credit_card,
			allow_pix = excluded.allow_pix,
			manual_card_processing = excluded.manual_card_processing,
			manual_card_status = excluded.manual_card_status,
			sandbox_mode = excluded.sandbox_mode,
			updated_at = excluded.updated_at`,
		boolInt(s.AsaasEnabled), boolInt(s.AllowCreditCard), boolInt(s.AllowPix),
		boolInt(s.ManualCardProcessing), s.ManualCardStatus, boolInt(s.SandboxMode), formatTime(time.Now()),
	)
	return err
}
