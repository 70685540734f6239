package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"checkout/api/internal/logger"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "DEDUP_GRACE", "POLL_INTERVAL", "POLL_TIMEOUT", "CORS_ORIGINS", "ASAAS_BASE_URL"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./data/checkout.db", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.DedupGrace)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, defaultAsaasBaseURL, cfg.AsaasBaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEDUP_GRACE", "500ms")
	t.Setenv("POLL_TIMEOUT", "not-a-duration")
	t.Setenv("CORS_ORIGINS", "https://loja.com, https://admin.loja.com ,")
	t.Setenv("ASAAS_BASE_URL", "https://api.asaas.com/v3/")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.DedupGrace)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout, "valor inválido deve cair no padrão")
	assert.Equal(t, []string{"https://loja.com", "https://admin.loja.com"}, cfg.CORSOrigins)
	assert.Equal(t, "https://api.asaas.com/v3", cfg.AsaasBaseURL)
}

func TestLoadWarnsOnInsecureDefaults(t *testing.T) {
	tests := []struct {
		name      string
		jwt       string
		token     string
		wantJWT   bool
		wantToken bool
	}{
		{"sem segredos", "", "", true, true},
		{"sem token do webhook", "segredo", "", false, true},
		{"tudo configurado", "segredo", "tok", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger.SetOutput(&buf)
			t.Cleanup(func() { logger.SetOutput(os.Stdout) })
			t.Setenv("JWT_SECRET", tt.jwt)
			t.Setenv("ASAAS_WEBHOOK_TOKEN", tt.token)

			Load()

			assert.Equal(t, tt.wantJWT, bytes.Contains(buf.Bytes(), []byte("JWT_SECRET")))
			assert.Equal(t, tt.wantToken, bytes.Contains(buf.Bytes(), []byte("ASAAS_WEBHOOK_TOKEN")))
		})
	}
}
