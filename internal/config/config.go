package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"checkout/api/internal/logger"
)

// Config holds the runtime configuration read from the environment.
type Config struct {
	Port        int
	DBPath      string
	CORSOrigins []string
	JWTSecret   string
	LogLevel    string

	AsaasAPIKey       string
	AsaasBaseURL      string
	AsaasWebhookToken string
	ProviderTimeout   time.Duration

	DedupGrace          time.Duration
	PollInterval        time.Duration
	PollTimeout         time.Duration
	ChargeRetryInterval time.Duration
	CheckoutRateLimit   float64

	SeedAdminEmail    string
	SeedAdminPassword string
}

const (
	defaultAsaasBaseURL = "https://sandbox.asaas.com/api/v3"
	defaultJWTSecret    = "dev-secret-change-me"
)

// Load builds a Config from environment variables, applying defaults for anything unset.
func Load() *Config {
	cfg := &Config{
		Port:        envInt("PORT", 8080),
		DBPath:      env("DB_PATH", "./data/checkout.db"),
		CORSOrigins: envList("CORS_ORIGINS", []string{"*"}),
		JWTSecret:   env("JWT_SECRET", defaultJWTSecret),
		LogLevel:    env("LOG_LEVEL", "info"),

		AsaasAPIKey:       os.Getenv("ASAAS_API_KEY"),
		AsaasBaseURL:      strings.TrimRight(env("ASAAS_BASE_URL", defaultAsaasBaseURL), "/"),
		AsaasWebhookToken: os.Getenv("ASAAS_WEBHOOK_TOKEN"),
		ProviderTimeout:   envDuration("PROVIDER_TIMEOUT", 15*time.Second),

		DedupGrace:          envDuration("DEDUP_GRACE", 2*time.Second),
		PollInterval:        envDuration("POLL_INTERVAL", 3*time.Second),
		PollTimeout:         envDuration("POLL_TIMEOUT", 10*time.Minute),
		ChargeRetryInterval: envDuration("CHARGE_RETRY_INTERVAL", time.Minute),
		CheckoutRateLimit:   envFloat("CHECKOUT_RATE_LIMIT", 5),

		SeedAdminEmail:    env("SEED_ADMIN_EMAIL", "admin@loja.com"),
		SeedAdminPassword: env("SEED_ADMIN_PASSWORD", "123456"),
	}
	if cfg.JWTSecret == defaultJWTSecret {
		logger.Warnf("JWT_SECRET não definido — usando segredo de desenvolvimento")
	}
	if cfg.AsaasWebhookToken == "" {
		logger.Warnf("ASAAS_WEBHOOK_TOKEN não definido: webhook aceita notificações sem autenticação")
	}
	return cfg
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("%s inválido (%q), usando %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warnf("%s inválido (%q), usando %v", key, v, def)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		logger.Warnf("%s inválido (%q), usando %s", key, v, def)
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var list []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			list = append(list, p)
		}
	}
	if len(list) == 0 {
		return def
	}
	return list
}
