package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"checkout/api/internal/api"
	"checkout/api/internal/asaas"
	"checkout/api/internal/checkout"
	"checkout/api/internal/config"
	"checkout/api/internal/db"
	"checkout/api/internal/dedup"
	"checkout/api/internal/logger"
	"checkout/api/internal/middleware"
	"checkout/api/internal/reconcile"
	"checkout/api/internal/repository"
	"checkout/api/internal/webhook"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (ignores error if file is absent)
	_ = godotenv.Load()

	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Fatalf("erro ao criar diretório de dados: %v", err)
	}

	sqlite, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatalf("erro ao abrir banco de dados: %v", err)
	}
	defer sqlite.Close()

	if err := db.Migrate(sqlite); err != nil {
		logger.Fatalf("erro ao executar migrações: %v", err)
	}

	store := repository.NewStore(sqlite)
	registry := dedup.NewRegistry()
	defer registry.Close()

	// Provider calls are only wired when ASAAS_API_KEY is set; interface
	// values stay nil otherwise.
	var provider checkout.Provider
	var charges reconcile.ChargeFetcher
	if cfg.AsaasAPIKey != "" {
		client := asaas.NewClient(cfg.AsaasAPIKey, cfg.AsaasBaseURL)
		provider = client
		charges = client
		logger.Infof("Asaas configurado em %s", cfg.AsaasBaseURL)
	} else {
		logger.Warnf("ASAAS_API_KEY não definido — cobranças PIX não serão registradas")
	}

	svc := checkout.NewService(store, provider, registry, checkout.Options{
		Grace:           cfg.DedupGrace,
		ProviderTimeout: cfg.ProviderTimeout,
	})
	defer svc.Close()

	hub := reconcile.NewHub()
	loop := reconcile.NewLoop(store, hub, charges, cfg.PollInterval, cfg.PollTimeout)
	ingestor := webhook.NewIngestor(store, hub)

	// Build HTTP mux with all routes
	mux := http.NewServeMux()
	apiHandler := api.NewHandler(cfg, store, svc, loop, ingestor, hub)
	apiHandler.Register(mux)

	handler := middleware.CORS(cfg.CORSOrigins)(middleware.Auth(cfg.JWTSecret)(mux))

	bg, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if provider != nil {
		go checkout.NewRetrier(svc, cfg.ChargeRetryInterval, cfg.ProviderTimeout*2).Run(bg)
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-bg.Done():
				return
			case <-ticker.C:
				apiHandler.Limiter().Prune(10 * time.Minute)
			}
		}
	}()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	// long-polls end with 503 once Shutdown starts
	httpServer.RegisterOnShutdown(apiHandler.StopWatches)

	logger.Infof("servidor de checkout escutando em %s", addr)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("erro no servidor: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("encerrando...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("erro ao encerrar servidor: %v", err)
	}
	stopBackground()
	logger.Infof("servidor parado")
}
