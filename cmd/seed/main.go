package main

import (
	"context"
	"os"
	"path/filepath"

	"checkout/api/internal/config"
	"checkout/api/internal/db"
	"checkout/api/internal/db/seeds"
	"checkout/api/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
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

	logger.Infof("executando seeds...")
	admin := seeds.Admin{Email: cfg.SeedAdminEmail, Password: cfg.SeedAdminPassword}
	if err := seeds.Run(context.Background(), sqlite, admin); err != nil {
		logger.Fatalf("erro ao executar seeds: %v", err)
	}
	logger.Infof("seeds finalizados com sucesso (admin: %s)", admin.Email)
}
