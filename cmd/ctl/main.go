package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"checkout/api/internal/config"
	"checkout/api/internal/db"
	"checkout/api/internal/logger"
	"checkout/api/internal/repository"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries what every subcommand needs once the database is open.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	store *repository.Store
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	a := &app{cfg: cfg}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Administração local do checkout (pedidos e configurações)",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "caminho do banco SQLite")

	rootCmd.AddCommand(ordersCmd(a))
	rootCmd.AddCommand(settingsCmd(a))

	return rootCmd
}

func (a *app) open() error {
	if a.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("criar diretório de dados: %w", err)
	}
	sqlite, err := db.OpenSQLite(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("abrir banco de dados: %w", err)
	}
	if err := db.Migrate(sqlite); err != nil {
		sqlite.Close()
		return fmt.Errorf("executar migrações: %w", err)
	}
	a.db = sqlite
	a.store = repository.NewStore(sqlite)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
		a.store = nil
	}
}
