// Package dbtest abre bancos sqlite em memória para os testes de pacote.
package dbtest

import (
	"testing"

	"oficina-backend/internal/config"
	"oficina-backend/internal/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open devolve um banco vazio e migrado, fechado automaticamente no fim do teste.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	if err != nil {
		t.Fatalf("sqlite em memória: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migração: %v", err)
	}
	return db
}
