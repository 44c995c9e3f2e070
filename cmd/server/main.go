package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oficina-backend/internal/auth"
	"oficina-backend/internal/config"
	"oficina-backend/internal/database"
	"oficina-backend/internal/logger"
	"oficina-backend/internal/metrics"
	"oficina-backend/internal/server"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger ainda não existe
		_, _ = os.Stderr.WriteString("configuração inválida: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("servidor encerrado com erro", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("erro ao fechar banco", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		log.Info("migração automática concluída")
	}

	revoker, closeRevoker, err := newRevoker(cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeRevoker()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	bootCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = auth.NewService(db, tokens, revoker, cfg.Database.TxTimeout).
		EnsureAdmin(bootCtx, log, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	cancel()
	if err != nil {
		return err
	}

	app := server.New(server.Deps{
		Config:  cfg,
		DB:      db,
		Log:     log,
		Tokens:  tokens,
		Revoker: revoker,
		Metrics: metrics.New(),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("servidor iniciado", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		errCh <- app.Listen(":" + cfg.App.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("encerrando servidor", zap.String("signal", sig.String()))
	}

	return app.ShutdownWithTimeout(15 * time.Second)
}

// newRevoker usa Redis quando configurado; sem endereço, a revogação fica em memória
// e não sobrevive a um restart.
func newRevoker(cfg config.RedisConfig, log *zap.Logger) (auth.Revoker, func(), error) {
	if cfg.Addr == "" {
		log.Warn("redis não configurado, revogação de sessão em memória")
		return auth.NewMemoryRevoker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	log.Info("revogação de sessão no redis", zap.String("addr", cfg.Addr))
	return auth.NewRedisRevoker(client), func() { _ = client.Close() }, nil
}
