package main

import (
	"fmt"
	"os"

	"oficina-backend/internal/config"
	"oficina-backend/internal/database"
	"oficina-backend/internal/logger"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "oficina-migrate",
		Usage: "aplica as migrações SQL do oficina-backend (PostgreSQL)",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "aplica todas as migrações pendentes",
				Action: withMigrator(func(_ *cli.Context, m *database.Migrator) error {
					return m.Up()
				}),
			},
			{
				Name:  "down",
				Usage: "desfaz todas as migrações",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "confirma a remoção de todas as tabelas"},
				},
				Action: withMigrator(func(c *cli.Context, m *database.Migrator) error {
					if !c.Bool("force") {
						return cli.Exit("down apaga todas as tabelas; use --force para confirmar", 1)
					}
					return m.Down()
				}),
			},
			{
				Name:      "steps",
				Usage:     "aplica (n > 0) ou desfaz (n < 0) n migrações",
				ArgsUsage: "<n>",
				Action: withMigrator(func(c *cli.Context, m *database.Migrator) error {
					var n int
					if _, err := fmt.Sscan(c.Args().First(), &n); err != nil || n == 0 {
						return cli.Exit("informe um inteiro diferente de zero", 1)
					}
					return m.Steps(n)
				}),
			},
			{
				Name:  "version",
				Usage: "mostra a versão atual do schema",
				Action: withMigrator(func(c *cli.Context, m *database.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "versão %d (dirty=%t)\n", v, dirty)
					return err
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withMigrator abre o banco a partir da configuração OFICINA_* e fecha tudo ao final.
func withMigrator(fn func(*cli.Context, *database.Migrator) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != "postgres" {
			return cli.Exit("migrações SQL só se aplicam ao driver postgres; sqlite usa auto_migrate", 1)
		}

		log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"})
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return err
		}

		m, err := database.NewMigrator(db, log)
		if err != nil {
			_ = database.Close(db)
			return err
		}
		// Close do migrator também fecha a conexão
		defer func() {
			if err := m.Close(); err != nil {
				log.Warn("erro ao fechar migrator", zap.Error(err))
			}
		}()

		return fn(c, m)
	}
}
