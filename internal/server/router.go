// Package server monta o app fiber: tratamento de erros, middlewares e rotas.
package server

import (
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/auth"
	"oficina-backend/internal/cashflow"
	"oficina-backend/internal/config"
	"oficina-backend/internal/dashboard"
	"oficina-backend/internal/database"
	"oficina-backend/internal/inventory"
	"oficina-backend/internal/metrics"
	"oficina-backend/internal/models"
	"oficina-backend/internal/orders"
	"oficina-backend/internal/schedule"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Tokens  *auth.TokenManager
	Revoker auth.Revoker
	Metrics *metrics.Metrics
}

func New(d Deps) *fiber.App {
	cfg := d.Config
	txTimeout := cfg.Database.TxTimeout
	v := validation.New()

	authSvc := auth.NewService(d.DB, d.Tokens, d.Revoker, txTimeout)
	orderSvc := orders.NewService(d.DB, txTimeout, d.Metrics)
	partSvc := inventory.NewService(d.DB, txTimeout)
	ledgerSvc := cashflow.NewService(d.DB, txTimeout)
	agendaSvc := schedule.NewService(d.DB, txTimeout, orderSvc)
	dashSvc := dashboard.NewService(d.DB)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: apperr.Handler(d.Log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		BodyLimit:    cfg.HTTP.BodyLimit,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(d.Metrics.Middleware())
	app.Use(requestLogger(d.Log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: !containsWildcard(cfg.CORSOriginList()),
	}))

	app.Get("/health", healthHandler(d.DB))
	app.Get("/metrics", d.Metrics.Handler())

	cookie := auth.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
		TTL:    cfg.Auth.SessionTTL,
	}
	limiter := auth.NewLoginLimiter(cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginBurst)

	api := app.Group("/api")

	// Público
	api.Post("/auth/login", limiter.Middleware(), auth.LoginHandler(authSvc, v, cookie))
	api.Get("/auth/logout", auth.LogoutHandler(authSvc, cookie))

	protected := api.Group("", auth.Middleware(d.Tokens, d.Revoker, cfg.Auth.CookieName, d.Log))
	adminOnly := auth.RequireRole(models.RoleAdmin)

	protected.Get("/auth/me", auth.MeHandler(authSvc))
	protected.Post("/auth/cadastrar", adminOnly, auth.RegisterHandler(authSvc, v))

	// Ordens de serviço
	protected.Post("/ordem-servico", orders.CreateOrderHandler(orderSvc, v))
	protected.Get("/ordem-servico", orders.ListOrdersHandler(orderSvc))
	protected.Get("/ordem-servico/:id", orders.GetOrderHandler(orderSvc))
	protected.Put("/ordem-servico/:id", orders.UpdateOrderHandler(orderSvc))
	protected.Delete("/ordem-servico/:id", orders.DeleteOrderHandler(orderSvc))
	protected.Put("/ordem-servico/:id/finalizar", orders.FinalizeOrderHandler(orderSvc))

	// Peças
	protected.Get("/pecas", inventory.ListPartsHandler(partSvc))
	protected.Post("/pecas", inventory.CreatePartHandler(partSvc, v))
	protected.Post("/pecas/importar", inventory.ImportPartsHandler(partSvc))
	protected.Get("/pecas/:id", inventory.GetPartHandler(partSvc))
	protected.Put("/pecas/:id", inventory.UpdatePartHandler(partSvc))
	protected.Delete("/pecas/:id", inventory.DeletePartHandler(partSvc))
	protected.Post("/pecas/:id/estoque", inventory.AdjustStockHandler(partSvc, v))

	// Financeiro
	protected.Get("/financeiro", cashflow.ListEntriesHandler(ledgerSvc))
	protected.Post("/financeiro", cashflow.CreateEntryHandler(ledgerSvc, v))
	protected.Get("/financeiro/resumo", cashflow.SummaryHandler(ledgerSvc))
	protected.Get("/financeiro/exportar", cashflow.ExportHandler(ledgerSvc))
	protected.Delete("/financeiro/:id", cashflow.DeleteEntryHandler(ledgerSvc))

	// Agenda
	protected.Get("/agenda", schedule.ListHandler(agendaSvc))
	protected.Post("/agenda", schedule.CreateHandler(agendaSvc, v))
	protected.Get("/agenda/dia/:data", schedule.ListByDayHandler(agendaSvc))
	protected.Get("/agenda/:id", schedule.GetHandler(agendaSvc))
	protected.Put("/agenda/:id", schedule.UpdateHandler(agendaSvc))
	protected.Delete("/agenda/:id", schedule.DeleteHandler(agendaSvc))
	protected.Post("/agenda/:id/converter", schedule.ConvertHandler(agendaSvc))

	// Painel
	protected.Get("/dashboard/resumo", dashboard.OverviewHandler(dashSvc))
	protected.Get("/dashboard/fluxo-caixa", dashboard.CashChartHandler(dashSvc))

	protected.Get("/audit-logs", adminOnly, audit.ListAuditLogsHandler(d.DB))

	return app
}

func healthHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := database.Ping(c.UserContext(), db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":   "indisponivel",
				"database": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	}
}

// fiber recusa AllowCredentials junto com "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
