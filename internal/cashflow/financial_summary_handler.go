package cashflow

import (
	"fmt"

	"oficina-backend/internal/pagination"

	"github.com/gofiber/fiber/v2"
)

type SummaryResponse struct {
	Period          Period  `json:"periodo"`
	StartDate       string  `json:"data_inicio"`
	EndDate         string  `json:"data_fim"` // inclusivo
	TotalCredits    float64 `json:"total_entradas"`
	TotalDebits     float64 `json:"total_saidas"`
	Net             float64 `json:"saldo"`
	OrdersCreated   int64   `json:"ordens_criadas"`
	OrdersFinalized int64   `json:"ordens_finalizadas"`
}

// GET /api/financeiro/resumo?periodo=dia|semana|mes|ano
func SummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sum, err := svc.Summary(c.UserContext(), Period(c.Query("periodo")))
		if err != nil {
			return err
		}

		return c.JSON(SummaryResponse{
			Period:          sum.Period,
			StartDate:       sum.Start.Format(pagination.DateLayout),
			EndDate:         sum.End.AddDate(0, 0, -1).Format(pagination.DateLayout),
			TotalCredits:    sum.TotalCredits.InexactFloat64(),
			TotalDebits:     sum.TotalDebits.InexactFloat64(),
			Net:             sum.Net.InexactFloat64(),
			OrdersCreated:   sum.OrdersCreated,
			OrdersFinalized: sum.OrdersFinalized,
		})
	}
}

// GET /api/financeiro/exportar?data_inicio=...&data_fim=...&tipo=...
func ExportHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return err
		}

		buf, err := svc.Export(c.UserContext(), f)
		if err != nil {
			return err
		}

		filename := fmt.Sprintf("financeiro_%s.xlsx", svc.now().Format("20060102"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
		return c.Send(buf.Bytes())
	}
}
