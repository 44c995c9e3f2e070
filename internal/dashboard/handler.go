package dashboard

import (
	"strconv"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/pagination"

	"github.com/gofiber/fiber/v2"
)

type ChartPointResponse struct {
	Label   string  `json:"rotulo"` // início do intervalo, YYYY-MM-DD
	Credits float64 `json:"entradas"`
	Debits  float64 `json:"saidas"`
	Net     float64 `json:"saldo"`
}

type CashChartResponse struct {
	Period  string               `json:"periodo"`
	From    string               `json:"data_inicio"`
	To      string               `json:"data_fim"` // inclusivo
	Points  []ChartPointResponse `json:"pontos"`
	Credits float64              `json:"total_entradas"`
	Debits  float64              `json:"total_saidas"`
	Net     float64              `json:"saldo"`
}

// GET /api/dashboard/fluxo-caixa?periodo=diario&quantidade=7
func CashChartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		count := 0
		if raw := c.Query("quantidade"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return apperr.Validation("quantidade", "Quantidade inválida")
			}
			count = n
		}

		chart, err := svc.CashChart(c.UserContext(), Period(c.Query("periodo")), count)
		if err != nil {
			return err
		}

		points := make([]ChartPointResponse, 0, len(chart.Points))
		for _, p := range chart.Points {
			points = append(points, ChartPointResponse{
				Label:   p.Bucket.Format(pagination.DateLayout),
				Credits: p.Credits.InexactFloat64(),
				Debits:  p.Debits.InexactFloat64(),
				Net:     p.Net().InexactFloat64(),
			})
		}

		return c.JSON(CashChartResponse{
			Period:  string(chart.Period),
			From:    chart.Start.Format(pagination.DateLayout),
			To:      chart.End.AddDate(0, 0, -1).Format(pagination.DateLayout),
			Points:  points,
			Credits: chart.Credits.InexactFloat64(),
			Debits:  chart.Debits.InexactFloat64(),
			Net:     chart.Credits.Sub(chart.Debits).InexactFloat64(),
		})
	}
}

type lowStockPart struct {
	ID       uint   `json:"id"`
	Name     string `json:"nome"`
	Quantity int    `json:"quantidade"`
}

type todayAppointment struct {
	ID         uint   `json:"id"`
	Time       string `json:"hora"`
	ClientName string `json:"cliente_nome"`
	Service    string `json:"servico"`
	Converted  bool   `json:"convertido"`
}

type OverviewResponse struct {
	OpenOrders        int64              `json:"ordens_abertas"`
	FinalizedToday    int64              `json:"ordens_finalizadas_hoje"`
	LowStockParts     []lowStockPart     `json:"pecas_estoque_baixo"`
	TodayAppointments []todayAppointment `json:"agendamentos_hoje"`
}

// GET /api/dashboard/resumo
func OverviewHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ov, err := svc.Overview(c.UserContext())
		if err != nil {
			return err
		}

		resp := OverviewResponse{
			OpenOrders:        ov.OpenOrders,
			FinalizedToday:    ov.FinalizedToday,
			LowStockParts:     make([]lowStockPart, 0, len(ov.LowStockParts)),
			TodayAppointments: make([]todayAppointment, 0, len(ov.TodayAppointments)),
		}
		for _, p := range ov.LowStockParts {
			resp.LowStockParts = append(resp.LowStockParts, lowStockPart{ID: p.ID, Name: p.Name, Quantity: p.Quantity})
		}
		for _, a := range ov.TodayAppointments {
			resp.TodayAppointments = append(resp.TodayAppointments, todayAppointment{
				ID:         a.ID,
				Time:       a.Time,
				ClientName: a.ClientName,
				Service:    a.Service,
				Converted:  a.OrderID != nil,
			})
		}
		return c.JSON(resp)
	}
}
