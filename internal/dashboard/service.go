// Package dashboard agrega o livro-caixa e o estado da oficina para a tela inicial.
package dashboard

import (
	"context"
	"sort"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Period string

const (
	PeriodDaily   Period = "diario"
	PeriodWeekly  Period = "semanal"
	PeriodMonthly Period = "mensal"
)

// LowStockThreshold: peças com quantidade igual ou abaixo entram no alerta.
const LowStockThreshold = 5

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type ChartPoint struct {
	Bucket  time.Time
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

func (p ChartPoint) Net() decimal.Decimal {
	return p.Credits.Sub(p.Debits)
}

type CashChart struct {
	Period  Period
	Start   time.Time
	End     time.Time // exclusivo
	Points  []ChartPoint
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

func defaultCount(p Period) int {
	switch p {
	case PeriodWeekly:
		return 8
	case PeriodMonthly:
		return 12
	default:
		return 7
	}
}

// bucketStart trunca t para o início do dia, da semana (segunda) ou do mês.
func bucketStart(p Period, t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeekly:
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func step(p Period, t time.Time, n int) time.Time {
	switch p {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7*n)
	case PeriodMonthly:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// CashChart devolve count intervalos consecutivos terminando no intervalo atual,
// inclusive os vazios.
func (s *Service) CashChart(ctx context.Context, p Period, count int) (*CashChart, error) {
	switch p {
	case "":
		p = PeriodDaily
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		return nil, apperr.Validation("periodo", "Período deve ser diario, semanal ou mensal")
	}
	if count == 0 {
		count = defaultCount(p)
	}
	if count < 0 || count > 366 {
		return nil, apperr.Validation("quantidade", "Quantidade deve estar entre 1 e 366")
	}

	current := bucketStart(p, s.now())
	start := step(p, current, -(count - 1))
	end := step(p, current, 1)

	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Select("kind", "amount", "occurred_at").
		Where("occurred_at >= ? AND occurred_at < ?", start, end).
		Find(&entries).Error; err != nil {
		return nil, apperr.Storage("Erro ao montar gráfico de caixa", err)
	}

	byBucket := make(map[time.Time]*ChartPoint, count)
	for b := start; b.Before(end); b = step(p, b, 1) {
		byBucket[b] = &ChartPoint{Bucket: b}
	}

	chart := &CashChart{Period: p, Start: start, End: end}
	for _, e := range entries {
		pt, ok := byBucket[bucketStart(p, e.OccurredAt.UTC())]
		if !ok {
			continue
		}
		switch e.Kind {
		case models.LedgerCredit:
			pt.Credits = pt.Credits.Add(e.Amount)
			chart.Credits = chart.Credits.Add(e.Amount)
		case models.LedgerDebit:
			pt.Debits = pt.Debits.Add(e.Amount)
			chart.Debits = chart.Debits.Add(e.Amount)
		}
	}

	chart.Points = make([]ChartPoint, 0, len(byBucket))
	for _, pt := range byBucket {
		chart.Points = append(chart.Points, *pt)
	}
	sort.Slice(chart.Points, func(i, j int) bool {
		return chart.Points[i].Bucket.Before(chart.Points[j].Bucket)
	})
	return chart, nil
}

type Overview struct {
	OpenOrders        int64
	FinalizedToday    int64
	LowStockParts     []models.Part
	TodayAppointments []models.Appointment
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	today := bucketStart(PeriodDaily, now)

	var ov Overview
	if err := db.Model(&models.ServiceOrder{}).
		Where("status = ?", models.OrderStatusOpen).
		Count(&ov.OpenOrders).Error; err != nil {
		return nil, apperr.Storage("Erro ao montar painel", err)
	}
	if err := db.Model(&models.ServiceOrder{}).
		Where("status = ? AND finalized_at >= ? AND finalized_at < ?", models.OrderStatusFinalized, today, today.AddDate(0, 0, 1)).
		Count(&ov.FinalizedToday).Error; err != nil {
		return nil, apperr.Storage("Erro ao montar painel", err)
	}
	if err := db.Where("quantity <= ?", LowStockThreshold).
		Order("quantity ASC, name ASC").
		Find(&ov.LowStockParts).Error; err != nil {
		return nil, apperr.Storage("Erro ao montar painel", err)
	}
	if err := db.Where(`"date" = ?`, now.Format(pagination.DateLayout)).
		Order(`"time" ASC`).
		Find(&ov.TodayAppointments).Error; err != nil {
		return nil, apperr.Storage("Erro ao montar painel", err)
	}
	return &ov, nil
}
