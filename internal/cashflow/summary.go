package cashflow

import (
	"context"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/models"

	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodDay   Period = "dia"
	PeriodWeek  Period = "semana"
	PeriodMonth Period = "mes"
	PeriodYear  Period = "ano"
)

type Summary struct {
	Period          Period
	Start           time.Time
	End             time.Time // exclusivo
	TotalCredits    decimal.Decimal
	TotalDebits     decimal.Decimal
	Net             decimal.Decimal
	OrdersCreated   int64
	OrdersFinalized int64
}

// PeriodRange devolve [início, fim) do período que contém now. Semana começa na segunda.
func PeriodRange(p Period, now time.Time) (time.Time, time.Time, error) {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch p {
	case PeriodDay:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7 // dias desde segunda
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0), nil
	case PeriodYear:
		start := time.Date(y, 1, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, apperr.Validation("periodo", "Período deve ser dia, semana, mes ou ano")
	}
}

func (s *Service) Summary(ctx context.Context, p Period) (*Summary, error) {
	if p == "" {
		p = PeriodMonth
	}
	start, end, err := PeriodRange(p, s.now())
	if err != nil {
		return nil, err
	}

	credits, err := s.sumKind(ctx, models.LedgerCredit, start, end)
	if err != nil {
		return nil, err
	}
	debits, err := s.sumKind(ctx, models.LedgerDebit, start, end)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var created int64
	if err := db.Model(&models.ServiceOrder{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&created).Error; err != nil {
		return nil, apperr.Storage("Erro ao calcular resumo", err)
	}

	var finalized int64
	if err := db.Model(&models.ServiceOrder{}).
		Where("status = ? AND finalized_at >= ? AND finalized_at < ?", models.OrderStatusFinalized, start, end).
		Count(&finalized).Error; err != nil {
		return nil, apperr.Storage("Erro ao calcular resumo", err)
	}

	return &Summary{
		Period:          p,
		Start:           start,
		End:             end,
		TotalCredits:    credits,
		TotalDebits:     debits,
		Net:             credits.Sub(debits),
		OrdersCreated:   created,
		OrdersFinalized: finalized,
	}, nil
}

func (s *Service) sumKind(ctx context.Context, kind models.LedgerKind, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("kind = ? AND occurred_at >= ? AND occurred_at < ?", kind, start, end).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, apperr.Storage("Erro ao calcular resumo", err)
	}
	return total.Round(2), nil
}
