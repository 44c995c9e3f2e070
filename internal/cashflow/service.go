package cashflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/database"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	txTimeout time.Duration
	now       func() time.Time
}

func NewService(db *gorm.DB, txTimeout time.Duration) *Service {
	return &Service{
		db:        db,
		txTimeout: txTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Post grava um lançamento dentro de uma transação já aberta. Usado pela
// finalização de ordens e pelas compras de peças.
func Post(tx *gorm.DB, entry *models.LedgerEntry) error {
	if !entry.Amount.IsPositive() {
		return apperr.Validation("valor", "Valor do lançamento deve ser maior que zero")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	entry.Amount = entry.Amount.Round(2)

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("lançamento financeiro: %w", err)
	}
	return nil
}

type EntryInput struct {
	Kind        models.LedgerKind
	Description string
	Amount      decimal.Decimal
	Date        *time.Time // nil = hoje
}

type EntryFilter struct {
	Kind *models.LedgerKind
	From *time.Time // inclusivo
	To   *time.Time // exclusivo
}

// CreateEntry registra um lançamento manual.
func (s *Service) CreateEntry(ctx context.Context, actor audit.Actor, in EntryInput) (*models.LedgerEntry, error) {
	in.Description = strings.TrimSpace(in.Description)
	switch in.Kind {
	case models.LedgerCredit, models.LedgerDebit:
	default:
		return nil, apperr.Validation("tipo", "Tipo deve ser 'entrada' ou 'saida'")
	}
	if in.Description == "" {
		return nil, apperr.Validation("descricao", "Descrição é obrigatória")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("valor", "Valor deve ser maior que zero")
	}

	occurred := s.now()
	if in.Date != nil {
		occurred = in.Date.UTC()
	}

	entry := models.LedgerEntry{
		Kind:        in.Kind,
		Description: in.Description,
		Amount:      in.Amount,
		OccurredAt:  occurred,
		Source:      models.LedgerSourceManual,
	}

	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := Post(tx, &entry); err != nil {
			return err
		}
		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "ledger_entry",
			EntityID:    entry.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Lançamento %s: %s - R$ %s", entry.Kind, entry.Description, entry.Amount.StringFixed(2)),
			After:       entry,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteEntry exclui um lançamento manual. Lançamentos do sistema (ordens,
// compras de peças) são recusados com Conflict.
func (s *Service) DeleteEntry(ctx context.Context, actor audit.Actor, id uint) error {
	return database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var entry models.LedgerEntry
		if err := tx.First(&entry, id).Error; err != nil {
			return apperr.FromDB(err, "Lançamento não encontrado", "", "Erro ao buscar lançamento")
		}
		if entry.IsSystem() {
			return apperr.Conflict("Lançamentos gerados pelo sistema não podem ser excluídos")
		}
		if err := tx.Delete(&entry).Error; err != nil {
			return fmt.Errorf("excluir lançamento: %w", err)
		}
		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "ledger_entry",
			EntityID:    entry.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Lançamento excluído: %s", entry.Description),
			Before:      entry,
		})
	})
}

func (s *Service) ListEntries(ctx context.Context, f EntryFilter, page pagination.Page) ([]models.LedgerEntry, int64, error) {
	dbq := s.filtered(ctx, f)

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar lançamentos", err)
	}

	var entries []models.LedgerEntry
	if err := dbq.Order("occurred_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&entries).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar lançamentos", err)
	}
	return entries, total, nil
}

// AllEntries devolve todos os lançamentos do filtro em ordem cronológica (exportação).
func (s *Service) AllEntries(ctx context.Context, f EntryFilter) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := s.filtered(ctx, f).Order("occurred_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, apperr.Storage("Erro ao listar lançamentos", err)
	}
	return entries, nil
}

func (s *Service) filtered(ctx context.Context, f EntryFilter) *gorm.DB {
	dbq := s.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if f.Kind != nil {
		dbq = dbq.Where("kind = ?", *f.Kind)
	}
	if f.From != nil {
		dbq = dbq.Where("occurred_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		dbq = dbq.Where("occurred_at < ?", f.To.UTC())
	}
	return dbq
}
