package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/cashflow"
	"oficina-backend/internal/database"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const usageLimit = 10

type StockOperation string

const (
	StockIn  StockOperation = "entrada"
	StockOut StockOperation = "saida"
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

type PartInput struct {
	Name          string
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	Quantity      int
}

// PartPatch: campo nil não é alterado. Quantidade só muda por AdjustStock.
type PartPatch struct {
	Name          *string
	PurchasePrice *decimal.Decimal
	SalePrice     *decimal.Decimal
}

type PartFilter struct {
	Name        string
	MinQuantity *int
	MaxQuantity *int
}

type StockAdjustment struct {
	Quantity  int
	Operation StockOperation
	Reason    string
}

// Usage: uso da peça numa ordem de serviço.
type Usage struct {
	OrderID    uint
	ClientName string
	Quantity   int
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
	CreatedAt  time.Time
}

type PartDetail struct {
	Part   models.Part
	Usages []Usage
}

func (s *Service) List(ctx context.Context, f PartFilter, page pagination.Page) ([]models.Part, int64, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Part{})
	if name := strings.TrimSpace(f.Name); name != "" {
		dbq = dbq.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if f.MinQuantity != nil {
		dbq = dbq.Where("quantity >= ?", *f.MinQuantity)
	}
	if f.MaxQuantity != nil {
		dbq = dbq.Where("quantity <= ?", *f.MaxQuantity)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar peças", err)
	}

	var parts []models.Part
	if err := dbq.Order("name ASC").Offset(page.Offset()).Limit(page.Limit).Find(&parts).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar peças", err)
	}
	return parts, total, nil
}

// Get devolve a peça e os últimos usos em ordens de serviço.
func (s *Service) Get(ctx context.Context, id uint) (*PartDetail, error) {
	db := s.db.WithContext(ctx)

	var part models.Part
	if err := db.First(&part, id).Error; err != nil {
		return nil, apperr.FromDB(err, "Peça não encontrada", "", "Erro ao buscar peça")
	}

	var usages []Usage
	if err := db.Table("order_line_items AS li").
		Select("li.order_id, so.client_name, li.quantity, li.unit_price, li.total, li.created_at").
		Joins("JOIN service_orders so ON so.id = li.order_id").
		Where("li.part_id = ?", id).
		Order("li.created_at DESC, li.id DESC").
		Limit(usageLimit).
		Scan(&usages).Error; err != nil {
		return nil, apperr.Storage("Erro ao buscar usos da peça", err)
	}

	return &PartDetail{Part: part, Usages: usages}, nil
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in PartInput) (*models.Part, error) {
	var part *models.Part
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var err error
		part, err = s.createTx(tx, actor, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

// createTx cadastra a peça e, se houver quantidade inicial, lança a compra no
// financeiro na mesma transação.
func (s *Service) createTx(tx *gorm.DB, actor audit.Actor, in PartInput) (*models.Part, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("nome", "Nome é obrigatório")
	}
	if !in.PurchasePrice.IsPositive() {
		return nil, apperr.Validation("preco_compra", "Preço de compra deve ser maior que zero")
	}
	if !in.SalePrice.IsPositive() {
		return nil, apperr.Validation("preco_venda", "Preço de venda deve ser maior que zero")
	}
	if in.Quantity < 0 {
		return nil, apperr.Validation("quantidade", "Quantidade não pode ser negativa")
	}

	if err := ensureUniqueName(tx, in.Name, 0); err != nil {
		return nil, err
	}

	part := models.Part{
		Name:          in.Name,
		PurchasePrice: in.PurchasePrice.Round(2),
		SalePrice:     in.SalePrice.Round(2),
		Quantity:      in.Quantity,
	}
	if err := tx.Create(&part).Error; err != nil {
		return nil, apperr.FromDB(err, "", "Já existe uma peça com este nome", "Erro ao cadastrar peça")
	}

	if part.Quantity > 0 {
		if err := cashflow.Post(tx, &models.LedgerEntry{
			Kind:        models.LedgerDebit,
			Description: fmt.Sprintf("Compra inicial: %d unidades de %s", part.Quantity, part.Name),
			Amount:      part.PurchasePrice.Mul(decimal.NewFromInt(int64(part.Quantity))),
			OccurredAt:  s.now(),
			Source:      models.LedgerSourceStock,
			PartID:      &part.ID,
		}); err != nil {
			return nil, err
		}
	}

	if err := audit.WriteLog(tx, actor, audit.LogOptions{
		EntityType:  "part",
		EntityID:    part.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("Peça cadastrada: %s (%d un.)", part.Name, part.Quantity),
		After:       part,
	}); err != nil {
		return nil, err
	}
	return &part, nil
}

func (s *Service) Update(ctx context.Context, actor audit.Actor, id uint, patch PartPatch) (*models.Part, error) {
	if patch.Name == nil && patch.PurchasePrice == nil && patch.SalePrice == nil {
		return nil, apperr.Validation("", "Nenhum campo para atualizar")
	}

	var part models.Part
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := tx.First(&part, id).Error; err != nil {
			return apperr.FromDB(err, "Peça não encontrada", "", "Erro ao buscar peça")
		}
		before := part

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return apperr.Validation("nome", "Nome não pode ser vazio")
			}
			if err := ensureUniqueName(tx, name, part.ID); err != nil {
				return err
			}
			part.Name = name
		}
		if patch.PurchasePrice != nil {
			if !patch.PurchasePrice.IsPositive() {
				return apperr.Validation("preco_compra", "Preço de compra deve ser maior que zero")
			}
			part.PurchasePrice = patch.PurchasePrice.Round(2)
		}
		if patch.SalePrice != nil {
			if !patch.SalePrice.IsPositive() {
				return apperr.Validation("preco_venda", "Preço de venda deve ser maior que zero")
			}
			part.SalePrice = patch.SalePrice.Round(2)
		}

		if err := tx.Model(&part).Select("name", "purchase_price", "sale_price", "updated_at").Updates(&part).Error; err != nil {
			return apperr.FromDB(err, "", "Já existe uma peça com este nome", "Erro ao atualizar peça")
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "part",
			EntityID:    part.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Peça atualizada: %s", part.Name),
			Before:      before,
			After:       part,
		})
	})
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// Delete recusa peças já usadas em ordens de serviço.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	return database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var part models.Part
		if err := tx.First(&part, id).Error; err != nil {
			return apperr.FromDB(err, "Peça não encontrada", "", "Erro ao buscar peça")
		}

		var used int64
		if err := tx.Model(&models.OrderLineItem{}).Where("part_id = ?", id).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return apperr.Conflict("Peça utilizada em ordens de serviço não pode ser excluída")
		}

		if err := tx.Delete(&part).Error; err != nil {
			return fmt.Errorf("excluir peça: %w", err)
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "part",
			EntityID:    part.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Peça excluída: %s", part.Name),
			Before:      part,
		})
	})
}

// AdjustStock: entrada soma ao estoque e lança a compra como saída no
// financeiro; saida só baixa o estoque.
func (s *Service) AdjustStock(ctx context.Context, actor audit.Actor, id uint, adj StockAdjustment) (*models.Part, error) {
	if adj.Quantity <= 0 {
		return nil, apperr.Validation("quantidade", "Quantidade deve ser maior que zero")
	}
	switch adj.Operation {
	case StockIn, StockOut:
	default:
		return nil, apperr.Validation("operacao", "Operação deve ser 'entrada' ou 'saida'")
	}

	var part *models.Part
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		parts, err := LockParts(tx, []uint{id})
		if err != nil {
			return err
		}
		part = parts[id]
		before := *part

		if adj.Operation == StockIn {
			if err := s.stockInTx(tx, part, adj.Quantity, adj.Reason); err != nil {
				return err
			}
		} else if err := Consume(tx, part, adj.Quantity); err != nil {
			return err
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "part",
			EntityID:    part.ID,
			Action:      models.AuditActionAdjust,
			Description: fmt.Sprintf("Estoque %s: %d un. de %s", adj.Operation, adj.Quantity, part.Name),
			Before:      map[string]any{"quantidade": before.Quantity},
			After:       map[string]any{"quantidade": part.Quantity, "motivo": adj.Reason},
		})
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

// stockInTx soma n unidades à peça (já bloqueada) e lança o débito da compra.
func (s *Service) stockInTx(tx *gorm.DB, part *models.Part, n int, reason string) error {
	if err := Restock(tx, part.ID, n); err != nil {
		return err
	}
	part.Quantity += n

	desc := strings.TrimSpace(reason)
	if desc == "" {
		desc = fmt.Sprintf("Compra de %d unidades de %s", n, part.Name)
	}
	return cashflow.Post(tx, &models.LedgerEntry{
		Kind:        models.LedgerDebit,
		Description: desc,
		Amount:      part.PurchasePrice.Mul(decimal.NewFromInt(int64(n))),
		OccurredAt:  s.now(),
		Source:      models.LedgerSourceStock,
		PartID:      &part.ID,
	})
}

// ensureUniqueName: selfID > 0 exclui a própria peça (atualização).
func ensureUniqueName(tx *gorm.DB, name string, selfID uint) error {
	q := tx.Model(&models.Part{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if selfID > 0 {
		q = q.Where("id <> ?", selfID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("Já existe uma peça com este nome")
	}
	return nil
}
