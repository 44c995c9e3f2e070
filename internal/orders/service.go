// Package orders implementa as ordens de serviço: criação, alteração, exclusão e
// finalização, cada uma numa única transação que envolve a ordem, os itens, o
// estoque das peças e o financeiro.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/cashflow"
	"oficina-backend/internal/database"
	"oficina-backend/internal/inventory"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Observer recebe os eventos de ordens já confirmados (métricas).
type Observer interface {
	OrderEvent(event string, total decimal.Decimal)
}

const (
	EventCreated   = "created"
	EventUpdated   = "updated"
	EventDeleted   = "deleted"
	EventFinalized = "finalized"
)

type nopObserver struct{}

func (nopObserver) OrderEvent(string, decimal.Decimal) {}

type Service struct {
	db        *gorm.DB
	txTimeout time.Duration
	observer  Observer
	now       func() time.Time
}

func NewService(db *gorm.DB, txTimeout time.Duration, observer Observer) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		db:        db,
		txTimeout: txTimeout,
		observer:  observer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type LineItemInput struct {
	PartID   uint
	Quantity int
}

type OrderInput struct {
	ClientName   string
	VehicleModel string
	VehicleYear  string
	VehiclePlate string
	ServiceType  string
	Description  string
	Labor        decimal.Decimal
	Items        []LineItemInput
}

// OrderPatch: nil = campo ausente. Items != nil substitui todos os itens,
// inclusive por uma lista vazia.
type OrderPatch struct {
	ClientName   *string
	VehicleModel *string
	VehicleYear  *string
	VehiclePlate *string
	ServiceType  *string
	Description  *string
	Labor        *decimal.Decimal
	Items        *[]LineItemInput
}

func (p OrderPatch) empty() bool {
	return p.ClientName == nil && p.VehicleModel == nil && p.VehicleYear == nil &&
		p.VehiclePlate == nil && p.ServiceType == nil && p.Description == nil &&
		p.Labor == nil && p.Items == nil
}

type OrderFilter struct {
	Client string
	Plate  string
	Status *models.OrderStatus
	From   *time.Time // inclusivo
	To     *time.Time // exclusivo
}

// LineDetail: item da ordem com o nome da peça.
type LineDetail struct {
	ID        uint
	PartID    uint
	PartName  string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

type OrderDetail struct {
	Order models.ServiceOrder
	Items []LineDetail
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in OrderInput) (*models.ServiceOrder, error) {
	var order *models.ServiceOrder
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var err error
		order, err = s.CreateTx(tx, actor, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observer.OrderEvent(EventCreated, order.Total)
	return order, nil
}

// CreateTx cria a ordem dentro da transação do chamador (conversão de agendamento).
func (s *Service) CreateTx(tx *gorm.DB, actor audit.Actor, in OrderInput) (*models.ServiceOrder, error) {
	if err := normalizeInput(&in); err != nil {
		return nil, err
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	parts, err := inventory.LockParts(tx, inputPartIDs(in.Items))
	if err != nil {
		return nil, err
	}

	labor := in.Labor.Round(2)
	order := models.ServiceOrder{
		ClientName:   in.ClientName,
		VehicleModel: in.VehicleModel,
		VehicleYear:  in.VehicleYear,
		VehiclePlate: in.VehiclePlate,
		ServiceType:  in.ServiceType,
		Description:  in.Description,
		PartsTotal:   decimal.Zero,
		LaborTotal:   labor,
		Total:        labor,
		Status:       models.OrderStatusOpen,
	}
	if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("inserir ordem: %w", err)
	}

	items, partsTotal, err := insertItems(tx, order.ID, parts, in.Items)
	if err != nil {
		return nil, err
	}
	order.Items = items
	order.PartsTotal = partsTotal
	order.Total = partsTotal.Add(order.LaborTotal)

	if err := tx.Model(&order).Select("parts_total", "total").Updates(&order).Error; err != nil {
		return nil, fmt.Errorf("totais da ordem: %w", err)
	}

	if err := audit.WriteLog(tx, actor, audit.LogOptions{
		EntityType:  "service_order",
		EntityID:    order.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("Ordem de serviço #%d criada: %s - R$ %s", order.ID, order.ClientName, order.Total.StringFixed(2)),
		After:       order,
	}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) Update(ctx context.Context, actor audit.Actor, id uint, patch OrderPatch) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := lockOrder(tx, &order, id); err != nil {
			return err
		}
		if order.IsFinalized() {
			return apperr.Conflict("Não é possível modificar uma ordem de serviço finalizada")
		}
		if patch.empty() {
			return apperr.Validation("", "Nenhum campo para atualizar")
		}
		if patch.Items != nil {
			if err := validateItems(*patch.Items); err != nil {
				return err
			}
		}
		before := order

		if err := applyPatch(&order, patch); err != nil {
			return err
		}

		if patch.Items != nil {
			newItems := *patch.Items
			ids := append(lineItemPartIDs(order.Items), inputPartIDs(newItems)...)
			parts, err := inventory.LockParts(tx, ids)
			if err != nil {
				return err
			}

			// devolve o estoque dos itens antigos antes de validar os novos
			for _, old := range order.Items {
				if err := inventory.Restock(tx, old.PartID, old.Quantity); err != nil {
					return err
				}
				parts[old.PartID].Quantity += old.Quantity
			}
			if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderLineItem{}).Error; err != nil {
				return fmt.Errorf("remover itens: %w", err)
			}

			items, partsTotal, err := insertItems(tx, order.ID, parts, newItems)
			if err != nil {
				return err
			}
			order.Items = items
			order.PartsTotal = partsTotal
		}
		order.Total = order.PartsTotal.Add(order.LaborTotal)

		if err := tx.Model(&order).Omit(clause.Associations).Select(
			"client_name", "vehicle_model", "vehicle_year", "vehicle_plate", "service_type",
			"description", "labor_total", "parts_total", "total", "updated_at",
		).Updates(&order).Error; err != nil {
			return fmt.Errorf("atualizar ordem: %w", err)
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "service_order",
			EntityID:    order.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Ordem de serviço #%d atualizada", order.ID),
			Before:      before,
			After:       order,
		})
	})
	if err != nil {
		return nil, err
	}
	s.observer.OrderEvent(EventUpdated, order.Total)
	return &order, nil
}

// Delete devolve ao estoque as peças da ordem e a remove com os itens.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	var order models.ServiceOrder
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := lockOrder(tx, &order, id); err != nil {
			return err
		}
		if order.IsFinalized() {
			return apperr.Conflict("Não é possível excluir uma ordem de serviço finalizada")
		}

		if _, err := inventory.LockParts(tx, lineItemPartIDs(order.Items)); err != nil {
			return err
		}
		for _, it := range order.Items {
			if err := inventory.Restock(tx, it.PartID, it.Quantity); err != nil {
				return err
			}
		}

		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderLineItem{}).Error; err != nil {
			return fmt.Errorf("remover itens: %w", err)
		}
		if err := tx.Delete(&order).Error; err != nil {
			return fmt.Errorf("excluir ordem: %w", err)
		}
		// agendamento de origem volta a poder ser convertido
		if err := tx.Model(&models.Appointment{}).
			Where("order_id = ?", order.ID).
			Update("order_id", nil).Error; err != nil {
			return fmt.Errorf("desvincular agendamento: %w", err)
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "service_order",
			EntityID:    order.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Ordem de serviço #%d excluída: %s", order.ID, order.ClientName),
			Before:      order,
		})
	})
	if err != nil {
		return err
	}
	s.observer.OrderEvent(EventDeleted, order.Total)
	return nil
}

// Finalize encerra a ordem e lança o total como entrada no financeiro.
// Ordem com total zero é finalizada sem lançamento.
func (s *Service) Finalize(ctx context.Context, actor audit.Actor, id uint) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := lockOrder(tx, &order, id); err != nil {
			return err
		}
		if order.IsFinalized() {
			return apperr.Conflict("Ordem de serviço já finalizada")
		}

		now := s.now()
		res := tx.Model(&models.ServiceOrder{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusOpen).
			Updates(map[string]any{
				"status":       models.OrderStatusFinalized,
				"finalized_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("finalizar ordem: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("Ordem de serviço já finalizada")
		}
		order.Status = models.OrderStatusFinalized
		order.FinalizedAt = &now
		order.UpdatedAt = now

		if order.Total.IsPositive() {
			if err := cashflow.Post(tx, &models.LedgerEntry{
				Kind:        models.LedgerCredit,
				Description: fmt.Sprintf("Ordem de serviço #%d", order.ID),
				Amount:      order.Total,
				OccurredAt:  now,
				Source:      models.LedgerSourceOrder,
				OrderID:     &order.ID,
			}); err != nil {
				return err
			}
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "service_order",
			EntityID:    order.ID,
			Action:      models.AuditActionFinalize,
			Description: fmt.Sprintf("Ordem de serviço #%d finalizada - R$ %s", order.ID, order.Total.StringFixed(2)),
			After:       map[string]any{"status": order.Status, "finalized_at": now, "total": order.Total},
		})
	})
	if err != nil {
		return nil, err
	}
	s.observer.OrderEvent(EventFinalized, order.Total)
	return &order, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*OrderDetail, error) {
	db := s.db.WithContext(ctx)

	var order models.ServiceOrder
	if err := db.First(&order, id).Error; err != nil {
		return nil, apperr.FromDB(err, "Ordem de serviço não encontrada", "", "Erro ao buscar ordem de serviço")
	}

	var items []LineDetail
	if err := db.Table("order_line_items AS li").
		Select("li.id, li.part_id, p.name AS part_name, li.quantity, li.unit_price, li.total").
		Joins("JOIN parts p ON p.id = li.part_id").
		Where("li.order_id = ?", id).
		Order("li.id ASC").
		Scan(&items).Error; err != nil {
		return nil, apperr.Storage("Erro ao buscar peças da ordem de serviço", err)
	}

	return &OrderDetail{Order: order, Items: items}, nil
}

func (s *Service) List(ctx context.Context, f OrderFilter, page pagination.Page) ([]models.ServiceOrder, int64, error) {
	dbq := s.db.WithContext(ctx).Model(&models.ServiceOrder{})
	if c := strings.TrimSpace(f.Client); c != "" {
		dbq = dbq.Where("LOWER(client_name) LIKE ?", "%"+strings.ToLower(c)+"%")
	}
	if p := strings.TrimSpace(f.Plate); p != "" {
		dbq = dbq.Where("LOWER(vehicle_plate) LIKE ?", "%"+strings.ToLower(p)+"%")
	}
	if f.Status != nil {
		dbq = dbq.Where("status = ?", *f.Status)
	}
	if f.From != nil {
		dbq = dbq.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		dbq = dbq.Where("created_at < ?", f.To.UTC())
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar ordens de serviço", err)
	}

	var orders []models.ServiceOrder
	if err := dbq.Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar ordens de serviço", err)
	}
	return orders, total, nil
}

// lockOrder carrega a ordem com FOR UPDATE e os itens atuais.
func lockOrder(tx *gorm.DB, order *models.ServiceOrder, id uint) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(order, id).Error; err != nil {
		return apperr.FromDB(err, "Ordem de serviço não encontrada", "", "Erro ao buscar ordem de serviço")
	}
	if err := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&order.Items).Error; err != nil {
		return fmt.Errorf("itens da ordem: %w", err)
	}
	return nil
}

// insertItems grava os itens na ordem recebida, com o preço de venda atual
// como preço unitário, e baixa o estoque de cada peça.
func insertItems(tx *gorm.DB, orderID uint, parts map[uint]*models.Part, in []LineItemInput) ([]models.OrderLineItem, decimal.Decimal, error) {
	items := make([]models.OrderLineItem, 0, len(in))
	partsTotal := decimal.Zero

	for _, it := range in {
		part := parts[it.PartID]
		unit := part.SalePrice.Round(2)
		li := models.OrderLineItem{
			OrderID:   orderID,
			PartID:    part.ID,
			Quantity:  it.Quantity,
			UnitPrice: unit,
			Total:     unit.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
		}
		if err := tx.Create(&li).Error; err != nil {
			return nil, decimal.Zero, fmt.Errorf("inserir item: %w", err)
		}
		if err := inventory.Consume(tx, part, it.Quantity); err != nil {
			return nil, decimal.Zero, err
		}
		items = append(items, li)
		partsTotal = partsTotal.Add(li.Total)
	}
	return items, partsTotal, nil
}

func normalizeInput(in *OrderInput) error {
	required := []struct {
		value *string
		field string
		label string
	}{
		{&in.ClientName, "cliente_nome", "Nome do cliente"},
		{&in.VehicleModel, "veiculo_modelo", "Modelo do veículo"},
		{&in.VehiclePlate, "veiculo_placa", "Placa do veículo"},
		{&in.ServiceType, "tipo_servico", "Tipo de serviço"},
	}
	for _, r := range required {
		*r.value = strings.TrimSpace(*r.value)
		if *r.value == "" {
			return apperr.Validation(r.field, r.label+" é obrigatório")
		}
	}
	in.VehicleYear = strings.TrimSpace(in.VehicleYear)
	in.Description = strings.TrimSpace(in.Description)
	if in.Labor.IsNegative() {
		return apperr.Validation("valor_mao_obra", "Valor da mão de obra não pode ser negativo")
	}
	return nil
}

// applyPatch aplica apenas os campos presentes. Obrigatório presente e vazio é
// erro; opcional presente e vazio sobrescreve.
func applyPatch(order *models.ServiceOrder, p OrderPatch) error {
	required := []struct {
		value *string
		dst   *string
		field string
		label string
	}{
		{p.ClientName, &order.ClientName, "cliente_nome", "Nome do cliente"},
		{p.VehicleModel, &order.VehicleModel, "veiculo_modelo", "Modelo do veículo"},
		{p.VehiclePlate, &order.VehiclePlate, "veiculo_placa", "Placa do veículo"},
		{p.ServiceType, &order.ServiceType, "tipo_servico", "Tipo de serviço"},
	}
	for _, r := range required {
		if r.value == nil {
			continue
		}
		v := strings.TrimSpace(*r.value)
		if v == "" {
			return apperr.Validation(r.field, r.label+" não pode ser vazio")
		}
		*r.dst = v
	}

	if p.VehicleYear != nil {
		order.VehicleYear = strings.TrimSpace(*p.VehicleYear)
	}
	if p.Description != nil {
		order.Description = strings.TrimSpace(*p.Description)
	}
	if p.Labor != nil {
		if p.Labor.IsNegative() {
			return apperr.Validation("valor_mao_obra", "Valor da mão de obra não pode ser negativo")
		}
		order.LaborTotal = p.Labor.Round(2)
	}
	return nil
}

func validateItems(items []LineItemInput) error {
	for i, it := range items {
		if it.PartID == 0 {
			return apperr.Validation(fmt.Sprintf("pecas[%d].peca_id", i), "Peça não informada")
		}
		if it.Quantity <= 0 {
			return apperr.Validation(fmt.Sprintf("pecas[%d].quantidade", i), "Quantidade deve ser maior que zero")
		}
	}
	return nil
}

func inputPartIDs(items []LineItemInput) []uint {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PartID)
	}
	return ids
}

func lineItemPartIDs(items []models.OrderLineItem) []uint {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PartID)
	}
	return ids
}
