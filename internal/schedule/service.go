// Package schedule cuida da agenda da oficina e da conversão de um
// agendamento em ordem de serviço.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/database"
	"oficina-backend/internal/models"
	"oficina-backend/internal/orders"
	"oficina-backend/internal/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const timeLayout = "15:04"

type Service struct {
	db        *gorm.DB
	txTimeout time.Duration
	orders    *orders.Service
}

func NewService(db *gorm.DB, txTimeout time.Duration, orderSvc *orders.Service) *Service {
	return &Service{db: db, txTimeout: txTimeout, orders: orderSvc}
}

type AppointmentInput struct {
	ClientName   string
	VehicleModel string
	VehiclePlate string
	Service      string
	Date         string // YYYY-MM-DD
	Time         string // HH:MM
	Notes        string
}

// AppointmentPatch: nil = campo ausente.
type AppointmentPatch struct {
	ClientName   *string
	VehicleModel *string
	VehiclePlate *string
	Service      *string
	Date         *string
	Time         *string
	Notes        *string
}

func (p AppointmentPatch) empty() bool {
	return p.ClientName == nil && p.VehicleModel == nil && p.VehiclePlate == nil &&
		p.Service == nil && p.Date == nil && p.Time == nil && p.Notes == nil
}

// Filter: datas no formato YYYY-MM-DD, ambas inclusivas.
type Filter struct {
	Client string
	From   string
	To     string
}

func (s *Service) List(ctx context.Context, f Filter, page pagination.Page) ([]models.Appointment, int64, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Appointment{})
	if c := strings.TrimSpace(f.Client); c != "" {
		dbq = dbq.Where("LOWER(client_name) LIKE ?", "%"+strings.ToLower(c)+"%")
	}
	if f.From != "" {
		if err := validateDate("data_inicio", f.From); err != nil {
			return nil, 0, err
		}
		dbq = dbq.Where(`"date" >= ?`, f.From)
	}
	if f.To != "" {
		if err := validateDate("data_fim", f.To); err != nil {
			return nil, 0, err
		}
		dbq = dbq.Where(`"date" <= ?`, f.To)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar agendamentos", err)
	}

	var list []models.Appointment
	if err := dbq.Order(`"date" ASC, "time" ASC`).Offset(page.Offset()).Limit(page.Limit).Find(&list).Error; err != nil {
		return nil, 0, apperr.Storage("Erro ao listar agendamentos", err)
	}
	return list, total, nil
}

func (s *Service) ListByDay(ctx context.Context, date string) ([]models.Appointment, error) {
	if err := validateDate("data", date); err != nil {
		return nil, err
	}
	var list []models.Appointment
	if err := s.db.WithContext(ctx).Where(`"date" = ?`, date).Order(`"time" ASC`).Find(&list).Error; err != nil {
		return nil, apperr.Storage("Erro ao listar agendamentos", err)
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Appointment, error) {
	var a models.Appointment
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, apperr.FromDB(err, "Agendamento não encontrado", "", "Erro ao buscar agendamento")
	}
	return &a, nil
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in AppointmentInput) (*models.Appointment, error) {
	a := models.Appointment{
		ClientName:   strings.TrimSpace(in.ClientName),
		VehicleModel: strings.TrimSpace(in.VehicleModel),
		VehiclePlate: strings.TrimSpace(in.VehiclePlate),
		Service:      strings.TrimSpace(in.Service),
		Date:         strings.TrimSpace(in.Date),
		Time:         strings.TrimSpace(in.Time),
		Notes:        strings.TrimSpace(in.Notes),
	}
	if err := validate(&a); err != nil {
		return nil, err
	}

	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := ensureSlotFree(tx, a.Date, a.Time, 0); err != nil {
			return err
		}
		if err := tx.Create(&a).Error; err != nil {
			return apperr.FromDB(err, "", slotTakenMsg, "Erro ao criar agendamento")
		}
		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "appointment",
			EntityID:    a.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Agendamento criado: %s em %s %s", a.ClientName, a.Date, a.Time),
			After:       a,
		})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) Update(ctx context.Context, actor audit.Actor, id uint, p AppointmentPatch) (*models.Appointment, error) {
	if p.empty() {
		return nil, apperr.Validation("", "Nenhum dado fornecido para atualização")
	}

	var a models.Appointment
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		if err := tx.First(&a, id).Error; err != nil {
			return apperr.FromDB(err, "Agendamento não encontrado", "", "Erro ao buscar agendamento")
		}
		before := a

		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		set(&a.ClientName, p.ClientName)
		set(&a.VehicleModel, p.VehicleModel)
		set(&a.VehiclePlate, p.VehiclePlate)
		set(&a.Service, p.Service)
		set(&a.Date, p.Date)
		set(&a.Time, p.Time)
		set(&a.Notes, p.Notes)
		if err := validate(&a); err != nil {
			return err
		}

		if a.Date != before.Date || a.Time != before.Time {
			if err := ensureSlotFree(tx, a.Date, a.Time, a.ID); err != nil {
				return err
			}
		}

		if err := tx.Model(&a).Select(
			"client_name", "vehicle_model", "vehicle_plate", "service", "date", "time", "notes", "updated_at",
		).Updates(&a).Error; err != nil {
			return apperr.FromDB(err, "", slotTakenMsg, "Erro ao atualizar agendamento")
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "appointment",
			EntityID:    a.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Agendamento atualizado: %s em %s %s", a.ClientName, a.Date, a.Time),
			Before:      before,
			After:       a,
		})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	return database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var a models.Appointment
		if err := tx.First(&a, id).Error; err != nil {
			return apperr.FromDB(err, "Agendamento não encontrado", "", "Erro ao buscar agendamento")
		}
		if err := tx.Delete(&a).Error; err != nil {
			return fmt.Errorf("excluir agendamento: %w", err)
		}
		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "appointment",
			EntityID:    a.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Agendamento excluído: %s em %s %s", a.ClientName, a.Date, a.Time),
			Before:      a,
		})
	})
}

// Convert abre uma ordem de serviço (sem peças, mão de obra zero) a partir do
// agendamento e guarda o vínculo. Cada agendamento converte uma única vez.
func (s *Service) Convert(ctx context.Context, actor audit.Actor, id uint) (*models.ServiceOrder, error) {
	var order *models.ServiceOrder
	err := database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var a models.Appointment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error; err != nil {
			return apperr.FromDB(err, "Agendamento não encontrado", "", "Erro ao buscar agendamento")
		}
		if a.OrderID != nil {
			return apperr.Conflict(fmt.Sprintf("Agendamento já convertido na ordem de serviço #%d", *a.OrderID))
		}
		if a.VehiclePlate == "" {
			return apperr.Validation("veiculo_placa", "Agendamento sem placa não pode ser convertido em ordem de serviço")
		}

		var err error
		order, err = s.orders.CreateTx(tx, actor, orders.OrderInput{
			ClientName:   a.ClientName,
			VehicleModel: a.VehicleModel,
			VehiclePlate: a.VehiclePlate,
			ServiceType:  a.Service,
			Description:  a.Notes,
			Labor:        decimal.Zero,
		})
		if err != nil {
			return err
		}

		if err := tx.Model(&a).Update("order_id", order.ID).Error; err != nil {
			return fmt.Errorf("vincular ordem ao agendamento: %w", err)
		}

		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "appointment",
			EntityID:    a.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Agendamento convertido na ordem de serviço #%d", order.ID),
			After:       map[string]any{"order_id": order.ID},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

const slotTakenMsg = "Horário já agendado. Por favor, escolha outro horário."

func ensureSlotFree(tx *gorm.DB, date, hhmm string, selfID uint) error {
	q := tx.Model(&models.Appointment{}).Where(`"date" = ? AND "time" = ?`, date, hhmm)
	if selfID > 0 {
		q = q.Where("id <> ?", selfID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict(slotTakenMsg)
	}
	return nil
}

func validate(a *models.Appointment) error {
	required := []struct {
		value string
		field string
		label string
	}{
		{a.ClientName, "cliente_nome", "Nome do cliente"},
		{a.VehicleModel, "veiculo_modelo", "Modelo do veículo"},
		{a.Service, "servico", "Serviço"},
		{a.Date, "data", "Data"},
		{a.Time, "hora", "Hora"},
	}
	for _, r := range required {
		if r.value == "" {
			return apperr.Validation(r.field, r.label+" é obrigatório")
		}
	}
	if err := validateDate("data", a.Date); err != nil {
		return err
	}
	if t, err := time.Parse(timeLayout, a.Time); err != nil || t.Format(timeLayout) != a.Time {
		return apperr.Validation("hora", "Formato de hora inválido. Use o formato HH:MM")
	}
	return nil
}

// validateDate exige YYYY-MM-DD exato; a comparação por texto depende disso.
func validateDate(field, s string) error {
	if t, err := time.Parse(pagination.DateLayout, s); err != nil || t.Format(pagination.DateLayout) != s {
		return apperr.Validation(field, "Formato de data inválido. Use o formato YYYY-MM-DD")
	}
	return nil
}
