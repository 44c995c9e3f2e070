package schedule

import (
	"strconv"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/auth"
	"oficina-backend/internal/models"
	"oficina-backend/internal/orders"
	"oficina-backend/internal/pagination"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type AppointmentRequest struct {
	ClientName   string `json:"cliente_nome" validate:"required"`
	VehicleModel string `json:"veiculo_modelo" validate:"required"`
	VehiclePlate string `json:"veiculo_placa"`
	Service      string `json:"servico" validate:"required"`
	Date         string `json:"data" validate:"required,date"`
	Time         string `json:"hora" validate:"required,hhmm"`
	Notes        string `json:"observacoes"`
}

type UpdateAppointmentRequest struct {
	ClientName   *string `json:"cliente_nome"`
	VehicleModel *string `json:"veiculo_modelo"`
	VehiclePlate *string `json:"veiculo_placa"`
	Service      *string `json:"servico"`
	Date         *string `json:"data"`
	Time         *string `json:"hora"`
	Notes        *string `json:"observacoes"`
}

type AppointmentResponse struct {
	ID           uint      `json:"id"`
	ClientName   string    `json:"cliente_nome"`
	VehicleModel string    `json:"veiculo_modelo"`
	VehiclePlate string    `json:"veiculo_placa"`
	Service      string    `json:"servico"`
	Date         string    `json:"data"`
	Time         string    `json:"hora"`
	Notes        string    `json:"observacoes"`
	OrderID      *uint     `json:"ordem_servico_id"`
	CreatedAt    time.Time `json:"data_criacao"`
}

func toResponse(a *models.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		ClientName:   a.ClientName,
		VehicleModel: a.VehicleModel,
		VehiclePlate: a.VehiclePlate,
		Service:      a.Service,
		Date:         a.Date,
		Time:         a.Time,
		Notes:        a.Notes,
		OrderID:      a.OrderID,
		CreatedAt:    a.CreatedAt,
	}
}

func toResponses(list []models.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	return out
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("id", "ID inválido")
	}
	return uint(id), nil
}

// GET /api/agenda?cliente=&data_inicio=&data_fim=&page=&limit=
func ListHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := pagination.FromQuery(c)
		list, total, err := svc.List(c.UserContext(), Filter{
			Client: c.Query("cliente"),
			From:   c.Query("data_inicio"),
			To:     c.Query("data_fim"),
		}, page)
		if err != nil {
			return err
		}
		return c.JSON(pagination.NewResult(toResponses(list), total, page))
	}
}

// GET /api/agenda/dia/:data
func ListByDayHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := svc.ListByDay(c.UserContext(), c.Params("data"))
		if err != nil {
			return err
		}
		return c.JSON(toResponses(list))
	}
}

// GET /api/agenda/:id
func GetHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		a, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(a))
	}
}

// POST /api/agenda
func CreateHandler(svc *Service, v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AppointmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}

		a, err := svc.Create(c.UserContext(), auth.ActorFrom(c), AppointmentInput{
			ClientName:   body.ClientName,
			VehicleModel: body.VehicleModel,
			VehiclePlate: body.VehiclePlate,
			Service:      body.Service,
			Date:         body.Date,
			Time:         body.Time,
			Notes:        body.Notes,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"mensagem":    "Agendamento criado com sucesso",
			"agendamento": toResponse(a),
		})
	}
}

// PUT /api/agenda/:id
func UpdateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdateAppointmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		a, err := svc.Update(c.UserContext(), auth.ActorFrom(c), id, AppointmentPatch{
			ClientName:   body.ClientName,
			VehicleModel: body.VehicleModel,
			VehiclePlate: body.VehiclePlate,
			Service:      body.Service,
			Date:         body.Date,
			Time:         body.Time,
			Notes:        body.Notes,
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"mensagem":    "Agendamento atualizado com sucesso",
			"agendamento": toResponse(a),
		})
	}
}

// DELETE /api/agenda/:id
func DeleteHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), auth.ActorFrom(c), id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"mensagem": "Agendamento excluído com sucesso"})
	}
}

// POST /api/agenda/:id/converter
func ConvertHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		order, err := svc.Convert(c.UserContext(), auth.ActorFrom(c), id)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"mensagem": "Agendamento convertido em ordem de serviço com sucesso",
			"id":       order.ID,
			"ordem":    orders.ToOrderResponse(order),
		})
	}
}
