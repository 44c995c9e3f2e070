package orders

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/auth"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Rótulos de status expostos pela API.
const (
	StatusLabelOpen      = "Em andamento"
	StatusLabelFinalized = "Finalizada"
)

// Year aceita o ano do veículo como número (2015) ou texto ("2015/2016").
type Year string

func (y *Year) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*y = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*y = Year(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*y = Year(n.String())
	return nil
}

type LineItemRequest struct {
	PartID   uint `json:"peca_id" validate:"required"`
	Quantity int  `json:"quantidade" validate:"gt=0"`
}

type CreateOrderRequest struct {
	ClientName   string            `json:"cliente_nome" validate:"required"`
	VehicleModel string            `json:"veiculo_modelo" validate:"required"`
	VehicleYear  Year              `json:"veiculo_ano"`
	VehiclePlate string            `json:"veiculo_placa" validate:"required"`
	ServiceType  string            `json:"tipo_servico" validate:"required"`
	Description  string            `json:"descricao"`
	Labor        float64           `json:"valor_mao_obra" validate:"gte=0"`
	Items        []LineItemRequest `json:"pecas" validate:"dive"`
}

// UpdateOrderRequest: ponteiro nil = campo ausente no JSON.
type UpdateOrderRequest struct {
	ClientName   *string            `json:"cliente_nome"`
	VehicleModel *string            `json:"veiculo_modelo"`
	VehicleYear  *Year              `json:"veiculo_ano"`
	VehiclePlate *string            `json:"veiculo_placa"`
	ServiceType  *string            `json:"tipo_servico"`
	Description  *string            `json:"descricao"`
	Labor        *float64           `json:"valor_mao_obra"`
	Items        *[]LineItemRequest `json:"pecas"`
}

type OrderResponse struct {
	ID           uint       `json:"id"`
	ClientName   string     `json:"cliente_nome"`
	VehicleModel string     `json:"veiculo_modelo"`
	VehicleYear  string     `json:"veiculo_ano"`
	VehiclePlate string     `json:"veiculo_placa"`
	ServiceType  string     `json:"tipo_servico"`
	Description  string     `json:"descricao"`
	PartsTotal   float64    `json:"valor_pecas"`
	LaborTotal   float64    `json:"valor_mao_obra"`
	Total        float64    `json:"valor_total"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"data_criacao"`
	UpdatedAt    time.Time  `json:"data_atualizacao"`
	FinalizedAt  *time.Time `json:"data_finalizacao"`
}

type LineItemResponse struct {
	ID        uint    `json:"id"`
	PartID    uint    `json:"peca_id"`
	PartName  string  `json:"peca_nome,omitempty"`
	Quantity  int     `json:"quantidade"`
	UnitPrice float64 `json:"valor_unitario"`
	Total     float64 `json:"valor_total"`
}

type OrderDetailResponse struct {
	OrderResponse
	Items []LineItemResponse `json:"pecas"`
}

func statusLabel(s models.OrderStatus) string {
	if s == models.OrderStatusFinalized {
		return StatusLabelFinalized
	}
	return StatusLabelOpen
}

// parseStatus aceita o rótulo da API ou o valor interno.
func parseStatus(s string) (models.OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "em andamento", "em_andamento", "aberta", "open":
		return models.OrderStatusOpen, nil
	case "finalizada", "finalized":
		return models.OrderStatusFinalized, nil
	default:
		return "", apperr.Validation("status", "Status deve ser 'Em andamento' ou 'Finalizada'")
	}
}

func ToOrderResponse(o *models.ServiceOrder) OrderResponse {
	return OrderResponse{
		ID:           o.ID,
		ClientName:   o.ClientName,
		VehicleModel: o.VehicleModel,
		VehicleYear:  o.VehicleYear,
		VehiclePlate: o.VehiclePlate,
		ServiceType:  o.ServiceType,
		Description:  o.Description,
		PartsTotal:   o.PartsTotal.InexactFloat64(),
		LaborTotal:   o.LaborTotal.InexactFloat64(),
		Total:        o.Total.InexactFloat64(),
		Status:       statusLabel(o.Status),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		FinalizedAt:  o.FinalizedAt,
	}
}

// withItems monta a resposta com os itens recém gravados (sem nome da peça).
func withItems(o *models.ServiceOrder) OrderDetailResponse {
	res := OrderDetailResponse{
		OrderResponse: ToOrderResponse(o),
		Items:         make([]LineItemResponse, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		res.Items = append(res.Items, LineItemResponse{
			ID:        it.ID,
			PartID:    it.PartID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Total:     it.Total.InexactFloat64(),
		})
	}
	return res
}

func toLineItemInputs(in []LineItemRequest) []LineItemInput {
	out := make([]LineItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, LineItemInput{PartID: it.PartID, Quantity: it.Quantity})
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

// POST /api/ordem-servico
func CreateOrderHandler(svc *Service, v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}

		order, err := svc.Create(c.UserContext(), auth.ActorFrom(c), OrderInput{
			ClientName:   body.ClientName,
			VehicleModel: body.VehicleModel,
			VehicleYear:  string(body.VehicleYear),
			VehiclePlate: body.VehiclePlate,
			ServiceType:  body.ServiceType,
			Description:  body.Description,
			Labor:        decimal.NewFromFloat(body.Labor),
			Items:        toLineItemInputs(body.Items),
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"mensagem": "Ordem de serviço criada com sucesso",
			"id":       order.ID,
			"ordem":    withItems(order),
		})
	}
}

// GET /api/ordem-servico?cliente=&placa=&status=&data_inicio=&data_fim=&page=&limit=
func ListOrdersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := OrderFilter{Client: c.Query("cliente"), Plate: c.Query("placa")}
		if s := c.Query("status"); s != "" {
			status, err := parseStatus(s)
			if err != nil {
				return err
			}
			f.Status = &status
		}
		from, to, err := pagination.DateRange(c)
		if err != nil {
			return err
		}
		f.From, f.To = from, to
		page := pagination.FromQuery(c)

		orders, total, err := svc.List(c.UserContext(), f, page)
		if err != nil {
			return err
		}

		res := make([]OrderResponse, 0, len(orders))
		for i := range orders {
			res = append(res, ToOrderResponse(&orders[i]))
		}
		return c.JSON(pagination.NewResult(res, total, page))
	}
}

// GET /api/ordem-servico/:id
func GetOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		detail, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}

		res := OrderDetailResponse{
			OrderResponse: ToOrderResponse(&detail.Order),
			Items:         make([]LineItemResponse, 0, len(detail.Items)),
		}
		for _, it := range detail.Items {
			res.Items = append(res.Items, LineItemResponse{
				ID:        it.ID,
				PartID:    it.PartID,
				PartName:  it.PartName,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice.InexactFloat64(),
				Total:     it.Total.InexactFloat64(),
			})
		}
		return c.JSON(res)
	}
}

// PUT /api/ordem-servico/:id
func UpdateOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		patch := OrderPatch{
			ClientName:   body.ClientName,
			VehicleModel: body.VehicleModel,
			VehiclePlate: body.VehiclePlate,
			ServiceType:  body.ServiceType,
			Description:  body.Description,
		}
		if body.VehicleYear != nil {
			year := string(*body.VehicleYear)
			patch.VehicleYear = &year
		}
		if body.Labor != nil {
			labor := decimal.NewFromFloat(*body.Labor)
			patch.Labor = &labor
		}
		if body.Items != nil {
			items := toLineItemInputs(*body.Items)
			patch.Items = &items
		}

		order, err := svc.Update(c.UserContext(), auth.ActorFrom(c), id, patch)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"mensagem": "Ordem de serviço atualizada com sucesso",
			"ordem":    withItems(order),
		})
	}
}

// DELETE /api/ordem-servico/:id
func DeleteOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), auth.ActorFrom(c), id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"mensagem": "Ordem de serviço excluída com sucesso"})
	}
}

// PUT /api/ordem-servico/:id/finalizar
func FinalizeOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		order, err := svc.Finalize(c.UserContext(), auth.ActorFrom(c), id)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"mensagem": "Ordem de serviço finalizada com sucesso",
			"ordem":    ToOrderResponse(order),
		})
	}
}
