package inventory

import (
	"strconv"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/auth"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type PartResponse struct {
	ID            uint      `json:"id"`
	Name          string    `json:"nome"`
	PurchasePrice float64   `json:"preco_compra"`
	SalePrice     float64   `json:"preco_venda"`
	Quantity      int       `json:"quantidade"`
	CreatedAt     time.Time `json:"criado_em"`
	UpdatedAt     time.Time `json:"atualizado_em"`
}

type UsageResponse struct {
	OrderID    uint      `json:"ordem_id"`
	ClientName string    `json:"cliente_nome"`
	Quantity   int       `json:"quantidade"`
	UnitPrice  float64   `json:"valor_unitario"`
	Total      float64   `json:"valor_total"`
	CreatedAt  time.Time `json:"data"`
}

type PartDetailResponse struct {
	PartResponse
	Usages []UsageResponse `json:"ultimos_usos"`
}

type CreatePartRequest struct {
	Name          string  `json:"nome" validate:"required"`
	PurchasePrice float64 `json:"preco_compra" validate:"gt=0"`
	SalePrice     float64 `json:"preco_venda" validate:"gt=0"`
	Quantity      int     `json:"quantidade" validate:"gte=0"`
}

type UpdatePartRequest struct {
	Name          *string  `json:"nome"`
	PurchasePrice *float64 `json:"preco_compra"`
	SalePrice     *float64 `json:"preco_venda"`
}

func toPartResponse(p *models.Part) PartResponse {
	return PartResponse{
		ID:            p.ID,
		Name:          p.Name,
		PurchasePrice: p.PurchasePrice.InexactFloat64(),
		SalePrice:     p.SalePrice.InexactFloat64(),
		Quantity:      p.Quantity,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("id", "ID inválido")
	}
	return uint(id), nil
}

func optionalInt(c *fiber.Ctx, key string) (*int, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, apperr.Validation(key, key+" deve ser um número inteiro")
	}
	return &n, nil
}

// GET /api/pecas?nome=filtro&estoque_min=0&estoque_max=5&page=1&limit=10
func ListPartsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := PartFilter{Name: c.Query("nome")}
		var err error
		if f.MinQuantity, err = optionalInt(c, "estoque_min"); err != nil {
			return err
		}
		if f.MaxQuantity, err = optionalInt(c, "estoque_max"); err != nil {
			return err
		}
		page := pagination.FromQuery(c)

		parts, total, err := svc.List(c.UserContext(), f, page)
		if err != nil {
			return err
		}

		res := make([]PartResponse, 0, len(parts))
		for i := range parts {
			res = append(res, toPartResponse(&parts[i]))
		}
		return c.JSON(pagination.NewResult(res, total, page))
	}
}

// GET /api/pecas/:id
func GetPartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		detail, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}

		res := PartDetailResponse{
			PartResponse: toPartResponse(&detail.Part),
			Usages:       make([]UsageResponse, 0, len(detail.Usages)),
		}
		for _, u := range detail.Usages {
			res.Usages = append(res.Usages, UsageResponse{
				OrderID:    u.OrderID,
				ClientName: u.ClientName,
				Quantity:   u.Quantity,
				UnitPrice:  u.UnitPrice.InexactFloat64(),
				Total:      u.Total.InexactFloat64(),
				CreatedAt:  u.CreatedAt,
			})
		}
		return c.JSON(res)
	}
}

// POST /api/pecas
func CreatePartHandler(svc *Service, v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreatePartRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}

		part, err := svc.Create(c.UserContext(), auth.ActorFrom(c), PartInput{
			Name:          body.Name,
			PurchasePrice: decimal.NewFromFloat(body.PurchasePrice),
			SalePrice:     decimal.NewFromFloat(body.SalePrice),
			Quantity:      body.Quantity,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toPartResponse(part))
	}
}

// PUT /api/pecas/:id
func UpdatePartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdatePartRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		patch := PartPatch{Name: body.Name}
		if body.PurchasePrice != nil {
			d := decimal.NewFromFloat(*body.PurchasePrice)
			patch.PurchasePrice = &d
		}
		if body.SalePrice != nil {
			d := decimal.NewFromFloat(*body.SalePrice)
			patch.SalePrice = &d
		}

		part, err := svc.Update(c.UserContext(), auth.ActorFrom(c), id, patch)
		if err != nil {
			return err
		}
		return c.JSON(toPartResponse(part))
	}
}

// DELETE /api/pecas/:id
func DeletePartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), auth.ActorFrom(c), id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"mensagem": "Peça excluída com sucesso"})
	}
}
