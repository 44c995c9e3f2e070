package inventory

import (
	"oficina-backend/internal/auth"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type StockAdjustmentRequest struct {
	Quantity  int    `json:"quantidade" validate:"gt=0"`
	Operation string `json:"operacao" validate:"required,oneof=entrada saida"`
	Reason    string `json:"motivo"`
}

// POST /api/pecas/:id/estoque
func AdjustStockHandler(svc *Service, v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body StockAdjustmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}

		part, err := svc.AdjustStock(c.UserContext(), auth.ActorFrom(c), id, StockAdjustment{
			Quantity:  body.Quantity,
			Operation: StockOperation(body.Operation),
			Reason:    body.Reason,
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"mensagem": "Estoque atualizado com sucesso",
			"peca":     toPartResponse(part),
		})
	}
}
