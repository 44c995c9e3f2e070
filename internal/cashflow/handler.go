package cashflow

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

type CreateEntryRequest struct {
	Kind        string  `json:"tipo" validate:"required,oneof=entrada saida"`
	Description string  `json:"descricao" validate:"required"`
	Amount      float64 `json:"valor" validate:"gt=0"`
	Date        string  `json:"data" validate:"omitempty,date"` // vazio = hoje
}

type EntryResponse struct {
	ID          uint      `json:"id"`
	Kind        string    `json:"tipo"`
	Description string    `json:"descricao"`
	Amount      float64   `json:"valor"`
	Date        string    `json:"data"`
	Source      string    `json:"origem"`
	OrderID     *uint     `json:"ordem_id,omitempty"`
	PartID      *uint     `json:"peca_id,omitempty"`
	CreatedAt   time.Time `json:"criado_em"`
}

func toEntryResponse(e *models.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		Kind:        kindLabel(e.Kind),
		Description: e.Description,
		Amount:      e.Amount.InexactFloat64(),
		Date:        e.OccurredAt.Format(pagination.DateLayout),
		Source:      string(e.Source),
		OrderID:     e.OrderID,
		PartID:      e.PartID,
		CreatedAt:   e.CreatedAt,
	}
}

// parseKind converte entrada/saida da API para o tipo interno.
func parseKind(s string) (models.LedgerKind, error) {
	switch s {
	case "entrada":
		return models.LedgerCredit, nil
	case "saida":
		return models.LedgerDebit, nil
	default:
		return "", apperr.Validation("tipo", "Tipo deve ser 'entrada' ou 'saida'")
	}
}

// filterFromQuery lê tipo, data_inicio e data_fim.
func filterFromQuery(c *fiber.Ctx) (EntryFilter, error) {
	var f EntryFilter
	if s := c.Query("tipo"); s != "" {
		kind, err := parseKind(s)
		if err != nil {
			return f, err
		}
		f.Kind = &kind
	}
	from, to, err := pagination.DateRange(c)
	if err != nil {
		return f, err
	}
	f.From, f.To = from, to
	return f, nil
}

// POST /api/financeiro
func CreateEntryHandler(svc *Service, v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateEntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}

		kind, err := parseKind(body.Kind)
		if err != nil {
			return err
		}

		in := EntryInput{
			Kind:        kind,
			Description: body.Description,
			Amount:      decimal.NewFromFloat(body.Amount),
		}
		if body.Date != "" {
			d, err := time.ParseInLocation(pagination.DateLayout, body.Date, time.UTC)
			if err != nil {
				return apperr.Validation("data", "data deve estar no formato YYYY-MM-DD")
			}
			in.Date = &d
		}

		entry, err := svc.CreateEntry(c.UserContext(), auth.ActorFrom(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toEntryResponse(entry))
	}
}

// GET /api/financeiro?tipo=entrada&data_inicio=2025-01-01&data_fim=2025-01-31&page=1&limit=10
func ListEntriesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return err
		}
		page := pagination.FromQuery(c)

		entries, total, err := svc.ListEntries(c.UserContext(), f, page)
		if err != nil {
			return err
		}

		resp := make([]EntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, toEntryResponse(&entries[i]))
		}
		return c.JSON(pagination.NewResult(resp, total, page))
	}
}

// DELETE /api/financeiro/:id
func DeleteEntryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			return apperr.Validation("id", "ID inválido")
		}
		if err := svc.DeleteEntry(c.UserContext(), auth.ActorFrom(c), uint(id)); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"mensagem": "Lançamento excluído com sucesso"})
	}
}
