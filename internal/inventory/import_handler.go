package inventory

import (
	"strings"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type ImportResponse struct {
	Message   string `json:"mensagem"`
	Rows      int    `json:"linhas"`
	Created   int    `json:"cadastradas"`
	Restocked int    `json:"reabastecidas"`
}

// POST /api/pecas/importar (multipart, campo "arquivo")
func ImportPartsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("arquivo")
		if err != nil {
			return apperr.Validation("arquivo", "Arquivo não enviado")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return apperr.Validation("arquivo", "Somente arquivos .xlsx são aceitos")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return apperr.Storage("Erro ao abrir o arquivo", err)
		}
		defer file.Close()

		res, err := svc.Import(c.UserContext(), auth.ActorFrom(c), file)
		if err != nil {
			return err
		}

		return c.JSON(ImportResponse{
			Message:   "Planilha importada com sucesso",
			Rows:      res.Rows,
			Created:   res.Created,
			Restocked: res.Restocked,
		})
	}
}
