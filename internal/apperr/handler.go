package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Response é o corpo de erro de todas as rotas.
type Response struct {
	Message string         `json:"mensagem"`
	Code    string         `json:"codigo"`
	Field   string         `json:"campo,omitempty"`
	Details map[string]any `json:"detalhes,omitempty"`
}

// Handler é o ErrorHandler do fiber: *Error vira o status do seu Kind,
// *fiber.Error mantém o status e o resto vira 500 com mensagem genérica.
func Handler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e := As(err); e != nil {
			if e.Kind == KindStorage || e.Kind == 0 {
				log.Error("falha de armazenamento",
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.Error(err))
				return c.Status(fiber.StatusInternalServerError).JSON(Response{
					Message: "Erro interno do servidor",
					Code:    KindStorage.Code(),
				})
			}
			return c.Status(e.Kind.Status()).JSON(Response{
				Message: e.Message,
				Code:    e.Kind.Code(),
				Field:   e.Field,
				Details: e.Details,
			})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(Response{
				Message: fe.Message,
				Code:    codeForStatus(fe.Code),
			})
		}

		log.Error("erro inesperado",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(Response{
			Message: "Erro interno do servidor",
			Code:    KindStorage.Code(),
		})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return KindValidation.Code()
	case fiber.StatusUnauthorized:
		return "NAO_AUTENTICADO"
	case fiber.StatusForbidden:
		return "ACESSO_NEGADO"
	case fiber.StatusNotFound:
		return KindNotFound.Code()
	case fiber.StatusConflict:
		return KindConflict.Code()
	case fiber.StatusTooManyRequests:
		return "LIMITE_EXCEDIDO"
	default:
		if status >= 500 {
			return KindStorage.Code()
		}
		return "ERRO"
	}
}
