package auth

import (
	"strings"

	"oficina-backend/internal/audit"
	"oficina-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
	CtxClaimsKey   = "session_claims"
)

// Middleware aceita o cookie de sessão ou "Authorization: Bearer <token>".
func Middleware(tokens *TokenManager, revoker Revoker, cookieName string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := extractToken(c, cookieName)
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Não autenticado")
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Sessão inválida ou expirada")
		}

		revoked, err := revoker.IsRevoked(c.UserContext(), claims.ID)
		if err != nil {
			log.Error("consulta de revogação falhou", zap.Error(err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "Não foi possível validar a sessão")
		}
		if revoked {
			return fiber.NewError(fiber.StatusUnauthorized, "Sessão encerrada")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserNameKey, claims.Name)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxClaimsKey, claims)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Cargo não identificado")
		}
		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Você não tem permissão para esta operação")
	}
}

// ActorFrom converte a sessão autenticada no Actor passado aos serviços.
func ActorFrom(c *fiber.Ctx) audit.Actor {
	id, _ := c.Locals(CtxUserIDKey).(uint)
	name, _ := c.Locals(CtxUserNameKey).(string)
	return audit.Actor{UserID: id, UserName: name}
}

func extractToken(c *fiber.Ctx, cookieName string) string {
	if v := c.Cookies(cookieName); v != "" {
		return v
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
