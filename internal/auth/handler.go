package auth

import (
	"errors"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/models"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// LoginRequest aceita "senha" (cliente web) ou "password".
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Senha    string `json:"senha"`
	Password string `json:"password"`
}

func (r LoginRequest) secret() string {
	if r.Senha != "" {
		return r.Senha
	}
	return r.Password
}

type RegisterRequest struct {
	Name     string          `json:"nome" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"senha" validate:"required,min=6"`
	Role     models.UserRole `json:"cargo" validate:"omitempty,oneof=admin funcionario"`
}

type UserResponse struct {
	ID    uint            `json:"id"`
	Name  string          `json:"nome"`
	Email string          `json:"email"`
	Role  models.UserRole `json:"cargo"`
}

type CookieConfig struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// POST /api/auth/login
func LoginHandler(svc *Service, v *validation.Validator, cookie CookieConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}
		if body.secret() == "" {
			return apperr.Validation("senha", "senha é obrigatório")
		}

		user, token, err := svc.Login(c.UserContext(), body.Email, body.secret())
		if errors.Is(err, ErrInvalidCredentials) {
			return fiber.NewError(fiber.StatusUnauthorized, "Email ou senha incorretos")
		}
		if err != nil {
			return err
		}

		c.Cookie(&fiber.Cookie{
			Name:     cookie.Name,
			Value:    token,
			Path:     "/",
			Expires:  time.Now().Add(cookie.TTL),
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})

		return c.JSON(fiber.Map{
			"mensagem": "Login realizado com sucesso",
			"usuario":  toUserResponse(user),
		})
	}
}

// GET /api/auth/logout
func LogoutHandler(svc *Service, cookie CookieConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := extractToken(c, cookie.Name); token != "" {
			if err := svc.Logout(c.UserContext(), token); err != nil {
				return err
			}
		}

		c.Cookie(&fiber.Cookie{
			Name:     cookie.Name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})

		return c.JSON(fiber.Map{"mensagem": "Logout realizado com sucesso"})
	}
}

// POST /api/auth/cadastrar (somente admin)
func RegisterHandler(svc *Service, v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := v.Struct(body); err != nil {
			return err
		}

		user, err := svc.Register(c.UserContext(), ActorFrom(c), RegisterInput{
			Name:     body.Name,
			Email:    body.Email,
			Password: body.Password,
			Role:     body.Role,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"mensagem": "Usuário cadastrado com sucesso",
			"usuario":  toUserResponse(user),
		})
	}
}

// GET /api/auth/me
func MeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := svc.FindUser(c.UserContext(), ActorFrom(c).UserID)
		if err != nil {
			return err
		}
		return c.JSON(toUserResponse(user))
	}
}
