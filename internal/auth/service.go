package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/database"
	"oficina-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("credenciais inválidas")

type Service struct {
	db        *gorm.DB
	tokens    *TokenManager
	revoker   Revoker
	txTimeout time.Duration
}

func NewService(db *gorm.DB, tokens *TokenManager, revoker Revoker, txTimeout time.Duration) *Service {
	return &Service{db: db, tokens: tokens, revoker: revoker, txTimeout: txTimeout}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.UserRole
}

// Login confere email/senha e emite o token de sessão.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", apperr.Storage("Erro ao buscar usuário", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, _, err := s.tokens.Generate(&user)
	if err != nil {
		return nil, "", fmt.Errorf("gerar token: %w", err)
	}
	return &user, token, nil
}

// Logout revoga o token até a expiração natural. Token inválido ou já
// expirado não é erro: a sessão já não vale.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, s.tokens.remaining(claims))
}

func (s *Service) Register(ctx context.Context, actor audit.Actor, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" {
		return nil, apperr.Validation("nome", "Nome é obrigatório")
	}
	if in.Email == "" {
		return nil, apperr.Validation("email", "Email é obrigatório")
	}
	if len(in.Password) < 6 {
		return nil, apperr.Validation("senha", "Senha deve ter pelo menos 6 caracteres")
	}
	if in.Role == "" {
		in.Role = models.RoleEmployee
	}
	switch in.Role {
	case models.RoleAdmin, models.RoleEmployee:
	default:
		return nil, apperr.Validation("cargo", "Cargo deve ser 'admin' ou 'funcionario'")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash de senha: %w", err)
	}

	user := models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}

	err = database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("Email já cadastrado")
		}
		if err := tx.Create(&user).Error; err != nil {
			return apperr.FromDB(err, "", "Email já cadastrado", "Erro ao cadastrar usuário")
		}
		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Usuário cadastrado: %s (%s)", user.Email, user.Role),
			After:       map[string]any{"id": user.ID, "name": user.Name, "email": user.Email, "role": user.Role},
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureAdmin cria o administrador inicial quando a tabela de usuários está vazia.
func (s *Service) EnsureAdmin(ctx context.Context, log *zap.Logger, name, email, password string) error {
	if password == "" {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("contar usuários: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := s.Register(ctx, audit.System, RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
	}); err != nil {
		return err
	}
	log.Info("administrador inicial criado", zap.String("email", normalizeEmail(email)))
	return nil
}

func (s *Service) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, apperr.FromDB(err, "Usuário não encontrado", "", "Erro ao buscar usuário")
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
