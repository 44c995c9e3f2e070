package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/database/dbtest"
	"oficina-backend/internal/models"
	"oficina-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T) (*Service, *TokenManager, *MemoryRevoker) {
	t.Helper()
	db := dbtest.Open(t)
	tokens := NewTokenManager(secret, time.Hour)
	revoker := NewMemoryRevoker()
	return NewService(db, tokens, revoker, 5*time.Second), tokens, revoker
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(secret, time.Hour)
	user := &models.User{ID: 7, Name: "Ana", Email: "ana@oficina.com", Role: models.RoleAdmin}

	token, claims, err := tm.Generate(user)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), parsed.UserID)
	assert.Equal(t, models.RoleAdmin, parsed.Role)
	assert.Equal(t, claims.ID, parsed.ID)

	_, err = NewTokenManager("outro-segredo-com-32-caracteres!!", time.Hour).Parse(token)
	assert.Error(t, err)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager(secret, time.Minute)
	token, _, err := tm.Generate(&models.User{ID: 1})
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.Parse(token)
	assert.Error(t, err)
}

func TestMemoryRevoker(t *testing.T) {
	r := NewMemoryRevoker()
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "abc", time.Minute))
	revoked, err := r.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = r.IsRevoked(ctx, "xyz")
	assert.False(t, revoked)

	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	revoked, _ = r.IsRevoked(ctx, "abc")
	assert.False(t, revoked, "revogação expira junto com o token")

	require.NoError(t, r.Revoke(ctx, "ttl-zero", 0))
	revoked, _ = r.IsRevoked(ctx, "ttl-zero")
	assert.False(t, revoked)
}

func TestLoginLimiter(t *testing.T) {
	l := NewLoginLimiter(1, 2)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, audit.System, RegisterInput{Name: "Carlos", Email: " Carlos@Oficina.com ", Password: "segredo1"})
	require.NoError(t, err)
	assert.Equal(t, "carlos@oficina.com", user.Email)
	assert.Equal(t, models.RoleEmployee, user.Role)
	assert.NotEqual(t, "segredo1", user.PasswordHash)

	_, err = svc.Register(ctx, audit.System, RegisterInput{Name: "Outro", Email: "carlos@oficina.com", Password: "segredo2"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Register(ctx, audit.System, RegisterInput{Name: "X", Email: "x@oficina.com", Password: "123"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	logged, token, err := svc.Login(ctx, "CARLOS@oficina.com", "segredo1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(ctx, "carlos@oficina.com", "errada")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "ninguem@oficina.com", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_EnsureAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, zap.NewNop(), "Administrador", "admin@oficina.com", ""))
	var count int64
	require.NoError(t, svc.db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count, "sem senha configurada nada é criado")

	require.NoError(t, svc.EnsureAdmin(ctx, zap.NewNop(), "Administrador", "admin@oficina.com", "admin123"))
	require.NoError(t, svc.EnsureAdmin(ctx, zap.NewNop(), "Administrador", "admin@oficina.com", "admin123"))
	require.NoError(t, svc.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	admin, _, err := svc.Login(ctx, "admin@oficina.com", "admin123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}

func newApp(svc *Service, tokens *TokenManager, revoker Revoker) *fiber.App {
	cookie := CookieConfig{Name: "oficina_session", TTL: time.Hour}
	v := validation.New()

	app := fiber.New()
	app.Post("/login", LoginHandler(svc, v, cookie))
	app.Get("/logout", LogoutHandler(svc, cookie))
	protected := app.Group("", Middleware(tokens, revoker, cookie.Name, zap.NewNop()))
	protected.Get("/me", MeHandler(svc))
	protected.Get("/admin", RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "oficina_session" {
			return c
		}
	}
	t.Fatal("cookie de sessão ausente")
	return nil
}

func TestSessionFlow(t *testing.T) {
	svc, tokens, revoker := newService(t)
	_, err := svc.Register(context.Background(), audit.System, RegisterInput{Name: "Bia", Email: "bia@oficina.com", Password: "segredo1"})
	require.NoError(t, err)
	app := newApp(svc, tokens, revoker)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"bia@oficina.com","senha":"segredo1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	assert.True(t, cookie.HttpOnly)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "bia@oficina.com")

	// funcionário não passa pelo RequireRole(admin)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "token revogado após logout")
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, tokens, revoker := newService(t)
	_, err := svc.Register(context.Background(), audit.System, RegisterInput{Name: "Bia", Email: "bia@oficina.com", Password: "segredo1"})
	require.NoError(t, err)
	app := newApp(svc, tokens, revoker)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"bia@oficina.com","password":"errada"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddleware_NoToken(t *testing.T) {
	svc, tokens, revoker := newService(t)
	app := newApp(svc, tokens, revoker)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
