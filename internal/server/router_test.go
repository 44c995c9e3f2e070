package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oficina-backend/internal/auth"
	"oficina-backend/internal/config"
	"oficina-backend/internal/database/dbtest"
	"oficina-backend/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminEmail    = "admin@oficina.com"
	adminPassword = "admin123"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db := dbtest.Open(t)

	cfg := &config.Config{
		App:      config.AppConfig{Name: "oficina-backend", Env: "test"},
		Database: config.DatabaseConfig{TxTimeout: 5 * time.Second},
		Auth: config.AuthConfig{
			JWTSecret:          "0123456789abcdef0123456789abcdef",
			SessionTTL:         time.Hour,
			CookieName:         "oficina_session",
			LoginRatePerMinute: 60,
			LoginBurst:         10,
		},
		HTTP: config.HTTPConfig{CORSOrigins: "http://localhost:5173"},
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	revoker := auth.NewMemoryRevoker()
	seed := auth.NewService(db, tokens, revoker, cfg.Database.TxTimeout)
	require.NoError(t, seed.EnsureAdmin(context.Background(), zap.NewNop(), "Administrador", adminEmail, adminPassword))

	return New(Deps{
		Config:  cfg,
		DB:      db,
		Log:     zap.NewNop(),
		Tokens:  tokens,
		Revoker: revoker,
		Metrics: metrics.New(),
	})
}

type client struct {
	t      *testing.T
	app    *fiber.App
	cookie *http.Cookie
}

func (cl *client) do(method, path, body string) (int, map[string]any, string) {
	cl.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	resp, err := cl.app.Test(req, -1)
	require.NoError(cl.t, err)
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name == "oficina_session" && c.Value != "" {
			cl.cookie = c
		}
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(cl.t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(cl.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out, string(raw)
}

func TestHealthAndAuthGate(t *testing.T) {
	cl := &client{t: t, app: newTestApp(t)}

	status, body, _ := cl.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body, _ = cl.do(http.MethodGet, "/api/pecas", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "NAO_AUTENTICADO", body["codigo"])

	status, _, _ = cl.do(http.MethodPost, "/api/auth/login", `{"email":"`+adminEmail+`","senha":"errada"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWorkshopDay(t *testing.T) {
	cl := &client{t: t, app: newTestApp(t)}

	status, _, raw := cl.do(http.MethodPost, "/api/auth/login", `{"email":"`+adminEmail+`","senha":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, status, raw)
	require.NotNil(t, cl.cookie)

	status, part, raw := cl.do(http.MethodPost, "/api/pecas", `{"nome":"Óleo 5W30","preco_compra":25,"preco_venda":40,"quantidade":10}`)
	require.Equal(t, http.StatusCreated, status, raw)
	partID := int(part["id"].(float64))

	status, created, raw := cl.do(http.MethodPost, "/api/ordem-servico", fmt.Sprintf(`{
		"cliente_nome": "Marcos Lima",
		"veiculo_modelo": "VW Gol",
		"veiculo_placa": "MLI4C56",
		"tipo_servico": "Troca de óleo",
		"valor_mao_obra": 60,
		"pecas": [{"peca_id": %d, "quantidade": 4}]
	}`, partID))
	require.Equal(t, http.StatusCreated, status, raw)
	orderID := int(created["id"].(float64))

	status, part, _ = cl.do(http.MethodGet, fmt.Sprintf("/api/pecas/%d", partID), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 6.0, part["quantidade"])

	status, _, raw = cl.do(http.MethodPut, fmt.Sprintf("/api/ordem-servico/%d/finalizar", orderID), "")
	require.Equal(t, http.StatusOK, status, raw)

	status, summary, raw := cl.do(http.MethodGet, "/api/financeiro/resumo?periodo=dia", "")
	require.Equal(t, http.StatusOK, status, raw)
	assert.Equal(t, 220.0, summary["total_entradas"])
	assert.Equal(t, 250.0, summary["total_saidas"])
	assert.Equal(t, -30.0, summary["saldo"])

	status, overview, _ := cl.do(http.MethodGet, "/api/dashboard/resumo", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, overview["ordens_abertas"])
	assert.Equal(t, 1.0, overview["ordens_finalizadas_hoje"])

	status, _, _ = cl.do(http.MethodGet, "/api/audit-logs", "")
	assert.Equal(t, http.StatusOK, status)

	status, _, text := cl.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, text, `oficina_order_events_total{event="finalized"} 1`)
	assert.Contains(t, text, `route="/api/ordem-servico/:id/finalizar"`)

	status, _, _ = cl.do(http.MethodGet, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, status)
	status, _, _ = cl.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	cl := &client{t: t, app: newTestApp(t)}

	status, _, _ := cl.do(http.MethodPost, "/api/auth/login", `{"email":"`+adminEmail+`","senha":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, status)

	status, _, raw := cl.do(http.MethodPost, "/api/auth/cadastrar", `{"nome":"Rafa","email":"rafa@oficina.com","senha":"segredo1"}`)
	require.Equal(t, http.StatusCreated, status, raw)

	staff := &client{t: t, app: cl.app}
	status, _, _ = staff.do(http.MethodPost, "/api/auth/login", `{"email":"rafa@oficina.com","senha":"segredo1"}`)
	require.Equal(t, http.StatusOK, status)

	status, _, _ = staff.do(http.MethodPost, "/api/auth/cadastrar", `{"nome":"Outro","email":"outro@oficina.com","senha":"segredo1"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = staff.do(http.MethodGet, "/api/audit-logs", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = staff.do(http.MethodGet, "/api/ordem-servico", "")
	assert.Equal(t, http.StatusOK, status)
}
