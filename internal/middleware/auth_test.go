package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aswaq/internal/config"
	"github.com/example/aswaq/internal/utils"
)

func testApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected", AuthMiddleware(cfg), func(c *fiber.Ctx) error {
		id, _ := GetCurrentUserID(c)
		return c.JSON(fiber.Map{"id": id.String()})
	})
	app.Get("/admin", AuthMiddleware(cfg), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	app := testApp(cfg)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := utils.GenerateToken(cfg.JWTSecret, uuid.New(), "customer", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}

func TestRequireAdmin(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	app := testApp(cfg)

	customerToken, err := utils.GenerateToken(cfg.JWTSecret, uuid.New(), "customer", time.Hour)
	require.NoError(t, err)
	adminToken, err := utils.GenerateToken(cfg.JWTSecret, uuid.New(), "admin", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+customerToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
