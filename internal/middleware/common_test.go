package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func corsOrigin(t *testing.T, cfg Config, origin string) string {
	t.Helper()
	app := fiber.New()
	Register(app, cfg)
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", origin)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(HeaderCorrelationID))
	return resp.Header.Get("Access-Control-Allow-Origin")
}

func TestRegisterRestrictsConfiguredOrigins(t *testing.T) {
	cfg := Config{AllowOrigins: "https://class.example.com"}

	require.Equal(t, "https://class.example.com", corsOrigin(t, cfg, "https://class.example.com"))
	require.Empty(t, corsOrigin(t, cfg, "https://elsewhere.example.com"))
}

func TestRegisterAllowsAnyOriginByDefault(t *testing.T) {
	require.Equal(t, "*", corsOrigin(t, Config{}, "https://elsewhere.example.com"))
}
