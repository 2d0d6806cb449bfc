package middleware_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/middleware"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})
	return app
}

func TestCorrelationIDReusesIncomingHeader(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-42")

	resp, err := correlationApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "req-42", resp.Header.Get(middleware.CorrelationHeader))
}

func TestCorrelationIDReplacesMalformedHeader(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, strings.Repeat("x", 300))

	resp, err := correlationApp().Test(req, -1)
	require.NoError(t, err)
	id := resp.Header.Get(middleware.CorrelationHeader)
	require.Len(t, id, 36)
}
