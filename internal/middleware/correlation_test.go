package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newCorrelationApp(seen *string) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		*seen = CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestCorrelationIDReusesInboundHeader(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)

	require.Equal(t, "req-42", resp.Header.Get(CorrelationHeader))
	require.Equal(t, "req-42", seen)
}

func TestCorrelationIDReplacesOversizedHeader(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, strings.Repeat("x", maxCorrelationLen+1))
	resp, err := app.Test(req)
	require.NoError(t, err)

	id := resp.Header.Get(CorrelationHeader)
	require.Len(t, id, 36)
	require.Equal(t, id, seen)
}
