package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/middleware"
)

type caller struct {
	id   interface{}
	role interface{}
}

func guardedApp(who *caller, opts middleware.AuthOptions) *fiber.App {
	app := fiber.New()
	if who != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("user_id", who.id)
			c.Locals("user_role", who.role)
			return c.Next()
		})
	}
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, opts))
	return app
}

func TestWithAuthSelectors(t *testing.T) {
	cases := []struct {
		name   string
		who    *caller
		opts   middleware.AuthOptions
		status int
	}{
		{"student matches case-insensitively", &caller{uint(10), "Student"}, middleware.AuthOptions{Role: middleware.AuthRoleStudent}, fiber.StatusNoContent},
		{"supervisor is not a student", &caller{uint(20), "supervisor"}, middleware.AuthOptions{Role: middleware.AuthRoleStudent}, fiber.StatusForbidden},
		{"staff admits admin", &caller{uint(1), "admin"}, middleware.AuthOptions{Role: middleware.AuthRoleStaff}, fiber.StatusNoContent},
		{"staff admits coordinator", &caller{uint(2), "coordinator"}, middleware.AuthOptions{Role: middleware.AuthRoleStaff}, fiber.StatusNoContent},
		{"staff rejects committee", &caller{uint(30), "committee"}, middleware.AuthOptions{Role: middleware.AuthRoleStaff}, fiber.StatusForbidden},
		{"exact role selector", &caller{uint(30), "committee"}, middleware.AuthOptions{Role: "committee"}, fiber.StatusNoContent},
		{"any admits any role", &caller{uint(30), "committee"}, middleware.AuthOptions{}, fiber.StatusNoContent},
		{"any requires a user", nil, middleware.AuthOptions{Role: middleware.AuthRoleAny}, fiber.StatusUnauthorized},
		{"non-uint id is anonymous", &caller{"10", "student"}, middleware.AuthOptions{Role: middleware.AuthRoleStudent}, fiber.StatusUnauthorized},
		{"anonymous opt-in", nil, middleware.AuthOptions{AllowAnonymous: true}, fiber.StatusNoContent},
		{"anonymous opt-in ignored for staff", nil, middleware.AuthOptions{Role: middleware.AuthRoleStaff, AllowAnonymous: true}, fiber.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := perform(t, guardedApp(tc.who, tc.opts))
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
