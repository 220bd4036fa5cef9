package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/fyp-go-api/internal/utils"
)

// Role selectors accepted by WithAuth.
const (
	AuthRoleAny     = "any"
	AuthRoleStaff   = "staff"
	AuthRoleStudent = "student"
)

// AuthOptions configures WithAuth. AllowAnonymous only applies to
// AuthRoleAny.
type AuthOptions struct {
	Role           string
	AllowAnonymous bool
}

// WithAuth guards a single handler. AuthRoleStaff admits admins and
// coordinators; any other selector must match the caller's role exactly.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	selector := normalizeRole(opts.Role)
	if selector == "" {
		selector = AuthRoleAny
	}
	anonymousOK := selector == AuthRoleAny && opts.AllowAnonymous

	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals("user_id").(uint); !ok && !anonymousOK {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !selectorAdmits(selector, roleFromLocals(c)) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return handler(c)
	}
}

func selectorAdmits(selector, role string) bool {
	switch selector {
	case AuthRoleAny:
		return true
	case AuthRoleStaff:
		return staffRoles.has(role)
	default:
		return selector == role
	}
}
