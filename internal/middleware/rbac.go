package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/utils"
)

// roleSet is a normalised set of role names.
type roleSet map[string]struct{}

func newRoleSet(roles ...string) roleSet {
	set := make(roleSet, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func (s roleSet) has(role string) bool {
	_, ok := s[role]
	return ok
}

var staffRoles = newRoleSet(models.RoleAdmin, models.RoleCoordinator)

// RequireRole admits requests whose JWT role is one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := newRoleSet(roles...)
	return func(c *fiber.Ctx) error {
		if !allowed.has(roleFromLocals(c)) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func roleFromLocals(c *fiber.Ctx) string {
	role, _ := c.Locals("user_role").(string)
	return normalizeRole(role)
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
