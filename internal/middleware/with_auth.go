package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/utils"
)

// Auth role constants used by WithAuth.
const (
	AuthRoleAny     = "any"
	AuthRoleTeacher = models.RoleTeacher
	AuthRoleStudent = models.RoleStudent
)

// AuthOptions configures WithAuth.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with authentication and role guards. Admins pass teacher checks.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id")
		if requireUser && userID == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if role == AuthRoleAny {
			return handler(c)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		allowed := currentRole == role
		if role == AuthRoleTeacher && currentRole == models.RoleAdmin {
			allowed = true
		}
		if !allowed {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", map[string]string{"required_role": role})
		}

		return handler(c)
	}
}
