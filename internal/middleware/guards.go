package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/classroom-api/internal/roster"
	"github.com/noah-isme/classroom-api/internal/utils"
)

const sessionLocal = "roster_session"

// RequireSession rejects callers without a verified user id or whose role the
// roster does not know. The resolved session is cached on the request.
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		session := SessionFromContext(c)
		if session.UserID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !session.Role.Known() {
			return utils.SendError(c, fiber.StatusForbidden, "unknown role")
		}
		c.Locals(sessionLocal, session)
		return c.Next()
	}
}

// RequireRole lets the request through only when the caller's role is one of roles.
func RequireRole(roles ...roster.Role) fiber.Handler {
	allowed := make(map[roster.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[roster.ParseRole(string(role))] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[SessionFromContext(c).Role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireAdmin restricts a route to administrators.
func RequireAdmin() fiber.Handler {
	return RequireRole(roster.RoleAdmin)
}

// RequireStaff restricts a route to administrators and teachers.
func RequireStaff() fiber.Handler {
	return RequireRole(roster.RoleAdmin, roster.RoleTeacher)
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case roster.Role:
		return string(v)
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
