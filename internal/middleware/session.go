package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/classroom-api/internal/roster"
)

// SessionFromContext builds the roster session of the authenticated caller from
// the locals populated by JWTProtected. Anonymous callers get an empty role,
// which sees nothing.
func SessionFromContext(c *fiber.Ctx) roster.Session {
	if cached, ok := c.Locals(sessionLocal).(roster.Session); ok {
		return cached
	}

	session := roster.Session{
		Role: roster.ParseRole(normalizeRoleValue(c.Locals("user_role"))),
	}
	if id, ok := c.Locals("user_id").(uint); ok {
		session.UserID = id
	}
	if sectionID, ok := c.Locals("section_id").(uint); ok {
		session.SectionID = &sectionID
	}
	return session
}
