package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"

	"github.com/noah-isme/classroom-api/internal/utils"
)

// RateLimit throttles each authenticated caller to max requests per window.
// Anonymous callers share a bucket per IP. Websocket upgrades are not counted
// because a stream stays open for the whole session.
func RateLimit(scope string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Next: func(c *fiber.Ctx) bool {
			return websocket.IsWebSocketUpgrade(c)
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			session := SessionFromContext(c)
			if session.UserID == 0 {
				return fmt.Sprintf("%s:ip:%s", scope, c.IP())
			}
			return fmt.Sprintf("%s:user:%d", scope, session.UserID)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests, slow down")
		},
	})
}
