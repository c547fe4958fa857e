package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/auth"
	"github.com/vocaldocs/api/pkg/response"
)

// GatewayAuthMiddleware trusts the X-User-* headers set by a gateway that
// already ran /auth/verify.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		SetPrincipal(c, &auth.Principal{
			UserID:   userID,
			Email:    c.Get("X-User-Email"),
			Username: c.Get("X-User-Name"),
		})
		return c.Next()
	}
}
