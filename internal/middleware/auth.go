package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/auth"
	"github.com/vocaldocs/api/pkg/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	authenticator *auth.Authenticator
	allowQuery    bool
}

// NewAuthMiddleware creates auth middleware with user pool verification
// and, when jwtSecret is set, HMAC development tokens.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: &auth.Authenticator{Verifier: verifier, JWTSecret: jwtSecret},
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return NewAuthMiddleware(nil, jwtSecret)
}

// WithQueryToken returns a copy that also accepts ?access_token=, for
// browser WebSocket clients that cannot set headers.
func (m *AuthMiddleware) WithQueryToken() *AuthMiddleware {
	cp := *m
	cp.allowQuery = true
	return &cp
}

// Authenticate validates JWT token from Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, msg := m.token(c)
		if tokenString == "" {
			return response.Unauthorized(c, msg)
		}

		principal, err := m.authenticator.Authenticate(tokenString)
		if errors.Is(err, auth.ErrNotConfigured) {
			return response.Unauthorized(c, "Authentication not configured")
		}
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		SetPrincipal(c, principal)
		return c.Next()
	}
}

func (m *AuthMiddleware) token(c *fiber.Ctx) (string, string) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if m.allowQuery {
			if t := c.Query("access_token"); t != "" {
				return t, ""
			}
		}
		return "", "Missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

// SetPrincipal stores the caller identity in the request locals.
func SetPrincipal(c *fiber.Ctx, p *auth.Principal) {
	c.Locals("userId", p.UserID)
	c.Locals("email", p.Email)
	c.Locals("name", p.Username)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GetUserName extracts user name from context
func GetUserName(c *fiber.Ctx) string {
	if name, ok := c.Locals("name").(string); ok {
		return name
	}
	return ""
}

// GetOwner is the identity jobs are recorded under.
func GetOwner(c *fiber.Ctx) string {
	p := auth.Principal{UserID: GetUserID(c), Email: GetUserEmail(c)}
	return p.Owner()
}
