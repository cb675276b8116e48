package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/utils/auth"
	"github.com/primeshots/api/utils/response"
)

// AdminMiddleware guards the admin console routes (content import, coupon
// issuance, manual completion) behind a Bearer JWT issued by the login handler.
type AdminMiddleware struct {
	jwtManager *auth.JWTManager
}

// NewAdminMiddleware creates a new admin middleware
func NewAdminMiddleware(jwtManager *auth.JWTManager) *AdminMiddleware {
	return &AdminMiddleware{
		jwtManager: jwtManager,
	}
}

// Required is middleware that requires a valid admin token
func (m *AdminMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get token from Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if err == auth.ErrExpiredToken {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid token")
		}

		if claims.Role != "admin" {
			return response.Forbidden(c, "Administrator access required", "")
		}

		return c.Next()
	}
}
