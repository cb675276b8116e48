package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/utils/auth"
	"github.com/primeshots/api/utils/middleware"
	"github.com/primeshots/api/utils/response"
	"github.com/primeshots/api/utils/validation"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles the admin console login. The storefront has a single
// admin principal whose bcrypt password hash is environment-provided.
type AuthHandler struct {
	validator    *validation.Validator
	jwtManager   *auth.JWTManager
	passwordHash string
	bruteForce   *middleware.BruteForceProtection
}

// NewAuthHandler creates a new admin auth handler
func NewAuthHandler(jwtManager *auth.JWTManager, passwordHash string, bruteForce *middleware.BruteForceProtection) *AuthHandler {
	return &AuthHandler{
		validator:    validation.NewValidator(),
		jwtManager:   jwtManager,
		passwordHash: passwordHash,
		bruteForce:   bruteForce,
	}
}

// loginRequest is the admin login body
type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/v1/admin/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	if h.passwordHash == "" {
		return response.ConfigurationError(c, "Admin login is not configured")
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		if h.bruteForce != nil {
			h.bruteForce.RecordFailedAttempt(c, c.IP())
		}
		return response.Unauthorized(c, "Invalid credentials")
	}

	if h.bruteForce != nil {
		h.bruteForce.RecordSuccessfulAttempt(c, c.IP())
	}

	token, err := h.jwtManager.GenerateAdminToken()
	if err != nil {
		return response.InternalServerError(c, "Failed to issue session token")
	}

	return response.Success(c, fiber.Map{"token": token})
}
