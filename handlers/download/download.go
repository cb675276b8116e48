package download

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/services"
	"github.com/primeshots/api/utils/middleware"
	"github.com/primeshots/api/utils/response"
)

// DownloadHandler redeems single-use download tokens
type DownloadHandler struct {
	downloadService *services.DownloadService
	bruteForce      *middleware.BruteForceProtection
}

// NewDownloadHandler creates a new download handler. Brute-force protection is
// optional (nil when redis is unavailable).
func NewDownloadHandler(downloadService *services.DownloadService, bruteForce *middleware.BruteForceProtection) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
		bruteForce:      bruteForce,
	}
}

// RedeemToken handles GET /api/v1/download/:token: validates and consumes the
// token, then streams the original asset with its filename and MIME type.
func (h *DownloadHandler) RedeemToken(c *fiber.Ctx) error {
	tokenString := c.Params("token")
	if tokenString == "" {
		return response.BadRequest(c, "Download token is required")
	}

	result, err := h.downloadService.Redeem(c.Context(), tokenString)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound):
			// Unknown tokens count toward the per-IP guessing lockout
			if h.bruteForce != nil {
				h.bruteForce.RecordFailedAttempt(c, c.IP())
			}
			return response.NotFound(c, "Download token not found")
		case errors.Is(err, services.ErrTokenUsed):
			return response.Forbidden(c, "Download token has already been used", "TOKEN_USED")
		case errors.Is(err, services.ErrTokenExpired):
			return response.Gone(c, "Download token has expired", "TOKEN_EXPIRED")
		case errors.Is(err, services.ErrStorageDisabled), errors.Is(err, services.ErrDriveDisabled):
			return response.ConfigurationError(c, err.Error())
		default:
			return response.UpstreamError(c, "Failed to fetch asset")
		}
	}

	if h.bruteForce != nil {
		h.bruteForce.RecordSuccessfulAttempt(c, c.IP())
	}

	c.Set(fiber.HeaderContentType, result.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", result.Filename))
	return c.Send(result.Data)
}
