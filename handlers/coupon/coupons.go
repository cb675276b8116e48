package coupon

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/services"
	"github.com/primeshots/api/utils/response"
	"github.com/primeshots/api/utils/validation"
)

// CouponHandler handles coupon lifecycle requests
type CouponHandler struct {
	validator     *validation.Validator
	couponService *services.CouponService
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(couponService *services.CouponService) *CouponHandler {
	return &CouponHandler{
		validator:     validation.NewValidator(),
		couponService: couponService,
	}
}

// createCouponRequest is the admin coupon-issuance body
type createCouponRequest struct {
	Code       string     `json:"code"`
	FreeImages int        `json:"freeImages" validate:"min=0,max=1000"`
	FreeVideos int        `json:"freeVideos" validate:"min=0,max=1000"`
	ExpiresAt  *time.Time `json:"expiresAt"`
}

// CreateCoupon handles POST /api/v1/coupons (admin)
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req createCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.FreeImages == 0 && req.FreeVideos == 0 {
		return response.BadRequest(c, "Coupon must grant at least one free unit")
	}

	coupon, err := h.couponService.Create(c.Context(), services.CreateCouponRequest{
		Code:       req.Code,
		FreeImages: req.FreeImages,
		FreeVideos: req.FreeVideos,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create coupon: "+err.Error())
	}

	return response.Created(c, coupon)
}

// ListCoupons handles GET /api/v1/coupons (admin)
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	coupons, err := h.couponService.List(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch coupons")
	}
	return response.Success(c, coupons)
}

// codeRequest carries a coupon code plus the customer presenting it
type codeRequest struct {
	Code     string `json:"code" validate:"required"`
	UserName string `json:"userName"`
}

// ValidateCoupon handles POST /api/v1/coupons/validate. Read-only: customers
// can inspect a coupon's value without consuming it.
func (h *CouponHandler) ValidateCoupon(c *fiber.Ctx) error {
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	coupon, err := h.couponService.Validate(c.Context(), req.Code)
	if err != nil {
		return mapCouponError(c, err)
	}

	return response.Success(c, fiber.Map{
		"valid":       true,
		"code":        coupon.Code,
		"free_images": coupon.FreeImages,
		"free_videos": coupon.FreeVideos,
	})
}

// UseCoupon handles POST /api/v1/coupons/use: the explicit redemption path
func (h *CouponHandler) UseCoupon(c *fiber.Ctx) error {
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.UserName == "" {
		return response.BadRequest(c, "userName is required")
	}

	if err := h.couponService.Redeem(c.Context(), req.Code, validation.SanitizeString(req.UserName)); err != nil {
		return mapCouponError(c, err)
	}

	return response.SuccessWithMessage(c, "Coupon redeemed", fiber.Map{"success": true})
}

// mapCouponError maps service errors onto the response envelope
func mapCouponError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrCouponNotFound):
		return response.NotFound(c, "Coupon not found")
	case errors.Is(err, services.ErrCouponUsed):
		return response.Forbidden(c, "Coupon has already been used", "COUPON_USED")
	case errors.Is(err, services.ErrCouponExpired):
		return response.Gone(c, "Coupon has expired", "COUPON_EXPIRED")
	default:
		return response.InternalServerError(c, "Coupon operation failed")
	}
}
