package payment

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/services"
	"github.com/primeshots/api/services/paystack"
	"github.com/primeshots/api/utils/response"
	"github.com/primeshots/api/utils/validation"
)

// PaymentHandler handles checkout, confirmation and order-tracking requests
type PaymentHandler struct {
	validator      *validation.Validator
	paymentService *services.PaymentService
	gateway        *paystack.Client
}

// NewPaymentHandler creates a new payment handler. The gateway client is used
// only for webhook signature verification; nil disables the webhook route's
// processing (events are rejected).
func NewPaymentHandler(paymentService *services.PaymentService, gateway *paystack.Client) *PaymentHandler {
	return &PaymentHandler{
		validator:      validation.NewValidator(),
		paymentService: paymentService,
		gateway:        gateway,
	}
}

// initializeRequest is the checkout body
type initializeRequest struct {
	ContentIDs   []uint `json:"contentIds" validate:"required,min=1"`
	TrackingCode string `json:"trackingCode" validate:"required,min=4,max=30"`
	UserName     string `json:"userName" validate:"required,min=1,max=100"`
	CouponCode   string `json:"couponCode"`
}

// InitializePayment handles POST /api/v1/payment/initialize
func (h *PaymentHandler) InitializePayment(c *fiber.Ctx) error {
	var req initializeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	userName := validation.SanitizeString(req.UserName)
	if userName == "" {
		return response.BadRequest(c, "userName must not be blank")
	}

	result, err := h.paymentService.Initialize(c.Context(), services.InitializeRequest{
		ContentIDs:   req.ContentIDs,
		TrackingCode: validation.SanitizeString(req.TrackingCode),
		CustomerName: userName,
		CouponCode:   req.CouponCode,
	})
	if err != nil {
		return mapPaymentError(c, err)
	}

	return response.Success(c, result)
}

// webhookEvent is the subset of the gateway event payload we act on
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// HandleWebhook handles POST /api/v1/payment/webhook. The signature is
// verified over the raw body before anything is parsed; non-matching
// signatures are rejected without side effects. The event's own status is
// never trusted: confirmation re-verifies against the gateway.
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	if h.gateway == nil {
		return response.ConfigurationError(c, "Payment gateway is not configured")
	}

	body := c.Body()
	signature := c.Get(paystack.SignatureHeader)
	if signature == "" || !h.gateway.VerifyWebhookSignature(body, signature) {
		return response.BadRequest(c, "Invalid webhook signature")
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return response.BadRequest(c, "Invalid webhook payload")
	}

	if event.Event != "charge.success" || event.Data.Reference == "" {
		// Nothing to do for other event types
		return c.SendStatus(fiber.StatusOK)
	}

	if _, err := h.paymentService.ConfirmByReference(c.Context(), event.Data.Reference); err != nil {
		// Unknown references and unsuccessful charges are not server faults;
		// acknowledge so the gateway stops retrying
		if errors.Is(err, services.ErrPurchaseNotFound) || errors.Is(err, services.ErrPaymentNotSuccessful) {
			log.Printf("webhook: ignoring event for reference %s: %v", event.Data.Reference, err)
			return c.SendStatus(fiber.StatusOK)
		}
		// A charge landed on a purchase already marked failed (e.g. the stale
		// checkout sweep beat a late webhook). Retries cannot fix it, so
		// acknowledge, but this needs a refund or manual completion.
		if errors.Is(err, services.ErrPurchaseFailed) {
			log.Printf("webhook: payment received for failed purchase, reference %s: needs manual reconciliation", event.Data.Reference)
			return c.SendStatus(fiber.StatusOK)
		}
		return response.UpstreamError(c, "Failed to process webhook")
	}

	return c.SendStatus(fiber.StatusOK)
}

// verifyRequest is the client-initiated confirmation body
type verifyRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// VerifyPayment handles POST /api/v1/payment/verify: the synchronous fallback
// used when the webhook is delayed or blocked. Converges on the same effects.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.paymentService.ConfirmByReference(c.Context(), req.Reference)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return response.Success(c, fiber.Map{
		"purchaseId":   result.PurchaseID,
		"trackingCode": result.TrackingCode,
	})
}

// trackingRequest is the self-service order lookup body
type trackingRequest struct {
	TrackingCode string `json:"trackingCode" validate:"required"`
}

// TrackingLookup handles POST /api/v1/tracking/lookup
func (h *PaymentHandler) TrackingLookup(c *fiber.Ctx) error {
	var req trackingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	summary, err := h.paymentService.TrackingLookup(c.Context(), validation.SanitizeString(req.TrackingCode))
	if err != nil {
		return mapPaymentError(c, err)
	}

	return response.Success(c, summary)
}

// GetPurchase handles GET /api/v1/purchase/:id
func (h *PaymentHandler) GetPurchase(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid purchase ID")
	}

	detail, err := h.paymentService.GetPurchase(c.Context(), uint(id))
	if err != nil {
		return mapPaymentError(c, err)
	}

	return response.Success(c, detail)
}

// CompletePurchase handles POST /api/v1/purchase/:id/complete (admin/ops)
func (h *PaymentHandler) CompletePurchase(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid purchase ID")
	}

	if err := h.paymentService.CompleteManually(c.Context(), uint(id)); err != nil {
		return mapPaymentError(c, err)
	}

	return response.SuccessWithMessage(c, "Purchase completed", fiber.Map{"success": true})
}

// mapPaymentError maps service errors onto the response envelope
func mapPaymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		return response.BadRequest(c, "Cart must contain at least one item")
	case errors.Is(err, services.ErrContentNotFound):
		return response.BadRequest(c, "One or more cart items do not exist")
	case errors.Is(err, services.ErrDuplicateTrackingCode):
		return response.Conflict(c, "Tracking code already exists, regenerate and retry", "DUPLICATE_TRACKING_CODE")
	case errors.Is(err, services.ErrPurchaseNotFound):
		return response.NotFound(c, "Purchase not found")
	case errors.Is(err, services.ErrPurchaseFailed):
		return response.Conflict(c, "Purchase has already been marked failed; contact support", "PURCHASE_FAILED")
	case errors.Is(err, services.ErrPaymentNotSuccessful):
		return response.BadRequest(c, "Transaction has not been completed successfully")
	case errors.Is(err, services.ErrCouponNotFound):
		return response.NotFound(c, "Coupon not found")
	case errors.Is(err, services.ErrCouponUsed):
		return response.Forbidden(c, "Coupon has already been used", "COUPON_USED")
	case errors.Is(err, services.ErrCouponExpired):
		return response.Gone(c, "Coupon has expired", "COUPON_EXPIRED")
	case errors.Is(err, services.ErrGatewayDisabled), errors.Is(err, paystack.ErrNotConfigured):
		return response.ConfigurationError(c, "Payment gateway is not configured")
	default:
		return response.UpstreamError(c, "Payment operation failed: "+err.Error())
	}
}
