package services

import "errors"

// Sentinel errors returned by the services. Handlers map these onto the
// response envelope's status codes; anything not listed here is treated as
// an internal or upstream failure.
var (
	// Catalog
	ErrContentNotFound  = errors.New("content not found")
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// Checkout
	ErrEmptyCart             = errors.New("cart must contain at least one item")
	ErrDuplicateTrackingCode = errors.New("tracking code or reference already exists")
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrPurchaseNotCompleted  = errors.New("purchase is not completed")
	ErrPurchaseFailed        = errors.New("purchase has already failed")
	ErrPaymentNotSuccessful  = errors.New("gateway transaction is not successful")

	// Coupons
	ErrCouponNotFound = errors.New("coupon not found")
	ErrCouponUsed     = errors.New("coupon has already been used")
	ErrCouponExpired  = errors.New("coupon has expired")

	// Download tokens
	ErrTokenNotFound = errors.New("download token not found")
	ErrTokenUsed     = errors.New("download token has already been used")
	ErrTokenExpired  = errors.New("download token has expired")

	// Infrastructure
	ErrStorageDisabled = errors.New("object storage is not configured")
	ErrDriveDisabled   = errors.New("google drive integration is not configured")
	ErrGatewayDisabled = errors.New("payment gateway is not configured")
)
