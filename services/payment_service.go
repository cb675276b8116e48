package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/primeshots/api/model"
	"github.com/primeshots/api/services/paystack"
	"gorm.io/gorm"
)

// PaymentService orchestrates checkout: amount computation, the pending
// purchase record, the gateway handshake and the idempotent confirmation that
// mints download tokens.
type PaymentService struct {
	db        *gorm.DB
	gateway   *paystack.Client
	coupons   *CouponService
	downloads *DownloadService

	unitPrice   int64
	callbackURL string
}

// NewPaymentService creates a new payment service. The gateway client may be
// nil when credentials are missing; initialization then fails with a
// configuration error rather than a transient one.
func NewPaymentService(db *gorm.DB, gateway *paystack.Client, coupons *CouponService, downloads *DownloadService, unitPrice int64, callbackURL string) *PaymentService {
	return &PaymentService{
		db:          db,
		gateway:     gateway,
		coupons:     coupons,
		downloads:   downloads,
		unitPrice:   unitPrice,
		callbackURL: callbackURL,
	}
}

// InitializeRequest is the checkout input
type InitializeRequest struct {
	ContentIDs   []uint
	TrackingCode string
	CustomerName string
	CouponCode   string
}

// InitializeResult carries what the client needs to continue payment
type InitializeResult struct {
	PurchaseID       uint   `json:"purchase_id"`
	Reference        string `json:"reference"`
	Amount           int64  `json:"amount"`
	AuthorizationURL string `json:"authorization_url"`
}

// Initialize computes the chargeable amount, persists a pending purchase and
// opens a gateway transaction. The pending row is written before the gateway
// call so a gateway-side success always has a local record to reconcile
// against. A tracking-code collision is reported as ErrDuplicateTrackingCode
// so the client can regenerate and retry; that race is documented and
// expected (tracking codes are client-generated).
func (s *PaymentService) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if len(req.ContentIDs) == 0 {
		return nil, ErrEmptyCart
	}
	if s.gateway == nil {
		return nil, ErrGatewayDisabled
	}

	// A repeated id in the cart is one purchasable item: charge it once,
	// fulfill it once. Dedupe before anything counts or persists.
	contentIDs := dedupe(req.ContentIDs)

	var items []model.Content
	if err := s.db.WithContext(ctx).Where("id IN ?", contentIDs).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) != len(contentIDs) {
		return nil, ErrContentNotFound
	}

	images, videos := 0, 0
	for _, id := range contentIDs {
		for _, item := range items {
			if item.ID == id {
				if item.Type == model.MediaTypeVideo {
					videos++
				} else {
					images++
				}
				break
			}
		}
	}

	freeUnits := 0
	var couponCode *string
	if req.CouponCode != "" {
		coupon, err := s.coupons.Validate(ctx, req.CouponCode)
		if err != nil {
			return nil, err
		}
		freeUnits = Discount(coupon, images, videos)
		couponCode = &coupon.Code
	}

	amount := ComputeAmount(images+videos, freeUnits, s.unitPrice)
	reference := strings.ReplaceAll(uuid.New().String(), "-", "")

	purchase := model.Purchase{
		CustomerName: req.CustomerName,
		TrackingCode: req.TrackingCode,
		UniqueID:     deriveUniqueID(req.CustomerName),
		ContentIDs:   contentIDs,
		Amount:       amount,
		Status:       model.PurchaseStatusPending,
		Reference:    reference,
		CouponCode:   couponCode,
	}

	if err := s.db.WithContext(ctx).Create(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateTrackingCode
		}
		return nil, err
	}

	auth, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		AmountKobo:  amount * 100,
		Email:       syntheticEmail(purchase.UniqueID),
		Reference:   reference,
		Currency:    "NGN",
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"tracking_code": purchase.TrackingCode,
			"customer_name": purchase.CustomerName,
		},
	})
	if err != nil {
		// Leave the row for reconciliation but mark the attempt failed
		if dbErr := s.db.WithContext(ctx).
			Model(&model.Purchase{}).
			Where("id = ? AND status = ?", purchase.ID, model.PurchaseStatusPending).
			Update("status", model.PurchaseStatusFailed).Error; dbErr != nil {
			log.Println("payment: failed to mark purchase failed:", dbErr)
		}
		return nil, err
	}

	return &InitializeResult{
		PurchaseID:       purchase.ID,
		Reference:        reference,
		Amount:           amount,
		AuthorizationURL: auth.AuthorizationURL,
	}, nil
}

// ConfirmResult reports a confirmation outcome
type ConfirmResult struct {
	PurchaseID   uint   `json:"purchase_id"`
	TrackingCode string `json:"tracking_code"`
	Completed    bool   `json:"completed"`
}

// ConfirmByReference is the convergence point for both the gateway webhook
// and the client-initiated verify call. The transaction status is always
// re-checked against the gateway; a client- or webhook-supplied status is
// never trusted on its own.
func (s *PaymentService) ConfirmByReference(ctx context.Context, reference string) (*ConfirmResult, error) {
	if s.gateway == nil {
		return nil, ErrGatewayDisabled
	}

	var purchase model.Purchase
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&purchase).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	// Re-confirmation of a completed purchase is a documented no-op
	if purchase.Status == model.PurchaseStatusCompleted {
		return &ConfirmResult{PurchaseID: purchase.ID, TrackingCode: purchase.TrackingCode, Completed: true}, nil
	}

	txn, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !txn.Succeeded() {
		return nil, ErrPaymentNotSuccessful
	}

	if err := s.complete(ctx, &purchase); err != nil {
		return nil, err
	}

	return &ConfirmResult{PurchaseID: purchase.ID, TrackingCode: purchase.TrackingCode, Completed: true}, nil
}

// CompleteManually transitions a purchase without consulting the gateway.
// Ops-only escape hatch for when the gateway confirms out of band.
func (s *PaymentService) CompleteManually(ctx context.Context, purchaseID uint) error {
	var purchase model.Purchase
	err := s.db.WithContext(ctx).First(&purchase, purchaseID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrPurchaseNotFound
		}
		return err
	}

	if purchase.Status == model.PurchaseStatusCompleted {
		return nil
	}

	return s.complete(ctx, &purchase)
}

// complete performs the one-shot effects of a successful confirmation:
// status flip, coupon redemption, token minting. The status flip is an atomic
// conditional update and is the sole concurrency control: whichever of a
// racing webhook/verify pair wins the update performs the side effects, the
// loser sees zero rows affected and does nothing.
func (s *PaymentService) complete(ctx context.Context, purchase *model.Purchase) error {
	result := s.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Where("id = ? AND status = ?", purchase.ID, model.PurchaseStatusPending).
		Update("status", model.PurchaseStatusCompleted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Zero rows means either a racing confirmation already completed the
		// purchase (fine, effects happened) or the purchase had already been
		// marked failed. The two must not be conflated: reporting success on
		// a failed purchase would tell a paying customer everything is fine
		// while no tokens exist.
		var current model.Purchase
		if err := s.db.WithContext(ctx).Select("status").First(&current, purchase.ID).Error; err != nil {
			return err
		}
		if current.Status == model.PurchaseStatusCompleted {
			return nil
		}
		return ErrPurchaseFailed
	}

	now := time.Now()

	if purchase.CouponCode != nil {
		if err := s.coupons.Redeem(ctx, *purchase.CouponCode, purchase.CustomerName); err != nil {
			// The purchase is already completed; a consumed coupon must not
			// fail fulfillment
			log.Printf("payment: coupon %s redemption failed for purchase %d: %v", *purchase.CouponCode, purchase.ID, err)
		}
	}

	if _, err := s.downloads.MintTokens(ctx, purchase.ID, dedupe(purchase.ContentIDs), now); err != nil {
		return err
	}

	return nil
}

// OrderSummary is the tracking-lookup view of a purchase
type OrderSummary struct {
	PurchaseID   uint                 `json:"purchase_id"`
	TrackingCode string               `json:"tracking_code"`
	CustomerName string               `json:"customer_name"`
	Status       model.PurchaseStatus `json:"status"`
	Amount       int64                `json:"amount"`
	CreatedAt    time.Time            `json:"created_at"`
	Items        []model.Content      `json:"items"`
}

// TrackingLookup returns the order summary for a customer-held tracking code
func (s *PaymentService) TrackingLookup(ctx context.Context, trackingCode string) (*OrderSummary, error) {
	var purchase model.Purchase
	err := s.db.WithContext(ctx).Where("tracking_code = ?", trackingCode).First(&purchase).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	var items []model.Content
	if err := s.db.WithContext(ctx).Where("id IN ?", []uint(purchase.ContentIDs)).Find(&items).Error; err != nil {
		return nil, err
	}

	return &OrderSummary{
		PurchaseID:   purchase.ID,
		TrackingCode: purchase.TrackingCode,
		CustomerName: purchase.CustomerName,
		Status:       purchase.Status,
		Amount:       purchase.Amount,
		CreatedAt:    purchase.CreatedAt,
		Items:        items,
	}, nil
}

// PurchaseItem pairs a purchased asset with its download credential
type PurchaseItem struct {
	Content       model.Content `json:"content"`
	DownloadToken string        `json:"download_token"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Used          bool          `json:"used"`
}

// PurchaseDetail is the completed-order view with download links
type PurchaseDetail struct {
	PurchaseID   uint                 `json:"purchase_id"`
	TrackingCode string               `json:"tracking_code"`
	CustomerName string               `json:"customer_name"`
	Status       model.PurchaseStatus `json:"status"`
	Amount       int64                `json:"amount"`
	Items        []PurchaseItem       `json:"items"`
}

// GetPurchase returns the completed-order detail including per-item tokens.
// Pending and failed purchases carry no tokens.
func (s *PaymentService) GetPurchase(ctx context.Context, purchaseID uint) (*PurchaseDetail, error) {
	var purchase model.Purchase
	err := s.db.WithContext(ctx).First(&purchase, purchaseID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	detail := &PurchaseDetail{
		PurchaseID:   purchase.ID,
		TrackingCode: purchase.TrackingCode,
		CustomerName: purchase.CustomerName,
		Status:       purchase.Status,
		Amount:       purchase.Amount,
		Items:        []PurchaseItem{},
	}

	if purchase.Status != model.PurchaseStatusCompleted {
		return detail, nil
	}

	tokens, err := s.downloads.TokensForPurchase(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}
	for _, token := range tokens {
		detail.Items = append(detail.Items, PurchaseItem{
			Content:       token.Content,
			DownloadToken: token.Token,
			ExpiresAt:     token.ExpiresAt,
			Used:          token.Used,
		})
	}

	return detail, nil
}

// ComputeAmount is the chargeable-amount formula:
// max(0, itemCount*unitPrice - freeUnits*unitPrice)
func ComputeAmount(itemCount, freeUnits int, unitPrice int64) int64 {
	amount := int64(itemCount-freeUnits) * unitPrice
	if amount < 0 {
		return 0
	}
	return amount
}

// deriveUniqueID builds the internal customer identifier from name+timestamp
func deriveUniqueID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "customer"
	}
	return fmt.Sprintf("%s-%d", slug, time.Now().UnixMilli())
}

// syntheticEmail satisfies the gateway's mandatory email field; checkout only
// collects a display name
func syntheticEmail(uniqueID string) string {
	return uniqueID + "@customers.primeshots.store"
}

// dedupe returns the distinct ids preserving order
func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
