package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/primeshots/api/model"
	"gorm.io/gorm"
)

const couponCodeLength = 8

// no ambiguous characters (0/O, 1/I) since customers type these
const couponCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CouponService manages single-use discount codes. Validate is strictly
// read-only; Redeem is the only mutating path and is invoked from the payment
// confirmation flow, never from validation.
type CouponService struct {
	db *gorm.DB
}

// NewCouponService creates a new coupon service
func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{db: db}
}

// CreateCouponRequest holds the admin-supplied coupon parameters
type CreateCouponRequest struct {
	Code       string
	FreeImages int
	FreeVideos int
	ExpiresAt  *time.Time
}

// Create issues a new coupon. An empty code is generated server-side.
func (s *CouponService) Create(ctx context.Context, req CreateCouponRequest) (*model.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		generated, err := generateCouponCode()
		if err != nil {
			return nil, err
		}
		code = generated
	}

	coupon := model.Coupon{
		Code:       code,
		FreeImages: req.FreeImages,
		FreeVideos: req.FreeVideos,
		ExpiresAt:  req.ExpiresAt,
	}

	if err := s.db.WithContext(ctx).Create(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// List returns all coupons, newest first (admin console history)
func (s *CouponService) List(ctx context.Context) ([]model.Coupon, error) {
	var coupons []model.Coupon
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error
	return coupons, err
}

// Validate checks a coupon without consuming it, so customers can inspect its
// value before checkout. Distinct errors for unknown, used and expired codes.
func (s *CouponService) Validate(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := s.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&coupon).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}

	if coupon.Used {
		return nil, ErrCouponUsed
	}
	if coupon.Expired(time.Now()) {
		return nil, ErrCouponExpired
	}

	return &coupon, nil
}

// Redeem marks a coupon used, attributing it to the purchasing customer.
// The used flag is flipped with a conditional update so a confirmation replay
// (or a concurrent webhook/verify race) cannot redeem twice.
func (s *CouponService) Redeem(ctx context.Context, code string, usedBy string) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("code = ? AND used = ?", code, false).
		Updates(map[string]interface{}{
			"used":    true,
			"used_by": usedBy,
			"used_at": now,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// Either unknown or already consumed; look it up to say which
		var coupon model.Coupon
		if err := s.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCouponNotFound
			}
			return err
		}
		return ErrCouponUsed
	}

	return nil
}

// Discount returns the number of free units a coupon grants against a cart of
// the given composition: min(images, freeImages) + min(videos, freeVideos).
func Discount(coupon *model.Coupon, images, videos int) int {
	free := 0
	if images < coupon.FreeImages {
		free += images
	} else {
		free += coupon.FreeImages
	}
	if videos < coupon.FreeVideos {
		free += videos
	} else {
		free += coupon.FreeVideos
	}
	return free
}

// generateCouponCode produces a short human-typable code
func generateCouponCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(couponCodeAlphabet)))
	for i := 0; i < couponCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(couponCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
