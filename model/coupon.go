package model

import (
	"time"
)

// Coupon is a single-use discount code granting a fixed number of free image
// and video units. Validation is read-only; redemption flips Used exactly
// once, at successful-payment time, attributed to the purchasing customer.
type Coupon struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code       string `gorm:"type:varchar(40);uniqueIndex;not null" json:"code"`
	FreeImages int    `gorm:"default:0" json:"free_images"`
	FreeVideos int    `gorm:"default:0" json:"free_videos"`

	Used   bool       `gorm:"default:false" json:"used"`
	UsedBy string     `gorm:"type:varchar(100)" json:"used_by,omitempty"`
	UsedAt *time.Time `json:"used_at,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TableName specifies the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}

// Expired reports whether the coupon is past its optional expiry.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
