package model

import (
	"time"

	"gorm.io/datatypes"
)

// PurchaseStatus represents the lifecycle state of a purchase
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// Purchase represents one checkout transaction. The tracking code is the
// short customer-visible lookup code (client-generated, may collide across
// sessions); the reference is the payment gateway's transaction reference.
// Both carry unique indexes so a collision surfaces as a duplicate-key error
// rather than a silent overwrite. Purchases are never physically deleted.
type Purchase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerName string `gorm:"not null" json:"customer_name"`
	TrackingCode string `gorm:"type:varchar(30);uniqueIndex;not null" json:"tracking_code"`
	UniqueID     string `gorm:"type:varchar(120);index" json:"unique_id"`

	ContentIDs datatypes.JSONSlice[uint] `gorm:"not null" json:"content_ids"`

	Amount     int64          `gorm:"not null" json:"amount"` // naira, flat unit pricing
	Status     PurchaseStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Reference  string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"reference"`
	CouponCode *string        `gorm:"type:varchar(40)" json:"coupon_code,omitempty"`

	// Relationships
	DownloadTokens []DownloadToken `gorm:"foreignKey:PurchaseID" json:"download_tokens,omitempty"`
}

// TableName specifies the table name for Purchase
func (Purchase) TableName() string {
	return "purchases"
}
