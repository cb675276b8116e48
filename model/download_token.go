package model

import (
	"time"
)

// DownloadToken is a single-use authorization to fetch one purchased asset.
// One token is minted per (purchase, content) pair when the purchase
// completes; the composite unique index enforces that a confirmation replay
// can never mint a second token for the same pair. Tokens are never deleted,
// expiry is enforced by comparison at redemption time.
type DownloadToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	PurchaseID uint `gorm:"not null;index;uniqueIndex:idx_tokens_purchase_content" json:"purchase_id"`
	ContentID  uint `gorm:"not null;uniqueIndex:idx_tokens_purchase_content" json:"content_id"`

	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`

	// Relationships
	Content Content `gorm:"foreignKey:ContentID" json:"content,omitempty"`
}

// TableName specifies the table name for DownloadToken
func (DownloadToken) TableName() string {
	return "download_tokens"
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *DownloadToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
