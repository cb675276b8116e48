package model

import (
	"time"
)

// DriveToken caches a short-lived Google Drive access token so restarts do
// not burn a refresh-token exchange per request. Stale rows are ignored by
// expiry comparison, never deleted eagerly.
type DriveToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AccessToken string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
}

// TableName specifies the table name for DriveToken
func (DriveToken) TableName() string {
	return "drive_tokens"
}
