package model

import (
	"time"

	"gorm.io/gorm"
)

// MediaType represents the kind of purchasable media
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Content represents a purchasable media item. Exactly one of the Spaces
// locator or the Drive file id is populated, depending on how it was imported.
// The media type is fixed at creation and the record is never mutated
// afterwards; removal is an explicit admin action.
type Content struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title string    `gorm:"not null" json:"title"`
	Type  MediaType `gorm:"type:varchar(10);not null" json:"type"`

	// Spaces-backed content (uploads)
	SpacesKey string `gorm:"type:varchar(500)" json:"spaces_key,omitempty"`
	SpacesURL string `gorm:"type:text" json:"spaces_url,omitempty"`

	// Drive-backed content (external imports, no bytes copied)
	DriveFileID string `gorm:"type:varchar(100);index" json:"drive_file_id,omitempty"`
	DriveURL    string `gorm:"type:text" json:"drive_url,omitempty"`

	MimeType     string `gorm:"type:varchar(100)" json:"mime_type"`
	FileSize     int64  `gorm:"default:0" json:"file_size"`
	Duration     *int   `json:"duration,omitempty"` // seconds, video only
	ThumbnailURL string `gorm:"type:text" json:"thumbnail_url,omitempty"`
}

// TableName specifies the table name for Content
func (Content) TableName() string {
	return "content"
}

// StoredInSpaces reports whether the original bytes live in object storage
// (as opposed to an external Drive file).
func (c *Content) StoredInSpaces() bool {
	return c.SpacesKey != ""
}
