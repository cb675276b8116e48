package services

import (
	"context"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/primeshots/api/model"
	"gorm.io/gorm"
)

// TokenValidity is how long a minted download token stays redeemable
const TokenValidity = 24 * time.Hour

// DownloadService mints and redeems single-use download tokens. Redemption is
// gated by a conditional update on the used flag, attempted before the
// (potentially slow) asset fetch, so a token can never be served twice even
// under concurrent requests.
type DownloadService struct {
	db      *gorm.DB
	storage ObjectStore
	drive   DriveAPI
}

// NewDownloadService creates a new download service. Storage and drive
// clients may be nil when the corresponding backends are not configured.
func NewDownloadService(db *gorm.DB, spacesClient ObjectStore, driveClient DriveAPI) *DownloadService {
	return &DownloadService{
		db:      db,
		storage: spacesClient,
		drive:   driveClient,
	}
}

// MintTokens creates one token per purchased content id, all expiring
// TokenValidity after the given confirmation time. Callers hold the
// completion gate, and the (purchase, content) unique index backstops any
// replay that slips through.
func (s *DownloadService) MintTokens(ctx context.Context, purchaseID uint, contentIDs []uint, confirmedAt time.Time) ([]model.DownloadToken, error) {
	tokens := make([]model.DownloadToken, 0, len(contentIDs))
	for _, contentID := range contentIDs {
		tokens = append(tokens, model.DownloadToken{
			PurchaseID: purchaseID,
			ContentID:  contentID,
			Token:      strings.ReplaceAll(uuid.New().String(), "-", ""),
			ExpiresAt:  confirmedAt.Add(TokenValidity),
		})
	}

	if err := s.db.WithContext(ctx).Create(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// TokensForPurchase lists the tokens minted for a purchase
func (s *DownloadService) TokensForPurchase(ctx context.Context, purchaseID uint) ([]model.DownloadToken, error) {
	var tokens []model.DownloadToken
	err := s.db.WithContext(ctx).
		Preload("Content").
		Where("purchase_id = ?", purchaseID).
		Order("id").
		Find(&tokens).Error
	return tokens, err
}

// DownloadResult carries the asset bytes and serving metadata
type DownloadResult struct {
	Data     []byte
	Filename string
	MimeType string
}

// Redeem validates and consumes a token, then fetches the original asset.
// Fails distinctly for unknown, already-used and expired tokens. The mark-used
// check-and-set happens first: if the subsequent fetch fails the token is
// spent, which errs on the side of never serving an original twice.
func (s *DownloadService) Redeem(ctx context.Context, tokenString string) (*DownloadResult, error) {
	var token model.DownloadToken
	err := s.db.WithContext(ctx).
		Preload("Content").
		Where("token = ?", tokenString).
		First(&token).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	if token.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	// Atomic check-and-set: exactly one concurrent redeemer wins
	result := s.db.WithContext(ctx).
		Model(&model.DownloadToken{}).
		Where("id = ? AND used = ?", token.ID, false).
		Update("used", true)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrTokenUsed
	}

	data, err := s.fetchOriginal(ctx, &token.Content)
	if err != nil {
		return nil, err
	}

	return &DownloadResult{
		Data:     data,
		Filename: downloadFilename(&token.Content),
		MimeType: token.Content.MimeType,
	}, nil
}

// fetchOriginal reads the asset bytes from whichever backend holds them
func (s *DownloadService) fetchOriginal(ctx context.Context, content *model.Content) ([]byte, error) {
	if content.StoredInSpaces() {
		if s.storage == nil {
			return nil, ErrStorageDisabled
		}
		return s.storage.DownloadFile(ctx, content.SpacesKey)
	}
	if s.drive == nil {
		return nil, ErrDriveDisabled
	}
	return s.drive.Download(ctx, content.DriveFileID)
}

// downloadFilename reconstructs a filename from the title and MIME type
func downloadFilename(content *model.Content) string {
	name := strings.TrimSpace(content.Title)
	if name == "" {
		name = "download"
	}
	if filepath.Ext(name) != "" {
		return name
	}

	exts, err := mime.ExtensionsByType(content.MimeType)
	if err == nil && len(exts) > 0 {
		return name + exts[0]
	}
	return name
}
