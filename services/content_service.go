package services

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/primeshots/api/model"
	"github.com/primeshots/api/services/googledrive"
	"gorm.io/gorm"
)

// ContentService manages the catalog: uploads into object storage, imports
// from Google Drive, deletion and the watermarked preview read path.
type ContentService struct {
	db        *gorm.DB
	storage   ObjectStore
	drive     DriveAPI
	watermark *WatermarkService
}

// NewContentService creates a new content service. Storage and drive clients
// may be nil when the corresponding backends are not configured; operations
// that need them fail with a configuration error instead of degrading.
func NewContentService(db *gorm.DB, spacesClient ObjectStore, driveClient DriveAPI, watermark *WatermarkService) *ContentService {
	return &ContentService{
		db:        db,
		storage:   spacesClient,
		drive:     driveClient,
		watermark: watermark,
	}
}

// List returns catalog items, newest first, optionally filtered by media kind
func (s *ContentService) List(ctx context.Context, mediaType model.MediaType) ([]model.Content, error) {
	query := s.db.WithContext(ctx).Model(&model.Content{})
	if mediaType != "" {
		query = query.Where("type = ?", mediaType)
	}

	var items []model.Content
	err := query.Order("created_at DESC").Find(&items).Error
	return items, err
}

// Get fetches a single catalog item
func (s *ContentService) Get(ctx context.Context, id uint) (*model.Content, error) {
	var content model.Content
	if err := s.db.WithContext(ctx).First(&content, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return &content, nil
}

// UploadRequest holds an admin file upload
type UploadRequest struct {
	Title      string
	File       multipart.File
	FileHeader *multipart.FileHeader
}

// Upload stores the file in Spaces and records it in the catalog. The media
// kind is derived from the Content-Type and fixed for the life of the record.
func (s *ContentService) Upload(ctx context.Context, req UploadRequest) (*model.Content, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}

	contentType := req.FileHeader.Header.Get("Content-Type")
	mediaType, err := mediaTypeFromMime(contentType)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("content/%s%s", uuid.New().String(), strings.ToLower(filepath.Ext(req.FileHeader.Filename)))
	url, err := s.storage.UploadFile(ctx, key, req.File, contentType)
	if err != nil {
		return nil, err
	}

	content := model.Content{
		Title:     req.Title,
		Type:      mediaType,
		SpacesKey: key,
		SpacesURL: url,
		MimeType:  contentType,
		FileSize:  req.FileHeader.Size,
	}

	if err := s.db.WithContext(ctx).Create(&content).Error; err != nil {
		// The record is the source of truth; don't leave an orphan object
		if delErr := s.storage.DeleteFile(ctx, key); delErr != nil {
			log.Println("content: failed to clean up orphaned upload:", delErr)
		}
		return nil, err
	}

	return &content, nil
}

// ImportDriveFile records an external Drive file in the catalog without
// copying any bytes. The media kind must match the file's MIME type.
func (s *ContentService) ImportDriveFile(ctx context.Context, driveURL, title string, mediaType model.MediaType) (*model.Content, error) {
	if s.drive == nil {
		return nil, ErrDriveDisabled
	}

	fileID, err := googledrive.ParseFileID(driveURL)
	if err != nil {
		return nil, err
	}

	file, err := s.drive.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	fileMediaType, err := mediaTypeFromMime(file.MimeType)
	if err != nil {
		return nil, err
	}
	if mediaType != "" && mediaType != fileMediaType {
		return nil, fmt.Errorf("%w: file is %s, requested %s", ErrUnsupportedMedia, fileMediaType, mediaType)
	}

	if title == "" {
		title = file.Name
	}

	content := model.Content{
		Title:        title,
		Type:         fileMediaType,
		DriveFileID:  file.ID,
		DriveURL:     driveURL,
		MimeType:     file.MimeType,
		FileSize:     file.SizeBytes(),
		Duration:     file.DurationSeconds(),
		ThumbnailURL: file.ThumbnailLink,
	}

	if err := s.db.WithContext(ctx).Create(&content).Error; err != nil {
		return nil, err
	}
	return &content, nil
}

// FolderImportResult summarizes a bulk import
type FolderImportResult struct {
	Imported int             `json:"imported"`
	Total    int             `json:"total"`
	Errors   []string        `json:"errors"`
	Content  []model.Content `json:"content"`
}

// ImportDriveFolder enumerates a Drive folder and imports every file matching
// the requested media kind. Per-file failures are collected, not fatal, so one
// bad file never aborts the batch.
func (s *ContentService) ImportDriveFolder(ctx context.Context, folderURL string, mediaType model.MediaType) (*FolderImportResult, error) {
	if s.drive == nil {
		return nil, ErrDriveDisabled
	}

	folderID, err := googledrive.ParseFolderID(folderURL)
	if err != nil {
		return nil, err
	}

	files, err := s.drive.ListFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	result := &FolderImportResult{Errors: []string{}, Content: []model.Content{}}
	for _, file := range files {
		fileMediaType, err := mediaTypeFromMime(file.MimeType)
		if err != nil || (mediaType != "" && fileMediaType != mediaType) {
			continue // not a media file of the requested kind
		}
		result.Total++

		content := model.Content{
			Title:        file.Name,
			Type:         fileMediaType,
			DriveFileID:  file.ID,
			DriveURL:     file.WebViewLink,
			MimeType:     file.MimeType,
			FileSize:     file.SizeBytes(),
			Duration:     file.DurationSeconds(),
			ThumbnailURL: file.ThumbnailLink,
		}
		if err := s.db.WithContext(ctx).Create(&content).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.Name, err))
			continue
		}

		result.Imported++
		result.Content = append(result.Content, content)
	}

	return result, nil
}

// Delete removes the catalog record and best-effort removes the backing
// object. A failed object delete is logged, never fatal: the record is the
// source of truth and must go.
func (s *ContentService) Delete(ctx context.Context, id uint) error {
	content, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&model.Content{}, id).Error; err != nil {
		return err
	}

	if content.StoredInSpaces() && s.storage != nil {
		if err := s.storage.DeleteFile(ctx, content.SpacesKey); err != nil {
			log.Printf("content: failed to delete backing file %s: %v", content.SpacesKey, err)
		}
	}

	return nil
}

// PreviewResult is either inline watermarked bytes or a redirect target
type PreviewResult struct {
	Data        []byte
	MimeType    string
	RedirectURL string
}

// Preview serves the leak-prevention boundary: images come back watermarked,
// videos as a thumbnail redirect. Unwatermarked originals only ever leave
// through the download gate.
func (s *ContentService) Preview(ctx context.Context, id uint) (*PreviewResult, error) {
	content, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if content.Type == model.MediaTypeVideo {
		target := content.ThumbnailURL
		if target == "" {
			target = content.DriveURL
		}
		if target == "" {
			return nil, ErrContentNotFound
		}
		return &PreviewResult{RedirectURL: target}, nil
	}

	original, err := s.fetchOriginal(ctx, content)
	if err != nil {
		return nil, err
	}

	watermarked, err := s.watermark.Apply(original)
	if err != nil {
		return nil, err
	}

	return &PreviewResult{Data: watermarked, MimeType: "image/jpeg"}, nil
}

// fetchOriginal reads the raw bytes from whichever backend holds them
func (s *ContentService) fetchOriginal(ctx context.Context, content *model.Content) ([]byte, error) {
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

// mediaTypeFromMime maps a MIME type onto the two purchasable kinds
func mediaTypeFromMime(mimeType string) (model.MediaType, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.MediaTypeImage, nil
	case strings.HasPrefix(mimeType, "video/"):
		return model.MediaTypeVideo, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
}
