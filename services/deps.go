package services

import (
	"context"
	"io"

	"github.com/primeshots/api/services/googledrive"
)

// ObjectStore is the slice of the Spaces client the services consume
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// DriveAPI is the slice of the Google Drive client the services consume
type DriveAPI interface {
	GetFile(ctx context.Context, fileID string) (*googledrive.File, error)
	ListFolder(ctx context.Context, folderID string) ([]googledrive.File, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}
