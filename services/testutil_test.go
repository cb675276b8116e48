package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/primeshots/api/model"
	"github.com/primeshots/api/services/googledrive"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the full schema.
// MaxOpenConns(1) serializes access so concurrent service calls exercise the
// conditional-update gates without sqlite "database is locked" noise.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.Content{},
		&model.Purchase{},
		&model.DownloadToken{},
		&model.Coupon{},
		&model.DriveToken{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	return db
}

// fakeObjectStore serves assets from an in-memory map
type fakeObjectStore struct {
	objects   map[string][]byte
	downloads int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(data); err != nil {
		return "", err
	}
	f.objects[key] = buf.Bytes()
	return "https://fake.cdn/" + key, nil
}

func (f *fakeObjectStore) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	f.downloads++
	return data, nil
}

func (f *fakeObjectStore) DeleteFile(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

// fakeDrive serves drive files from an in-memory map
type fakeDrive struct {
	files map[string]googledrive.File
	data  map[string][]byte
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files: make(map[string]googledrive.File),
		data:  make(map[string][]byte),
	}
}

func (f *fakeDrive) GetFile(ctx context.Context, fileID string) (*googledrive.File, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("drive file %s not found", fileID)
	}
	return &file, nil
}

func (f *fakeDrive) ListFolder(ctx context.Context, folderID string) ([]googledrive.File, error) {
	var out []googledrive.File
	for _, file := range f.files {
		out = append(out, file)
	}
	return out, nil
}

func (f *fakeDrive) Download(ctx context.Context, fileID string) ([]byte, error) {
	data, ok := f.data[fileID]
	if !ok {
		return nil, fmt.Errorf("drive file %s not found", fileID)
	}
	return data, nil
}

// seedContent inserts a content row backed by the given object store
func seedContent(t *testing.T, db *gorm.DB, store *fakeObjectStore, title string, mediaType model.MediaType) *model.Content {
	t.Helper()

	key := "content/" + title
	if store != nil {
		store.objects[key] = []byte("original bytes of " + title)
	}

	content := model.Content{
		Title:     title,
		Type:      mediaType,
		SpacesKey: key,
		SpacesURL: "https://fake.cdn/" + key,
		MimeType:  "image/jpeg",
	}
	if mediaType == model.MediaTypeVideo {
		content.MimeType = "video/mp4"
	}
	if err := db.Create(&content).Error; err != nil {
		t.Fatalf("failed to seed content %s: %v", title, err)
	}
	return &content
}
