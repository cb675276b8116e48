package content

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/model"
	"github.com/primeshots/api/services"
	"github.com/primeshots/api/services/googledrive"
	"github.com/primeshots/api/utils/response"
	"github.com/primeshots/api/utils/validation"
)

// maxUploadSize caps admin uploads (100MB; short video clips included)
const maxUploadSize = 100 * 1024 * 1024

// ContentHandler handles catalog requests
type ContentHandler struct {
	validator      *validation.Validator
	contentService *services.ContentService
}

// NewContentHandler creates a new content handler
func NewContentHandler(contentService *services.ContentService) *ContentHandler {
	return &ContentHandler{
		validator:      validation.NewValidator(),
		contentService: contentService,
	}
}

// ListContent handles GET /api/v1/content
func (h *ContentHandler) ListContent(c *fiber.Ctx) error {
	mediaType := model.MediaType(c.Query("type", ""))
	if mediaType != "" && mediaType != model.MediaTypeImage && mediaType != model.MediaTypeVideo {
		return response.BadRequest(c, "Invalid media type. Must be image or video")
	}

	items, err := h.contentService.List(c.Context(), mediaType)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch content")
	}

	return response.Success(c, items)
}

// UploadContent handles POST /api/v1/content/upload (admin)
func (h *ContentHandler) UploadContent(c *fiber.Ctx) error {
	title := validation.SanitizeString(c.FormValue("title"))
	if title == "" {
		return response.BadRequest(c, "Title is required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "File is required")
	}
	if file.Size > maxUploadSize {
		return response.BadRequest(c, "File size exceeds maximum allowed size of 100MB")
	}

	fileContent, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to open file")
	}
	defer fileContent.Close()

	created, err := h.contentService.Upload(c.Context(), services.UploadRequest{
		Title:      title,
		File:       fileContent,
		FileHeader: file,
	})
	if err != nil {
		return mapContentError(c, err, "Failed to upload content")
	}

	return response.Created(c, created)
}

// importDriveRequest is the single-file import body
type importDriveRequest struct {
	DriveURL string `json:"driveUrl" validate:"required,url"`
	Title    string `json:"title"`
	Type     string `json:"type" validate:"omitempty,oneof=image video"`
}

// ImportDriveFile handles POST /api/v1/content/google-drive (admin)
func (h *ContentHandler) ImportDriveFile(c *fiber.Ctx) error {
	var req importDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	created, err := h.contentService.ImportDriveFile(c.Context(), req.DriveURL, validation.SanitizeString(req.Title), model.MediaType(req.Type))
	if err != nil {
		return mapContentError(c, err, "Failed to import drive file")
	}

	return response.Created(c, created)
}

// importFolderRequest is the bulk import body
type importFolderRequest struct {
	FolderURL string `json:"folderUrl" validate:"required,url"`
	MediaType string `json:"mediaType" validate:"omitempty,oneof=image video"`
}

// ImportDriveFolder handles POST /api/v1/content/google-drive-folder (admin)
func (h *ContentHandler) ImportDriveFolder(c *fiber.Ctx) error {
	var req importFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.contentService.ImportDriveFolder(c.Context(), req.FolderURL, model.MediaType(req.MediaType))
	if err != nil {
		return mapContentError(c, err, "Failed to import drive folder")
	}

	return response.Success(c, result)
}

// DeleteContent handles DELETE /api/v1/content/:id (admin)
func (h *ContentHandler) DeleteContent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid content ID")
	}

	if err := h.contentService.Delete(c.Context(), uint(id)); err != nil {
		return mapContentError(c, err, "Failed to delete content")
	}

	return response.SuccessWithMessage(c, "Content deleted", fiber.Map{"success": true})
}

// PreviewContent handles GET /api/v1/content/:id/preview. Images come back
// watermarked; videos redirect to their thumbnail. Originals never leave here.
func (h *ContentHandler) PreviewContent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid content ID")
	}

	preview, err := h.contentService.Preview(c.Context(), uint(id))
	if err != nil {
		return mapContentError(c, err, "Failed to generate preview")
	}

	if preview.RedirectURL != "" {
		return c.Redirect(preview.RedirectURL, fiber.StatusFound)
	}

	c.Set(fiber.HeaderContentType, preview.MimeType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(preview.Data)
}

// mapContentError maps service errors onto the response envelope
func mapContentError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrContentNotFound):
		return response.NotFound(c, "Content not found")
	case errors.Is(err, services.ErrUnsupportedMedia), errors.Is(err, googledrive.ErrInvalidURL):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrStorageDisabled), errors.Is(err, services.ErrDriveDisabled):
		return response.ConfigurationError(c, err.Error())
	default:
		return response.UpstreamError(c, fallback+": "+err.Error())
	}
}
