package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/primeshots/api/model"
	"github.com/primeshots/api/utils/cache"
	"gorm.io/gorm"
)

const (
	// BaseURL is the Google Drive v3 API base URL
	BaseURL = "https://www.googleapis.com/drive/v3"
	// TokenURL is the OAuth2 token endpoint used to refresh access tokens
	TokenURL = "https://oauth2.googleapis.com/token"
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 60 * time.Second

	tokenCacheKey = "drive:access_token"
)

var (
	// ErrNotConfigured indicates the OAuth credentials are missing
	ErrNotConfigured = errors.New("googledrive: client credentials are not configured")
	// ErrInvalidURL indicates a file/folder id could not be extracted from a URL
	ErrInvalidURL = errors.New("googledrive: could not extract an id from URL")
)

var (
	fileIDPattern   = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	folderIDPattern = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
	idParamPattern  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
)

// Client handles Google Drive API interactions. Access tokens are short-lived;
// the hot copy lives in redis with the real TTL and a durable copy in the
// drive_tokens table survives restarts.
type Client struct {
	clientID     string
	clientSecret string
	refreshToken string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
	cache        *cache.RedisCache
	db           *gorm.DB
}

// Config holds configuration for the Drive client
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

// NewClient creates a new Drive client. The redis cache is optional.
func NewClient(config Config, db *gorm.DB, redisCache *cache.RedisCache) (*Client, error) {
	if config.ClientID == "" || config.ClientSecret == "" || config.RefreshToken == "" {
		return nil, ErrNotConfigured
	}
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.TokenURL == "" {
		config.TokenURL = TokenURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		refreshToken: config.RefreshToken,
		baseURL:      config.BaseURL,
		tokenURL:     config.TokenURL,
		httpClient:   &http.Client{Timeout: config.Timeout},
		cache:        redisCache,
		db:           db,
	}, nil
}

// File is the subset of Drive file metadata the catalog needs
type File struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Size          string `json:"size"`
	ThumbnailLink string `json:"thumbnailLink"`
	WebViewLink   string `json:"webViewLink"`
	VideoMetadata *struct {
		DurationMillis string `json:"durationMillis"`
	} `json:"videoMediaMetadata,omitempty"`
}

// SizeBytes parses the API's string-typed size field
func (f *File) SizeBytes() int64 {
	n, _ := strconv.ParseInt(f.Size, 10, 64)
	return n
}

// DurationSeconds extracts the video duration, if any
func (f *File) DurationSeconds() *int {
	if f.VideoMetadata == nil || f.VideoMetadata.DurationMillis == "" {
		return nil
	}
	millis, err := strconv.ParseInt(f.VideoMetadata.DurationMillis, 10, 64)
	if err != nil {
		return nil
	}
	secs := int(millis / 1000)
	return &secs
}

// ParseFileID extracts a file id from the common Drive URL shapes
func ParseFileID(rawURL string) (string, error) {
	if m := fileIDPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1], nil
	}
	if m := idParamPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1], nil
	}
	return "", ErrInvalidURL
}

// ParseFolderID extracts a folder id from a Drive folder URL
func ParseFolderID(rawURL string) (string, error) {
	if m := folderIDPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1], nil
	}
	return "", ErrInvalidURL
}

// GetFile fetches metadata for a single file
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	endpoint := fmt.Sprintf("%s/files/%s?fields=id,name,mimeType,size,thumbnailLink,webViewLink,videoMediaMetadata&supportsAllDrives=true", c.baseURL, fileID)

	var file File
	if err := c.getJSON(ctx, endpoint, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// ListFolder enumerates the files directly inside a folder
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]File, error) {
	var files []File
	pageToken := ""

	for {
		query := url.Values{}
		query.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
		query.Set("fields", "nextPageToken,files(id,name,mimeType,size,thumbnailLink,webViewLink,videoMediaMetadata)")
		query.Set("pageSize", "100")
		query.Set("supportsAllDrives", "true")
		query.Set("includeItemsFromAllDrives", "true")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Files         []File `json:"files"`
		}
		if err := c.getJSON(ctx, c.baseURL+"/files?"+query.Encode(), &page); err != nil {
			return nil, err
		}

		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// Download fetches the raw bytes of a file
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/files/%s?alt=media&supportsAllDrives=true", c.baseURL, fileID)

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("googledrive: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("googledrive: download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// getJSON performs an authorized GET and decodes the reply
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("googledrive: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("googledrive: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("googledrive: API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.Unmarshal(body, out)
}

// accessToken returns a live access token: redis first, then the DB cache,
// then a refresh-token exchange (whose result is written back to both)
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cache != nil {
		if token, err := c.cache.Get(ctx, tokenCacheKey); err == nil && token != "" {
			return token, nil
		}
	}

	if c.db != nil {
		var cached model.DriveToken
		err := c.db.WithContext(ctx).Order("id DESC").First(&cached).Error
		if err == nil && time.Now().Before(cached.ExpiresAt.Add(-time.Minute)) {
			return cached.AccessToken, nil
		}
	}

	return c.refreshAccessToken(ctx)
}

// refreshAccessToken exchanges the refresh token for an access token
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", c.refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("googledrive: token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("googledrive: token refresh failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("googledrive: failed to decode token response: %w", err)
	}

	expiry := time.Duration(token.ExpiresIn) * time.Second
	if c.cache != nil {
		// Leave a safety margin so a cached token is never handed out stale
		if err := c.cache.Set(ctx, tokenCacheKey, token.AccessToken, expiry-time.Minute); err != nil {
			log.Println("googledrive: failed to cache access token in redis:", err)
		}
	}
	if c.db != nil {
		record := model.DriveToken{
			AccessToken: token.AccessToken,
			ExpiresAt:   time.Now().Add(expiry),
		}
		if err := c.db.WithContext(ctx).Create(&record).Error; err != nil {
			log.Println("googledrive: failed to persist access token:", err)
		}
	}

	return token.AccessToken, nil
}
