package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// BaseURL is the Paystack API base URL
	BaseURL = "https://api.paystack.co"
	// DefaultTimeout is the default HTTP client timeout for gateway calls
	DefaultTimeout = 30 * time.Second
	// SignatureHeader carries the HMAC-SHA512 of the raw webhook body
	SignatureHeader = "x-paystack-signature"
)

var (
	// ErrNotConfigured indicates the secret key is missing. Surfaced as a
	// configuration error, never as a transient gateway failure.
	ErrNotConfigured = errors.New("paystack: secret key is not configured")
)

// APIError is a non-2xx or status=false reply from the gateway
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client handles all Paystack API interactions
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the Paystack client
type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// NewClient creates a new Paystack API client
func NewClient(config Config) (*Client, error) {
	if config.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		secretKey: config.SecretKey,
		baseURL:   config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// apiResponse is the envelope every Paystack endpoint replies with
type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeRequest starts a hosted-payment transaction
type InitializeRequest struct {
	AmountKobo  int64             `json:"amount"` // kobo (naira * 100)
	Email       string            `json:"email"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Authorization is the hosted-payment handle returned by initialize
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the verified state of a gateway transaction
type Transaction struct {
	Status     string `json:"status"` // "success", "failed", "abandoned", ...
	Reference  string `json:"reference"`
	AmountKobo int64  `json:"amount"`
	PaidAt     string `json:"paid_at"`
	Currency   string `json:"currency"`
}

// Succeeded reports whether the gateway considers the transaction paid
func (t *Transaction) Succeeded() bool {
	return t.Status == "success"
}

// InitializeTransaction opens a transaction and returns the hosted-payment
// redirect URL
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	var auth Authorization
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// VerifyTransaction fetches the authoritative transaction state from the
// gateway. Confirmation flows must call this rather than trusting any
// client-supplied status.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var txn Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 signature over the raw
// webhook body in constant time
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// do executes a request against the gateway and decodes the data envelope
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paystack: failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("paystack: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paystack: failed to read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("paystack: failed to decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("paystack: failed to decode response data: %w", err)
		}
	}

	return nil
}
