package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/model"
	"github.com/primeshots/api/services"
	"github.com/primeshots/api/services/paystack"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecretKey = "sk_test_webhook"

func newWebhookFixture(t *testing.T) (*fiber.App, *gorm.DB) {
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
	if err := db.AutoMigrate(&model.Content{}, &model.Purchase{}, &model.DownloadToken{}, &model.Coupon{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	// Verification always reports success for any reference
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":true,"message":"Verification successful","data":{"status":"success","reference":"ref-wh-1","amount":20000,"currency":"NGN"}}`)
	}))
	t.Cleanup(gatewaySrv.Close)

	gateway, err := paystack.NewClient(paystack.Config{SecretKey: testSecretKey, BaseURL: gatewaySrv.URL})
	if err != nil {
		t.Fatalf("failed to build gateway client: %v", err)
	}

	coupons := services.NewCouponService(db)
	downloads := services.NewDownloadService(db, nil, nil)
	payments := services.NewPaymentService(db, gateway, coupons, downloads, 200, "")
	handler := NewPaymentHandler(payments, gateway)

	app := fiber.New()
	app.Post("/api/v1/payment/webhook", handler.HandleWebhook)
	return app, db
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func seedPendingPurchase(t *testing.T, db *gorm.DB, reference string) *model.Purchase {
	t.Helper()

	content := model.Content{Title: "pic.jpg", Type: model.MediaTypeImage, SpacesKey: "content/pic.jpg", MimeType: "image/jpeg"}
	if err := db.Create(&content).Error; err != nil {
		t.Fatalf("failed to seed content: %v", err)
	}
	purchase := model.Purchase{
		CustomerName: "Ada",
		TrackingCode: "TRK-WH-" + reference,
		UniqueID:     "ada-1",
		ContentIDs:   []uint{content.ID},
		Amount:       200,
		Status:       model.PurchaseStatusPending,
		Reference:    reference,
	}
	if err := db.Create(&purchase).Error; err != nil {
		t.Fatalf("failed to seed purchase: %v", err)
	}
	return &purchase
}

func TestWebhookCompletesPurchase(t *testing.T) {
	app, db := newWebhookFixture(t)
	purchase := seedPendingPurchase(t, db, "ref-wh-1")

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-wh-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paystack.SignatureHeader, sign(body))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var reloaded model.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.Status != model.PurchaseStatusCompleted {
		t.Errorf("purchase status = %q, want completed", reloaded.Status)
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", purchase.ID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 1 {
		t.Errorf("token count = %d, want 1", tokenCount)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, db := newWebhookFixture(t)
	purchase := seedPendingPurchase(t, db, "ref-wh-1")

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-wh-1"}}`)

	for name, signature := range map[string]string{
		"missing": "",
		"garbage": "deadbeef",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(paystack.SignatureHeader, signature)
		}

		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s signature: request failed: %v", name, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s signature: status = %d, want 400", name, resp.StatusCode)
		}
	}

	var reloaded model.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.Status != model.PurchaseStatusPending {
		t.Errorf("purchase status = %q after rejected webhooks, want pending", reloaded.Status)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	app, db := newWebhookFixture(t)
	purchase := seedPendingPurchase(t, db, "ref-wh-1")

	body := []byte(`{"event":"charge.dispute.create","data":{"reference":"ref-wh-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paystack.SignatureHeader, sign(body))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 (acknowledged, ignored)", resp.StatusCode)
	}

	var reloaded model.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.Status != model.PurchaseStatusPending {
		t.Errorf("purchase status = %q, want pending", reloaded.Status)
	}
}

func TestWebhookAcknowledgesFailedPurchaseWithoutCompleting(t *testing.T) {
	app, db := newWebhookFixture(t)
	purchase := seedPendingPurchase(t, db, "ref-wh-1")
	if err := db.Model(&model.Purchase{}).Where("id = ?", purchase.ID).
		Update("status", model.PurchaseStatusFailed).Error; err != nil {
		t.Fatalf("failed to mark purchase failed: %v", err)
	}

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-wh-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paystack.SignatureHeader, sign(body))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// Acknowledged so the gateway stops retrying, but nothing is completed
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var reloaded model.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.Status != model.PurchaseStatusFailed {
		t.Errorf("purchase status = %q, want still failed", reloaded.Status)
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", purchase.ID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 0 {
		t.Errorf("token count = %d, want 0", tokenCount)
	}
}

func TestWebhookAcknowledgesUnknownReference(t *testing.T) {
	app, _ := newWebhookFixture(t)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-unknown"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paystack.SignatureHeader, sign(body))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 so the gateway stops retrying", resp.StatusCode)
	}
}
