package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/primeshots/api/model"
	"github.com/primeshots/api/services/paystack"
	"gorm.io/gorm"
)

func TestComputeAmount(t *testing.T) {
	cases := []struct {
		name      string
		itemCount int
		freeUnits int
		unitPrice int64
		want      int64
	}{
		{"no discount", 3, 0, 200, 600},
		{"partial discount", 3, 2, 200, 200},
		{"fully covered", 2, 2, 200, 0},
		{"over-covered clamps to zero", 1, 5, 200, 0},
		{"single item", 1, 0, 200, 200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeAmount(tc.itemCount, tc.freeUnits, tc.unitPrice)
			if got != tc.want {
				t.Errorf("ComputeAmount(%d, %d, %d) = %d, want %d",
					tc.itemCount, tc.freeUnits, tc.unitPrice, got, tc.want)
			}
		})
	}
}

// gatewayBehavior scripts the fake Paystack server
type gatewayBehavior struct {
	initializeFails bool
	verifyStatus    string // transaction status returned by verify
	lastInitialize  paystack.InitializeRequest
	verifyCalls     int
}

func newTestGateway(t *testing.T, behavior *gatewayBehavior) *paystack.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/transaction/initialize":
			if err := json.NewDecoder(r.Body).Decode(&behavior.lastInitialize); err != nil {
				t.Errorf("failed to decode initialize request: %v", err)
			}
			if behavior.initializeFails {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"status":false,"message":"Invalid amount"}`)
				return
			}
			fmt.Fprintf(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.test/%s","access_code":"acc_123","reference":"%s"}}`,
				behavior.lastInitialize.Reference, behavior.lastInitialize.Reference)
		case r.Method == http.MethodGet && len(r.URL.Path) > len("/transaction/verify/") && r.URL.Path[:len("/transaction/verify/")] == "/transaction/verify/":
			behavior.verifyCalls++
			reference := r.URL.Path[len("/transaction/verify/"):]
			status := behavior.verifyStatus
			if status == "" {
				status = "success"
			}
			fmt.Fprintf(w, `{"status":true,"message":"Verification successful","data":{"status":"%s","reference":"%s","amount":%d,"currency":"NGN"}}`,
				status, reference, behavior.lastInitialize.AmountKobo)
		default:
			t.Errorf("unexpected gateway request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status":false,"message":"not found"}`)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := paystack.NewClient(paystack.Config{SecretKey: "sk_test_secret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("failed to build gateway client: %v", err)
	}
	return client
}

func newPaymentFixture(t *testing.T, behavior *gatewayBehavior) (*PaymentService, *gorm.DB, *fakeObjectStore) {
	t.Helper()

	db := newTestDB(t)
	store := newFakeObjectStore()
	coupons := NewCouponService(db)
	downloads := NewDownloadService(db, store, nil)
	gateway := newTestGateway(t, behavior)
	payments := NewPaymentService(db, gateway, coupons, downloads, 200, "https://primeshots.store/payment/callback")
	return payments, db, store
}

func TestInitializeEmptyCart(t *testing.T) {
	payments, _, _ := newPaymentFixture(t, &gatewayBehavior{})

	_, err := payments.Initialize(context.Background(), InitializeRequest{
		TrackingCode: "TRK-0001",
		CustomerName: "Ada",
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("got %v, want ErrEmptyCart", err)
	}
}

func TestInitializeUnknownContent(t *testing.T) {
	payments, db, store := newPaymentFixture(t, &gatewayBehavior{})
	item := seedContent(t, db, store, "beach.jpg", model.MediaTypeImage)

	_, err := payments.Initialize(context.Background(), InitializeRequest{
		ContentIDs:   []uint{item.ID, item.ID + 100},
		TrackingCode: "TRK-0002",
		CustomerName: "Ada",
	})
	if !errors.Is(err, ErrContentNotFound) {
		t.Errorf("got %v, want ErrContentNotFound", err)
	}
}

func TestInitializeWithCoupon(t *testing.T) {
	behavior := &gatewayBehavior{}
	payments, db, store := newPaymentFixture(t, behavior)
	ctx := context.Background()

	imgA := seedContent(t, db, store, "sunset.jpg", model.MediaTypeImage)
	imgB := seedContent(t, db, store, "dunes.jpg", model.MediaTypeImage)
	vid := seedContent(t, db, store, "waves.mp4", model.MediaTypeVideo)

	coupons := NewCouponService(db)
	if _, err := coupons.Create(ctx, CreateCouponRequest{Code: "LAUNCH1", FreeImages: 1, FreeVideos: 1}); err != nil {
		t.Fatalf("failed to create coupon: %v", err)
	}

	// 2 images + 1 video at 200 each, coupon covers 1 image + 1 video
	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{imgA.ID, imgB.ID, vid.ID},
		TrackingCode: "TRK-0003",
		CustomerName: "Ada Lovelace",
		CouponCode:   "LAUNCH1",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if result.Amount != 200 {
		t.Errorf("Amount = %d, want 200", result.Amount)
	}
	if behavior.lastInitialize.AmountKobo != 20000 {
		t.Errorf("gateway amount = %d kobo, want 20000", behavior.lastInitialize.AmountKobo)
	}
	if behavior.lastInitialize.Currency != "NGN" {
		t.Errorf("gateway currency = %q, want NGN", behavior.lastInitialize.Currency)
	}
	if behavior.lastInitialize.Email == "" {
		t.Error("gateway email is empty, the synthetic address should be filled in")
	}
	if behavior.lastInitialize.Metadata["tracking_code"] != "TRK-0003" {
		t.Errorf("gateway metadata tracking_code = %q, want TRK-0003", behavior.lastInitialize.Metadata["tracking_code"])
	}
	if result.AuthorizationURL == "" {
		t.Error("AuthorizationURL is empty")
	}

	var purchase model.Purchase
	if err := db.Where("reference = ?", result.Reference).First(&purchase).Error; err != nil {
		t.Fatalf("pending purchase was not persisted: %v", err)
	}
	if purchase.Status != model.PurchaseStatusPending {
		t.Errorf("purchase status = %q, want pending", purchase.Status)
	}
	if purchase.CouponCode == nil || *purchase.CouponCode != "LAUNCH1" {
		t.Errorf("purchase coupon = %v, want LAUNCH1", purchase.CouponCode)
	}

	// Initialization must not consume the coupon
	if _, err := coupons.Validate(ctx, "LAUNCH1"); err != nil {
		t.Errorf("coupon consumed during initialization: %v", err)
	}
}

func TestInitializeDuplicateTrackingCode(t *testing.T) {
	payments, db, store := newPaymentFixture(t, &gatewayBehavior{})
	ctx := context.Background()

	item := seedContent(t, db, store, "pier.jpg", model.MediaTypeImage)

	first := InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-COLLIDE",
		CustomerName: "Ada",
	}
	if _, err := payments.Initialize(ctx, first); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}

	_, err := payments.Initialize(ctx, first)
	if !errors.Is(err, ErrDuplicateTrackingCode) {
		t.Errorf("got %v, want ErrDuplicateTrackingCode", err)
	}
}

func TestInitializeGatewayFailureMarksPurchaseFailed(t *testing.T) {
	payments, db, store := newPaymentFixture(t, &gatewayBehavior{initializeFails: true})
	ctx := context.Background()

	item := seedContent(t, db, store, "cliff.jpg", model.MediaTypeImage)

	_, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-GWFAIL",
		CustomerName: "Ada",
	})
	var apiErr *paystack.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want a gateway APIError", err)
	}

	var purchase model.Purchase
	if err := db.Where("tracking_code = ?", "TRK-GWFAIL").First(&purchase).Error; err != nil {
		t.Fatalf("purchase row missing after gateway failure: %v", err)
	}
	if purchase.Status != model.PurchaseStatusFailed {
		t.Errorf("purchase status = %q, want failed", purchase.Status)
	}
}

func TestConfirmByReferenceIsIdempotent(t *testing.T) {
	behavior := &gatewayBehavior{}
	payments, db, store := newPaymentFixture(t, behavior)
	ctx := context.Background()

	imgA := seedContent(t, db, store, "harbor.jpg", model.MediaTypeImage)
	imgB := seedContent(t, db, store, "market.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{imgA.ID, imgB.ID},
		TrackingCode: "TRK-CONFIRM",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Webhook and client verify both land on the same path; repeating it
	// must not mint a second token batch.
	for i := 0; i < 2; i++ {
		confirm, err := payments.ConfirmByReference(ctx, result.Reference)
		if err != nil {
			t.Fatalf("ConfirmByReference round %d failed: %v", i, err)
		}
		if !confirm.Completed {
			t.Errorf("round %d: Completed = false, want true", i)
		}
		if confirm.TrackingCode != "TRK-CONFIRM" {
			t.Errorf("round %d: TrackingCode = %q, want TRK-CONFIRM", i, confirm.TrackingCode)
		}
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", result.PurchaseID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 2 {
		t.Errorf("token count = %d, want exactly 2 (one per item)", tokenCount)
	}

	var purchase model.Purchase
	if err := db.First(&purchase, result.PurchaseID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if purchase.Status != model.PurchaseStatusCompleted {
		t.Errorf("purchase status = %q, want completed", purchase.Status)
	}
}

func TestConfirmRedeemsCoupon(t *testing.T) {
	payments, db, store := newPaymentFixture(t, &gatewayBehavior{})
	ctx := context.Background()

	item := seedContent(t, db, store, "lagoon.jpg", model.MediaTypeImage)

	coupons := NewCouponService(db)
	if _, err := coupons.Create(ctx, CreateCouponRequest{Code: "FREEBIE1", FreeImages: 1}); err != nil {
		t.Fatalf("failed to create coupon: %v", err)
	}

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-COUPON",
		CustomerName: "Grace Hopper",
		CouponCode:   "FREEBIE1",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := payments.ConfirmByReference(ctx, result.Reference); err != nil {
		t.Fatalf("ConfirmByReference failed: %v", err)
	}

	var coupon model.Coupon
	if err := db.Where("code = ?", "FREEBIE1").First(&coupon).Error; err != nil {
		t.Fatalf("failed to reload coupon: %v", err)
	}
	if !coupon.Used {
		t.Error("coupon was not redeemed on confirmation")
	}
	if coupon.UsedBy != "Grace Hopper" {
		t.Errorf("coupon UsedBy = %q, want Grace Hopper", coupon.UsedBy)
	}
}

func TestConfirmNotSuccessfulLeavesPending(t *testing.T) {
	behavior := &gatewayBehavior{verifyStatus: "abandoned"}
	payments, db, store := newPaymentFixture(t, behavior)
	ctx := context.Background()

	item := seedContent(t, db, store, "ridge.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-ABANDON",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := payments.ConfirmByReference(ctx, result.Reference); !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Errorf("got %v, want ErrPaymentNotSuccessful", err)
	}

	var purchase model.Purchase
	if err := db.First(&purchase, result.PurchaseID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if purchase.Status != model.PurchaseStatusPending {
		t.Errorf("purchase status = %q, want pending", purchase.Status)
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", result.PurchaseID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 0 {
		t.Errorf("token count = %d, want 0 for an unconfirmed purchase", tokenCount)
	}
}

func TestConfirmAfterFailureReportsFailure(t *testing.T) {
	behavior := &gatewayBehavior{}
	payments, db, store := newPaymentFixture(t, behavior)
	ctx := context.Background()

	item := seedContent(t, db, store, "latewebhook.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-LATE",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Stale-checkout sweep marks the purchase failed before the gateway's
	// confirmation arrives
	if err := db.Model(&model.Purchase{}).Where("id = ?", result.PurchaseID).
		Update("status", model.PurchaseStatusFailed).Error; err != nil {
		t.Fatalf("failed to mark purchase failed: %v", err)
	}

	// The gateway says success, but the purchase is terminally failed here;
	// that must never be reported as a completed order
	if _, err := payments.ConfirmByReference(ctx, result.Reference); !errors.Is(err, ErrPurchaseFailed) {
		t.Errorf("got %v, want ErrPurchaseFailed", err)
	}

	var purchase model.Purchase
	if err := db.First(&purchase, result.PurchaseID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if purchase.Status != model.PurchaseStatusFailed {
		t.Errorf("purchase status = %q, want failed", purchase.Status)
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", result.PurchaseID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 0 {
		t.Errorf("token count = %d, want 0", tokenCount)
	}

	if err := payments.CompleteManually(ctx, result.PurchaseID); !errors.Is(err, ErrPurchaseFailed) {
		t.Errorf("CompleteManually on failed purchase: got %v, want ErrPurchaseFailed", err)
	}
}

func TestConfirmUnknownReference(t *testing.T) {
	payments, _, _ := newPaymentFixture(t, &gatewayBehavior{})

	if _, err := payments.ConfirmByReference(context.Background(), "nosuchref"); !errors.Is(err, ErrPurchaseNotFound) {
		t.Errorf("got %v, want ErrPurchaseNotFound", err)
	}
}

func TestCompleteManually(t *testing.T) {
	behavior := &gatewayBehavior{}
	payments, db, store := newPaymentFixture(t, behavior)
	ctx := context.Background()

	item := seedContent(t, db, store, "canyon.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-MANUAL",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if err := payments.CompleteManually(ctx, result.PurchaseID); err != nil {
		t.Fatalf("CompleteManually failed: %v", err)
	}
	if behavior.verifyCalls != 0 {
		t.Errorf("manual completion hit the gateway %d times, want 0", behavior.verifyCalls)
	}

	// Re-completing is a no-op
	if err := payments.CompleteManually(ctx, result.PurchaseID); err != nil {
		t.Fatalf("repeated CompleteManually failed: %v", err)
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", result.PurchaseID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 1 {
		t.Errorf("token count = %d, want 1", tokenCount)
	}
}

func TestTrackingLookup(t *testing.T) {
	payments, db, store := newPaymentFixture(t, &gatewayBehavior{})
	ctx := context.Background()

	item := seedContent(t, db, store, "shore.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-LOOKUP",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	summary, err := payments.TrackingLookup(ctx, "TRK-LOOKUP")
	if err != nil {
		t.Fatalf("TrackingLookup failed: %v", err)
	}
	if summary.PurchaseID != result.PurchaseID {
		t.Errorf("PurchaseID = %d, want %d", summary.PurchaseID, result.PurchaseID)
	}
	if summary.Status != model.PurchaseStatusPending {
		t.Errorf("Status = %q, want pending", summary.Status)
	}
	if len(summary.Items) != 1 || summary.Items[0].ID != item.ID {
		t.Errorf("Items = %+v, want the single purchased item", summary.Items)
	}

	if _, err := payments.TrackingLookup(ctx, "TRK-NOSUCH"); !errors.Is(err, ErrPurchaseNotFound) {
		t.Errorf("unknown tracking code: got %v, want ErrPurchaseNotFound", err)
	}
}

func TestGetPurchaseTokensOnlyWhenCompleted(t *testing.T) {
	payments, db, store := newPaymentFixture(t, &gatewayBehavior{})
	ctx := context.Background()

	item := seedContent(t, db, store, "bay.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID},
		TrackingCode: "TRK-DETAIL",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	detail, err := payments.GetPurchase(ctx, result.PurchaseID)
	if err != nil {
		t.Fatalf("GetPurchase failed: %v", err)
	}
	if len(detail.Items) != 0 {
		t.Errorf("pending purchase carries %d items, want 0", len(detail.Items))
	}

	if _, err := payments.ConfirmByReference(ctx, result.Reference); err != nil {
		t.Fatalf("ConfirmByReference failed: %v", err)
	}

	detail, err = payments.GetPurchase(ctx, result.PurchaseID)
	if err != nil {
		t.Fatalf("GetPurchase after completion failed: %v", err)
	}
	if len(detail.Items) != 1 {
		t.Fatalf("completed purchase carries %d items, want 1", len(detail.Items))
	}
	if detail.Items[0].DownloadToken == "" {
		t.Error("completed item is missing its download token")
	}
	if detail.Items[0].Content.ID != item.ID {
		t.Errorf("item content id = %d, want %d", detail.Items[0].Content.ID, item.ID)
	}

	if _, err := payments.GetPurchase(ctx, result.PurchaseID+100); !errors.Is(err, ErrPurchaseNotFound) {
		t.Errorf("unknown purchase: got %v, want ErrPurchaseNotFound", err)
	}
}

func TestInitializeDuplicateCartIDs(t *testing.T) {
	behavior := &gatewayBehavior{}
	payments, db, store := newPaymentFixture(t, behavior)
	ctx := context.Background()

	item := seedContent(t, db, store, "reef.jpg", model.MediaTypeImage)

	result, err := payments.Initialize(ctx, InitializeRequest{
		ContentIDs:   []uint{item.ID, item.ID},
		TrackingCode: "TRK-DUPED",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// A repeated id is one item: charged once and fulfilled once
	if result.Amount != 200 {
		t.Errorf("Amount = %d, want 200 (duplicate id charged once)", result.Amount)
	}
	if behavior.lastInitialize.AmountKobo != 20000 {
		t.Errorf("gateway amount = %d kobo, want 20000", behavior.lastInitialize.AmountKobo)
	}

	var persisted model.Purchase
	if err := db.First(&persisted, result.PurchaseID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if len(persisted.ContentIDs) != 1 {
		t.Errorf("persisted ContentIDs = %v, want the single distinct id", persisted.ContentIDs)
	}

	if _, err := payments.ConfirmByReference(ctx, result.Reference); err != nil {
		t.Fatalf("ConfirmByReference failed: %v", err)
	}

	var tokenCount int64
	if err := db.Model(&model.DownloadToken{}).Where("purchase_id = ?", result.PurchaseID).Count(&tokenCount).Error; err != nil {
		t.Fatalf("failed to count tokens: %v", err)
	}
	if tokenCount != 1 {
		t.Errorf("token count = %d, want 1", tokenCount)
	}
}
