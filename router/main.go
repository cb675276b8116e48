package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/primeshots/api/config"
	"github.com/primeshots/api/database"
	"github.com/primeshots/api/handlers"
	admin_handlers "github.com/primeshots/api/handlers/admin"
	content_handlers "github.com/primeshots/api/handlers/content"
	coupon_handlers "github.com/primeshots/api/handlers/coupon"
	download_handlers "github.com/primeshots/api/handlers/download"
	payment_handlers "github.com/primeshots/api/handlers/payment"
	"github.com/primeshots/api/services"
	"github.com/primeshots/api/services/googledrive"
	"github.com/primeshots/api/services/paystack"
	"github.com/primeshots/api/services/storage"
	"github.com/primeshots/api/utils/auth"
	"github.com/primeshots/api/utils/cache"
	"github.com/primeshots/api/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	getEnv, err := config.Get()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	jwtSecret := getEnv.JWT_SECRET
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := getEnv.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "primeshots-api"
	}

	// Admin sessions are short-lived; there is no refresh flow
	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: jwtSecret,
		Expiry: 12 * time.Hour,
		Issuer: jwtIssuer,
	})

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Redis backs the drive token cache and brute-force lockouts; both
	// degrade gracefully without it
	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
	}

	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// External clients. Each is optional: a missing credential disables the
	// operations that need it with a configuration error, never silently.
	var gatewayClient *paystack.Client
	gatewayClient, err = paystack.NewClient(paystack.Config{
		SecretKey: getEnv.PAYSTACK_SECRET_KEY,
	})
	if err != nil {
		log.Println("Warning: Paystack secret key not set. Checkout will be disabled.")
		gatewayClient = nil
	}

	var spacesClient *storage.SpacesClient
	spacesClient, err = storage.NewSpacesClient(storage.SpacesConfig{
		AccessKey: getEnv.SPACES_ACCESS_KEY,
		SecretKey: getEnv.SPACES_SECRET_KEY,
		Bucket:    getEnv.SPACES_BUCKET,
		Region:    getEnv.SPACES_REGION,
		Endpoint:  getEnv.SPACES_ENDPOINT,
		CDNURL:    getEnv.SPACES_CDN_URL,
	})
	if err != nil {
		log.Println("Warning: Spaces credentials not set. Uploads will be disabled.")
		spacesClient = nil
	}

	var driveClient *googledrive.Client
	driveClient, err = googledrive.NewClient(googledrive.Config{
		ClientID:     getEnv.GOOGLE_CLIENT_ID,
		ClientSecret: getEnv.GOOGLE_CLIENT_SECRET,
		RefreshToken: getEnv.GOOGLE_REFRESH_TOKEN,
	}, db, redisCache)
	if err != nil {
		log.Println("Warning: Google Drive credentials not set. Drive imports will be disabled.")
		driveClient = nil
	}

	// Interface-typed so a nil concrete client stays a nil dependency.
	var objectStore services.ObjectStore
	if spacesClient != nil {
		objectStore = spacesClient
	}
	var driveAPI services.DriveAPI
	if driveClient != nil {
		driveAPI = driveClient
	}

	// Services
	watermarkService := services.NewWatermarkService(os.Getenv("WATERMARK_TEXT"))
	contentService := services.NewContentService(db, objectStore, driveAPI, watermarkService)
	couponService := services.NewCouponService(db)
	downloadService := services.NewDownloadService(db, objectStore, driveAPI)
	paymentService := services.NewPaymentService(db, gatewayClient, couponService, downloadService, getEnv.UNIT_PRICE, getEnv.PAYSTACK_CALLBACK_URL)

	// Handlers
	contentHandler := content_handlers.NewContentHandler(contentService)
	couponHandler := coupon_handlers.NewCouponHandler(couponService)
	paymentHandler := payment_handlers.NewPaymentHandler(paymentService, gatewayClient)
	downloadHandler := download_handlers.NewDownloadHandler(downloadService, bruteForceProtection)
	adminAuthHandler := admin_handlers.NewAuthHandler(jwtManager, getEnv.ADMIN_PASSWORD_HASH, bruteForceProtection)

	adminMiddleware := middleware.NewAdminMiddleware(jwtManager)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", handlers.HandleCheckHealth(store))

	// API v1 group
	api := app.Group("/api/v1")

	// Admin login (public, lockout-protected)
	if bruteForceProtection != nil {
		api.Post("/admin/login", bruteForceProtection.CheckAttempts(), adminAuthHandler.Login)
	} else {
		api.Post("/admin/login", adminAuthHandler.Login)
	}

	// ==================== Content Catalog ====================

	content := api.Group("/content")
	content.Get("/", contentHandler.ListContent)                                                       // Public: browse catalog
	content.Get("/:id/preview", contentHandler.PreviewContent)                                         // Public: watermarked preview only
	content.Post("/upload", adminMiddleware.Required(), contentHandler.UploadContent)                  // Admin: upload file
	content.Post("/google-drive", adminMiddleware.Required(), contentHandler.ImportDriveFile)          // Admin: import one drive file
	content.Post("/google-drive-folder", adminMiddleware.Required(), contentHandler.ImportDriveFolder) // Admin: bulk folder import
	content.Delete("/:id", adminMiddleware.Required(), contentHandler.DeleteContent)                   // Admin: remove item

	// ==================== Checkout & Confirmation ====================

	paymentGroup := api.Group("/payment")
	paymentGroup.Post("/initialize", paymentHandler.InitializePayment) // Public: start checkout
	paymentGroup.Post("/webhook", paymentHandler.HandleWebhook)        // Gateway push (HMAC-verified)
	paymentGroup.Post("/verify", paymentHandler.VerifyPayment)         // Public: client-side confirm fallback

	api.Post("/tracking/lookup", paymentHandler.TrackingLookup) // Public: order status by tracking code

	purchase := api.Group("/purchase")
	purchase.Get("/:id", paymentHandler.GetPurchase)                                            // Public: completed-order detail
	purchase.Post("/:id/complete", adminMiddleware.Required(), paymentHandler.CompletePurchase) // Admin/ops: manual completion

	// ==================== Download Gate ====================

	if bruteForceProtection != nil {
		api.Get("/download/:token", bruteForceProtection.CheckAttempts(), downloadHandler.RedeemToken)
	} else {
		api.Get("/download/:token", downloadHandler.RedeemToken)
	}

	// ==================== Coupon Ledger ====================

	coupons := api.Group("/coupons")
	coupons.Get("/", adminMiddleware.Required(), couponHandler.ListCoupons)   // Admin: coupon history
	coupons.Post("/", adminMiddleware.Required(), couponHandler.CreateCoupon) // Admin: issue coupon
	coupons.Post("/validate", couponHandler.ValidateCoupon)                   // Public: read-only check
	// Confirmation redeems in-process; the HTTP redemption path is an ops
	// escape hatch, not a customer surface
	coupons.Post("/use", adminMiddleware.Required(), couponHandler.UseCoupon) // Admin/ops: explicit redemption
}
