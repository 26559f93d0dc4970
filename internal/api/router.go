package api

import (
	"net/http"
	"time"

	"bell24h/internal/config"
	"bell24h/internal/domain"
	"bell24h/internal/middleware"
	"bell24h/internal/notify"
	"bell24h/internal/payment"
	"bell24h/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependencies are the services the REST handlers run on
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       redis.UniversalClient
	OTP         *utils.OTPStore
	Notifier    notify.Notifier
	Broadcaster notify.Broadcaster
	Gateway     payment.Gateway
}

// HealthHandler pings the database and Redis
func HealthHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		dbStatus, redisStatus := "ok", "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "unavailable"
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			redisStatus = "unavailable"
		}
		status, code := "ok", http.StatusOK
		if dbStatus != "ok" || redisStatus != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "database": dbStatus, "redis": redisStatus})
	}
}

// NewRouter builds the REST API engine
func NewRouter(d Dependencies) (*gin.Engine, error) {
	utils.RegisterValidators()

	r := gin.New()
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies(d.Config.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.SecureHeaders(d.Config.IsProd()))

	secret, ttl := d.Config.JWTSecret, d.Config.JWTTTL
	auth := middleware.JWTAuthMiddleware(secret)
	optionalAuth := middleware.OptionalJWTMiddleware(secret)

	r.GET("/health", HealthHandler(d.DB, d.Redis))

	api := r.Group("/api")

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.POST("/send-phone-otp",
		middleware.RateLimit(d.Config.OTPRateLimit, time.Minute, nil),         // Per client IP
		middleware.RateLimit(d.Config.OTPRateLimit, time.Minute, OTPPhoneKey), // Per phone number
		SendPhoneOTPHandler(d.OTP, !d.Config.IsProd()))
	authGroup.POST("/verify-phone-otp",
		middleware.RateLimit(d.Config.OTPRateLimit, time.Minute, nil),         // Per client IP
		middleware.RateLimit(d.Config.OTPRateLimit, time.Minute, OTPPhoneKey), // Per phone number
		VerifyPhoneOTPHandler(d.DB, d.OTP, secret, ttl))
	authGroup.POST("/register", RegisterHandler(d.DB, secret, ttl))
	authGroup.POST("/login", LoginHandler(d.DB, secret, ttl))
	authGroup.GET("/me", auth, MeHandler(d.DB))

	api.POST("/kyc", auth, SubmitKYCHandler(d.DB))

	// Catalogue routes
	api.GET("/categories", ListCategoriesHandler(d.DB, d.Redis))
	api.GET("/suppliers", ListSuppliersHandler(d.DB, d.Redis))
	api.GET("/suppliers/:id", GetSupplierHandler(d.DB))
	api.PUT("/suppliers/profile", auth, middleware.RequireRoles(d.DB, domain.RoleSupplier), UpsertSupplierProfileHandler(d.DB, d.Redis))

	// RFQ routes
	rfqs := api.Group("/rfqs")
	rfqs.GET("", optionalAuth, ListRFQsHandler(d.DB))
	rfqs.GET("/:id", optionalAuth, GetRFQHandler(d.DB))
	rfqs.POST("", auth, middleware.RequireRoles(d.DB, domain.RoleBuyer, domain.RoleAdmin), CreateRFQHandler(d.DB))
	rfqs.POST("/:id/quotes", auth, middleware.RequireRoles(d.DB, domain.RoleSupplier), SubmitQuoteHandler(d.DB, d.Notifier, d.Broadcaster))
	rfqs.POST("/:id/award", auth, AwardRFQHandler(d.DB, d.Notifier, d.Broadcaster))
	rfqs.POST("/:id/close", auth, CloseRFQHandler(d.DB, d.Broadcaster))

	// Wallet routes (protected by JWT)
	walletGroup := api.Group("/wallet", auth)
	walletGroup.POST("", CreateWalletHandler(d.DB, d.Redis))                                 // Create wallet endpoint
	walletGroup.GET("", GetWalletHandler(d.DB, d.Redis))                                     // Get wallet endpoint
	walletGroup.POST("/deposit", DepositHandler(d.DB, d.Redis))                              // Deposit endpoint
	walletGroup.POST("/withdraw", WithdrawHandler(d.DB, d.Redis, d.Gateway, d.Notifier))     // Payout endpoint
	walletGroup.POST("/transfer", TransferHandler(d.DB, d.Redis, d.Notifier))                // Transfer endpoint
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(d.DB, d.Redis))            // Transaction history endpoint
	walletGroup.POST("/escrow", CreateEscrowHandler(d.DB, d.Redis, d.Notifier))              // Escrow hold endpoint
	walletGroup.GET("/escrow", ListEscrowsHandler(d.DB))                                     // Escrow listing endpoint
	walletGroup.POST("/escrow/:id/release", ReleaseEscrowHandler(d.DB, d.Redis, d.Notifier)) // Escrow release endpoint
	walletGroup.POST("/escrow/:id/refund", RefundEscrowHandler(d.DB, d.Redis, d.Notifier))   // Escrow refund endpoint

	// Notification routes
	notifications := api.Group("/notifications", auth)
	notifications.GET("", ListNotificationsHandler(d.DB))
	notifications.GET("/unread-count", UnreadCountHandler(d.DB))
	notifications.POST("/read-all", MarkAllReadHandler(d.DB))
	notifications.POST("/:id/read", MarkReadHandler(d.DB))
	notifications.DELETE("/:id", DeleteNotificationHandler(d.DB))

	// Admin routes (protected, admin only)
	adminGroup := api.Group("/admin", auth, middleware.AdminOnlyMiddleware(d.DB))
	adminGroup.GET("/users", ListUsersHandler(d.DB, d.Redis))                     // List users endpoint
	adminGroup.GET("/transactions", ListTransactionsHandler(d.DB, d.Redis))       // List transactions endpoint
	adminGroup.PATCH("/kyc/:userID", DecideKYCHandler(d.DB, d.Redis, d.Notifier)) // KYC decision endpoint
	adminGroup.POST("/categories", CreateCategoryHandler(d.DB, d.Redis))          // Category creation endpoint

	return r, nil
}
