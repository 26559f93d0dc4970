package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"bell24h/internal/domain" // Importing domain models
	"bell24h/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

const adminCacheTTL = 60 * time.Second

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID          uint           `json:"id"`               // User ID
	Name        string         `json:"name"`             // Display name
	Email       *string        `json:"email,omitempty"`  // Login email
	Phone       *string        `json:"phone,omitempty"`  // Mobile number
	Role        string         `json:"role"`             // User role
	CompanyName string         `json:"company_name"`     // Business name
	KYCStatus   string         `json:"kyc_status"`       // KYC onboarding state
	Wallet      *domain.Wallet `json:"wallet,omitempty"` // Associated wallet
	CreatedAt   time.Time      `json:"created_at"`       // Sign-up time
}

type adminUserPage struct {
	Users []UserAdminResponse `json:"users"` // List of users
	utils.Pagination
	Cached bool `json:"cached"` // Indicate response is from cache
}

type adminTxPage struct {
	Transactions []domain.Transaction `json:"transactions"` // List of transactions
	utils.Pagination
	Cached bool `json:"cached"` // Indicate response is from cache
}

// ListUsersHandler returns users with their wallet info, optionally filtered by role or KYC status
func ListUsersHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := utils.ParsePage(c)
		role := c.Query("role")
		kycStatus := c.Query("kyc_status")
		// Create a cache key based on filters and pagination parameters
		cacheKey := "admin:users:role=" + role + ":kyc=" + kycStatus + ":page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		var resp adminUserPage
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &resp); err == nil && found {
			resp.Cached = true // Indicate response is from cache
			c.JSON(http.StatusOK, resp)
			return
		}
		query := db.WithContext(ctx).Model(&domain.User{}) // Start building the query
		if role != "" {
			query = query.Where("role = ?", role) // Filter by role
		}
		if kycStatus != "" {
			query = query.Where("kyc_status = ?", kycStatus) // Filter by KYC status
		}
		var total int64 // Total user count
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"}) // Return on error
			return
		}
		resp.Pagination = utils.NewPagination(page, pageSize, total)
		var users []domain.User // Slice to hold users
		// Preload Wallet relation, apply offset and limit for pagination
		if err := query.Preload("Wallet").Order("id").Offset(resp.Offset()).Limit(pageSize).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"}) // Return on error
			return
		}
		// Map users to response format
		resp.Users = make([]UserAdminResponse, len(users))
		for i, u := range users {
			resp.Users[i] = UserAdminResponse{
				ID:          u.ID,          // User ID
				Name:        u.Name,        // Display name
				Email:       u.Email,       // Login email
				Phone:       u.Phone,       // Mobile number
				Role:        u.Role,        // User role
				CompanyName: u.CompanyName, // Business name
				KYCStatus:   u.KYCStatus,   // KYC state
				Wallet:      u.Wallet,      // Associated wallet
				CreatedAt:   u.CreatedAt,   // Sign-up time
			}
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, adminCacheTTL)
		c.JSON(http.StatusOK, resp) // Return the response
	}
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, type, or date.
// from and to are unix milliseconds.
func ListTransactionsHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := utils.ParsePage(c)
		// Build cache key from all query params
		var keyParts []string // Parts of the cache key
		for _, k := range []string{"user_id", "type", "status", "from", "to"} {
			keyParts = append(keyParts, k+"="+c.Query(k)) // Append key-value pair
		}
		keyParts = append(keyParts, "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")
		var resp adminTxPage
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &resp); err == nil && found {
			resp.Cached = true // Indicate response is from cache
			c.JSON(http.StatusOK, resp)
			return
		}
		query := db.WithContext(ctx).Model(&domain.Transaction{}) // Start building the query
		if userID := c.Query("user_id"); userID != "" {
			// Filter by the user's wallet
			walletIDs := db.Model(&domain.Wallet{}).Select("id").Where("user_id = ?", userID)
			query = query.Where("from_wallet_id IN (?) OR to_wallet_id IN (?)", walletIDs, walletIDs)
		}
		if txType := c.Query("type"); txType != "" {
			query = query.Where("type = ?", txType) // Filter by transaction type
		}
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status) // Filter by lifecycle status
		}
		for param, cond := range map[string]string{"from": "created_at >= ?", "to": "created_at <= ?"} {
			raw := c.Query(param)
			if raw == "" {
				continue
			}
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + ": expected unix milliseconds"})
				return
			}
			query = query.Where(cond, ms) // Filter by date
		}
		var total int64 // Total transaction count
		// Get total count of transactions matching the filters
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count transactions"})
			return
		}
		resp.Pagination = utils.NewPagination(page, pageSize, total)
		// Fetch paginated transactions with filters applied
		if err := query.Order("created_at desc, id desc").Offset(resp.Offset()).Limit(pageSize).Find(&resp.Transactions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, adminCacheTTL)
		c.JSON(http.StatusOK, resp) // Return the response
	}
}
