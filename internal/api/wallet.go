package api

import (
	"context"  // Detached bookkeeping context
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"bell24h/internal/domain"  // Importing domain models
	"bell24h/internal/ledger"  // Balance movements
	"bell24h/internal/notify"  // User notifications
	"bell24h/internal/payment" // Payout gateway
	"bell24h/internal/utils"   // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

const (
	walletCacheTTL     = 60 * time.Second
	bookkeepingTimeout = 10 * time.Second // Ledger updates after the payout call
)

// DepositRequest represents a deposit request
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`                        // Deposit amount
	Reference   string          `json:"reference" binding:"max=64"`    // Optional external reference, unique
	Description string          `json:"description" binding:"max=255"` // Free-form narration
}

// WithdrawRequest represents a payout to a RazorpayX fund account
type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`                                           // Withdrawal amount
	FundAccountID string          `json:"fund_account_id" binding:"required,max=64"`        // RazorpayX fund account
	Mode          string          `json:"mode" binding:"required,oneof=IMPS NEFT RTGS UPI"` // Transfer rail
}

// TransferRequest represents a transfer request
type TransferRequest struct {
	ToUserID    uint            `json:"to_user_id"`                    // Target user
	ToPhone     string          `json:"to_phone"`                      // Or target phone number
	Amount      decimal.Decimal `json:"amount"`                        // Transfer amount
	Description string          `json:"description" binding:"max=255"` // Free-form narration
}

type transactionPage struct {
	Transactions []domain.Transaction `json:"transactions"` // List of transactions
	utils.Pagination
	Cached bool `json:"cached"` // Indicate response is from cache
}

// walletError maps ledger failures to a status and message
func walletError(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be positive with at most 2 decimal places"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, ledger.ErrSameWallet):
		return http.StatusBadRequest, "Cannot transfer to yourself"
	case errors.Is(err, ledger.ErrWalletNotFound):
		return http.StatusNotFound, "Wallet not found"
	case errors.Is(err, ledger.ErrEscrowNotFound):
		return http.StatusNotFound, "Escrow not found"
	case errors.Is(err, ledger.ErrEscrowNotHeld):
		return http.StatusConflict, "Escrow is no longer held"
	default:
		return http.StatusInternalServerError, "Wallet operation failed"
	}
}

// CreateWalletHandler creates a wallet for a user (one wallet per user)
func CreateWalletHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		// Check if wallet already exists
		if _, err := ledger.WalletByUser(ctx, db, userID); err == nil {
			// If wallet exists, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Wallet already exists"})
			return
		}
		// Create new wallet with zero balance
		wallet := domain.Wallet{UserID: userID, Balance: decimal.Zero, EscrowBalance: decimal.Zero, Currency: "INR"}
		// Save the new wallet
		if err := db.WithContext(ctx).Create(&wallet).Error; err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // User ID
				"error":   err.Error(), // Error message
			}).Error("Failed to create wallet") // Log failure
			// Return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create wallet"})
			return
		}
		// Log successful wallet creation
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,                          // User ID
			"wallet_id": wallet.ID,                       // Wallet ID
			"timestamp": time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Wallet created")
		invalidateWallets(ctx, rdb, userID) // Invalidate wallet cache
		// Return success response
		c.JSON(http.StatusCreated, gin.H{"message": "Wallet created", "wallet": wallet})
	}
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		cacheKey := walletCacheKey(userID)                        // Cache key for wallet
		var wallet domain.Wallet                                  // Wallet struct to hold data
		found, err := utils.GetCache(ctx, rdb, cacheKey, &wallet) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		// If not in cache, fetch from DB
		w, err := ledger.WalletByUser(ctx, db, userID)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, w, walletCacheTTL)  // Cache the wallet for 60 seconds
		c.JSON(http.StatusOK, gin.H{"wallet": w, "cached": false}) // Return wallet info
	}
}

// DepositHandler allows a user to deposit funds into their wallet
func DepositHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req DepositRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil || !ledger.ValidAmount(req.Amount) {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		ctx := c.Request.Context()
		wallet, err := ledger.WalletByUser(ctx, db, userID)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		if req.Reference != "" {
			var dup int64 // References are idempotency keys
			if err := db.WithContext(ctx).Model(&domain.Transaction{}).Where("reference = ?", req.Reference).Count(&dup).Error; err == nil && dup > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "Duplicate reference"})
				return
			}
		}
		t, err := ledger.Deposit(ctx, db, wallet.ID, req.Amount, req.Reference, req.Description)
		if err != nil {
			// Log the error with context
			logrus.WithFields(logrus.Fields{
				"user_id": userID,              // User ID
				"amount":  req.Amount.String(), // Deposit amount
				"error":   err.Error(),         // Error message
			}).Error("Deposit failed")
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		// Log successful deposit
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,                          // User ID
			"amount":    req.Amount.String(),             // Deposit amount
			"reference": t.Reference,                     // Transaction reference
			"timestamp": time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Deposit transaction")
		invalidateWallets(ctx, rdb, userID) // Invalidate wallet and transaction history cache
		c.JSON(http.StatusOK, gin.H{"message": "Deposit successful", "transaction": t})
	}
}

// WithdrawHandler debits the wallet and pays the amount out through the gateway. A definite
// gateway refusal reverses the debit; an unknown outcome leaves the withdrawal pending.
func WithdrawHandler(db *gorm.DB, rdb redis.UniversalClient, gateway payment.Gateway, notifier notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req WithdrawRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil || !ledger.ValidAmount(req.Amount) || !payment.ValidMode(req.Mode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount, fund_account_id and mode (IMPS, NEFT, RTGS, UPI) are required"})
			return
		}
		ctx := c.Request.Context()
		wallet, err := ledger.WalletByUser(ctx, db, userID)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		// Debit first so the balance can never be paid out twice
		t, err := ledger.BeginWithdrawal(ctx, db, wallet.ID, req.Amount, "Withdrawal via "+req.Mode)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		fields := logrus.Fields{
			"user_id":   userID,              // User ID
			"amount":    req.Amount.String(), // Withdrawal amount
			"reference": t.Reference,         // Idempotency key
			"mode":      req.Mode,            // Transfer rail
		}
		payout, err := gateway.CreatePayout(ctx, payment.PayoutRequest{
			FundAccountID: req.FundAccountID,
			Amount:        req.Amount,
			Mode:          req.Mode,
			Reference:     t.Reference,
			Narration:     "Bell24h withdrawal",
		})
		// The debit is already committed; its bookkeeping outlives the client connection
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		defer invalidateWallets(bg, rdb, userID) // Balance changed either way

		switch {
		case err != nil && !payment.IsRejection(err):
			// The payout may exist under the idempotency key; keep the debit for reconciliation
			logrus.WithFields(fields).WithError(err).Error("Payout outcome unknown, withdrawal left pending")
			c.JSON(http.StatusBadGateway, gin.H{
				"error":       "Payout status unknown, the withdrawal is pending reconciliation",
				"transaction": t,
			})
			return
		case err != nil || payout.Failed():
			msg := "Payout failed"
			var gwErr *payment.GatewayError
			if errors.As(err, &gwErr) && gwErr.Description != "" {
				msg += ": " + gwErr.Description
			} else if err == nil {
				msg += ": payout " + payout.Status
			}
			logrus.WithFields(fields).WithError(err).Error("Payout refused, reversing withdrawal")
			if rerr := ledger.FailWithdrawal(bg, db, t); rerr != nil {
				logrus.WithFields(fields).WithError(rerr).Error("Failed to reverse withdrawal")
				c.JSON(http.StatusBadGateway, gin.H{"error": msg + ", the withdrawal is pending reconciliation", "transaction": t})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": msg})
			return
		}
		if err := ledger.CompleteWithdrawal(bg, db, t, payout.ID); err != nil {
			// The money left; keep the pending row for reconciliation
			logrus.WithFields(fields).WithError(err).Error("Failed to mark withdrawal completed")
		}
		logrus.WithFields(fields).WithField("payout_id", payout.ID).Info("Withdrawal transaction")
		if _, err := notifier.Notify(bg, notify.Message{
			UserID:  userID,
			Type:    domain.NotifyWallet,
			Title:   "Withdrawal initiated",
			Message: req.Amount.StringFixed(2) + " INR is on its way via " + req.Mode,
		}); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Failed to notify withdrawal")
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transaction": t, "payout": payout})
	}
}

// TransferHandler allows a user to transfer funds to another user's wallet
func TransferHandler(db *gorm.DB, rdb redis.UniversalClient, notifier notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		fromUserID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req TransferRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil || !ledger.ValidAmount(req.Amount) || (req.ToUserID == 0 && req.ToPhone == "") {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: amount and to_user_id or to_phone are required"})
			return
		}
		ctx := c.Request.Context()
		var toUser domain.User // Find target user
		query := db.WithContext(ctx)
		if req.ToUserID != 0 {
			query = query.Where("id = ?", req.ToUserID)
		} else {
			phone, valid := utils.NormalizePhone(req.ToPhone)
			if !valid {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
				return
			}
			query = query.Where("phone = ?", phone)
		}
		if err := query.First(&toUser).Error; err != nil {
			// If user not found, return not found
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
			return
		}
		// Prevent transferring to self
		if toUser.ID == fromUserID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot transfer to yourself"})
			return
		}
		fromWallet, err := ledger.WalletByUser(ctx, db, fromUserID)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		toWallet, err := ledger.WalletByUser(ctx, db, toUser.ID)
		if err != nil {
			// If recipient wallet not found, return not found
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipient wallet not found"})
			return
		}
		// Atomic transfer
		t, err := ledger.Transfer(ctx, db, fromWallet.ID, toWallet.ID, req.Amount, req.Description)
		if err != nil {
			// Log the error with context
			logrus.WithFields(logrus.Fields{
				"from_user_id": fromUserID,          // Sender user ID
				"to_user_id":   toUser.ID,           // Recipient user ID
				"amount":       req.Amount.String(), // Transfer amount
				"error":        err.Error(),         // Error message
			}).Error("Transfer failed")
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		// Log successful transfer
		logrus.WithFields(logrus.Fields{
			"from_user_id": fromUserID,                      // Sender user ID
			"to_user_id":   toUser.ID,                       // Recipient user ID
			"amount":       req.Amount.String(),             // Transfer amount
			"reference":    t.Reference,                     // Transaction reference
			"timestamp":    time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Transfer transaction")
		invalidateWallets(ctx, rdb, fromUserID, toUser.ID) // Invalidate wallet and history cache for both users
		if _, err := notifier.Notify(ctx, notify.Message{
			UserID:  toUser.ID,
			Type:    domain.NotifyWallet,
			Title:   "Payment received",
			Message: "You received " + req.Amount.StringFixed(2) + " INR",
		}); err != nil {
			logrus.WithError(err).WithField("user_id", toUser.ID).Warn("Failed to notify transfer recipient")
		}
		c.JSON(http.StatusOK, gin.H{"message": "Transfer successful", "transaction": t})
	}
}

// GetTransactionHistoryHandler returns all transactions for the authenticated user's wallet
func GetTransactionHistoryHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		wallet, err := ledger.WalletByUser(ctx, db, userID)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		page, pageSize := utils.ParsePage(c)
		// Redis cache key, every page shares the user's prefix
		cacheKey := txHistoryPrefix(userID) + "page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		var resp transactionPage
		// If found in cache, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &resp); err == nil && found {
			resp.Cached = true
			c.JSON(http.StatusOK, resp)
			return
		}
		query := db.WithContext(ctx).Model(&domain.Transaction{}).
			Where("from_wallet_id = ? OR to_wallet_id = ?", wallet.ID, wallet.ID)
		var total int64 // Total count of transactions
		// Count total transactions for pagination
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count transactions"})
			return
		}
		resp.Pagination = utils.NewPagination(page, pageSize, total)
		// Fetch paginated transactions
		if err := query.Order("created_at desc, id desc").
			Offset(resp.Offset()).
			Limit(pageSize).
			Find(&resp.Transactions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, walletCacheTTL) // Cache the page
		c.JSON(http.StatusOK, resp)
	}
}
