package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bell24h/internal/domain"
	"bell24h/internal/notify"
	"bell24h/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// KYCRequest submits business verification details
type KYCRequest struct {
	BusinessName string `json:"business_name" binding:"required,max=200"`
	GSTIN        string `json:"gstin" binding:"required,gstin"`
	PAN          string `json:"pan" binding:"required,pan"`
	Address      string `json:"address" binding:"required,max=500"`
}

// KYCDecisionRequest is an admin's verdict on a pending submission
type KYCDecisionRequest struct {
	Status string `json:"status" binding:"required,oneof=verified rejected"`
	Reason string `json:"reason" binding:"max=500"`
}

var errKYCNotPending = errors.New("kyc not pending")

// SubmitKYCHandler stores the caller's KYC details and marks them pending review
func SubmitKYCHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req KYCRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Business name, address, a valid GSTIN and PAN are required"})
			return
		}
		// A verified account is never sent back to review
		res := db.WithContext(c.Request.Context()).Model(&domain.User{}).
			Where("id = ? AND kyc_status <> ?", userID, domain.KYCVerified).
			Updates(map[string]any{
				"company_name":     strings.TrimSpace(req.BusinessName),
				"gstin":            strings.ToUpper(req.GSTIN),
				"pan":              strings.ToUpper(req.PAN),
				"business_address": strings.TrimSpace(req.Address),
				"kyc_status":       domain.KYCPending,
				"kyc_reason":       "", // Clear any earlier rejection
				"kyc_submitted_at": time.Now(),
			})
		if res.Error != nil {
			logrus.WithError(res.Error).WithField("user_id", userID).Error("KYC submission failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit KYC"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "KYC is already verified"})
			return
		}
		logrus.WithField("user_id", userID).Info("KYC submitted")
		c.JSON(http.StatusOK, gin.H{"success": true, "kyc_status": domain.KYCPending})
	}
}

// DecideKYCHandler verifies or rejects a pending KYC submission. Verifying a supplier drops the
// cached supplier listings so the verified filter picks it up.
func DecideKYCHandler(db *gorm.DB, rdb redis.UniversalClient, notifier notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := idParam(c, "userID")
		if !ok {
			return
		}
		var req KYCDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be verified or rejected"})
			return
		}
		ctx := c.Request.Context()
		var user domain.User
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&user, userID).Error; err != nil {
				return err
			}
			res := tx.Model(&domain.User{}).
				Where("id = ? AND kyc_status = ?", userID, domain.KYCPending).
				Updates(map[string]any{"kyc_status": req.Status, "kyc_reason": req.Reason})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errKYCNotPending // Decided by another admin or never submitted
			}
			user.KYCStatus, user.KYCReason = req.Status, req.Reason
			if req.Status == domain.KYCVerified && user.Role == domain.RoleSupplier {
				return tx.Model(&domain.Supplier{}).Where("user_id = ?", userID).Update("verified", true).Error // Badge on the public profile
			}
			return nil
		})
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		case errors.Is(err, errKYCNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "Only pending KYC submissions can be decided"})
			return
		case err != nil:
			logrus.WithError(err).WithField("user_id", userID).Error("KYC decision failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update KYC"})
			return
		}
		if req.Status == domain.KYCVerified && user.Role == domain.RoleSupplier {
			if err := utils.DeleteCachePrefix(ctx, rdb, suppliersCachePrefix); err != nil {
				logrus.WithError(err).Warn("Failed to invalidate supplier cache")
			}
		}

		message := "Your business verification was approved."
		if req.Status == domain.KYCRejected {
			message = "Your business verification was rejected."
			if req.Reason != "" {
				message += " Reason: " + req.Reason
			}
		}
		if _, err := notifier.Notify(ctx, notify.Message{
			UserID:  user.ID,
			Type:    domain.NotifyKYC,
			Title:   "KYC " + req.Status,
			Message: message,
		}); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to notify KYC decision")
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "status": req.Status}).Info("KYC decided")
		c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
	}
}
