package api

import (
	"context"
	"errors"
	"net/http"

	"bell24h/internal/domain"
	"bell24h/internal/ledger"
	"bell24h/internal/notify"
	"bell24h/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EscrowRequest holds funds for a payee
type EscrowRequest struct {
	PayeeUserID uint            `json:"payee_user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	RFQID       *uint           `json:"rfq_id"` // Optional link to the RFQ being paid for
	Description string          `json:"description" binding:"max=255"`
}

type escrowPage struct {
	Escrows []domain.Escrow `json:"escrows"`
	utils.Pagination
}

// escrowParties resolves the users owning both sides of an escrow
func escrowParties(ctx context.Context, db *gorm.DB, escrow *domain.Escrow) (payer, payee uint, err error) {
	var wallets []domain.Wallet
	if err := db.WithContext(ctx).Where("id IN ?", []uint{escrow.PayerWalletID, escrow.PayeeWalletID}).Find(&wallets).Error; err != nil {
		return 0, 0, err
	}
	for _, w := range wallets {
		if w.ID == escrow.PayerWalletID {
			payer = w.UserID
		}
		if w.ID == escrow.PayeeWalletID {
			payee = w.UserID
		}
	}
	if payer == 0 || payee == 0 {
		return 0, 0, ledger.ErrWalletNotFound
	}
	return payer, payee, nil
}

// notifyEscrow tells both parties about an escrow event
func notifyEscrow(ctx context.Context, notifier notify.Notifier, escrow *domain.Escrow, title, message string, userIDs ...uint) {
	for _, id := range userIDs {
		if _, err := notifier.Notify(ctx, notify.Message{
			UserID:  id,
			Type:    domain.NotifyEscrow,
			Title:   title,
			Message: message,
			RFQID:   escrow.RFQID,
		}); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"escrow_id": escrow.ID, "user_id": id}).Warn("Failed to notify escrow party")
		}
	}
}

// CreateEscrowHandler moves funds from the caller's balance into escrow for a payee
func CreateEscrowHandler(db *gorm.DB, rdb redis.UniversalClient, notifier notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req EscrowRequest
		if err := c.ShouldBindJSON(&req); err != nil || !ledger.ValidAmount(req.Amount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payee_user_id and a positive amount with at most 2 decimal places are required"})
			return
		}
		if req.PayeeUserID == userID { // No self escrow
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot hold escrow for yourself"})
			return
		}
		ctx := c.Request.Context()
		if req.RFQID != nil {
			if err := db.WithContext(ctx).First(&domain.RFQ{}, *req.RFQID).Error; err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "RFQ not found"})
				return
			}
		}
		payerWallet, err := ledger.WalletByUser(ctx, db, userID)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		payeeWallet, err := ledger.WalletByUser(ctx, db, req.PayeeUserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payee wallet not found"})
			return
		}
		escrow, err := ledger.HoldEscrow(ctx, db, payerWallet.ID, payeeWallet.ID, req.Amount, req.RFQID, req.Description)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"user_id": userID, "payee_user_id": req.PayeeUserID}).Error("Escrow hold failed")
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		logrus.WithFields(logrus.Fields{
			"escrow_id":     escrow.ID,
			"payer_user_id": userID,
			"payee_user_id": req.PayeeUserID,
			"amount":        escrow.Amount.String(),
		}).Info("Escrow held")
		invalidateWallets(ctx, rdb, userID) // Payee balance is unchanged until release
		notifyEscrow(ctx, notifier, escrow, "Escrow funded",
			escrow.Amount.StringFixed(2)+" INR is held in escrow", userID, req.PayeeUserID)
		c.JSON(http.StatusCreated, gin.H{"escrow": escrow})
	}
}

// ListEscrowsHandler lists escrows where the caller pays or gets paid
func ListEscrowsHandler(db *gorm.DB) gin.HandlerFunc {
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
		query := db.WithContext(ctx).Model(&domain.Escrow{}).
			Where("payer_wallet_id = ? OR payee_wallet_id = ?", wallet.ID, wallet.ID)
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count escrows"})
			return
		}
		resp := escrowPage{Pagination: utils.NewPagination(page, pageSize, total)}
		if err := query.Order("created_at desc, id desc").Offset(resp.Offset()).Limit(pageSize).Find(&resp.Escrows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch escrows"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ReleaseEscrowHandler pays a held escrow out to the payee. Only the payer may release.
func ReleaseEscrowHandler(db *gorm.DB, rdb redis.UniversalClient, notifier notify.Notifier) gin.HandlerFunc {
	return settleEscrowHandler(db, rdb, notifier, false)
}

// RefundEscrowHandler returns a held escrow to the payer. The payer or an admin may refund.
func RefundEscrowHandler(db *gorm.DB, rdb redis.UniversalClient, notifier notify.Notifier) gin.HandlerFunc {
	return settleEscrowHandler(db, rdb, notifier, true)
}

func settleEscrowHandler(db *gorm.DB, rdb redis.UniversalClient, notifier notify.Notifier, refund bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var escrow domain.Escrow
		if err := db.WithContext(ctx).First(&escrow, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Escrow not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch escrow"})
			return
		}
		payer, payee, err := escrowParties(ctx, db, &escrow)
		if err != nil {
			status, msg := walletError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		if userID != payer && !(refund && isAdmin(c)) { // Admins may only refund
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the payer can settle this escrow"})
			return
		}

		settle, verb := ledger.ReleaseEscrow, "released"
		if refund {
			settle, verb = ledger.RefundEscrow, "refunded"
		}
		settled, err := settle(ctx, db, escrow.ID)
		if err != nil {
			status, msg := walletError(err)
			if status == http.StatusInternalServerError {
				logrus.WithError(err).WithField("escrow_id", escrow.ID).Error("Escrow settlement failed")
			}
			c.JSON(status, gin.H{"error": msg})
			return
		}
		logrus.WithFields(logrus.Fields{
			"escrow_id": settled.ID,
			"status":    settled.Status,
			"by":        userID,
		}).Info("Escrow settled")
		invalidateWallets(ctx, rdb, payer, payee) // Both sides' balances or history moved
		notifyEscrow(ctx, notifier, settled, "Escrow "+verb,
			settled.Amount.StringFixed(2)+" INR escrow was "+verb, payer, payee)
		c.JSON(http.StatusOK, gin.H{"escrow": settled})
	}
}
