package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bell24h/internal/domain"
	"bell24h/internal/ledger"
	"bell24h/internal/notify"
	"bell24h/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultRFQWindow is how long an RFQ accepts quotes when no deadline is given
const DefaultRFQWindow = 14 * 24 * time.Hour

// CreateRFQRequest opens a new RFQ
type CreateRFQRequest struct {
	Title            string           `json:"title" binding:"required,max=200"`
	Description      string           `json:"description" binding:"max=4000"`
	CategoryID       uint             `json:"category_id" binding:"required"`
	Quantity         float64          `json:"quantity" binding:"required,gt=0"`
	Unit             string           `json:"unit" binding:"max=30"`
	Budget           *decimal.Decimal `json:"budget"`
	DeliveryLocation string           `json:"delivery_location" binding:"max=255"`
	Deadline         *time.Time       `json:"deadline"`
}

// QuoteRequest is a supplier's offer
type QuoteRequest struct {
	Price        decimal.Decimal `json:"price"`
	DeliveryDays int             `json:"delivery_days" binding:"required,gt=0"`
	Notes        string          `json:"notes" binding:"max=2000"`
}

// AwardRequest picks the winning quote
type AwardRequest struct {
	QuoteID uint `json:"quote_id" binding:"required"`
}

type rfqListResponse struct {
	RFQs []domain.RFQ `json:"rfqs"`
	utils.Pagination
}

var (
	errRFQNotOpen      = errors.New("rfq not open")
	errQuoteMismatch   = errors.New("quote does not belong to rfq")
	errRFQNotAwardable = errors.New("rfq cannot be awarded")
)

// NewRFQReference returns "RFQ-" followed by eight upper-case hex digits
func NewRFQReference() string {
	return "RFQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// loadRFQ fetches an RFQ, writing 404 or 500 on failure
func loadRFQ(c *gin.Context, db *gorm.DB, id uint) (*domain.RFQ, bool) {
	var rfq domain.RFQ
	if err := db.WithContext(c.Request.Context()).Preload("Category").First(&rfq, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "RFQ not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch RFQ"})
		return nil, false
	}
	return &rfq, true
}

// CreateRFQHandler opens an RFQ owned by the caller
func CreateRFQHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyerID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req CreateRFQRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title, category and a positive quantity are required"})
			return
		}
		if req.Budget != nil && (req.Budget.IsNegative() || !req.Budget.Equal(req.Budget.Round(2))) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Budget must be non-negative with at most 2 decimal places"})
			return
		}
		now := time.Now()
		deadline := now.Add(DefaultRFQWindow)
		if req.Deadline != nil {
			if !req.Deadline.After(now) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Deadline must be in the future"})
				return
			}
			deadline = *req.Deadline // Caller supplied
		}
		ctx := c.Request.Context()
		var category domain.Category
		if err := db.WithContext(ctx).Where("id = ? AND active = ?", req.CategoryID, true).First(&category).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Category not found"})
			return
		}
		rfq := domain.RFQ{
			Reference:        NewRFQReference(),
			BuyerID:          buyerID,
			CategoryID:       category.ID,
			Title:            strings.TrimSpace(req.Title),
			Description:      req.Description,
			Quantity:         req.Quantity,
			Unit:             req.Unit,
			Budget:           req.Budget,
			DeliveryLocation: req.DeliveryLocation,
			Deadline:         deadline,
			Status:           domain.RFQOpen,
		}
		if err := db.WithContext(ctx).Create(&rfq).Error; err != nil {
			logrus.WithError(err).WithField("buyer_id", buyerID).Error("Failed to create RFQ")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create RFQ"})
			return
		}
		rfq.Category = &category // Echo the category back without a second query
		logrus.WithFields(logrus.Fields{
			"rfq_id":    rfq.ID,
			"reference": rfq.Reference,
			"buyer_id":  buyerID,
			"deadline":  deadline.Format(time.RFC3339),
		}).Info("RFQ created")
		c.JSON(http.StatusCreated, gin.H{"rfq": rfq})
	}
}

// ListRFQsHandler lists RFQs newest first. mine=true restricts to the caller's own.
func ListRFQsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := utils.ParsePage(c)
		query := db.WithContext(c.Request.Context()).Model(&domain.RFQ{})
		if status := c.Query("status"); status != "" {
			switch status {
			case domain.RFQOpen, domain.RFQClosed, domain.RFQAwarded, domain.RFQExpired:
				query = query.Where("status = ?", status)
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
				return
			}
		}
		if categoryID := c.Query("category_id"); categoryID != "" {
			id, err := strconv.ParseUint(categoryID, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
				return
			}
			query = query.Where("category_id = ?", id)
		}
		if mine, _ := strconv.ParseBool(c.Query("mine")); mine {
			userID, ok := currentUserID(c)
			if !ok {
				return
			}
			query = query.Where("buyer_id = ?", userID)
		}
		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count RFQs"})
			return
		}
		resp := rfqListResponse{Pagination: utils.NewPagination(page, pageSize, total)}
		if err := query.Preload("Category").Order("created_at desc, id desc").
			Offset(resp.Offset()).Limit(pageSize).Find(&resp.RFQs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch RFQs"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetRFQHandler returns an RFQ with its quote count. Quotes are only shown to the owner and admins.
func GetRFQHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		rfq, ok := loadRFQ(c, db, id)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var quoteCount int64
		if err := db.WithContext(ctx).Model(&domain.Quote{}).Where("rfq_id = ?", rfq.ID).Count(&quoteCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count quotes"})
			return
		}
		if viewer := optionalUserID(c); viewer != 0 && (viewer == rfq.BuyerID || isAdmin(c)) {
			if err := db.WithContext(ctx).Where("rfq_id = ?", rfq.ID).Order("price asc, id").Find(&rfq.Quotes).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quotes"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"rfq": rfq, "quote_count": quoteCount})
	}
}

// SubmitQuoteHandler records a supplier's quote, notifies the buyer and posts a priceless event on the RFQ topic
func SubmitQuoteHandler(db *gorm.DB, notifier notify.Notifier, broadcaster notify.Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplierID, ok := currentUserID(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req QuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Price and delivery days are required"})
			return
		}
		if !ledger.ValidAmount(req.Price) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Price must be positive with at most 2 decimal places"})
			return
		}
		rfq, ok := loadRFQ(c, db, id)
		if !ok {
			return
		}
		if rfq.Status != domain.RFQOpen || !time.Now().Before(rfq.Deadline) {
			c.JSON(http.StatusConflict, gin.H{"error": "RFQ is not accepting quotes"})
			return
		}
		if rfq.BuyerID == supplierID { // No self-quoting
			c.JSON(http.StatusForbidden, gin.H{"error": "You cannot quote on your own RFQ"})
			return
		}
		ctx := c.Request.Context()
		var existing int64
		if err := db.WithContext(ctx).Model(&domain.Quote{}).Where("rfq_id = ? AND supplier_user_id = ?", rfq.ID, supplierID).Count(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit quote"})
			return
		}
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "You have already quoted on this RFQ"})
			return
		}
		quote := domain.Quote{
			RFQID:          rfq.ID,
			SupplierUserID: supplierID,
			Price:          req.Price,
			DeliveryDays:   req.DeliveryDays,
			Notes:          req.Notes,
			Status:         domain.QuoteSubmitted,
		}
		if err := db.WithContext(ctx).Create(&quote).Error; err != nil {
			// The unique index catches a concurrent duplicate
			c.JSON(http.StatusConflict, gin.H{"error": "You have already quoted on this RFQ"})
			return
		}
		logrus.WithFields(logrus.Fields{"rfq_id": rfq.ID, "quote_id": quote.ID, "supplier_id": supplierID}).Info("Quote submitted")
		if _, err := notifier.Notify(ctx, notify.Message{
			UserID:  rfq.BuyerID,
			Type:    domain.NotifyRFQQuote,
			Title:   "New quote on " + rfq.Reference,
			Message: "A supplier quoted " + req.Price.StringFixed(2) + " INR for \"" + rfq.Title + "\"",
			RFQID:   &rfq.ID,
		}); err != nil {
			logrus.WithError(err).WithField("rfq_id", rfq.ID).Warn("Failed to notify buyer of quote")
		}
		broadcaster.Broadcast(ctx, notify.RFQTopic(rfq.ID), domain.Notification{
			Type:    domain.NotifyRFQQuote,
			Title:   "New quote on " + rfq.Reference,
			Message: "A new quote was submitted", // Price stays with the buyer
			RFQID:   &rfq.ID,
		})
		c.JSON(http.StatusCreated, gin.H{"quote": quote})
	}
}

// AwardRFQHandler accepts one quote and rejects the rest in a single transaction
func AwardRFQHandler(db *gorm.DB, notifier notify.Notifier, broadcaster notify.Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req AwardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quote_id is required"})
			return
		}
		rfq, ok := loadRFQ(c, db, id)
		if !ok {
			return
		}
		if rfq.BuyerID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the RFQ owner can award it"})
			return
		}
		ctx := c.Request.Context()
		var quote domain.Quote
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ? AND rfq_id = ?", req.QuoteID, rfq.ID).First(&quote).Error; err != nil { // Quote must belong to this RFQ
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errQuoteMismatch
				}
				return err
			}
			// Closed RFQs can still be awarded; awarded and expired ones cannot
			res := tx.Model(&domain.RFQ{}).
				Where("id = ? AND status IN ?", rfq.ID, []string{domain.RFQOpen, domain.RFQClosed}).
				Updates(map[string]any{"status": domain.RFQAwarded, "awarded_quote_id": quote.ID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errRFQNotAwardable
			}
			if err := tx.Model(&domain.Quote{}).Where("id = ?", quote.ID).Update("status", domain.QuoteAccepted).Error; err != nil {
				return err
			}
			return tx.Model(&domain.Quote{}).Where("rfq_id = ? AND id <> ?", rfq.ID, quote.ID).Update("status", domain.QuoteRejected).Error // Everyone else loses
		})
		switch {
		case errors.Is(err, errQuoteMismatch):
			c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found on this RFQ"})
			return
		case errors.Is(err, errRFQNotAwardable):
			c.JSON(http.StatusConflict, gin.H{"error": "RFQ can no longer be awarded"})
			return
		case err != nil:
			logrus.WithError(err).WithField("rfq_id", rfq.ID).Error("Failed to award RFQ")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to award RFQ"})
			return
		}
		rfq.Status, rfq.AwardedQuoteID = domain.RFQAwarded, &quote.ID
		quote.Status = domain.QuoteAccepted
		logrus.WithFields(logrus.Fields{"rfq_id": rfq.ID, "quote_id": quote.ID}).Info("RFQ awarded")
		if _, err := notifier.Notify(ctx, notify.Message{
			UserID:  quote.SupplierUserID,
			Type:    domain.NotifyRFQAwarded,
			Title:   "Quote accepted on " + rfq.Reference,
			Message: "Your quote for \"" + rfq.Title + "\" was accepted",
			RFQID:   &rfq.ID,
		}); err != nil {
			logrus.WithError(err).WithField("rfq_id", rfq.ID).Warn("Failed to notify awarded supplier")
		}
		broadcaster.Broadcast(ctx, notify.RFQTopic(rfq.ID), domain.Notification{
			Type:    domain.NotifyRFQAwarded,
			Title:   rfq.Reference + " awarded",
			Message: "The buyer has awarded this RFQ",
			RFQID:   &rfq.ID,
		})
		c.JSON(http.StatusOK, gin.H{"rfq": rfq, "quote": quote})
	}
}

// CloseRFQHandler stops an open RFQ from taking quotes
func CloseRFQHandler(db *gorm.DB, broadcaster notify.Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		rfq, ok := loadRFQ(c, db, id)
		if !ok {
			return
		}
		if rfq.BuyerID != userID && !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the RFQ owner can close it"})
			return
		}
		ctx := c.Request.Context()
		res := db.WithContext(ctx).Model(&domain.RFQ{}).Where("id = ? AND status = ?", rfq.ID, domain.RFQOpen).Update("status", domain.RFQClosed)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close RFQ"})
			return
		}
		if res.RowsAffected == 0 { // Lost the race or never open
			c.JSON(http.StatusConflict, gin.H{"error": "Only open RFQs can be closed"})
			return
		}
		rfq.Status = domain.RFQClosed
		logrus.WithFields(logrus.Fields{"rfq_id": rfq.ID, "closed_by": userID}).Info("RFQ closed")
		broadcaster.Broadcast(ctx, notify.RFQTopic(rfq.ID), domain.Notification{
			Type:    domain.NotifySystem,
			Title:   rfq.Reference + " closed",
			Message: "\"" + rfq.Title + "\" is no longer accepting quotes",
			RFQID:   &rfq.ID,
		})
		c.JSON(http.StatusOK, gin.H{"rfq": rfq})
	}
}
