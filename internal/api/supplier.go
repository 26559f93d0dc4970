package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bell24h/internal/domain"
	"bell24h/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	suppliersCachePrefix = "suppliers:"     // Every listing key lives under this prefix
	suppliersCacheTTL    = 60 * time.Second // Listing cache lifetime
)

// SupplierProfileRequest creates or replaces the caller's supplier profile
type SupplierProfileRequest struct {
	CompanyName string `json:"company_name" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
	City        string `json:"city" binding:"max=100"`
	State       string `json:"state" binding:"max=100"`
	CategoryIDs []uint `json:"category_ids" binding:"max=20"`
}

type supplierListResponse struct {
	Suppliers []domain.Supplier `json:"suppliers"`
	utils.Pagination
	Cached bool `json:"cached"`
}

var errUnknownCategory = errors.New("unknown category")

// ListSuppliersHandler lists supplier profiles filtered by category, verification and name
func ListSuppliersHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := utils.ParsePage(c)
		categoryID := c.Query("category_id")
		verified := c.Query("verified")
		q := strings.TrimSpace(c.Query("q"))
		// Cache key covers every filter
		cacheKey := suppliersCachePrefix + "list:category=" + categoryID + ":verified=" + verified + ":q=" + strings.ToLower(q) +
			":page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		var resp supplierListResponse
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &resp); err == nil && found {
			resp.Cached = true // Served from Redis
			c.JSON(http.StatusOK, resp)
			return
		}

		query := db.WithContext(ctx).Model(&domain.Supplier{})
		if categoryID != "" {
			id, err := strconv.ParseUint(categoryID, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
				return
			}
			query = query.Where("id IN (?)", db.Table("supplier_categories").Select("supplier_id").Where("category_id = ?", id))
		}
		if verified != "" {
			v, err := strconv.ParseBool(verified)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verified flag"})
				return
			}
			query = query.Where("verified = ?", v)
		}
		if q != "" {
			query = query.Where("LOWER(company_name) LIKE ?", "%"+strings.ToLower(q)+"%")
		}
		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count suppliers"})
			return
		}
		resp.Pagination = utils.NewPagination(page, pageSize, total)
		if err := query.Preload("Categories").Order("verified desc, rating desc, id").
			Offset(resp.Offset()).Limit(pageSize).Find(&resp.Suppliers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch suppliers"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, suppliersCacheTTL) // Cache failures only cost a query
		c.JSON(http.StatusOK, resp)
	}
}

// GetSupplierHandler returns one supplier profile
func GetSupplierHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var supplier domain.Supplier
		if err := db.WithContext(c.Request.Context()).Preload("Categories").First(&supplier, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Supplier not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch supplier"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"supplier": supplier})
	}
}

// UpsertSupplierProfileHandler creates or updates the caller's supplier profile
func UpsertSupplierProfileHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req SupplierProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Company name is required and at most 20 categories are allowed"})
			return
		}
		ctx := c.Request.Context()
		var supplier domain.Supplier
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var categories []domain.Category
			if len(req.CategoryIDs) > 0 {
				if err := tx.Where("id IN ? AND active = ?", req.CategoryIDs, true).Find(&categories).Error; err != nil {
					return err
				}
				if len(categories) != len(uniqueIDs(req.CategoryIDs)) { // Inactive or unknown ids
					return errUnknownCategory
				}
			}
			err := tx.Where("user_id = ?", userID).First(&supplier).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			supplier.UserID = userID
			supplier.CompanyName = strings.TrimSpace(req.CompanyName)
			supplier.Description = req.Description
			supplier.City = req.City
			supplier.State = req.State
			if err := tx.Omit("Categories").Save(&supplier).Error; err != nil { // Categories are replaced below
				return err
			}
			if err := tx.Model(&supplier).Association("Categories").Replace(categories); err != nil {
				return err
			}
			supplier.Categories = categories
			return nil
		})
		if errors.Is(err, errUnknownCategory) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Supplier profile update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save supplier profile"})
			return
		}
		if err := utils.DeleteCachePrefix(ctx, rdb, suppliersCachePrefix); err != nil { // Listings are stale now
			logrus.WithError(err).Warn("Failed to invalidate supplier cache")
		}
		logrus.WithFields(logrus.Fields{"user_id": userID, "supplier_id": supplier.ID}).Info("Supplier profile saved")
		c.JSON(http.StatusOK, gin.H{"supplier": supplier})
	}
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
