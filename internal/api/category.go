package api

import (
	"errors"
	"net/http"
	"regexp"
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
	categoriesCacheKey = "categories:active"
	categoriesCacheTTL = 5 * time.Minute
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and joins its words with dashes
func Slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// CategoryRequest creates a category
type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=120"`
	Description string `json:"description" binding:"max=500"`
	ParentID    *uint  `json:"parent_id"`
}

// ListCategoriesHandler returns the active categories ordered by name
func ListCategoriesHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var categories []domain.Category
		if found, err := utils.GetCache(ctx, rdb, categoriesCacheKey, &categories); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"categories": categories, "cached": true})
			return
		}
		if err := db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&categories).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
			return
		}
		_ = utils.SetCache(ctx, rdb, categoriesCacheKey, categories, categoriesCacheTTL)
		c.JSON(http.StatusOK, gin.H{"categories": categories, "cached": false})
	}
}

// CreateCategoryHandler adds a category and drops the cached list
func CreateCategoryHandler(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Category name is required"})
			return
		}
		name := strings.TrimSpace(req.Name)
		slug := Slugify(name)
		if slug == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Category name must contain letters or digits"})
			return
		}
		ctx := c.Request.Context()
		if req.ParentID != nil {
			if err := db.WithContext(ctx).First(&domain.Category{}, *req.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Parent category not found"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create category"})
				return
			}
		}
		var existing int64
		if err := db.WithContext(ctx).Model(&domain.Category{}).Where("name = ? OR slug = ?", name, slug).Count(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create category"})
			return
		}
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Category already exists"})
			return
		}
		category := domain.Category{Name: name, Slug: slug, Description: req.Description, ParentID: req.ParentID, Active: true}
		if err := db.WithContext(ctx).Create(&category).Error; err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Category already exists"})
			return
		}
		_ = utils.DeleteCache(ctx, rdb, categoriesCacheKey) // Invalidate the cached list
		logrus.WithFields(logrus.Fields{"category_id": category.ID, "slug": slug}).Info("Category created")
		c.JSON(http.StatusCreated, gin.H{"category": category})
	}
}
