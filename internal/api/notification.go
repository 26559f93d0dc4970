package api

import (
	"net/http"
	"strconv"
	"time"

	"bell24h/internal/domain"
	"bell24h/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type notificationPage struct {
	Notifications []domain.Notification `json:"notifications"`
	utils.Pagination
}

// ListNotificationsHandler lists the caller's notifications, newest first. unread=true hides read ones.
func ListNotificationsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		page, pageSize := utils.ParsePage(c)
		query := db.WithContext(c.Request.Context()).Model(&domain.Notification{}).Where("user_id = ?", userID)
		if unread, _ := strconv.ParseBool(c.Query("unread")); unread {
			query = query.Where("is_read = ?", false)
		}
		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
			return
		}
		resp := notificationPage{Pagination: utils.NewPagination(page, pageSize, total)}
		if err := query.Order("created_at desc, id desc").Offset(resp.Offset()).Limit(pageSize).Find(&resp.Notifications).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// UnreadCountHandler returns how many notifications the caller has not read
func UnreadCountHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var count int64
		if err := db.WithContext(c.Request.Context()).Model(&domain.Notification{}).
			Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread_count": count})
	}
}

// MarkReadHandler marks one of the caller's notifications read
func MarkReadHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var n domain.Notification
		tx := db.WithContext(c.Request.Context())
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		if !n.IsRead {
			now := time.Now()
			if err := tx.Model(&n).Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
				return
			}
			n.IsRead, n.ReadAt = true, &now
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "notification": n})
	}
}

// MarkAllReadHandler marks every unread notification of the caller read
func MarkAllReadHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		res := db.WithContext(c.Request.Context()).Model(&domain.Notification{}).
			Where("user_id = ? AND is_read = ?", userID, false).
			Updates(map[string]any{"is_read": true, "read_at": time.Now()})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": res.RowsAffected})
	}
}

// DeleteNotificationHandler removes one of the caller's notifications
func DeleteNotificationHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		res := db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Notification{})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notification"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
