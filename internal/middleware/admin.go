package middleware

import (
	"net/http" // HTTP status codes
	"slices"

	"bell24h/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// RequireRoles checks the user's role from the database on each request, so a role change
// takes effect before the token expires
func RequireRoles(db *gorm.DB, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get(ContextUserID) // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.WithContext(c.Request.Context()).Select("id", "role").First(&user, userID).Error; err != nil {
			// If user not found or any error, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// Check if user role is allowed
		if !slices.Contains(roles, user.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Set(ContextRole, user.Role) // Refresh role in context
		c.Next()                      // Proceed to the next handler
	}
}

// AdminOnlyMiddleware restricts a route group to admins
func AdminOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return RequireRoles(db, domain.RoleAdmin)
}
