package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"bell24h/internal/middleware" // Context keys
	"bell24h/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// currentUserID returns the authenticated user, writing a 401 when there is none
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(middleware.ContextUserID) // Set by the JWT middleware
	userID, ok := v.(uint)
	if !exists || !ok || userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

// optionalUserID returns the authenticated user when a token was supplied
func optionalUserID(c *gin.Context) uint {
	userID, _ := c.Get(middleware.ContextUserID)
	id, _ := userID.(uint)
	return id
}

// isAdmin reports whether the token carries the admin role
func isAdmin(c *gin.Context) bool {
	return c.GetString(middleware.ContextRole) == "admin"
}

// idParam parses a numeric path parameter, writing a 400 on bad input
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// walletCacheKey is the cache key of a user's wallet
func walletCacheKey(userID uint) string {
	return "wallet:user:" + strconv.FormatUint(uint64(userID), 10)
}

// txHistoryPrefix prefixes every cached history page of a user
func txHistoryPrefix(userID uint) string {
	return "txhistory:user:" + strconv.FormatUint(uint64(userID), 10) + ":"
}

// invalidateWallets drops the cached wallet and every cached history page of the users
func invalidateWallets(ctx context.Context, rdb redis.UniversalClient, userIDs ...uint) {
	for _, id := range userIDs {
		if id == 0 {
			continue
		}
		if err := utils.DeleteCache(ctx, rdb, walletCacheKey(id)); err != nil {
			logrus.WithError(err).WithField("user_id", id).Warn("Failed to invalidate wallet cache")
		}
		if err := utils.DeleteCachePrefix(ctx, rdb, txHistoryPrefix(id)); err != nil {
			logrus.WithError(err).WithField("user_id", id).Warn("Failed to invalidate transaction history cache")
		}
	}
}
