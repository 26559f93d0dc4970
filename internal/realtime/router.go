package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter exposes the relay over HTTP: /ws for sockets and /health for counters
func NewRouter(hub *Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})
	r.GET("/health", func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"connections":   stats.Connections,
			"authenticated": stats.Authenticated,
			"users":         stats.Users,
			"rfq_topics":    stats.RFQTopics,
			"pending":       stats.Pending,
		})
	})
	return r
}
