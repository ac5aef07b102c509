package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

// APIKeyAuth gates first-party routes behind a shared static key. The two
// inbound webhook routes carry their own authentication and are mounted
// outside this middleware.
func APIKeyAuth(log *logger.Logger, apiKey string) gin.HandlerFunc {
	authLog := log.With("middleware", "APIKeyAuth")
	return func(c *gin.Context) {
		if c.GetHeader("X-Api-Key") != apiKey {
			authLog.Warn("Rejected request", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
