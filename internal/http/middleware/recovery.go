package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

// Recovery converts any panic into a generic 500 JSON body. Webhook callers
// never see stack traces; the full detail lands in the log.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	recoveryLog := log.With("middleware", "Recovery")
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		recoveryLog.Error("Handler panic", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}
