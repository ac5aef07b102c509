package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/http/handlers"
	"github.com/swarmbot/event-gateway/internal/http/middleware"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

type RouterConfig struct {
	Log    *logger.Logger
	APIKey string

	HealthHandler   *handlers.HealthHandler
	JobsHandler     *handlers.JobsHandler
	SwarmHandler    *handlers.SwarmHandler
	TelegramHandler *handlers.TelegramHandler
	GitHubHandler   *handlers.GitHubHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(cfg.Log))
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(cors.Default())

	// Webhook surfaces authenticate themselves (shared-secret headers with
	// route-specific mismatch semantics).
	router.POST("/telegram/webhook", cfg.TelegramHandler.Webhook)
	router.POST("/github/webhook", cfg.GitHubHandler.Webhook)

	// Everything else requires the static API key.
	protected := router.Group("/")
	protected.Use(middleware.APIKeyAuth(cfg.Log, cfg.APIKey))
	protected.GET("/ping", cfg.HealthHandler.Ping)
	protected.POST("/webhook", cfg.JobsHandler.CreateJob)
	protected.GET("/jobs/status", cfg.JobsHandler.JobStatus)
	protected.GET("/swarm/status", cfg.SwarmHandler.Status)
	protected.GET("/swarm/config", cfg.SwarmHandler.Config)
	protected.POST("/swarm/runs/:run_id/cancel", cfg.SwarmHandler.CancelRun)
	protected.POST("/swarm/runs/:run_id/rerun", cfg.SwarmHandler.RerunRun)
	protected.POST("/telegram/register", cfg.TelegramHandler.Register)

	return router
}
