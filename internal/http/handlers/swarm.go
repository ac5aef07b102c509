package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/scheduler"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

type SwarmHandler struct {
	log   *logger.Logger
	swarm *swarm.Service
	sched *scheduler.Scheduler
}

func NewSwarmHandler(log *logger.Logger, svc *swarm.Service, sched *scheduler.Scheduler) *SwarmHandler {
	return &SwarmHandler{log: log.With("handler", "SwarmHandler"), swarm: svc, sched: sched}
}

// Status handles GET /swarm/status.
func (h *SwarmHandler) Status(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	view, err := h.swarm.SwarmStatus(c.Request.Context(), page)
	if err != nil {
		h.log.Error("Failed to get swarm status", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get swarm status"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Config handles GET /swarm/config: the loaded crons and trigger definitions.
func (h *SwarmHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"crons":    h.sched.Entries(),
		"triggers": h.sched.Triggers(),
	})
}

// CancelRun handles POST /swarm/runs/:run_id/cancel.
func (h *SwarmHandler) CancelRun(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("run_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run_id"})
		return
	}
	if err := h.swarm.CancelRun(c.Request.Context(), runID); err != nil {
		h.log.Error("Failed to cancel workflow run", "run_id", runID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel workflow run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RerunRun handles POST /swarm/runs/:run_id/rerun.
func (h *SwarmHandler) RerunRun(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("run_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run_id"})
		return
	}
	var body struct {
		FailedOnly bool `json:"failed_only"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.swarm.RerunRun(c.Request.Context(), runID, body.FailedOnly); err != nil {
		h.log.Error("Failed to rerun workflow run", "run_id", runID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rerun workflow run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
