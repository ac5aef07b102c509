package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

type JobsHandler struct {
	log   *logger.Logger
	swarm *swarm.Service
}

func NewJobsHandler(log *logger.Logger, svc *swarm.Service) *JobsHandler {
	return &JobsHandler{log: log.With("handler", "JobsHandler"), swarm: svc}
}

// CreateJob handles POST /webhook.
func (h *JobsHandler) CreateJob(c *gin.Context) {
	var body struct {
		Job string `json:"job"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Job == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing job field"})
		return
	}

	created, err := h.swarm.CreateJob(c.Request.Context(), body.Job)
	if err != nil {
		h.log.Error("Failed to create job", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}
	c.JSON(http.StatusOK, created)
}

// JobStatus handles GET /jobs/status.
func (h *JobsHandler) JobStatus(c *gin.Context) {
	status, err := h.swarm.Status(c.Request.Context(), c.Query("job_id"))
	if err != nil {
		h.log.Error("Failed to get job status", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job status"})
		return
	}
	c.JSON(http.StatusOK, status)
}
