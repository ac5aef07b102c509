package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/chat"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/platform/telegram"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

const (
	githubSecretHeader = "X-GitHub-Webhook-Secret-Token"
	githubEventHeader  = "X-GitHub-Event"
)

type GitHubConfig struct {
	// WebhookSecret, when set, must match the secret header. Unlike the
	// chat surface, a mismatch here is a 401: this sender tolerates retries.
	WebhookSecret string
	// NotifyChatID is the chat that receives job-completion summaries.
	NotifyChatID string
}

type GitHubHandler struct {
	log  *logger.Logger
	cfg  GitHubConfig
	tg   telegram.Client
	chat *chat.Service
}

func NewGitHubHandler(log *logger.Logger, cfg GitHubConfig, tg telegram.Client, chatSvc *chat.Service) *GitHubHandler {
	return &GitHubHandler{
		log:  log.With("handler", "GitHubHandler"),
		cfg:  cfg,
		tg:   tg,
		chat: chatSvc,
	}
}

type pullRequestPayload struct {
	PullRequest *struct {
		HTMLURL string `json:"html_url"`
		Head    struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	JobResults chat.JobResults `json:"job_results"`
}

// Webhook handles POST /github/webhook.
func (h *GitHubHandler) Webhook(c *gin.Context) {
	if h.cfg.WebhookSecret != "" && c.GetHeader(githubSecretHeader) != h.cfg.WebhookSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if c.GetHeader(githubEventHeader) != "pull_request" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true})
		return
	}

	var payload pullRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.PullRequest == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true})
		return
	}

	jobID, ok := swarm.ExtractJobID(payload.PullRequest.Head.Ref)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true, "reason": "not a job branch"})
		return
	}

	if h.cfg.NotifyChatID == "" || h.tg.Token() == "" {
		h.log.Info("Job completed but no chat to notify", "job_id", jobID)
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true, "reason": "no chat to notify"})
		return
	}

	results := payload.JobResults
	results.PRURL = payload.PullRequest.HTMLURL

	if err := h.chat.NotifyJobResult(c.Request.Context(), h.cfg.NotifyChatID, results); err != nil {
		h.log.Error("Failed to process GitHub webhook", "job_id", jobID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	h.log.Info("Notified chat about completed job", "chat_id", h.cfg.NotifyChatID, "job_id", jobID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "notified": true})
}
