package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swarmbot/event-gateway/internal/chat"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/platform/openai"
	"github.com/swarmbot/event-gateway/internal/platform/telegram"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type TelegramConfig struct {
	// WebhookSecret, when set, must match the secret header. Mismatches are
	// answered 200 ok so the chat provider never enters a retry loop.
	WebhookSecret string
	// ChatID is the single authorized chat. Empty means no chat is
	// authorized yet and only the verification flow works.
	ChatID string
	// Verification, when a message matches it exactly, echoes the sender's
	// chat id back. This is how the chat id is discovered the first time.
	Verification string
}

type TelegramHandler struct {
	log         *logger.Logger
	cfg         TelegramConfig
	tg          telegram.Client
	chat        *chat.Service
	transcriber openai.Transcriber
}

func NewTelegramHandler(log *logger.Logger, cfg TelegramConfig, tg telegram.Client, chatSvc *chat.Service, transcriber openai.Transcriber) *TelegramHandler {
	return &TelegramHandler{
		log:         log.With("handler", "TelegramHandler"),
		cfg:         cfg,
		tg:          tg,
		chat:        chatSvc,
		transcriber: transcriber,
	}
}

// Register handles POST /telegram/register.
func (h *TelegramHandler) Register(c *gin.Context) {
	var body struct {
		BotToken   string `json:"bot_token"`
		WebhookURL string `json:"webhook_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.BotToken == "" || body.WebhookURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing bot_token or webhook_url"})
		return
	}

	if err := h.tg.SetWebhook(c.Request.Context(), body.BotToken, body.WebhookURL, h.cfg.WebhookSecret); err != nil {
		h.log.Error("Failed to register webhook", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register webhook"})
		return
	}
	h.tg.SetToken(body.BotToken)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Webhook handles POST /telegram/webhook. Structurally valid updates are
// always acknowledged 200, even when processing fails internally.
func (h *TelegramHandler) Webhook(c *gin.Context) {
	if h.cfg.WebhookSecret != "" && c.GetHeader(telegramSecretHeader) != h.cfg.WebhookSecret {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed update"})
		return
	}

	message := update.Message
	if message == nil {
		message = update.EditedMessage
	}
	if message == nil || message.Chat == nil || h.tg.Token() == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx := c.Request.Context()
	chatID := strconv.FormatInt(message.Chat.ID, 10)
	text := message.Text

	// Verification works from any chat, before a target chat is configured.
	if h.cfg.Verification != "" && text == h.cfg.Verification {
		reply := "Your chat ID:\n<code>" + telegram.EscapeText(chatID) + "</code>"
		if err := h.tg.SendMessage(ctx, chatID, reply); err != nil {
			h.log.Error("Verification reply failed", "error", err.Error())
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// Allow-list of one: without a configured chat id, or from any other
	// chat, messages are acknowledged and dropped.
	if h.cfg.ChatID == "" || chatID != h.cfg.ChatID {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// Receipt ack, detached; its failure is swallowed.
	go func(messageID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.tg.React(ctx, chatID, messageID); err != nil {
			h.log.Debug("Reaction failed", "error", err.Error())
		}
	}(message.MessageID)

	if message.Voice != nil {
		text = h.transcribeVoice(ctx, chatID, message.Voice.FileID)
		if text == "" {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
	}

	if text != "" {
		if err := h.chat.HandleMessage(ctx, chatID, text); err != nil {
			h.log.Error("Failed to process message", "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// transcribeVoice turns a voice attachment into text. Any failure produces
// an explanatory reply to the user and an empty return, which skips further
// processing.
func (h *TelegramHandler) transcribeVoice(ctx context.Context, chatID, fileID string) string {
	if h.transcriber == nil || !h.transcriber.Enabled() {
		h.reply(ctx, chatID, "Voice messages are not supported. Please set OPENAI_API_KEY to enable transcription.")
		return ""
	}

	audio, filename, err := h.tg.DownloadFile(ctx, fileID)
	if err != nil {
		h.log.Error("Failed to download voice file", "error", err.Error())
		h.reply(ctx, chatID, "Sorry, I could not transcribe your voice message.")
		return ""
	}
	text, err := h.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		h.log.Error("Failed to transcribe voice", "error", err.Error())
		h.reply(ctx, chatID, "Sorry, I could not transcribe your voice message.")
		return ""
	}
	return text
}

func (h *TelegramHandler) reply(ctx context.Context, chatID, text string) {
	if err := h.tg.SendMessage(ctx, chatID, text); err != nil {
		h.log.Warn("Reply delivery failed", "error", err.Error())
	}
}
