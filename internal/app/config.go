package app

import (
	"os"
	"strings"

	"github.com/swarmbot/event-gateway/internal/platform/envutil"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

// Config is the gateway-level environment configuration. Upstream clients
// (GitHub, Telegram, Anthropic, OpenAI) read their own env blocks via their
// ConfigFromEnv constructors.
type Config struct {
	Port    string
	LogMode string

	// APIKey gates first-party routes.
	APIKey string

	// TelegramChatID is the single authorized chat; empty means only the
	// verification flow is live.
	TelegramChatID        string
	TelegramWebhookSecret string
	TelegramVerification  string

	GitHubWebhookSecret string
	GitHubOwner         string
	GitHubRepo          string

	// RedisAddr, when set, backs conversation history with Redis instead of
	// process memory.
	RedisAddr string

	// SummaryPromptFile optionally overrides the job-summary system prompt.
	SummaryPromptFile string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:                  envutil.Str("PORT", "3000"),
		LogMode:               envutil.Str("LOG_MODE", "development"),
		APIKey:                strings.TrimSpace(os.Getenv("API_KEY")),
		TelegramChatID:        strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		TelegramWebhookSecret: strings.TrimSpace(os.Getenv("TELEGRAM_WEBHOOK_SECRET")),
		TelegramVerification:  strings.TrimSpace(os.Getenv("TELEGRAM_VERIFICATION")),
		GitHubWebhookSecret:   strings.TrimSpace(os.Getenv("GH_WEBHOOK_SECRET")),
		GitHubOwner:           strings.TrimSpace(os.Getenv("GH_OWNER")),
		GitHubRepo:            strings.TrimSpace(os.Getenv("GH_REPO")),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		SummaryPromptFile:     strings.TrimSpace(os.Getenv("JOB_SUMMARY_FILE")),
	}

	if cfg.APIKey == "" {
		log.Warn("API_KEY not set; first-party routes accept requests without a key header")
	}
	if cfg.TelegramChatID == "" {
		log.Info("TELEGRAM_CHAT_ID not set; chat messages are ignored until verification")
	}
	return cfg
}

// GitHubBaseURL is the base link for changed files in job summaries.
func (c Config) GitHubBaseURL() string {
	if c.GitHubOwner == "" || c.GitHubRepo == "" {
		return ""
	}
	return "https://github.com/" + c.GitHubOwner + "/" + c.GitHubRepo + "/blob/main"
}
