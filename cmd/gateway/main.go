package main

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarmbot/event-gateway/internal/app"
	"github.com/swarmbot/event-gateway/internal/chat"
	"github.com/swarmbot/event-gateway/internal/http/handlers"
	"github.com/swarmbot/event-gateway/internal/platform/anthropic"
	"github.com/swarmbot/event-gateway/internal/platform/github"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/platform/openai"
	"github.com/swarmbot/event-gateway/internal/platform/telegram"
	"github.com/swarmbot/event-gateway/internal/scheduler"
	"github.com/swarmbot/event-gateway/internal/server"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := app.LoadConfig(log)

	// Upstream clients
	log.Info("Setting up upstream clients...")
	ghClient := github.New(log, github.ConfigFromEnv())
	tgClient := telegram.New(log, telegram.ConfigFromEnv())
	llmClient := anthropic.New(log, anthropic.ConfigFromEnv())
	transcriber := openai.New(log, openai.ConfigFromEnv())

	// Conversation store
	var store chat.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = chat.NewRedisStore(rdb, 50, 30*24*time.Hour)
		log.Info("Conversation history backed by Redis", "addr", cfg.RedisAddr)
	} else {
		store = chat.NewMemoryStore(50)
		log.Info("Conversation history kept in memory")
	}

	// Services
	log.Info("Setting up services...")
	swarmSvc := swarm.NewService(log, ghClient)

	chatCfg := chat.ServiceConfig{GitHubBaseURL: cfg.GitHubBaseURL()}
	if cfg.SummaryPromptFile != "" {
		if raw, err := os.ReadFile(cfg.SummaryPromptFile); err == nil {
			chatCfg.SummarySystem = string(raw)
		} else {
			log.Warn("Summary prompt file unavailable, using default", "file", cfg.SummaryPromptFile, "error", err)
		}
	}
	chatSvc := chat.NewService(log, llmClient, store, tgClient, &chat.ToolRunner{Jobs: swarmSvc}, chatCfg)

	sched := scheduler.New(log, swarmSvc, scheduler.ConfigFromEnv())
	if err := sched.Load(); err != nil {
		log.Warn("Scheduler load failed", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	// Handlers
	log.Info("Setting up handlers...")
	healthHandler := handlers.NewHealthHandler()
	jobsHandler := handlers.NewJobsHandler(log, swarmSvc)
	swarmHandler := handlers.NewSwarmHandler(log, swarmSvc, sched)
	telegramHandler := handlers.NewTelegramHandler(log, handlers.TelegramConfig{
		WebhookSecret: cfg.TelegramWebhookSecret,
		ChatID:        cfg.TelegramChatID,
		Verification:  cfg.TelegramVerification,
	}, tgClient, chatSvc, transcriber)
	githubHandler := handlers.NewGitHubHandler(log, handlers.GitHubConfig{
		WebhookSecret: cfg.GitHubWebhookSecret,
		NotifyChatID:  cfg.TelegramChatID,
	}, tgClient, chatSvc)

	// Router
	router := server.NewRouter(server.RouterConfig{
		Log:             log,
		APIKey:          cfg.APIKey,
		HealthHandler:   healthHandler,
		JobsHandler:     jobsHandler,
		SwarmHandler:    swarmHandler,
		TelegramHandler: telegramHandler,
		GitHubHandler:   githubHandler,
	})

	log.Info("Listening", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
