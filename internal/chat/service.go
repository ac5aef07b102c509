package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/swarmbot/event-gateway/internal/platform/anthropic"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

const fallbackSummary = "Job completed."

const defaultSummarySystem = "You summarize completed autonomous jobs for a chat notification. " +
	"Write a short, friendly message: what the job did, what changed, and where to look " +
	"(link the PR when given one). Plain sentences, no headings."

// Notifier delivers outbound chat messages. Satisfied by the Telegram client.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// JobResults is the job outcome payload attached to CI-completion webhooks.
type JobResults struct {
	Job          string   `json:"job"`
	CommitMsg    string   `json:"commit_message"`
	ChangedFiles []string `json:"changed_files"`
	PRStatus     string   `json:"pr_status"`
	MergeResult  string   `json:"merge_result"`
	Log          string   `json:"log"`
	PRURL        string   `json:"pr_url"`
}

// Service runs conversational turns and job-completion notifications.
type Service struct {
	log      *logger.Logger
	llm      anthropic.Client
	store    Store
	notifier Notifier
	tools    *ToolRunner

	summarySystem string
	githubBaseURL string
}

type ServiceConfig struct {
	// SummarySystem overrides the job-summary system prompt.
	SummarySystem string
	// GitHubBaseURL, when set, lets the summarizer link changed files
	// (e.g. https://github.com/owner/repo/blob/main).
	GitHubBaseURL string
}

func NewService(log *logger.Logger, llm anthropic.Client, store Store, notifier Notifier, tools *ToolRunner, cfg ServiceConfig) *Service {
	if cfg.SummarySystem == "" {
		cfg.SummarySystem = defaultSummarySystem
	}
	return &Service{
		log:           log.With("service", "ChatService"),
		llm:           llm,
		store:         store,
		notifier:      notifier,
		tools:         tools,
		summarySystem: cfg.SummarySystem,
		githubBaseURL: cfg.GitHubBaseURL,
	}
}

// HandleMessage runs one chat turn: load history, complete with the tool
// surface, persist the updated history, send the reply. A completion failure
// degrades to a generic apology; a failure to deliver that is only logged.
func (s *Service) HandleMessage(ctx context.Context, chatID, text string) error {
	history, err := s.store.History(ctx, chatID)
	if err != nil {
		s.log.Warn("History load failed, starting fresh", "chat_id", chatID, "error", err.Error())
		history = nil
	}

	reply, newHistory, err := s.llm.Chat(ctx, text, history, ToolDefinitions(), s.tools.Execute)
	if err != nil {
		s.log.Error("Chat completion failed", "chat_id", chatID, "error", err.Error())
		if sendErr := s.notifier.SendMessage(ctx, chatID, "Sorry, I encountered an error processing your message."); sendErr != nil {
			s.log.Warn("Apology delivery failed", "chat_id", chatID, "error", sendErr.Error())
		}
		return err
	}

	if err := s.store.SetHistory(ctx, chatID, newHistory); err != nil {
		s.log.Warn("History save failed", "chat_id", chatID, "error", err.Error())
	}

	if err := s.notifier.SendMessage(ctx, chatID, reply); err != nil {
		return fmt.Errorf("chat: deliver reply: %w", err)
	}
	return nil
}

// NotifyJobResult summarizes a completed job and notifies the target chat.
// The summary is appended to that chat's history so future turns have job
// context. Summarization failures fall back to a fixed message; only the
// notification send itself can fail the call.
func (s *Service) NotifyJobResult(ctx context.Context, chatID string, results JobResults) error {
	message, err := s.llm.Summarize(ctx, s.summarySystem, s.formatJobResults(results))
	if err != nil || strings.TrimSpace(message) == "" {
		if err != nil {
			s.log.Error("Job summarization failed", "chat_id", chatID, "error", err.Error())
		}
		message = fallbackSummary
	}

	if err := s.notifier.SendMessage(ctx, chatID, message); err != nil {
		return fmt.Errorf("chat: deliver job notification: %w", err)
	}

	history, err := s.store.History(ctx, chatID)
	if err != nil {
		s.log.Warn("History load failed", "chat_id", chatID, "error", err.Error())
		history = nil
	}
	history = append(history, anthropic.Turn{Role: "assistant", Content: message})
	if err := s.store.SetHistory(ctx, chatID, history); err != nil {
		s.log.Warn("History save failed", "chat_id", chatID, "error", err.Error())
	}
	return nil
}

func (s *Service) formatJobResults(r JobResults) string {
	var sections []string
	add := func(title, body string) {
		if strings.TrimSpace(body) != "" {
			sections = append(sections, "## "+title+"\n"+body)
		}
	}
	add("Task", r.Job)
	add("Commit Message", r.CommitMsg)
	add("Changed Files", strings.Join(r.ChangedFiles, "\n"))
	add("GitHub Base URL for File Links", s.githubBaseURL)
	add("PR Status", r.PRStatus)
	add("Merge Result", r.MergeResult)
	add("PR URL", r.PRURL)
	add("Agent Log", r.Log)
	return strings.Join(sections, "\n\n")
}
