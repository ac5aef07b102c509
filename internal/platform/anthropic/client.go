package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/swarmbot/event-gateway/internal/platform/envutil"
	"github.com/swarmbot/event-gateway/internal/platform/httpx"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	// maxToolRounds bounds the tool-use loop; a model that keeps asking for
	// tools past this is cut off with whatever text it produced.
	maxToolRounds = 5
)

// Turn is one visible conversation entry. Tool-use plumbing stays internal to
// the client; stored history is plain user/assistant text.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef is a tool declaration sent with a chat request.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolFunc executes a named tool call and returns a JSON-serializable result.
type ToolFunc func(ctx context.Context, name string, input map[string]any) (any, error)

// Client is the completion-service surface used by the gateway.
type Client interface {
	// Chat runs one conversational turn with the declared tool surface and
	// returns the reply plus the updated visible history.
	Chat(ctx context.Context, userText string, history []Turn, tools []ToolDef, exec ToolFunc) (string, []Turn, error)

	// Summarize is a single-shot system+user completion with no tools.
	Summarize(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
	System    string
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("ANTHROPIC_TIMEOUT_SECONDS", 120)
	return Config{
		APIKey:    strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		Model:     envutil.Str("EVENT_HANDLER_MODEL", defaultModel),
		BaseURL:   strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
		MaxTokens: envutil.Int("ANTHROPIC_MAX_TOKENS", defaultMaxTokens),
		Timeout:   time.Duration(timeoutSec) * time.Second,
	}
}

func New(log *logger.Logger, cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &client{
		log:        log.With("client", "AnthropicClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// --- wire types ---

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result fields
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []ToolDef     `json:"tools,omitempty"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// APIError is a non-2xx messages API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("anthropic http %d: %s", e.StatusCode, msg)
}

func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// --- operations ---

func (c *client) Chat(ctx context.Context, userText string, history []Turn, tools []ToolDef, exec ToolFunc) (string, []Turn, error) {
	if c.cfg.APIKey == "" {
		return "", history, errors.New("anthropic: ANTHROPIC_API_KEY must be configured")
	}

	messages := make([]wireMessage, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, wireMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, wireMessage{Role: "user", Content: userText})

	var reply string
	for round := 0; ; round++ {
		resp, err := c.complete(ctx, messagesRequest{
			Model:     c.cfg.Model,
			MaxTokens: c.cfg.MaxTokens,
			System:    c.cfg.System,
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return "", history, err
		}

		reply = joinText(resp.Content)
		if resp.StopReason != "tool_use" || exec == nil || round >= maxToolRounds {
			break
		}

		messages = append(messages, wireMessage{Role: "assistant", Content: resp.Content})
		results := make([]contentBlock, 0)
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			results = append(results, c.runTool(ctx, exec, block))
		}
		if len(results) == 0 {
			break
		}
		messages = append(messages, wireMessage{Role: "user", Content: results})
	}

	if strings.TrimSpace(reply) == "" {
		reply = "Done."
	}
	newHistory := append(append([]Turn{}, history...),
		Turn{Role: "user", Content: userText},
		Turn{Role: "assistant", Content: reply},
	)
	return reply, newHistory, nil
}

func (c *client) runTool(ctx context.Context, exec ToolFunc, block contentBlock) contentBlock {
	var input map[string]any
	if len(block.Input) > 0 {
		if err := json.Unmarshal(block.Input, &input); err != nil {
			c.log.Warn("Tool input decode failed", "tool", block.Name, "error", err.Error())
		}
	}

	result, err := exec(ctx, block.Name, input)
	out := contentBlock{Type: "tool_result", ToolUseID: block.ID}
	if err != nil {
		c.log.Warn("Tool execution failed", "tool", block.Name, "error", err.Error())
		out.Content = err.Error()
		out.IsError = true
		return out
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		out.Content = fmt.Sprint(result)
		return out
	}
	out.Content = string(encoded)
	return out
}

func (c *client) Summarize(ctx context.Context, system, user string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("anthropic: ANTHROPIC_API_KEY must be configured")
	}
	resp, err := c.complete(ctx, messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    system,
		Messages:  []wireMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(joinText(resp.Content)), nil
}

func (c *client) complete(ctx context.Context, req messagesRequest) (*messagesResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(httpx.Default(ctx), http.MethodPost, c.cfg.BaseURL+"/v1/messages", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	return &out, nil
}

func joinText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
