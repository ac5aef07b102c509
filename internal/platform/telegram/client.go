package telegram

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
	"sync"
	"time"

	"github.com/swarmbot/event-gateway/internal/platform/envutil"
	"github.com/swarmbot/event-gateway/internal/platform/httpx"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

// MaxMessageLen is the Bot API limit for a single sendMessage text.
const MaxMessageLen = 4096

// Client talks to the Telegram Bot API. The bot token is mutable at runtime:
// the register endpoint swaps it without a process restart.
type Client interface {
	Token() string
	SetToken(token string)
	SetWebhook(ctx context.Context, botToken, webhookURL, secret string) error
	SendMessage(ctx context.Context, chatID, text string) error
	React(ctx context.Context, chatID string, messageID int64) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

type Config struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("TELEGRAM_TIMEOUT_SECONDS", 15)
	return Config{
		BotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		BaseURL:  strings.TrimSpace(os.Getenv("TELEGRAM_BASE_URL")),
		Timeout:  time.Duration(timeoutSec) * time.Second,
	}
}

func New(log *logger.Logger, cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:        log.With("client", "TelegramClient"),
		baseURL:    cfg.BaseURL,
		token:      cfg.BotToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func (c *client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// --- inbound update wire types ---

type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message"`
	EditedMessage *Message `json:"edited_message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text"`
	Voice     *Voice `json:"voice"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api %d: %s", e.Code, e.Description)
}

func (e *APIError) HTTPStatusCode() int { return e.Code }

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// --- operations ---

func (c *client) SetWebhook(ctx context.Context, botToken, webhookURL, secret string) error {
	body := map[string]any{"url": webhookURL}
	if secret != "" {
		body["secret_token"] = secret
	}
	_, err := c.call(ctx, botToken, "setWebhook", body)
	return err
}

// SendMessage delivers text to a chat, splitting oversized payloads into
// ordered chunks. Chunks go out with HTML parse mode; if Telegram rejects the
// markup the chunk is resent as plain text so delivery still succeeds.
func (c *client) SendMessage(ctx context.Context, chatID, text string) error {
	token := c.Token()
	if token == "" {
		return errors.New("telegram: no bot token configured")
	}
	for _, chunk := range SplitMessage(text, MaxMessageLen) {
		body := map[string]any{
			"chat_id":    chatID,
			"text":       chunk,
			"parse_mode": "HTML",
		}
		_, err := c.call(ctx, token, "sendMessage", body)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			delete(body, "parse_mode")
			_, err = c.call(ctx, token, "sendMessage", body)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *client) React(ctx context.Context, chatID string, messageID int64) error {
	token := c.Token()
	if token == "" {
		return errors.New("telegram: no bot token configured")
	}
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   []map[string]string{{"type": "emoji", "emoji": "👍"}},
	}
	_, err := c.call(ctx, token, "setMessageReaction", body)
	return err
}

// DownloadFile resolves a file_id and fetches its content. Returns the bytes
// and the upstream file path (used as a filename hint for transcription).
func (c *client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	token := c.Token()
	if token == "" {
		return nil, "", errors.New("telegram: no bot token configured")
	}

	raw, err := c.call(ctx, token, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, "", err
	}
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, "", fmt.Errorf("telegram: decode getFile result: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", errors.New("telegram: getFile returned no file_path")
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, token, file.FilePath)
	req, err := http.NewRequestWithContext(httpx.Default(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &APIError{Code: resp.StatusCode, Description: "file download failed"}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, file.FilePath, nil
}

func (c *client) call(ctx context.Context, token, method string, body any) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)
	req, err := http.NewRequestWithContext(httpx.Default(ctx), http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !api.OK {
		code := api.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, &APIError{Code: code, Description: api.Description}
	}
	return api.Result, nil
}

// EscapeText makes a string safe for interpolation into HTML-mode messages.
func EscapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// SplitMessage cuts text into ordered chunks of at most limit runes,
// preferring newline boundaries so formatting survives the split.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
