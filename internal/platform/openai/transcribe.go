package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/swarmbot/event-gateway/internal/platform/envutil"
	"github.com/swarmbot/event-gateway/internal/platform/httpx"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

// Transcriber turns voice-message audio into text via the Whisper API.
// Transcription is optional: without an OPENAI_API_KEY the gateway replies
// that voice messages are unsupported instead of attempting processing.
type Transcriber interface {
	Enabled() bool
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("OPENAI_TIMEOUT_SECONDS", 60)
	return Config{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:   envutil.Str("OPENAI_WHISPER_MODEL", "whisper-1"),
		Timeout: time.Duration(timeoutSec) * time.Second,
	}
}

func New(log *logger.Logger, cfg Config) Transcriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &transcriber{
		log:        log.With("client", "WhisperClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type transcriber struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func (t *transcriber) Enabled() bool {
	return t.cfg.APIKey != ""
}

func (t *transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !t.Enabled() {
		return "", errors.New("openai: OPENAI_API_KEY not configured")
	}
	if len(audio) == 0 {
		return "", errors.New("openai: empty audio payload")
	}
	if filename == "" {
		filename = "voice.ogg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", path.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := w.WriteField("model", t.cfg.Model); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(httpx.Default(ctx), http.MethodPost, t.cfg.BaseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 1000 {
			msg = msg[:1000] + "..."
		}
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openai: decode transcription: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
