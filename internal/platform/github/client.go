package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/swarmbot/event-gateway/internal/platform/envutil"
	"github.com/swarmbot/event-gateway/internal/platform/httpx"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

// Workflow run status values as reported by the Actions API.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Client is the GitHub Actions API surface the gateway depends on.
// Reads retry on transient failures; mutations (cancel, rerun, dispatch)
// are issued exactly once since duplicates have side effects upstream.
type Client interface {
	ListRuns(ctx context.Context, opts ListRunsOptions) (*RunList, error)
	ListRunJobs(ctx context.Context, runID int64) (*JobList, error)
	CancelRun(ctx context.Context, runID int64) error
	RerunRun(ctx context.Context, runID int64, failedOnly bool) error
	DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error
}

type Config struct {
	Token      string
	Owner      string
	Repo       string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("GITHUB_TIMEOUT_SECONDS", 15)
	return Config{
		Token:      strings.TrimSpace(os.Getenv("GH_TOKEN")),
		Owner:      strings.TrimSpace(os.Getenv("GH_OWNER")),
		Repo:       strings.TrimSpace(os.Getenv("GH_REPO")),
		BaseURL:    strings.TrimSpace(os.Getenv("GITHUB_BASE_URL")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: envutil.Int("GITHUB_MAX_RETRIES", 2),
		RetryDelay: time.Second,
	}
}

// New builds a client. Missing credentials are not an error here: the
// token/owner/repo triple is validated per call so the gateway can boot
// unconfigured and surface the problem on first use.
func New(log *logger.Logger, cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &client{
		log:        log.With("client", "GitHubClient"),
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

type WorkflowRun struct {
	ID           int64     `json:"id"`
	HeadBranch   string    `json:"head_branch"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	WorkflowName string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	HTMLURL      string    `json:"html_url"`
}

type RunList struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

type Step struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

type RunJob struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Steps  []Step `json:"steps"`
}

type JobList struct {
	TotalCount int      `json:"total_count"`
	Jobs       []RunJob `json:"jobs"`
}

type ListRunsOptions struct {
	Status   string // empty means all statuses
	Workflow string // workflow file name to scope to; empty means all workflows
	Page     int
	PerPage  int
}

// maxRetryAfter caps how long an upstream Retry-After header can stall a
// read retry.
const maxRetryAfter = 30 * time.Second

// UpstreamError carries a non-2xx Actions API response. RetryAfter is the
// server-requested backoff, zero when the response carried none.
type UpstreamError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("github http %d: %s", e.StatusCode, msg)
}

func (e *UpstreamError) HTTPStatusCode() int { return e.StatusCode }

// --- operations ---

func (c *client) ListRuns(ctx context.Context, opts ListRunsOptions) (*RunList, error) {
	if err := c.requireConfig(); err != nil {
		return nil, err
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}

	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	params.Set("per_page", fmt.Sprint(opts.PerPage))
	params.Set("page", fmt.Sprint(opts.Page))

	path := fmt.Sprintf("/repos/%s/%s/actions/runs", c.cfg.Owner, c.cfg.Repo)
	if opts.Workflow != "" {
		path = fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs", c.cfg.Owner, c.cfg.Repo, opts.Workflow)
	}

	var out RunList
	if err := c.get(ctx, path+"?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) ListRunJobs(ctx context.Context, runID int64) (*JobList, error) {
	if err := c.requireConfig(); err != nil {
		return nil, err
	}
	var out JobList
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/jobs", c.cfg.Owner, c.cfg.Repo, runID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) CancelRun(ctx context.Context, runID int64) error {
	if err := c.requireConfig(); err != nil {
		return err
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/cancel", c.cfg.Owner, c.cfg.Repo, runID)
	return c.post(ctx, path, nil, http.StatusAccepted)
}

func (c *client) RerunRun(ctx context.Context, runID int64, failedOnly bool) error {
	if err := c.requireConfig(); err != nil {
		return err
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/rerun", c.cfg.Owner, c.cfg.Repo, runID)
	if failedOnly {
		path = fmt.Sprintf("/repos/%s/%s/actions/runs/%d/rerun-failed-jobs", c.cfg.Owner, c.cfg.Repo, runID)
	}
	return c.post(ctx, path, nil, http.StatusCreated)
}

func (c *client) DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	if err := c.requireConfig(); err != nil {
		return err
	}
	if ref == "" {
		ref = "main"
	}
	body := map[string]any{"ref": ref}
	if len(inputs) > 0 {
		body["inputs"] = inputs
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches", c.cfg.Owner, c.cfg.Repo, workflowFile)
	return c.post(ctx, path, body, http.StatusNoContent)
}

func (c *client) requireConfig() error {
	if c.cfg.Token == "" || c.cfg.Owner == "" || c.cfg.Repo == "" {
		return errors.New("github: GH_TOKEN, GH_OWNER and GH_REPO must be configured")
	}
	return nil
}

// --- HTTP helpers ---

// get retries a bounded number of times with a fixed delay. Safe because
// run/job listings are idempotent reads.
func (c *client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := c.doOnce(ctx, http.MethodGet, path, nil, 0)
		if err == nil {
			return json.Unmarshal(raw, out)
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}
		delay := c.cfg.RetryDelay
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.RetryAfter > 0 {
			delay = upstream.RetryAfter
		}
		c.log.Warn("GitHub read retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"delay", delay.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// post issues a mutation exactly once.
func (c *client) post(ctx context.Context, path string, body any, accept int) error {
	_, err := c.doOnce(ctx, http.MethodPost, path, body, accept)
	return err
}

func (c *client) doOnce(ctx context.Context, method, path string, body any, accept int) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(httpx.Default(ctx), method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	if accept != 0 && resp.StatusCode == accept {
		return raw, nil
	}
	return nil, &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
		RetryAfter: httpx.RetryAfterDuration(resp, 0, maxRetryAfter),
	}
}
