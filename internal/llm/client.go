// Package llm talks to OpenAI-compatible chat completion endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// ErrBackendUnavailable wraps every failed or unusable backend call.
var ErrBackendUnavailable = errors.New("reasoning backend unavailable")

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultTimeout   = 8 * time.Second
	defaultMaxTokens = 60
)

// Options parameterise the chat client.
type Options struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	// ModelFunc, when set, is consulted on every call so the model can be
	// switched without a restart.
	ModelFunc func() string
}

// Client is a single-attempt chat completion client.
type Client struct {
	opts    Options
	baseURL string
	http    *resty.Client
	logger  zerolog.Logger
}

// NewClient constructs a chat client. Retries stay disabled.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/chat/completions")

	httpc := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		httpc.SetAuthToken(opts.APIKey)
	}

	return &Client{
		opts:    opts,
		baseURL: baseURL,
		http:    httpc,
		logger:  logger.With().Str("component", "llm_client").Logger(),
	}
}

// Model returns the model used for the next call.
func (c *Client) Model() string {
	if c.opts.ModelFunc != nil {
		if m := strings.TrimSpace(c.opts.ModelFunc()); m != "" {
			return m
		}
	}
	return c.opts.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Complete sends one system+user exchange at temperature 0 and returns the
// first choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	model := c.Model()
	if model == "" {
		return "", fmt.Errorf("%w: model not configured", ErrBackendUnavailable)
	}

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	c.logger.Debug().Str("model", model).Int("prompt_len", len(user)).Msg("chat completion request")

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: model, Messages: messages, Temperature: 0, MaxTokens: c.opts.MaxTokens}).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: %s", ErrBackendUnavailable, apiError(resp))
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("%w: empty choices", ErrBackendUnavailable)
	}
	return content.String(), nil
}

// Ping lists models to confirm credentials and reachability.
func (c *Client) Ping(ctx context.Context) error {
	if c.opts.APIKey == "" {
		return fmt.Errorf("%w: api key not configured", ErrBackendUnavailable)
	}
	resp, err := c.http.R().SetContext(ctx).Get(c.baseURL + "/models")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, apiError(resp))
	}
	return nil
}

func apiError(resp *resty.Response) string {
	msg := strings.TrimSpace(gjson.GetBytes(resp.Body(), "error.message").String())
	if msg == "" {
		msg = resp.Status()
	}
	return fmt.Sprintf("status=%d: %s", resp.StatusCode(), msg)
}
