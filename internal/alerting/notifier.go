// Package alerting delivers plain-text notifications to the operator chat.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("telegram not configured")

// maxMessageRunes is the Bot API limit for one message.
const maxMessageRunes = 4096

// Notifier sends text to the chat sink.
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// BotInfo is the identity returned by getMe.
type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: strings.TrimSpace(botToken),
		chatID:   strings.TrimSpace(chatID),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Configured reports whether both credentials are present.
func (n *TelegramNotifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// SendText calls sendMessage. Overlong text is truncated to the API limit.
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	if !n.Configured() {
		return ErrNotConfigured
	}

	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     truncate(text, maxMessageRunes),
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	if _, err := n.call(ctx, http.MethodPost, "sendMessage", body); err != nil {
		return err
	}

	n.logger.Info().Int("chars", len([]rune(text))).Msg("telegram message sent")
	return nil
}

// Ping calls getMe to verify the bot token.
func (n *TelegramNotifier) Ping(ctx context.Context) (BotInfo, error) {
	if n == nil || n.botToken == "" {
		return BotInfo{}, ErrNotConfigured
	}
	result, err := n.call(ctx, http.MethodGet, "getMe", nil)
	if err != nil {
		return BotInfo{}, err
	}
	return BotInfo{
		ID:       result.Get("id").Int(),
		Username: result.Get("username").String(),
	}, nil
}

func (n *TelegramNotifier) call(ctx context.Context, method, apiMethod string, body []byte) (gjson.Result, error) {
	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, apiMethod)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create telegram request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("send telegram request: %w", redact(err, n.botToken))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read telegram response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if desc := gjson.GetBytes(raw, "description").String(); desc != "" {
			return gjson.Result{}, fmt.Errorf("telegram status %d: %s", resp.StatusCode, desc)
		}
		return gjson.Result{}, fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if ok := gjson.GetBytes(raw, "ok"); ok.Exists() && !ok.Bool() {
		return gjson.Result{}, fmt.Errorf("telegram returned ok=false: %s", gjson.GetBytes(raw, "description").String())
	}
	return gjson.GetBytes(raw, "result"), nil
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

var _ Notifier = (*TelegramNotifier)(nil)
