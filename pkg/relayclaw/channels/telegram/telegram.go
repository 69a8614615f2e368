// Package telegram is a small Telegram Bot API client over plain HTTP. It
// parses webhook updates, sends threaded replies and manages the webhook
// registration.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// MaxMessageLength is Telegram's limit for one sendMessage text, in UTF-16
// code units.
const MaxMessageLength = 4096

// Config holds Telegram client configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string `yaml:"token"`

	// APIBase overrides the Bot API endpoint (default: https://api.telegram.org).
	APIBase string `yaml:"api_base"`

	// ParseMode for outgoing messages ("HTML", "MarkdownV2" or empty for plain text).
	ParseMode string `yaml:"parse_mode"`

	// Timeout bounds each Bot API request (default: 30s).
	Timeout time.Duration `yaml:"timeout"`
}

// Telegram implements channels.Sender and the webhook management calls.
type Telegram struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	// baseURL is the Bot API base URL (<api_base>/bot<token>).
	baseURL string
}

// New creates a new Telegram client.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Telegram{
		cfg:     cfg,
		logger:  logger.With("component", "telegram"),
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.APIBase, "/") + "/bot" + cfg.Token,
	}
}

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Send sends a text message to the specified chat. Text longer than one
// Telegram message is split; only the first part is threaded under ReplyTo.
func (t *Telegram) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", to, err)
	}

	for i, part := range splitMessage(message.Content, MaxMessageLength) {
		payload := map[string]any{
			"chat_id": chatID,
			"text":    part,
		}
		if t.cfg.ParseMode != "" {
			payload["parse_mode"] = t.cfg.ParseMode
		}
		if i == 0 && message.ReplyTo != "" {
			if msgID, e := strconv.ParseInt(message.ReplyTo, 10, 64); e == nil {
				payload["reply_parameters"] = map[string]any{
					"message_id":                  msgID,
					"allow_sending_without_reply": true,
				}
			}
		}

		if _, err := t.apiCall(ctx, "sendMessage", payload); err != nil {
			return fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
		}
	}
	return nil
}

// ---------- Webhook management ----------

// WebhookOptions configures setWebhook.
type WebhookOptions struct {
	URL                string
	DropPendingUpdates bool

	// AllowedUpdates limits the update kinds Telegram delivers. Empty keeps
	// Telegram's current setting.
	AllowedUpdates []string
}

// WebhookInfo is the subset of getWebhookInfo the CLI reports.
type WebhookInfo struct {
	URL                  string `json:"url"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date"`
	LastErrorMessage     string `json:"last_error_message"`
	MaxConnections       int    `json:"max_connections"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
}

// BotUser is the bot identity returned by getMe.
type BotUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// SetWebhook registers the URL Telegram pushes updates to.
func (t *Telegram) SetWebhook(ctx context.Context, opts WebhookOptions) error {
	payload := map[string]any{"url": opts.URL}
	if opts.DropPendingUpdates {
		payload["drop_pending_updates"] = true
	}
	if len(opts.AllowedUpdates) > 0 {
		payload["allowed_updates"] = opts.AllowedUpdates
	}
	if _, err := t.apiCall(ctx, "setWebhook", payload); err != nil {
		return err
	}
	t.logger.Info("webhook registered", "url", redactWebhookURL(opts.URL))
	return nil
}

// DeleteWebhook removes the webhook registration.
func (t *Telegram) DeleteWebhook(ctx context.Context, dropPending bool) error {
	payload := map[string]any{}
	if dropPending {
		payload["drop_pending_updates"] = true
	}
	if _, err := t.apiCall(ctx, "deleteWebhook", payload); err != nil {
		return err
	}
	t.logger.Info("webhook deleted")
	return nil
}

// GetWebhookInfo returns the current webhook state.
func (t *Telegram) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	data, err := t.apiCall(ctx, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}
	var info WebhookInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("telegram: parsing getWebhookInfo: %w", err)
	}
	return &info, nil
}

// GetMe verifies the bot token and returns bot info.
func (t *Telegram) GetMe(ctx context.Context) (*BotUser, error) {
	data, err := t.apiCall(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var user BotUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

// ---------- API Helpers ----------

// apiCall makes a POST request to the Telegram Bot API.
func (t *Telegram) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	url := t.baseURL + "/" + method
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token; never surface it.
		return nil, fmt.Errorf("telegram: %s request failed: %s", method, redactToken(err.Error(), t.cfg.Token))
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if !result.OK {
		return nil, &APIError{Method: method, Code: result.ErrorCode, Description: result.Description}
	}
	return result.Result, nil
}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}

// redactWebhookURL hides the trailing secret path segment.
func redactWebhookURL(u string) string {
	i := strings.LastIndex(u, "/")
	if i < 0 || i == len(u)-1 {
		return u
	}
	return u[:i+1] + "***"
}

// splitMessage breaks text into chunks of at most limit UTF-16 code units,
// preferring newline boundaries. Runes are never split.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if utf16Len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		n, units := 0, 0
		for n < len(runes) {
			u := utf16.RuneLen(runes[n])
			if u < 0 {
				u = 1
			}
			if units+u > limit {
				break
			}
			units += u
			n++
		}
		if n == len(runes) {
			parts = append(parts, string(runes))
			break
		}
		if n == 0 {
			n = 1
		}

		cut := n
		for i := n; i > n/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return parts
}

func utf16Len(runes []rune) int {
	n := 0
	for _, r := range runes {
		if u := utf16.RuneLen(r); u > 0 {
			n += u
		} else {
			n++
		}
	}
	return n
}

var _ channels.Sender = (*Telegram)(nil)
