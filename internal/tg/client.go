package tg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NixLone/Inbox-SaaS/internal/metrics"
)

const defaultBaseURL = "https://api.telegram.org"

// BotAPI abstracts the Telegram Bot API primitives the service uses, so the
// notification binder and the bot loop can be tested against a fake.
type BotAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Client provides typed access to the Telegram Bot API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	timeout time.Duration
	http    *http.Client
	metrics *metrics.Metrics
	dryRun  bool
	fakeID  atomic.Int64
}

// Config holds Telegram client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// DryRun disables outbound calls: sends return synthetic message ids and
	// polls return no updates. The backend still stores leads.
	DryRun bool
}

// New creates a new Telegram client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "telegram"),
		baseURL: fmt.Sprintf("%s/bot%s", base, cfg.Token),
		timeout: timeout,
		http:    &http.Client{},
		metrics: metricRegistry,
		dryRun:  cfg.DryRun,
	}
}

// responseEnvelope mirrors the Bot API standard response shape.
type responseEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type sendMessagePayload struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview"`
}

type editMessagePayload struct {
	ChatID                int64                 `json:"chat_id"`
	MessageID             int64                 `json:"message_id"`
	Text                  string                `json:"text"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview"`
}

// SendMessage posts a message into the chat and returns its message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (int64, error) {
	if c.dryRun {
		return c.nextFakeMessageID(), nil
	}
	payload := sendMessagePayload{
		ChatID:                chatID,
		Text:                  text,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, c.timeout, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// EditMessageText rewrites an already sent message in place.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	if c.dryRun {
		return nil
	}
	payload := editMessagePayload{
		ChatID:                chatID,
		MessageID:             messageID,
		Text:                  text,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	}
	return c.call(ctx, "editMessageText", payload, c.timeout, nil)
}

// AnswerCallbackQuery acknowledges an inline action invocation.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	if c.dryRun {
		return nil
	}
	payload := map[string]string{"callback_query_id": callbackID}
	return c.call(ctx, "answerCallbackQuery", payload, c.timeout, nil)
}

// GetUpdates long-polls for pending updates starting at offset. The HTTP
// deadline is padded past the server-side wait so a full poll is not cut off.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	if c.dryRun {
		return nil, nil
	}
	payload := map[string]any{
		"timeout": int(timeout.Seconds()),
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, timeout+10*time.Second, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, timeout time.Duration, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.TelegramLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countRequest(method, "transport_error")
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countRequest(method, "read_error")
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.countRequest(method, "decode_error")
		return fmt.Errorf("decode %s response (http %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		c.countRequest(method, "api_error")
		return fmt.Errorf("telegram %s: %s (http %d)", method, envelope.Description, resp.StatusCode)
	}
	c.countRequest(method, "ok")

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) countRequest(method, status string) {
	if c.metrics != nil {
		c.metrics.TelegramRequests.WithLabelValues(method, status).Inc()
	}
}

// nextFakeMessageID keeps dry-run message ids unique within the process.
func (c *Client) nextFakeMessageID() int64 {
	return time.Now().Unix()*1000 + c.fakeID.Add(1)%1000
}
