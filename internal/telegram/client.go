// Package telegram is a minimal Telegram Bot API client: outbound messages
// and webhook management.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
	defaultRate    = 25 // messages per second, below the global bot limit
)

// ParseModeHTML asks Telegram to render a message as HTML.
const ParseModeHTML = "HTML"

// Platform is the inbound platform name of Telegram chats.
const Platform = "telegram"

// ErrNoToken is returned when the bot token is not configured.
var ErrNoToken = errors.New("telegram bot token not set")

// APIError is a non-OK answer from the Bot API.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Config configures a Client.
type Config struct {
	Token     string
	APIBase   string
	RateLimit float64 // sends per second
	Timeout   time.Duration
	HTTP      *http.Client
}

// Client calls the Bot API. It is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client. It fails with ErrNoToken when cfg.Token is empty.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		base:    strings.TrimRight(cfg.APIBase, "/") + "/bot" + cfg.Token,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
	}, nil
}

// SendMessage posts text to a chat. parseMode may be empty for plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) (*Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("telegram rate limit: %w", err)
	}

	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	var msg Message
	if err := c.call(ctx, http.MethodPost, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	slog.Debug("telegram message sent", "chat_id", chatID, "message_id", msg.MessageID)
	return &msg, nil
}

// SetWebhook registers url as the update endpoint. A non-empty secret is
// echoed by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{"url": url}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, http.MethodPost, "setWebhook", payload, nil)
}

// DeleteWebhook removes the webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "deleteWebhook", nil, nil)
}

// GetWebhookInfo returns the current webhook status.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.call(ctx, http.MethodGet, "getWebhookInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method, name string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+name, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", name, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", name, err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Method: name, StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	if resp.StatusCode >= 300 || !ar.OK {
		return &APIError{Method: name, StatusCode: resp.StatusCode, Description: ar.Description}
	}

	if out != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", name, err)
		}
	}
	return nil
}
