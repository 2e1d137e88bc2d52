package notify

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

// DefaultTelegramBaseURL is the public Bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// Telegram sends messages through the Telegram Bot API using HTML parse mode.
type Telegram struct {
	baseURL     string
	token       string
	chatID      string
	accountName string
	client      *http.Client
	logger      *logging.Logger
}

// TelegramOption configures a Telegram sink.
type TelegramOption func(*Telegram)

// WithBaseURL overrides the Bot API base URL.
func WithBaseURL(baseURL string) TelegramOption {
	return func(t *Telegram) {
		if baseURL != "" {
			t.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTimeout sets the per-message delivery timeout.
func WithTimeout(timeout time.Duration) TelegramOption {
	return func(t *Telegram) {
		if timeout > 0 {
			t.client.Timeout = timeout
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *logging.Logger) TelegramOption {
	return func(t *Telegram) {
		t.logger = logger
	}
}

// NewTelegram creates a Telegram sink. Every message is prefixed with the
// bold account name so several accounts can share one chat.
func NewTelegram(token, chatID, accountName string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		baseURL:     DefaultTelegramBaseURL,
		token:       token,
		chatID:      chatID,
		accountName: accountName,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enabled reports whether both credentials are present.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// Send delivers message. Missing credentials make it a no-op.
func (t *Telegram) Send(ctx context.Context, message string) {
	if !t.Enabled() {
		return
	}
	if err := t.deliver(ctx, message); err != nil && t.logger != nil {
		t.logger.Errorf("failed to send telegram notification: %v", err)
	}
}

func (t *Telegram) deliver(ctx context.Context, message string) error {
	params := url.Values{}
	params.Set("chat_id", t.chatID)
	params.Set("text", t.format(message))
	params.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage?%s", t.baseURL, t.token, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// url.Error embeds the token-bearing URL
		return fmt.Errorf("request failed: %s", redact(err.Error(), t.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if desc := gjson.GetBytes(body, "description").String(); desc != "" {
			return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, desc)
		}
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (t *Telegram) format(message string) string {
	if t.accountName == "" {
		return message
	}
	return fmt.Sprintf("<b>[%s]</b> %s", html.EscapeString(t.accountName), message)
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "<redacted>")
}
