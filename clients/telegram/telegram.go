package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/%s"

// ThrottledError is returned when Telegram responds with "too many requests".
// RetryAfter carries the backoff the API asked for.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("telegram throttled, retry after %s", e.RetryAfter)
}

// Client sends alert messages to per-subscriber Telegram chats.
type Client struct {
	logger   *zap.Logger
	botToken string
	client   *http.Client
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram alerts disabled")
		return &Client{logger: logger}
	}

	logger.Info("telegram bot initialized")

	return &Client{
		logger:   logger,
		botToken: token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether the client has a bot token configured.
func (c *Client) Enabled() bool {
	return c.botToken != ""
}

// SendMessage delivers a Markdown-formatted message to one chat.
// Returns *ThrottledError when the API rate-limits the bot.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if c.botToken == "" {
		return fmt.Errorf("telegram not configured")
	}

	url := fmt.Sprintf(telegramAPIURL, c.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &ThrottledError{RetryAfter: parseRetryAfter(respBody)}
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// parseRetryAfter extracts the retry_after seconds from a 429 body.
// Falls back to 1s when the body is unparseable.
func parseRetryAfter(body []byte) time.Duration {
	var apiResp struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Parameters.RetryAfter > 0 {
		return time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	}
	return time.Second
}

// Close cleans up resources.
func (c *Client) Close() error {
	return nil
}
