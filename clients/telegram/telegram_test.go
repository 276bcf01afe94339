package telegram

import (
	"testing"
	"time"

	"whalewatch/config"
)

func TestNewClient_NoToken(t *testing.T) {
	cfg := config.Defaults()
	client := NewClient(nil, cfg)

	if client.Enabled() {
		t.Error("expected client disabled without token")
	}
}

func TestNewClient_WithToken(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telegram.BotToken = "123:abc"
	client := NewClient(nil, cfg)

	if !client.Enabled() {
		t.Error("expected client enabled with token")
	}
}

func TestParseRetryAfter(t *testing.T) {
	body := []byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`)
	if got := parseRetryAfter(body); got != 7*time.Second {
		t.Errorf("expected 7s, got %v", got)
	}
}

func TestParseRetryAfter_Unparseable(t *testing.T) {
	if got := parseRetryAfter([]byte("not json")); got != time.Second {
		t.Errorf("expected 1s fallback, got %v", got)
	}
	if got := parseRetryAfter([]byte(`{"parameters":{}}`)); got != time.Second {
		t.Errorf("expected 1s fallback for zero retry_after, got %v", got)
	}
}

func TestThrottledError_Message(t *testing.T) {
	err := &ThrottledError{RetryAfter: 3 * time.Second}
	if err.Error() != "telegram throttled, retry after 3s" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}
