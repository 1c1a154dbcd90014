package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/ratelimit"
)

// TelegramSink posts plaintext messages to one or more chats via the
// Bot API. Each chat is a separate destination so the dispatcher paces
// them independently.
type TelegramSink struct {
	cfg     config.TelegramConfig
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *ratelimit.Breaker
	log     *logging.Logger

	sent   uint64
	failed uint64
}

func NewTelegramSink(cfg config.TelegramConfig) *TelegramSink {
	return &TelegramSink{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: ratelimit.NewLimiter(cfg.MaxPerMinute, time.Minute),
		breaker: ratelimit.NewBreaker(5, 60*time.Second),
		log:     logging.Default().WithComponent("telegram"),
	}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) IsEnabled() bool {
	return t.cfg.Enabled && t.cfg.BotToken != "" && len(t.cfg.ChatIDs) > 0
}

func (t *TelegramSink) Destinations() []string {
	out := make([]string, len(t.cfg.ChatIDs))
	copy(out, t.cfg.ChatIDs)
	return out
}

// Send posts text to a single chat. Messages suppressed by the rate
// limiter or an open breaker are dropped with an error so the caller's
// cooldown still advances.
func (t *TelegramSink) Send(ctx context.Context, chatID, text string) error {
	if !t.limiter.Allow(chatID) {
		return fmt.Errorf("telegram: rate limit exceeded for chat %s", chatID)
	}
	if !t.breaker.Allow() {
		return fmt.Errorf("telegram: circuit breaker open")
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIBaseURL, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.breaker.RecordFailure()
		t.failed++
		return fmt.Errorf("telegram: send to chat %s: %w", chatID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.breaker.RecordFailure()
		t.failed++
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: chat %s: status %d: %s", chatID, resp.StatusCode, string(body))
	}

	t.breaker.RecordSuccess()
	t.sent++
	return nil
}

func (t *TelegramSink) Stats() map[string]interface{} {
	return map[string]interface{}{
		"enabled": t.IsEnabled(),
		"chats":   len(t.cfg.ChatIDs),
		"sent":    t.sent,
		"failed":  t.failed,
		"limiter": t.limiter.Stats(),
		"breaker": t.breaker.Stats(),
	}
}
