package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram delivers alerts through the Telegram Bot API. Sends go through a
// circuit breaker so a Telegram outage degrades to log lines instead of a
// blocked HTTP call per alert.
type Telegram struct {
	client  *http.Client
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker
	baseURL string
	token   string
	chatID  string
}

// TelegramOption customizes the notifier.
type TelegramOption func(*Telegram)

// WithBaseURL overrides the Telegram API host (tests).
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = u }
}

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token, chatID string, logger *logrus.Logger, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		baseURL: telegramAPIBase,
		token:   token,
		chatID:  chatID,
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "telegram",
		Interval: time.Minute,
		Timeout:  2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && counts.TotalFailures == counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Warn("telegram breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Notify implements Notifier. Errors are logged and swallowed.
func (t *Telegram) Notify(ctx context.Context, severity Severity, subject, body string) {
	text := fmt.Sprintf("%s %s\n%s", severityMarker(severity), subject, body)
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.send(ctx, text)
	})
	if err != nil {
		t.logger.WithError(err).WithField("subject", subject).Warn("telegram notify failed")
	}
}

func (t *Telegram) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshaling telegram message: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func severityMarker(s Severity) string {
	switch s {
	case SeverityCritical:
		return "🚨"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
