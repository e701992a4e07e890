package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestTelegramSendsMessage(t *testing.T) {
	var (
		mu       sync.Mutex
		path     string
		received sendMessageRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("bot-token", "chat-42", discardLogger(), WithBaseURL(srv.URL))
	tg.Notify(context.Background(), SeverityCritical, "unmanaged position", "dest-1 dp-9")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "chat-42", received.ChatID)
	assert.Contains(t, received.Text, "unmanaged position")
	assert.Contains(t, received.Text, "dest-1 dp-9")
}

func TestTelegramSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	}))
	defer srv.Close()

	tg := NewTelegram("bot-token", "chat-42", discardLogger(), WithBaseURL(srv.URL))
	// Must not panic or block; delivery is best-effort.
	tg.Notify(context.Background(), SeverityWarning, "subject", "body")
}

func TestTelegramBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegram("bot-token", "chat-42", discardLogger(), WithBaseURL(srv.URL))
	for i := 0; i < 5; i++ {
		tg.Notify(context.Background(), SeverityInfo, "subject", "body")
	}

	mu.Lock()
	defer mu.Unlock()
	// The breaker trips after three straight failures and stops hitting the API.
	assert.Equal(t, 3, calls)
}
