package pool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorfx/router/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *BreakerSet) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	breaker := NewBreakerSet(&recordingNotifier{}, nil)
	return NewClient(srv.URL, breaker, testLogger()), breaker
}

func TestPositionsDecodesWireFormat(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions/src-1", r.URL.Path)
		assert.Equal(t, "new-york", r.URL.Query().Get("region"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"positions": [
			{"id": 12345, "symbol": "XAUUSD", "type": "POSITION_TYPE_SELL",
			 "volume": 0.5, "openPrice": 2311.5, "currentPrice": 2309.1,
			 "stopLoss": 2320.0, "profit": 120.0, "time": "2025-06-02T14:00:00Z"},
			{"id": "67890", "symbol": "EURUSD", "type": "POSITION_TYPE_BUY",
			 "volume": 1.0, "openPrice": 1.0850, "currentPrice": 1.0861,
			 "profit": 11.0, "time": "2025-06-02T15:00:00Z"}
		]}`))
	})

	positions, err := client.Positions(context.Background(), "src-1", "new-york")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "12345", positions[0].ID)
	assert.Equal(t, models.SideSell, positions[0].Side)
	require.NotNil(t, positions[0].StopLoss)
	assert.InDelta(t, 2320.0, *positions[0].StopLoss, 1e-9)

	assert.Equal(t, "67890", positions[1].ID)
	assert.Equal(t, models.SideBuy, positions[1].Side)
	assert.Nil(t, positions[1].StopLoss)
	assert.Nil(t, positions[1].TakeProfit)
}

func TestPositionsTransportFailureIsNotEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	positions, err := client.Positions(context.Background(), "src-1", "ny")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Nil(t, positions)
}

func TestPositionsUndecodableBodyIsTransport(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
	})

	_, err := client.Positions(context.Background(), "src-1", "ny")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestExecuteTradeSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade/execute", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"action":"BUY"`)
		assert.Contains(t, string(body), `"stop_loss":1.08`)
		_, _ = w.Write([]byte(`{"success": true, "result": {"positionId": 555, "openPrice": 1.0852}}`))
	})

	res, err := client.ExecuteTrade(context.Background(), ExecuteRequest{
		AccountID: "dest-1",
		Region:    "ny",
		Symbol:    "EURUSD",
		Action:    models.SideBuy,
		Volume:    0.1,
		StopLoss:  models.Float64Ptr(1.08),
	})
	require.NoError(t, err)
	assert.Equal(t, "555", res.PositionID)
	assert.InDelta(t, 1.0852, res.OpenPrice, 1e-9)
}

func TestExecuteTradeDefinitiveFailureIsBrokerRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "invalid volume"}`))
	})

	_, err := client.ExecuteTrade(context.Background(), ExecuteRequest{AccountID: "dest-1"})
	require.Error(t, err)
	assert.True(t, IsBrokerRejected(err))
	assert.False(t, IsRetryable(err))
}

func TestClosePositionUnknownPosition(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "position not found"}`, http.StatusNotFound)
	})

	_, err := client.ClosePosition(context.Background(), "dest-1", "ny", "p-1")
	require.Error(t, err)
	assert.True(t, IsUnknownPosition(err))
}

func TestBrokerRejectionCountsAsBreakerSuccess(t *testing.T) {
	client, breaker := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid volume", http.StatusBadRequest)
	})

	// A definitive 4xx proves the account is reachable; the streak must not
	// grow no matter how many rejections come back.
	for i := 0; i < 5; i++ {
		_, err := client.AccountInfo(context.Background(), "acct-1", "ny")
		require.Error(t, err)
	}
	for _, st := range breaker.Snapshot() {
		assert.Zero(t, st.ConsecutiveFails)
	}
}

func TestServerErrorsFeedTheBreaker(t *testing.T) {
	client, breaker := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.AccountInfo(context.Background(), "acct-1", "ny")
	require.Error(t, err)

	snap := breaker.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].ConsecutiveFails)
}

func TestModifyPositionSendsNullStops(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"stop_loss":null`)
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	err := client.ModifyPosition(context.Background(), "dest-1", "ny", "p-1", nil, models.Float64Ptr(1.10))
	require.NoError(t, err)
}
