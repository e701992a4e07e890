// Package pool is the typed RPC facade over the external pool service that
// owns the MetaTrader connections. It carries the error taxonomy the rest of
// the router depends on: a transport failure is never an empty result.
package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/models"
)

// API is the pool surface the router consumes. Kept as an interface so the
// copier and reconciler tests can swap in a fake.
type API interface {
	AccountInfo(ctx context.Context, accountID, region string) (*AccountInfo, error)
	Positions(ctx context.Context, accountID, region string) ([]models.Position, error)
	ExecuteTrade(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)
	ModifyPosition(ctx context.Context, accountID, region, positionID string, stopLoss, takeProfit *float64) error
	ClosePosition(ctx context.Context, accountID, region, positionID string) (*CloseResult, error)
	History(ctx context.Context, accountID string, days, limit int) ([]HistoryTrade, error)
	RegisterReconnectionCallback(ctx context.Context, callbackURL string) error
}

// AccountInfo is the pool's view of a brokerage account.
type AccountInfo struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"freeMargin"`
	Currency   string  `json:"currency"`
	Platform   string  `json:"platform"`
}

// ExecuteRequest places a market order on a destination account.
type ExecuteRequest struct {
	AccountID  string      `json:"account_id"`
	Region     string      `json:"region"`
	Symbol     string      `json:"symbol"`
	Action     models.Side `json:"action"`
	Volume     float64     `json:"volume"`
	StopLoss   *float64    `json:"stop_loss,omitempty"`
	TakeProfit *float64    `json:"take_profit,omitempty"`
	Comment    string      `json:"comment,omitempty"`
}

// ExecuteResult is the broker's answer to a successful execution.
type ExecuteResult struct {
	PositionID string  `json:"positionId"`
	OpenPrice  float64 `json:"openPrice"`
}

// CloseResult is the broker's answer to a successful close.
type CloseResult struct {
	Profit  float64 `json:"profit"`
	OrderID string  `json:"order_id"`
}

// HistoryTrade is one closed trade from the pool's history endpoint.
// Best-effort; the router never persists these.
type HistoryTrade struct {
	PositionID string    `json:"positionId"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"type"`
	Volume     float64   `json:"volume"`
	Profit     float64   `json:"profit"`
	OpenTime   time.Time `json:"openTime"`
	CloseTime  time.Time `json:"closeTime"`
}

const defaultCallTimeout = 30 * time.Second

// Client is the HTTP implementation of API. Every call records a per-account
// outcome on the breaker set.
type Client struct {
	client  *http.Client
	logger  *logrus.Logger
	breaker *BreakerSet
	baseURL string
	timeout time.Duration
}

var _ API = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithClientHTTP overrides the HTTP client (tests, custom transport).
func WithClientHTTP(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.client = h
		}
	}
}

// NewClient creates a pool client against baseURL.
func NewClient(baseURL string, breaker *BreakerSet, logger *logrus.Logger, opts ...ClientOption) *Client {
	c := &Client{
		client:  &http.Client{},
		logger:  logger,
		breaker: breaker,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---- wire decoding helpers ----

// flexID tolerates the pool shipping IDs as either JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type wirePosition struct {
	ID         flexID   `json:"id"`
	Symbol     string   `json:"symbol"`
	Type       string   `json:"type"`
	Volume     float64  `json:"volume"`
	OpenPrice  float64  `json:"openPrice"`
	CurrPrice  float64  `json:"currentPrice"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
	Profit     float64  `json:"profit"`
	Time       string   `json:"time"`
}

func (w *wirePosition) toModel() models.Position {
	side := models.SideBuy
	if strings.Contains(w.Type, "SELL") {
		side = models.SideSell
	}
	t, err := time.Parse(time.RFC3339, w.Time)
	if err != nil {
		t = time.Time{}
	}
	return models.Position{
		ID:           string(w.ID),
		Symbol:       w.Symbol,
		Side:         side,
		Volume:       w.Volume,
		OpenPrice:    w.OpenPrice,
		CurrentPrice: w.CurrPrice,
		StopLoss:     w.StopLoss,
		TakeProfit:   w.TakeProfit,
		Profit:       w.Profit,
		OpenTime:     t,
	}
}

// ---- API methods ----

// AccountInfo fetches balance/equity for an account.
func (c *Client) AccountInfo(ctx context.Context, accountID, region string) (*AccountInfo, error) {
	var out AccountInfo
	path := fmt.Sprintf("/account/%s?region=%s", url.PathEscape(accountID), url.QueryEscape(region))
	if err := c.doJSON(ctx, accountID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type positionsResponse struct {
	Positions []wirePosition `json:"positions"`
}

// Positions returns the authoritative set of open positions for an account.
// On any transport failure it returns a non-nil error and no list; callers
// must not treat that as "no positions open".
func (c *Client) Positions(ctx context.Context, accountID, region string) ([]models.Position, error) {
	var out positionsResponse
	path := fmt.Sprintf("/positions/%s?region=%s", url.PathEscape(accountID), url.QueryEscape(region))
	if err := c.doJSON(ctx, accountID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	positions := make([]models.Position, 0, len(out.Positions))
	for i := range out.Positions {
		positions = append(positions, out.Positions[i].toModel())
	}
	return positions, nil
}

type executeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Result  *struct {
		PositionID flexID  `json:"positionId"`
		OpenPrice  float64 `json:"openPrice"`
	} `json:"result,omitempty"`
}

// ExecuteTrade places a market order. A definitive {success:false} answer is a
// broker rejection, not a transport failure.
func (c *Client) ExecuteTrade(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	var out executeResponse
	if err := c.doJSON(ctx, req.AccountID, http.MethodPost, "/trade/execute", req, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Result == nil {
		return nil, &APIError{Status: 400, Body: out.Error}
	}
	return &ExecuteResult{PositionID: string(out.Result.PositionID), OpenPrice: out.Result.OpenPrice}, nil
}

type modifyRequest struct {
	AccountID  string   `json:"account_id"`
	Region     string   `json:"region"`
	PositionID string   `json:"position_id"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
}

type successResponse struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Profit  float64 `json:"profit,omitempty"`
	OrderID flexID  `json:"order_id,omitempty"`
}

// ModifyPosition updates SL/TP on an open destination position.
func (c *Client) ModifyPosition(ctx context.Context, accountID, region, positionID string, stopLoss, takeProfit *float64) error {
	req := modifyRequest{
		AccountID:  accountID,
		Region:     region,
		PositionID: positionID,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	var out successResponse
	if err := c.doJSON(ctx, accountID, http.MethodPost, "/position/modify", req, &out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Status: 400, Body: out.Error}
	}
	return nil
}

type closeRequest struct {
	AccountID  string `json:"account_id"`
	Region     string `json:"region"`
	PositionID string `json:"position_id"`
}

// ClosePosition closes a destination position at market.
func (c *Client) ClosePosition(ctx context.Context, accountID, region, positionID string) (*CloseResult, error) {
	req := closeRequest{AccountID: accountID, Region: region, PositionID: positionID}
	var out successResponse
	if err := c.doJSON(ctx, accountID, http.MethodPost, "/position/close", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &APIError{Status: 400, Body: out.Error}
	}
	return &CloseResult{Profit: out.Profit, OrderID: string(out.OrderID)}, nil
}

type historyResponse struct {
	Trades []HistoryTrade `json:"trades"`
}

// History fetches recent closed trades. Best-effort: failures bubble up but
// nothing in the control loop depends on them.
func (c *Client) History(ctx context.Context, accountID string, days, limit int) ([]HistoryTrade, error) {
	var out historyResponse
	path := fmt.Sprintf("/history/%s?days=%d&limit=%d", url.PathEscape(accountID), days, limit)
	if err := c.doJSON(ctx, accountID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

type callbackRequest struct {
	URL string `json:"url"`
}

// RegisterReconnectionCallback asks the pool to POST to callbackURL whenever a
// broker stream resyncs, so the router can refresh snapshots immediately.
func (c *Client) RegisterReconnectionCallback(ctx context.Context, callbackURL string) error {
	var out successResponse
	err := c.doJSON(ctx, "", http.MethodPost, "/streaming/register-reconnection-callback",
		callbackRequest{URL: callbackURL}, &out)
	if err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Status: 400, Body: out.Error}
	}
	return nil
}

// doJSON performs one HTTP round trip, classifies the failure, and records the
// per-account outcome on the breaker set. accountID may be empty for calls not
// tied to an account.
func (c *Client) doJSON(ctx context.Context, accountID, method, path string, body, out interface{}) error {
	err := c.roundTrip(ctx, method, path, body, out)
	if err != nil && c.logger != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"account": accountID,
		}).Debug("pool call failed")
	}
	if accountID != "" && c.breaker != nil {
		// A definitive broker answer proves the account is reachable, so 4xx
		// rejections reset the streak instead of feeding it.
		if err == nil || IsBrokerRejected(err) {
			c.breaker.RecordSuccess(accountID)
		} else {
			c.breaker.RecordFailure(ctx, accountID, err)
		}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, truncate(raw, 256))
	case resp.StatusCode == 429:
		return &APIError{Status: 429, Body: truncate(raw, 256)}
	case resp.StatusCode >= 400:
		return &APIError{Status: resp.StatusCode, Body: truncate(raw, 256)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			// A 200 with a body we cannot decode is indistinguishable from a
			// half-restarted upstream. Transport, not "empty".
			return fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
