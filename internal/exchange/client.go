// Package exchange implements the signed request/response gateway to the
// prediction-market exchange: RSA-PSS request signing, 429 retry/backoff,
// pagination, and the typed endpoint surface consumed by the signal
// producers and the risk engine.
package exchange

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

// MaxRetries bounds the number of 429 retries per request before the call
// surfaces as RateLimited.
const MaxRetries = 3

// DefaultRetryAfterSeconds is used when a 429 response omits Retry-After.
const DefaultRetryAfterSeconds = 2

// Client is a signed, rate-limit-aware HTTP client for the exchange REST
// API. One Client owns one *http.Client connection pool, per the "HTTP
// client per component" resource-model rule.
type Client struct {
	http           *http.Client
	baseURL        string
	basePathPrefix string
	accessKeyID    string
	privKey        *rsa.PrivateKey
	logger         *zap.Logger

	// sleep is overridable in tests to avoid real waits during retry tests.
	sleep func(time.Duration)
}

// New constructs a Client from a base URL, the access-key identifier, and
// PEM-encoded signing key material.
func New(baseURL, accessKeyID string, privateKeyPEM []byte, logger *zap.Logger) (*Client, error) {
	key, err := LoadPrivateKeyFromBytes(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ConfigError{Msg: "parsing exchange base URL: " + err.Error()}
	}

	return &Client{
		http:           &http.Client{Timeout: 10 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		basePathPrefix: parsed.Path,
		accessKeyID:    accessKeyID,
		privKey:        key,
		logger:         logger,
		sleep:          time.Sleep,
	}, nil
}

// signPath returns the full API path used for signature computation,
// e.g. "/portfolio/balance" -> "/trade-api/v2/portfolio/balance". Query
// strings are never part of the signed payload.
func (c *Client) signPath(path string) string {
	return c.basePathPrefix + path
}

// --- Wire types ---

// Market is the typed decode target for exchange market records. Unknown
// JSON fields are ignored; callers that need a field missing here should
// add it rather than falling back to dynamic map access.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	YesBid      int    `json:"yes_bid"`
	YesAsk      int    `json:"yes_ask"`
	NoBid       int    `json:"no_bid"`
	NoAsk       int    `json:"no_ask"`
	LastPrice   int    `json:"last_price"`
	Volume      int    `json:"volume"`
	Result      string `json:"result"`
	CloseTime   string `json:"close_time"`
}

// Orderbook is the raw [[price, quantity], ...] top-of-book shape.
type Orderbook struct {
	Ticker string  `json:"ticker"`
	Yes    [][]int `json:"yes"`
	No     [][]int `json:"no"`
}

// BestYesBid returns the top resting YES bid in cents, or 0 if empty.
func (ob *Orderbook) BestYesBid() int {
	if len(ob.Yes) > 0 && len(ob.Yes[0]) >= 2 {
		return ob.Yes[0][0]
	}
	return 0
}

// BestNoBid returns the top resting NO bid in cents, or 0 if empty.
func (ob *Orderbook) BestNoBid() int {
	if len(ob.No) > 0 && len(ob.No[0]) >= 2 {
		return ob.No[0][0]
	}
	return 0
}

// Balance is the portfolio balance response, in cents.
type Balance struct {
	Balance int `json:"balance"`
}

// Position is one open portfolio position.
type Position struct {
	Ticker         string `json:"ticker"`
	MarketExposure int    `json:"market_exposure"`
	Position       int    `json:"position"` // positive=YES, negative=NO
}

// OrderRequest is the body of a POST /portfolio/orders call.
type OrderRequest struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"` // "buy"
	Side     string `json:"side"`   // "yes" or "no"
	Type     string `json:"type"`   // "limit"
	Count    int    `json:"count"`
	YesPrice int    `json:"yes_price,omitempty"`
	NoPrice  int    `json:"no_price,omitempty"`
}

// Order is the response to order placement.
type Order struct {
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
}

// Event is a decoded /events or /events/{ticker} record.
type Event struct {
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	SeriesTicker string `json:"series_ticker"`
}

// Fill is one portfolio fill record.
type Fill struct {
	FillID  string `json:"fill_id"`
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	Side    string `json:"side"`
	Action  string `json:"action"`
	Count   int    `json:"count"`
}

// --- Endpoints ---

// MarketFilter narrows GetMarketsPage by status, event, or series ticker.
type MarketFilter struct {
	Status       string
	EventTicker  string
	SeriesTicker string
}

// GetMarketsPage fetches one page of /markets. Callers that want the whole
// set should use ListMarkets, which drives pagination to completion.
func (c *Client) GetMarketsPage(ctx context.Context, filter MarketFilter, cursor string, limit int) ([]Market, string, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.EventTicker != "" {
		params.Set("event_ticker", filter.EventTicker)
	}
	if filter.SeriesTicker != "" {
		params.Set("series_ticker", filter.SeriesTicker)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := c.get(ctx, "/markets", params, &result); err != nil {
		return nil, "", err
	}
	return result.Markets, result.Cursor, nil
}

// ListMarkets drives GetMarketsPage to completion, stopping once an empty
// cursor is returned or cap markets have been collected (cap<=0 means no
// cap). Consecutive pages of the same query never share tickers, by
// construction of the cursor contract.
func (c *Client) ListMarkets(ctx context.Context, filter MarketFilter, cap int) ([]Market, error) {
	var all []Market
	cursor := ""
	for {
		page, next, err := c.GetMarketsPage(ctx, filter, cursor, 0)
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		if cap > 0 && len(all) >= cap {
			return all[:cap], nil
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	var response struct {
		Market Market `json:"market"`
	}
	if err := c.get(ctx, "/markets/"+ticker, nil, &response); err != nil {
		return nil, err
	}
	return &response.Market, nil
}

// GetOrderbook fetches the top depth levels of a market's orderbook.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*Orderbook, error) {
	params := url.Values{}
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}
	var result struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", params, &result); err != nil {
		return nil, err
	}
	return &result.Orderbook, nil
}

// GetEvents fetches the full list of events (single page; the exchange
// does not paginate this endpoint in practice for the event counts this
// system scans).
func (c *Client) GetEvents(ctx context.Context) ([]Event, error) {
	var result struct {
		Events []Event `json:"events"`
	}
	if err := c.get(ctx, "/events", nil, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

// GetBalance fetches the portfolio balance in cents.
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	var result Balance
	if err := c.get(ctx, "/portfolio/balance", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPositions fetches open portfolio positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var result struct {
		Positions []Position `json:"market_positions"`
	}
	if err := c.get(ctx, "/portfolio/positions", nil, &result); err != nil {
		return nil, err
	}
	return result.Positions, nil
}

// GetFills fetches portfolio fills, optionally filtered by query params.
func (c *Client) GetFills(ctx context.Context, params url.Values) ([]Fill, string, error) {
	var result struct {
		Fills  []Fill `json:"fills"`
		Cursor string `json:"cursor"`
	}
	if err := c.get(ctx, "/portfolio/fills", params, &result); err != nil {
		return nil, "", err
	}
	return result.Fills, result.Cursor, nil
}

// GetOrders fetches resting portfolio orders.
func (c *Client) GetOrders(ctx context.Context) ([]Order, error) {
	var result struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, "/portfolio/orders", nil, &result); err != nil {
		return nil, err
	}
	return result.Orders, nil
}

// CreateOrder submits a new order. Only called in live mode.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var result struct {
		Order Order `json:"order"`
	}
	if err := c.post(ctx, "/portfolio/orders", req, &result); err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// CancelOrder cancels one resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.delete(ctx, "/portfolio/orders/"+orderID)
}

// CancelAllOrders cancels every resting order.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	return c.delete(ctx, "/portfolio/orders")
}

// --- HTTP plumbing: signing, retry, error mapping ---

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return c.doSigned(ctx, http.MethodGet, path, reqURL, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.doSigned(ctx, http.MethodPost, path, c.baseURL+path, data, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.doSigned(ctx, http.MethodDelete, path, c.baseURL+path, nil, nil)
}

// doSigned builds, signs, and executes one request, retrying on 429 up to
// MaxRetries times before surfacing RateLimited.
func (c *Client) doSigned(ctx context.Context, method, unsignedPath, fullURL string, body []byte, out interface{}) error {
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return err
		}

		headers, err := AuthHeaders(c.accessKeyID, c.privKey, method, c.signPath(unsignedPath))
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		telemetry.GatewayRequestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			telemetry.GatewayRequestsTotal.WithLabelValues(method, "transport_error").Inc()
			return &TransportError{Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt >= MaxRetries {
				telemetry.GatewayRequestsTotal.WithLabelValues(method, "rate_limited").Inc()
				return &RateLimited{Path: unsignedPath}
			}
			telemetry.GatewayRetriesTotal.Inc()
			c.sleep(retryAfterDelay(resp))
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &TransportError{Err: readErr}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			telemetry.GatewayRequestsTotal.WithLabelValues(method, "auth_error").Inc()
			return &AuthError{Msg: string(respBody)}
		}

		if resp.StatusCode >= 400 {
			telemetry.GatewayRequestsTotal.WithLabelValues(method, "api_error").Inc()
			c.logger.Error("exchange api error",
				zap.Int("status", resp.StatusCode),
				zap.String("path", unsignedPath),
				zap.ByteString("body", respBody),
			)
			return &ApiError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: string(respBody)}
		}

		telemetry.GatewayRequestsTotal.WithLabelValues(method, "ok").Inc()

		if resp.StatusCode == http.StatusNoContent || out == nil || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return &ApiError{Status: resp.StatusCode, Message: fmt.Sprintf("decoding response: %v", err), Body: string(respBody)}
		}
		return nil
	}
}

// retryAfterDelay parses Retry-After (seconds), defaulting when absent or
// malformed.
func retryAfterDelay(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return DefaultRetryAfterSeconds * time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return DefaultRetryAfterSeconds * time.Second
	}
	return time.Duration(secs) * time.Second
}
