package exchange

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// LiveBook is an optional real-time orderbook cache fed by the exchange's
// orderbook_delta websocket channel. The Orderbook Scanner may consult it
// before falling back to a REST snapshot fetch; it is a latency
// optimization layered on top of the REST contract, never a replacement
// for it — disabled by default (LIVE_BOOK_ENABLED=false).
type LiveBook struct {
	wsURL       string
	accessKeyID string
	privKey     *rsa.PrivateKey
	logger      *zap.Logger

	mu   sync.RWMutex
	conn *websocket.Conn

	obMu       sync.RWMutex
	orderbooks map[string]*bookState

	subMu      sync.RWMutex
	subscribed map[string]bool
}

type bookState struct {
	Yes        []priceLevel
	No         []priceLevel
	LastUpdate time.Time
}

type priceLevel struct {
	Price    int
	Quantity int
}

// NewLiveBook constructs a disconnected LiveBook; call Run to connect.
func NewLiveBook(wsURL, accessKeyID string, privKey *rsa.PrivateKey, logger *zap.Logger) *LiveBook {
	return &LiveBook{
		wsURL:       wsURL,
		accessKeyID: accessKeyID,
		privKey:     privKey,
		logger:      logger,
		orderbooks:  make(map[string]*bookState),
		subscribed:  make(map[string]bool),
	}
}

// Run connects and reconnects until ctx is cancelled.
func (lb *LiveBook) Run(ctx context.Context) error {
	for {
		if err := lb.connect(ctx); err != nil {
			lb.logger.Warn("live book disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			lb.logger.Info("live book reconnecting")
		}
	}
}

func (lb *LiveBook) connect(ctx context.Context) error {
	headers, err := AuthHeaders(lb.accessKeyID, lb.privKey, "GET", "/trade-api/ws/v2")
	if err != nil {
		return fmt.Errorf("generating ws auth: %w", err)
	}
	httpHeaders := make(map[string][]string, len(headers))
	for k, v := range headers {
		httpHeaders[k] = []string{v}
	}

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, lb.wsURL, httpHeaders)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}

	lb.mu.Lock()
	lb.conn = conn
	lb.mu.Unlock()
	defer func() {
		conn.Close()
		lb.mu.Lock()
		lb.conn = nil
		lb.mu.Unlock()
	}()

	if tickers := lb.subscribedList(); len(tickers) > 0 {
		if err := lb.sendSubscribe(conn, tickers); err != nil {
			lb.logger.Warn("live book resubscribe failed", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		lb.handleMessage(msg)
	}
}

// Subscribe tracks tickers for orderbook_delta streaming, subscribing
// immediately if connected and re-subscribing automatically on reconnect.
func (lb *LiveBook) Subscribe(tickers []string) error {
	lb.subMu.Lock()
	for _, t := range tickers {
		lb.subscribed[t] = true
	}
	lb.subMu.Unlock()

	lb.mu.RLock()
	conn := lb.conn
	lb.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return lb.sendSubscribe(conn, tickers)
}

func (lb *LiveBook) sendSubscribe(conn *websocket.Conn, tickers []string) error {
	cmd := struct {
		ID     int `json:"id"`
		Cmd    string `json:"cmd"`
		Params struct {
			Channels      []string `json:"channels"`
			MarketTickers []string `json:"market_tickers"`
		} `json:"params"`
	}{ID: 1, Cmd: "subscribe"}
	cmd.Params.Channels = []string{"orderbook_delta"}
	cmd.Params.MarketTickers = tickers
	return conn.WriteJSON(cmd)
}

func (lb *LiveBook) subscribedList() []string {
	lb.subMu.RLock()
	defer lb.subMu.RUnlock()
	out := make([]string, 0, len(lb.subscribed))
	for t := range lb.subscribed {
		out = append(out, t)
	}
	return out
}

// BestPrices returns the best YES bid and synthetic YES ask cached for a
// ticker, and whether a book is cached at all.
func (lb *LiveBook) BestPrices(ticker string) (yesBid, synthAsk int, ok bool) {
	lb.obMu.RLock()
	defer lb.obMu.RUnlock()
	b, found := lb.orderbooks[ticker]
	if !found {
		return 0, 100, false
	}
	if len(b.Yes) > 0 {
		yesBid = b.Yes[0].Price
	}
	synthAsk = 100
	if len(b.No) > 0 {
		synthAsk = 100 - b.No[0].Price
	}
	return yesBid, synthAsk, true
}

type wsMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type wsOrderbookSnapshot struct {
	Ticker string  `json:"market_ticker"`
	Yes    [][]int `json:"yes"`
	No     [][]int `json:"no"`
}

type wsOrderbookDelta struct {
	Ticker string `json:"market_ticker"`
	Price  int    `json:"price"`
	Delta  int    `json:"delta"`
	Side   string `json:"side"`
}

func (lb *LiveBook) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "orderbook_snapshot":
		var snap wsOrderbookSnapshot
		if err := json.Unmarshal(msg.Msg, &snap); err != nil {
			return
		}
		lb.applySnapshot(snap)
	case "orderbook_delta":
		var delta wsOrderbookDelta
		if err := json.Unmarshal(msg.Msg, &delta); err != nil {
			return
		}
		lb.applyDelta(delta)
	}
}

func (lb *LiveBook) applySnapshot(snap wsOrderbookSnapshot) {
	b := &bookState{LastUpdate: time.Now()}
	for _, l := range snap.Yes {
		if len(l) >= 2 {
			b.Yes = append(b.Yes, priceLevel{Price: l[0], Quantity: l[1]})
		}
	}
	for _, l := range snap.No {
		if len(l) >= 2 {
			b.No = append(b.No, priceLevel{Price: l[0], Quantity: l[1]})
		}
	}
	lb.obMu.Lock()
	lb.orderbooks[snap.Ticker] = b
	lb.obMu.Unlock()
}

func (lb *LiveBook) applyDelta(delta wsOrderbookDelta) {
	lb.obMu.Lock()
	defer lb.obMu.Unlock()

	b := lb.orderbooks[delta.Ticker]
	if b == nil {
		return
	}
	b.LastUpdate = time.Now()

	levels := &b.Yes
	if delta.Side == "no" {
		levels = &b.No
	}

	for i, l := range *levels {
		if l.Price == delta.Price {
			newQty := l.Quantity + delta.Delta
			if newQty <= 0 {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			} else {
				(*levels)[i].Quantity = newQty
			}
			return
		}
	}

	if delta.Delta > 0 {
		*levels = append(*levels, priceLevel{Price: delta.Price, Quantity: delta.Delta})
		for i := len(*levels) - 1; i > 0; i-- {
			if (*levels)[i].Price > (*levels)[i-1].Price {
				(*levels)[i], (*levels)[i-1] = (*levels)[i-1], (*levels)[i]
			}
		}
	}
}
