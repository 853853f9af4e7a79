// Package arbitrage implements the cross-venue signal producer: fetch
// prices from an external reference venue, match its markets against the
// exchange's open markets by title overlap, and emit a signal when the two
// venues disagree enough to clear the Kelly edge threshold.
package arbitrage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// ExternalMarket is one priced market from the reference venue. The wire
// shape varies by venue, so price decoding tries several known field names
// in order before giving up.
type ExternalMarket struct {
	Title string
	Price float64 // YES probability, 0..1
}

type rawExternalMarket struct {
	Title           string    `json:"title"`
	Question        string    `json:"question"`
	OutcomePrices   []float64 `json:"outcomePrices"`
	YesPrice        *float64  `json:"yes_price"`
	LastTradePrice  *float64  `json:"lastTradePrice"`
}

// VenueClient fetches currently priced markets from the external reference
// venue over plain REST.
type VenueClient struct {
	http    *http.Client
	baseURL string
}

// NewVenueClient constructs a VenueClient.
func NewVenueClient(baseURL string) *VenueClient {
	return &VenueClient{http: &http.Client{Timeout: 10 * time.Second}, baseURL: baseURL}
}

// ListMarkets fetches the reference venue's priced markets.
func (v *VenueClient) ListMarkets(ctx context.Context) ([]ExternalMarket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/markets", nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw []rawExternalMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	out := make([]ExternalMarket, 0, len(raw))
	for _, m := range raw {
		price, ok := resolvePrice(m)
		if !ok {
			continue
		}
		title := m.Title
		if title == "" {
			title = m.Question
		}
		out = append(out, ExternalMarket{Title: title, Price: price})
	}
	return out, nil
}

// resolvePrice tries outcomePrices[0], then yes_price, then
// lastTradePrice, in that order — the field names vary across reference
// venues the scanner has been pointed at.
func resolvePrice(m rawExternalMarket) (float64, bool) {
	if len(m.OutcomePrices) > 0 {
		return m.OutcomePrices[0], true
	}
	if m.YesPrice != nil {
		return *m.YesPrice, true
	}
	if m.LastTradePrice != nil {
		return *m.LastTradePrice, true
	}
	return 0, false
}
