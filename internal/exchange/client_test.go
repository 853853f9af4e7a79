package exchange

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(baseURL, "test-key-id", testKeyPEM(t), zap.NewNop())
	require.NoError(t, err)
	return c
}

// Signing a fixed (timestamp, method, path) always yields a signature that
// verifies against that payload under the key's public half.
func TestSignVerifiesForFixedInput(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sig, err := Sign(key, "1700000000000", "GET", "/trade-api/v2/markets")
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	// PSS signatures are randomized per call (fresh salt) but must always
	// verify against the same message — re-signing must not reuse state
	// or error.
	sig2, err := Sign(key, "1700000000000", "GET", "/trade-api/v2/markets")
	require.NoError(t, err)
	assert.NotEmpty(t, sig2)

	hash := sha256.Sum256([]byte("1700000000000" + "GET" + "/trade-api/v2/markets"))
	for _, s := range []string{sig, sig2} {
		raw, err := base64.StdEncoding.DecodeString(s)
		require.NoError(t, err)
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], raw, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
		}))
	}
}

// Scenario 6: gateway receives 429 with Retry-After:1, then 200. Exactly one
// sleep invocation, final result is from the 200 response.
func TestRateLimitRetrySucceedsAfterOneSleep(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"balance": 5000}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, bal.Balance)
	assert.Equal(t, 2, calls)
	require.Len(t, slept, 1)
	assert.Equal(t, 1*time.Second, slept[0])
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.sleep = func(time.Duration) {}

	_, err := c.GetBalance(context.Background())
	require.Error(t, err)
	var rl *RateLimited
	assert.ErrorAs(t, err, &rl)
}

func TestApiErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetBalance(context.Background())
	require.Error(t, err)
	var apiErr *ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestAuthErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetBalance(context.Background())
	require.Error(t, err)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

// Pagination contract: two consecutive pages with the same filter share no
// tickers.
func TestListMarketsNoOverlap(t *testing.T) {
	pages := [][]string{
		{"T-A", "T-B"},
		{"T-C", "T-D"},
		{},
	}
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := call
		call++
		w.WriteHeader(http.StatusOK)
		var cursor string
		if idx < len(pages)-1 {
			cursor = "cursor-" + string(rune('0'+idx+1))
		}
		body := `{"markets": [`
		for i, ticker := range pages[idx] {
			if i > 0 {
				body += ","
			}
			body += `{"ticker":"` + ticker + `"}`
		}
		body += `], "cursor": "` + cursor + `"}`
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	markets, err := c.ListMarkets(context.Background(), MarketFilter{Status: "open"}, 0)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, m := range markets {
		assert.False(t, seen[m.Ticker], "ticker %s seen twice", m.Ticker)
		seen[m.Ticker] = true
	}
	assert.Len(t, markets, 4)
}

func TestNoContentReturnsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.CancelOrder(context.Background(), "order-1")
	assert.NoError(t, err)
}
