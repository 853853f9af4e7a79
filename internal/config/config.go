// Package config loads all runtime configuration once at startup into an
// immutable record passed by reference to every component. No component may
// read os.Getenv after Load returns.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
)

// Config is the process-wide, immutable configuration snapshot.
type Config struct {
	// Exchange Gateway
	ExchangeBaseURL   string
	ExchangeWSBaseURL string
	AccessKeyID       string
	PrivateKeyPEM     []byte

	// External reference venue (arbitrage scanner)
	ExternalVenueBaseURL string

	// LLM (news analyzer)
	LLMAPIKey string
	LLMModel  string
	LLMURL    string

	// News feeds
	NewsFeedURLs []string

	// Trading mode & risk
	PaperTrading   bool
	FeeRate        float64
	KellyEdgeMin   float64
	KellyFraction  float64
	MaxPositionUSD float64

	// Orderbook scanner
	SpreadThresholdCents int
	OrderbookConcurrency int
	LiveBookEnabled      bool
	MarketScanCap        int

	// News analyzer
	NLPProbShiftMin float64

	// Cache
	MarketCacheTTLSeconds int

	// Cycle
	CycleIntervalSeconds int

	// Logging / observability
	LogLevel    string
	LogDir      string
	MetricsAddr string
}

// Load reads configuration from the environment (optionally seeded by a
// .env file) and validates required credentials. Any error returned from
// Load is a fatal ConfigError — it terminates the process before any
// component starts.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ExchangeBaseURL:       getEnvDefault("EXCHANGE_BASE_URL", "https://api.exchange.example.com/trade-api/v2"),
		ExchangeWSBaseURL:     getEnvDefault("EXCHANGE_WS_BASE_URL", "wss://api.exchange.example.com/trade-api/ws/v2"),
		AccessKeyID:           os.Getenv("EXCHANGE_ACCESS_KEY_ID"),
		ExternalVenueBaseURL:  getEnvDefault("EXTERNAL_VENUE_BASE_URL", "https://reference-venue.example.com/api"),
		LLMAPIKey:             os.Getenv("LLM_API_KEY"),
		LLMModel:              getEnvDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMURL:                getEnvDefault("LLM_URL", "https://api.openai.com/v1/chat/completions"),
		NewsFeedURLs:          splitNonEmpty(os.Getenv("NEWS_FEED_URLS"), ","),
		PaperTrading:          getEnvBool("PAPER_TRADING", true),
		FeeRate:               getEnvFloat("FEE_RATE", 0.07),
		KellyEdgeMin:          getEnvFloat("KELLY_EDGE_MIN", 0.05),
		KellyFraction:         getEnvFloat("KELLY_FRACTION", 0.25),
		MaxPositionUSD:        getEnvFloat("MAX_POSITION_USD", 500),
		SpreadThresholdCents:  getEnvInt("SPREAD_THRESHOLD_CENTS", 3),
		OrderbookConcurrency:  getEnvInt("ORDERBOOK_CONCURRENCY", 32),
		LiveBookEnabled:       getEnvBool("LIVE_BOOK_ENABLED", false),
		MarketScanCap:         getEnvInt("MARKET_SCAN_CAP", 200),
		NLPProbShiftMin:       getEnvFloat("NLP_PROB_SHIFT_MIN", 0.10),
		MarketCacheTTLSeconds: getEnvInt("MARKET_CACHE_TTL_SECONDS", 30),
		CycleIntervalSeconds:  getEnvInt("CYCLE_INTERVAL_SECONDS", 60),
		LogLevel:              getEnvDefault("LOG_LEVEL", "info"),
		LogDir:                getEnvDefault("LOG_DIR", "./logs"),
		MetricsAddr:           getEnvDefault("METRICS_ADDR", ":9090"),
	}

	if cfg.AccessKeyID == "" {
		return nil, &exchange.ConfigError{Msg: "EXCHANGE_ACCESS_KEY_ID is required"}
	}

	key, err := loadPrivateKeyMaterial()
	if err != nil {
		return nil, err
	}
	cfg.PrivateKeyPEM = key

	return cfg, nil
}

// loadPrivateKeyMaterial resolves EXCHANGE_PRIVATE_KEY_PATH (checked first)
// or EXCHANGE_PRIVATE_KEY, which may hold a PEM blob directly or
// base64-encoded.
func loadPrivateKeyMaterial() ([]byte, error) {
	if path := os.Getenv("EXCHANGE_PRIVATE_KEY_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &exchange.ConfigError{Msg: fmt.Sprintf("reading signing key at %s: %s", path, err)}
		}
		return data, nil
	}

	raw := os.Getenv("EXCHANGE_PRIVATE_KEY")
	if raw == "" {
		return nil, &exchange.ConfigError{Msg: "EXCHANGE_PRIVATE_KEY or EXCHANGE_PRIVATE_KEY_PATH is required"}
	}

	if strings.HasPrefix(strings.TrimSpace(raw), "-----BEGIN") {
		return []byte(raw), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &exchange.ConfigError{Msg: fmt.Sprintf("decoding EXCHANGE_PRIVATE_KEY as base64: %s", err)}
	}
	return decoded, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
