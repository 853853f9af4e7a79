// Package news implements the NLP signal producer: fetch a feed, ask a
// language model to classify headline sentiment, resolve the classification
// to an open market ticker, and emit a signal.
package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// perFeedChars truncates each feed's fetched body before it is prefixed and
// handed to the classifier prompt — one truncate-and-classify call per
// feed, not one call over every feed concatenated together.
const perFeedChars = 500

// FetchFeeds retrieves every feed URL and returns one prompt-ready string
// per non-empty feed: the first perFeedChars characters of its body,
// prefixed with the feed's source name. A feed that fails to fetch is
// logged and omitted, and a feed whose body is empty is omitted silently —
// neither aborts the batch.
func FetchFeeds(ctx context.Context, client *http.Client, urls []string, logger *zap.Logger) []string {
	var items []string
	for _, u := range urls {
		text, err := fetchOne(ctx, client, u)
		if err != nil {
			logger.Warn("news: feed fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		if len(text) > perFeedChars {
			text = text[:perFeedChars]
		}
		items = append(items, "["+feedName(u)+"] "+text)
	}
	return items
}

// feedName derives a short source label from a feed URL for the prompt
// prefix, falling back to the raw URL when it can't be parsed.
func feedName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func fetchOne(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("feed returned status %s", resp.Status)
	}

	limited := io.LimitReader(resp.Body, perFeedChars)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// NewFeedClient constructs the shared HTTP client used for feed fetches.
func NewFeedClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
