package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Classification is one LLM-produced opinion about a news item's effect on
// a market, keyed loosely by a ticker keyword the resolver must still
// match against the open-markets set.
type Classification struct {
	TickerKeyword string  `json:"ticker_keyword"`
	Side          string  `json:"side"` // "yes" or "no"
	ProbShift     float64 `json:"prob_shift"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
}

// Analyzer classifies feed text into zero or more Classifications.
type Analyzer interface {
	Analyze(ctx context.Context, feedText string) ([]Classification, error)
}

// httpAnalyzer calls an OpenAI-compatible chat completions endpoint over
// plain net/http — the corpus carries no first-party LLM SDK, so every
// provider in it is driven this way.
type httpAnalyzer struct {
	client *http.Client
	url    string
	apiKey string
	model  string
}

// NewHTTPAnalyzer constructs an Analyzer backed by a chat-completions HTTP
// endpoint.
func NewHTTPAnalyzer(client *http.Client, url, apiKey, model string) Analyzer {
	return &httpAnalyzer{client: client, url: url, apiKey: apiKey, model: model}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You classify news headlines for their effect on binary prediction markets.
Respond with a JSON array only, no prose. Each element: {"ticker_keyword": string, "side": "yes"|"no", "prob_shift": number between -1 and 1, "confidence": number between 0 and 1, "rationale": string}.
If nothing in the text is market-relevant, respond with an empty array: []`

// Analyze sends feedText to the model at temperature<=0.1 for
// near-deterministic classification and parses the JSON array response.
// Any response that is not a JSON array is discarded as an LLMError.
func (a *httpAnalyzer) Analyze(ctx context.Context, feedText string) ([]Classification, error) {
	if feedText == "" {
		return nil, nil
	}

	reqBody := chatRequest{
		Model:       a.model,
		Temperature: 0.1,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: feedText},
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &LLMError{Msg: "marshaling request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(data))
	if err != nil {
		return nil, &LLMError{Msg: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &LLMError{Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LLMError{Msg: "reading response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &LLMError{Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, &LLMError{Msg: "decoding chat envelope", Err: err}
	}
	if len(chat.Choices) == 0 {
		return nil, &LLMError{Msg: "no choices in response"}
	}

	content := chat.Choices[0].Message.Content
	var classifications []Classification
	if err := json.Unmarshal([]byte(content), &classifications); err != nil {
		return nil, &LLMError{Msg: "model response was not a JSON array", Err: err}
	}

	return classifications, nil
}
