package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeParsesClassificationArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[{\"ticker_keyword\":\"fed\",\"side\":\"yes\",\"prob_shift\":0.2,\"confidence\":0.8,\"rationale\":\"hawkish\"}]"}}]}`))
	}))
	defer srv.Close()

	analyzer := NewHTTPAnalyzer(srv.Client(), srv.URL, "test-key", "test-model")
	classifications, err := analyzer.Analyze(context.Background(), "Fed signals hawkish stance")
	require.NoError(t, err)
	require.Len(t, classifications, 1)
	assert.Equal(t, "fed", classifications[0].TickerKeyword)
	assert.InDelta(t, 0.2, classifications[0].ProbShift, 1e-9)
}

func TestAnalyzeDiscardsNonArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"not valid json"}}]}`))
	}))
	defer srv.Close()

	analyzer := NewHTTPAnalyzer(srv.Client(), srv.URL, "test-key", "test-model")
	_, err := analyzer.Analyze(context.Background(), "irrelevant text")
	require.Error(t, err)
	var llmErr *LLMError
	assert.ErrorAs(t, err, &llmErr)
}

func TestAnalyzeEmptyTextSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	analyzer := NewHTTPAnalyzer(srv.Client(), srv.URL, "test-key", "test-model")
	classifications, err := analyzer.Analyze(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, classifications)
	assert.False(t, called)
}
