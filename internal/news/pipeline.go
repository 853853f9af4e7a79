package news

import (
	"context"

	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/model"
)

// FeedFetcher fetches the configured feed URLs and returns one
// prefixed, truncated prompt string per non-empty feed.
type FeedFetcher func(ctx context.Context, urls []string) []string

// Run fetches configured feeds and classifies each one independently —
// one Analyze call per feed, not one call over every feed concatenated
// together — aggregating the resulting classifications before resolving
// them to signals. A feed whose classification fails is logged and
// skipped; it never aborts the others.
func Run(ctx context.Context, fetch FeedFetcher, urls []string, analyzer Analyzer, resolver *Resolver, logger *zap.Logger) []model.Signal {
	items := fetch(ctx, urls)
	if len(items) == 0 {
		return nil
	}

	var classifications []Classification
	for _, text := range items {
		c, err := analyzer.Analyze(ctx, text)
		if err != nil {
			logger.Warn("news: classification failed", zap.Error(err))
			continue
		}
		classifications = append(classifications, c...)
	}
	if len(classifications) == 0 {
		return nil
	}

	return resolver.Resolve(ctx, classifications)
}
