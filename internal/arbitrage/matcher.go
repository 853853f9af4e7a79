package arbitrage

import (
	"strings"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
)

// minSharedTokens is the matching threshold: two titles are considered the
// same underlying market when at least this many significant tokens
// overlap. This is a coarse heuristic — it will both miss true matches with
// differently worded titles and occasionally pair unrelated markets that
// happen to share enough words.
const minSharedTokens = 3

// minTokenLen filters out short connective words ("the", "for", "and") —
// any word of minTokenLen characters or fewer — without maintaining a
// stopword list.
const minTokenLen = 3

// MatchExternal finds the first external market whose title shares at
// least minSharedTokens significant tokens with the given exchange market.
// The first match wins; no attempt is made to find the best match.
func MatchExternal(m exchange.Market, externals []ExternalMarket) (ExternalMarket, bool) {
	tokens := tokenize(m.Title)
	for _, ext := range externals {
		if sharedTokenCount(tokens, tokenize(ext.Title)) >= minSharedTokens {
			return ext, true
		}
	}
	return ExternalMarket{}, false
}

func tokenize(title string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(title) {
		word = strings.ToLower(strings.Trim(word, ".,!?:;()\"'"))
		if len(word) <= minTokenLen {
			continue
		}
		set[word] = struct{}{}
	}
	return set
}

func sharedTokenCount(a, b map[string]struct{}) int {
	count := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			count++
		}
	}
	return count
}
