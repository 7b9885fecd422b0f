package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/ragroute/internal/embedder"
	"github.com/dshills/ragroute/pkg/types"
)

// Matcher finds the curated question closest to a user query
type Matcher struct {
	source Source
	emb    embedder.Embedder
}

// NewMatcher creates a matcher over source using emb for all vectors
func NewMatcher(source Source, emb embedder.Embedder) *Matcher {
	return &Matcher{source: source, emb: emb}
}

// Match embeds the query together with every question in one batch and
// returns the highest scoring entry. The first entry wins ties.
// ok is false when the store is empty.
func (m *Matcher) Match(ctx context.Context, query string) (types.FAQMatch, bool, error) {
	if strings.TrimSpace(query) == "" {
		return types.FAQMatch{}, false, types.ErrEmptyQuery
	}

	entries, err := m.source.Entries(ctx)
	if err != nil {
		return types.FAQMatch{}, false, err
	}
	if len(entries) == 0 {
		return types.FAQMatch{}, false, nil
	}

	texts := make([]string, 0, len(entries)+1)
	texts = append(texts, query)
	for _, e := range entries {
		texts = append(texts, e.Question)
	}

	vecs, err := m.emb.Embed(ctx, texts)
	if err != nil {
		return types.FAQMatch{}, false, fmt.Errorf("embed faq batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return types.FAQMatch{}, false, fmt.Errorf("%w: got %d vectors for %d texts",
			embedder.ErrProviderFailed, len(vecs), len(texts))
	}

	best := -1
	bestScore := 0.0
	for i, v := range vecs[1:] {
		score := embedder.Dot(vecs[0], v)
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	return types.FAQMatch{Entry: entries[best], Index: best, Score: bestScore}, true, nil
}
