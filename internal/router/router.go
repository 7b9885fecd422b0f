package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/dshills/ragroute/internal/telemetry"
	"github.com/dshills/ragroute/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Threshold defaults. FAQ scores are cosine similarities in [0,1]; lexical
// scores are negated FTS5 bm25 values and unbounded.
const (
	DefaultFAQMinScore = 0.72
	DefaultRAGMinScore = 7.0
	LexicalTopK        = 5
)

// Fixed reasons
const (
	ReasonMissingQuery = "missing query"
	ReasonNoSignal     = "no strong faq/rag signal"
)

// FAQMatcher finds the best curated answer for a query
type FAQMatcher interface {
	Match(ctx context.Context, query string) (types.FAQMatch, bool, error)
}

// LexicalSearcher returns scored lexical hits, best first
type LexicalSearcher interface {
	LexicalSearchScored(ctx context.Context, query string, k int) ([]types.LexicalHit, error)
}

// Thresholds gate the FAQ and lexical tiers. The two are in different units
// and are never compared with each other.
type Thresholds struct {
	FAQMinScore float64 `json:"faq_min_score"`
	RAGMinScore float64 `json:"rag_min_score"`
}

// DefaultThresholds returns the stock thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{FAQMinScore: DefaultFAQMinScore, RAGMinScore: DefaultRAGMinScore}
}

// Router picks an answer strategy for a query
type Router struct {
	faq        FAQMatcher
	lexical    LexicalSearcher
	thresholds atomic.Pointer[Thresholds]
	recorder   *telemetry.Recorder
	logger     *slog.Logger
}

// Option configures a Router
type Option func(*Router)

// WithThresholds sets the initial thresholds
func WithThresholds(t Thresholds) Option {
	return func(r *Router) { r.thresholds.Store(&t) }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithRecorder sets where decisions are counted
func WithRecorder(rec *telemetry.Recorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// New creates a router. Either tier may be nil, in which case it never fires.
func New(faq FAQMatcher, lexical LexicalSearcher, opts ...Option) *Router {
	r := &Router{
		faq:      faq,
		lexical:  lexical,
		recorder: telemetry.Default(),
		logger:   slog.Default(),
	}
	defaults := DefaultThresholds()
	r.thresholds.Store(&defaults)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Thresholds returns the thresholds currently in effect
func (r *Router) Thresholds() Thresholds {
	return *r.thresholds.Load()
}

// SetThresholds swaps the thresholds used by subsequent Route calls
func (r *Router) SetThresholds(t Thresholds) {
	r.thresholds.Store(&t)
}

// Route queries the FAQ and lexical tiers concurrently and decides.
// It always returns a valid decision; tier failures count as no signal.
func (r *Router) Route(ctx context.Context, query string) types.RouteDecision {
	if strings.TrimSpace(query) == "" {
		return r.observe(types.RouteDecision{Route: types.RouteChitchat, Reason: ReasonMissingQuery})
	}

	var (
		match   types.FAQMatch
		matched bool
		hits    []types.LexicalHit
		g       errgroup.Group
	)

	if r.faq != nil {
		g.Go(func() error {
			m, ok, err := r.faq.Match(ctx, query)
			if err != nil {
				r.logger.Warn("faq tier failed", "error", err)
				return nil
			}
			match, matched = m, ok
			return nil
		})
	}
	if r.lexical != nil {
		g.Go(func() error {
			h, err := r.lexical.LexicalSearchScored(ctx, query, LexicalTopK)
			if err != nil {
				r.logger.Warn("lexical tier failed", "error", err)
				return nil
			}
			hits = h
			return nil
		})
	}
	_ = g.Wait()

	d := Decide(r.Thresholds(), match, matched, hits)
	r.logger.Debug("route decided",
		"route", d.Route,
		"project_id", d.ProjectID,
		"score", d.Score,
		"faq_matched", matched,
		"lexical_hits", len(hits))
	return r.observe(d)
}

func (r *Router) observe(d types.RouteDecision) types.RouteDecision {
	if r.recorder != nil {
		r.recorder.ObserveRoute(string(d.Route))
	}
	return d
}

// Decide applies the cascade: FAQ, then lexical, then chitchat.
// The first tier that clears its threshold wins.
func Decide(t Thresholds, match types.FAQMatch, matched bool, hits []types.LexicalHit) types.RouteDecision {
	if matched && match.Score >= t.FAQMinScore {
		return types.RouteDecision{
			Route:     types.RouteFAQ,
			Reason:    fmt.Sprintf("faq match score=%.3f", match.Score),
			ProjectID: match.Entry.ProjectID,
			Score:     match.Score,
		}
	}

	if len(hits) > 0 {
		best := hits[0].Score
		for _, h := range hits[1:] {
			best = max(best, h.Score)
		}
		if best >= t.RAGMinScore {
			return types.RouteDecision{
				Route:     types.RouteRAG,
				Reason:    fmt.Sprintf("bm25 score=%.3f", best),
				ProjectID: DominantProject(hits),
				Score:     best,
			}
		}
	}

	return types.RouteDecision{Route: types.RouteChitchat, Reason: ReasonNoSignal}
}

// DominantProject returns the most frequent non-empty project among hits.
// Ties go to the project seen first. Hits without a project do not vote.
func DominantProject(hits []types.LexicalHit) string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, h := range hits {
		if h.ProjectID == "" {
			continue
		}
		if counts[h.ProjectID] == 0 {
			order = append(order, h.ProjectID)
		}
		counts[h.ProjectID]++
	}

	winner := ""
	for _, p := range order {
		if counts[p] > counts[winner] {
			winner = p
		}
	}
	return winner
}
