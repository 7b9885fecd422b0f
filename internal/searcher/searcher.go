package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/ragroute/internal/storage"
	"github.com/dshills/ragroute/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Dense + BM25 with RRF
	SearchModeDense   SearchMode = "dense"   // Dense similarity only
	SearchModeLexical SearchMode = "lexical" // BM25 text search only
)

// Request limits and defaults
const (
	DefaultLimit       = 10
	MaxLimit           = 100
	DefaultRRFConstant = 60
	DefaultCacheTTL    = time.Hour
	DefaultCacheSize   = 1000

	// candidates fetched per requested result, to survive project filtering
	candidateFactor = 4
)

// ErrInvalidRequest is returned for malformed search requests
var ErrInvalidRequest = errors.New("invalid search request")

// LexicalSearcher returns scored BM25 hits, best first
type LexicalSearcher interface {
	LexicalSearchScored(ctx context.Context, query string, k int) ([]types.LexicalHit, error)
}

// DenseSearcher returns scored nearest neighbours, best first
type DenseSearcher interface {
	SearchScored(ctx context.Context, query string, k int) ([]types.VectorHit, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	ProjectID   string // Only return chunks of this project when set
	UseCache    bool   // Whether to use query cache
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results        []types.SearchResult `json:"results"`
	TotalResults   int                  `json:"total_results"`
	SearchMode     SearchMode           `json:"search_mode"`
	Duration       time.Duration        `json:"duration"`
	CacheHit       bool                 `json:"cache_hit"`
	DenseResults   int                  `json:"dense_results"`
	LexicalResults int                  `json:"lexical_results"`
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates search operations across the dense and lexical indexes
type Searcher struct {
	chunks  storage.ChunkStore
	lexical LexicalSearcher
	dense   DenseSearcher
	logger  *slog.Logger
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher. dense may be nil, in which case hybrid
// search degrades to lexical results and dense search is empty.
func NewSearcher(chunks storage.ChunkStore, lexical LexicalSearcher, dense DenseSearcher, logger *slog.Logger) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Searcher{
		chunks:  chunks,
		lexical: lexical,
		dense:   dense,
		logger:  logger,
		cache:   cache,
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeDense:
		response, err = s.denseSearch(ctx, req)
	case SearchModeLexical:
		response, err = s.lexicalSearch(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unsupported search mode %q", ErrInvalidRequest, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	s.logger.Debug("search complete",
		"mode", req.Mode,
		"results", response.TotalResults,
		"dense", response.DenseResults,
		"lexical", response.LexicalResults,
		"elapsed", response.Duration)
	return response, nil
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	denseHits   []types.VectorHit
	lexicalHits []types.LexicalHit
	err         error
}

func (s *Searcher) runDenseSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	res.denseHits, res.err = s.searchDense(ctx, req.Query, req.Limit*candidateFactor)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) runLexicalSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	res.lexicalHits, res.err = s.lexical.LexicalSearchScored(ctx, req.Query, req.Limit*candidateFactor)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) searchDense(ctx context.Context, query string, k int) ([]types.VectorHit, error) {
	if s.dense == nil {
		return []types.VectorHit{}, nil
	}
	return s.dense.SearchScored(ctx, query, k)
}

// hybridSearch combines dense and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	denseChan := make(chan searchResult, 1)
	lexicalChan := make(chan searchResult, 1)

	go s.runDenseSearch(ctx, req, denseChan)
	go s.runLexicalSearch(ctx, req, lexicalChan)

	var denseRes, lexicalRes searchResult
	var denseDone, lexicalDone bool
	for !denseDone || !lexicalDone {
		select {
		case denseRes = <-denseChan:
			denseDone = true
		case lexicalRes = <-lexicalChan:
			lexicalDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// One side may fail
	if denseRes.err != nil && lexicalRes.err != nil {
		return nil, fmt.Errorf("both searches failed: dense=%w, lexical=%v", denseRes.err, lexicalRes.err)
	}
	if denseRes.err != nil {
		s.logger.Warn("dense search failed, using lexical only", "error", denseRes.err)
	}
	if lexicalRes.err != nil {
		s.logger.Warn("lexical search failed, using dense only", "error", lexicalRes.err)
	}

	fused := applyRRF(denseRes.denseHits, lexicalRes.lexicalHits, req.RRFConstant)
	results, err := s.fetchResults(ctx, fused, req)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:        results,
		TotalResults:   len(results),
		DenseResults:   len(denseRes.denseHits),
		LexicalResults: len(lexicalRes.lexicalHits),
	}, nil
}

// denseSearch performs only dense similarity search
func (s *Searcher) denseSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.searchDense(ctx, req.Query, req.Limit*candidateFactor)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(hits))
	for i, h := range hits {
		ranked[i] = rankedResult{chunkID: h.ChunkID, score: h.Similarity}
	}

	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		DenseResults: len(hits),
	}, nil
}

// lexicalSearch performs only BM25 text search
func (s *Searcher) lexicalSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.lexical.LexicalSearchScored(ctx, req.Query, req.Limit*candidateFactor)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, 0, len(hits))
	for _, h := range hits {
		if h.ChunkID == 0 {
			continue
		}
		ranked = append(ranked, rankedResult{chunkID: h.ChunkID, score: h.Score})
	}

	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:        results,
		TotalResults:   len(results),
		LexicalResults: len(hits),
	}, nil
}

// rankedResult represents a chunk with its relevance score
type rankedResult struct {
	chunkID int64
	score   float64
}

// applyRRF applies Reciprocal Rank Fusion to combine dense and lexical results
// RRF formula: RRF(d) = Σ 1/(k + rank(d))
func applyRRF(denseHits []types.VectorHit, lexicalHits []types.LexicalHit, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[int64]float64)
	for rank, h := range denseHits {
		scores[h.ChunkID] += 1.0 / (k + float64(rank+1))
	}
	rank := 0
	for _, h := range lexicalHits {
		// Rows backfilled from whole documents have no chunk
		if h.ChunkID == 0 {
			continue
		}
		rank++
		scores[h.ChunkID] += 1.0 / (k + float64(rank))
	}

	results := make([]rankedResult, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, rankedResult{chunkID: chunkID, score: score})
	}
	sortRankedResults(results)
	return results
}

// fetchResults loads chunk rows for ranked results, applies the project
// filter and assigns final ranks
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, req SearchRequest) ([]types.SearchResult, error) {
	if len(ranked) == 0 {
		return []types.SearchResult{}, nil
	}

	ids := make([]int64, len(ranked))
	for i, rr := range ranked {
		ids[i] = rr.chunkID
	}
	chunks, err := s.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	byID := make(map[int64]types.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]types.SearchResult, 0, req.Limit)
	for _, rr := range ranked {
		if len(results) == req.Limit {
			break
		}
		chunk, ok := byID[rr.chunkID]
		if !ok {
			continue // Deleted since the index was built
		}
		if req.ProjectID != "" && chunk.ProjectID != req.ProjectID {
			continue
		}
		results = append(results, types.SearchResult{
			ChunkID:        chunk.ID,
			Rank:           len(results) + 1,
			RelevanceScore: rr.score,
			Title:          chunk.Title,
			SourcePath:     chunk.SourcePath,
			ProjectID:      chunk.ProjectID,
			Content:        chunk.Content,
		})
	}

	return results, nil
}

// validateRequest ensures search request is valid and fills defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, types.ErrEmptyQuery)
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(req.ProjectID)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d|%.2f", req.Limit, req.RRFConstant))

	return sha256.Sum256([]byte(data.String()))
}

// sortRankedResults sorts by score descending, lower chunk id first on ties
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
}

// InvalidateCache drops every cached response. Call it after an index rebuild.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
