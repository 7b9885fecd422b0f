// Package searcher retrieves passages for answer assembly by combining dense
// similarity and BM25 keyword matching.
//
// The searcher provides three search modes:
//   - Hybrid: dense + BM25 fused with Reciprocal Rank Fusion (default)
//   - Dense: nearest neighbours in the dense index only
//   - Lexical: BM25 full-text search only
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, store, denseService, logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:     "how are bank exports reconciled",
//	    Limit:     5,
//	    ProjectID: "ledgermind",
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%s) %.4f\n", r.Rank, r.Title, r.SourcePath, r.RelevanceScore)
//	}
//
// # Reciprocal Rank Fusion (RRF)
//
// Hybrid mode combines the two rankings:
//
//	For each hit h in dense_hits:
//	    rrf_score[h.chunk_id] += 1 / (k + h.rank)
//
//	For each hit h in lexical_hits:
//	    rrf_score[h.chunk_id] += 1 / (k + h.rank)
//
//	Sort by rrf_score descending, lower chunk id first on ties
//
// Where k = 60. Lexical rows backfilled from whole documents carry no chunk
// id and are left out of the ranking.
//
// If either side fails the other is used alone. A disabled or missing dense
// index simply contributes no hits.
//
// # Project filter
//
// Neither index is partitioned by project, so each side is asked for four
// candidates per requested result and chunks of other projects are dropped
// after loading.
//
// # Caching
//
// With UseCache set, responses are kept in an LRU (1000 entries) until
// CacheTTL passes (default one hour). Callers must call InvalidateCache
// after rebuilding either index.
package searcher
