// Package types provides shared type definitions for the ragroute engine.
//
// This package defines the plain data exchanged between the chunker, the
// chunk store, the lexical and dense indices, the FAQ matcher and the router.
// Nothing in here performs I/O.
//
// # Core Types
//
// Chunk is the unit of retrievable text, as persisted in the chunk store:
//
//	chunk := types.Chunk{
//	    ID:         42,
//	    Content:    "LedgerMind reconciles bank exports...",
//	    Title:      "Overview",
//	    SourcePath: "projects/ledgermind/README.md",
//	    ProjectID:  "ledgermind",
//	}
//
// Section is what the chunker emits before a chunk is assigned an ID.
//
// # Routing
//
// RouteDecision is the router's output for one query:
//
//	decision := types.RouteDecision{
//	    Route:     types.RouteRAG,
//	    Reason:    "bm25 score=9.412",
//	    ProjectID: "ledgermind",
//	    Score:     9.412,
//	}
//
// Scores are tier specific. FAQ scores are cosine similarities in [0, 1];
// RAG scores are BM25 relevance values from the lexical engine and are
// unbounded. The two are never compared with each other.
//
// # Build Results
//
// Index builds report a BuildResult rather than failing with an error, so
// orchestration code decides whether a failed build is fatal:
//
//	res := dense.Build(ctx, "")
//	if !res.OK {
//	    log.Printf("dense index not built: %s", res.Reason)
//	}
package types
