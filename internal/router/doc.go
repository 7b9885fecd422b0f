// Package router decides how a query should be answered.
//
// The decision is a strict cascade, not a blend:
//
//  1. faq: the best FAQ match scores at least FAQMinScore (cosine, 0.72)
//  2. rag: the best of the top five lexical hits scores at least
//     RAGMinScore (negated bm25, 7.0); the project is the one most of
//     those hits belong to
//  3. chitchat otherwise
//
// The FAQ and lexical lookups run concurrently but the tiers are always
// evaluated in order. A failing tier contributes no signal. Dense
// retrieval is not part of the decision.
package router
