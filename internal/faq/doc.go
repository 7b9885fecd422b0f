// Package faq matches user queries against a small curated set of
// question and answer pairs.
//
// The store is a JSON array of {"q", "a", "project_id"} objects read once
// per process. Matching embeds the query and every question in a single
// batch and compares them by dot product, which equals cosine similarity
// for the unit vectors the embedder returns.
package faq
