package types

import (
	"crypto/sha256"
	"errors"
)

// Chunk is a bounded slice of a source document stored in the chunk store
type Chunk struct {
	ID         int64
	Content    string
	Title      string
	SourcePath string
	ProjectID  string // Empty when the chunk belongs to no project
}

// ChunkText is the id/content projection of a chunk used for embedding
type ChunkText struct {
	ID      int64
	Content string
}

// Section is a titled piece of text produced by the chunker
type Section struct {
	Title   string
	Content string
}

// Validate checks that a chunk can participate in indexing
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.SourcePath == "" {
		return errors.New("source path is required")
	}
	return nil
}

// ContentHash returns the SHA-256 hash of the chunk content
func (c *Chunk) ContentHash() [32]byte {
	return sha256.Sum256([]byte(c.Content))
}

// LexicalHit is one ranked match from the lexical index.
// Score is the engine's BM25 relevance with the sign flipped so that higher is better.
type LexicalHit struct {
	ChunkID    int64 // Zero for rows backfilled from documents
	Score      float64
	Title      string
	SourcePath string
	ProjectID  string
}

// VectorRecord maps a dense index row back to its chunk
type VectorRecord struct {
	RowPosition int   `json:"row_position"`
	ChunkID     int64 `json:"chunk_id"`
}

// VectorHit is one ranked match from the dense index
type VectorHit struct {
	ChunkID    int64
	Similarity float64
}

// BuildResult reports the outcome of an index build
type BuildResult struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	Count     int    `json:"count"`
	Dimension int    `json:"dimension,omitempty"`
}

// BuildFailed returns a failed BuildResult with the given reason
func BuildFailed(reason string) BuildResult {
	return BuildResult{OK: false, Reason: reason}
}

// BackfillResult reports the outcome of a lexical backfill from documents
type BackfillResult struct {
	Skipped bool `json:"skipped"`
	Rows    int  `json:"rows"`
}
