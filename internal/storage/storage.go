package storage

import (
	"context"
	"time"

	"github.com/dshills/ragroute/pkg/types"
)

// ChunkStore is the read contract of the chunk table
type ChunkStore interface {
	// FetchChunks returns id and content of every chunk, optionally scoped to one project
	FetchChunks(ctx context.Context, projectID string) ([]types.ChunkText, error)

	// FetchChunksFull returns complete chunk rows, optionally scoped to one project
	FetchChunksFull(ctx context.Context, projectID string) ([]types.Chunk, error)

	// GetChunks returns the chunks with the given ids in the order given; unknown ids are skipped
	GetChunks(ctx context.Context, ids []int64) ([]types.Chunk, error)
}

// LexicalIndex is a BM25 ranked full-text index derived from the chunk table
type LexicalIndex interface {
	RebuildLexical(ctx context.Context) (int, error)
	LexicalSearch(ctx context.Context, query string, k int) ([]int64, error)
	LexicalSearchScored(ctx context.Context, query string, k int) ([]types.LexicalHit, error)
	BackfillFromDocuments(ctx context.Context) (types.BackfillResult, error)
}

// Storage combines the chunk store, the lexical index and the writers used by ingestion
type Storage interface {
	ChunkStore
	LexicalIndex

	// Writer operations
	InsertChunks(ctx context.Context, chunks []types.Chunk) ([]int64, error)
	DeleteChunksBySource(ctx context.Context, sourcePath string) (int, error)
	ReplaceSource(ctx context.Context, sourcePath string, chunks []types.Chunk) ([]int64, error)
	InsertDocument(ctx context.Context, doc *Document) error

	// Index bookkeeping
	RecordBuild(ctx context.Context, kind string, rows int) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction over the writer operations
type Tx interface {
	Commit() error
	Rollback() error

	InsertChunks(ctx context.Context, chunks []types.Chunk) ([]int64, error)
	DeleteChunksBySource(ctx context.Context, sourcePath string) (int, error)
	InsertDocument(ctx context.Context, doc *Document) error
}

// Index kinds recorded by RecordBuild
const (
	IndexLexical  = "lexical"
	IndexDense    = "dense"
	IndexBackfill = "backfill"
)

// Document is a whole source document
type Document struct {
	ID         int64
	Title      string
	Content    string
	SourcePath string
	ProjectID  string
}

// IndexState describes the last successful build of an index
type IndexState struct {
	Rows    int       `json:"rows"`
	BuiltAt time.Time `json:"built_at"`
}

// Status contains statistics about the store
type Status struct {
	SchemaVersion string                `json:"schema_version"`
	BuildMode     string                `json:"build_mode"`
	Chunks        int                   `json:"chunks"`
	Documents     int                   `json:"documents"`
	LexicalRows   int                   `json:"lexical_rows"`
	Projects      []string              `json:"projects"`
	Builds        map[string]IndexState `json:"builds"`
	SizeMB        float64               `json:"size_mb"`
}
