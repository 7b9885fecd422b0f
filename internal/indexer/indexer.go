package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/ragroute/internal/chunker"
	"github.com/dshills/ragroute/internal/storage"
	"github.com/dshills/ragroute/pkg/types"
)

// Extensions ingested by IngestDir
var Extensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".txt":      true,
}

// DefaultBatchSize is the number of files written per transaction
const DefaultBatchSize = 20

// DenseBuilder builds the dense index
type DenseBuilder interface {
	Build(ctx context.Context, projectID string) (types.BuildResult, error)
}

// CacheInvalidator drops query caches after a rebuild
type CacheInvalidator interface {
	InvalidateCache()
}

// Indexer coordinates the pipeline: walk -> chunk -> store -> rebuild indexes
type Indexer struct {
	chunker *chunker.Chunker
	storage storage.Storage
	dense   DenseBuilder
	caches  []CacheInvalidator
	logger  *slog.Logger
	lock    IndexLock
}

// Config contains configuration for an ingest run
type Config struct {
	Workers   int    // Number of concurrent readers (default: runtime.NumCPU())
	BatchSize int    // Number of files to commit per transaction (default: 20)
	ProjectID string // Assign every file to this project instead of inferring it
}

// Statistics contains statistics about an ingest run
type Statistics struct {
	FilesIndexed  int           `json:"files_indexed"`
	FilesEmpty    int           `json:"files_empty"`
	FilesFailed   int           `json:"files_failed"`
	ChunksCreated int           `json:"chunks_created"`
	Duration      time.Duration `json:"duration"`
	ErrorMessages []string      `json:"errors,omitempty"`
}

// RebuildResult reports both index builds
type RebuildResult struct {
	LexicalRows int               `json:"lexical_rows"`
	Dense       types.BuildResult `json:"dense"`
	Duration    time.Duration     `json:"duration"`
}

// New creates a new Indexer. dense may be nil when no dense index is configured.
func New(store storage.Storage, c *chunker.Chunker, dense DenseBuilder, logger *slog.Logger, caches ...CacheInvalidator) *Indexer {
	if c == nil {
		c = chunker.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		chunker: c,
		storage: store,
		dense:   dense,
		caches:  caches,
		logger:  logger,
	}
}

// Lock returns the lock guarding ingest and rebuild runs
func (idx *Indexer) Lock() *IndexLock {
	return &idx.lock
}

// fileResult is the chunked content of one source file
type fileResult struct {
	sourcePath string
	chunks     []types.Chunk
	err        error
}

// IngestDir chunks every supported file under root and replaces the chunk
// rows of each source path. Source paths are stored relative to root.
func (idx *Indexer) IngestDir(ctx context.Context, root string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	files, err := discoverFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	// Read and chunk concurrently; each worker owns one slot of results
	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = idx.chunkFile(root, path, config.ProjectID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The store has a single writer, so batches are committed in order
	for start := 0; start < len(results); start += batchSize {
		end := min(start+batchSize, len(results))
		if err := idx.writeBatch(ctx, results[start:end], stats); err != nil {
			return nil, err
		}
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("ingest complete",
		"root", root,
		"files", stats.FilesIndexed,
		"empty", stats.FilesEmpty,
		"failed", stats.FilesFailed,
		"chunks", stats.ChunksCreated,
		"elapsed", stats.Duration)
	return stats, nil
}

// chunkFile reads and chunks one file
func (idx *Indexer) chunkFile(root, path, projectOverride string) fileResult {
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return fileResult{sourcePath: path, err: err}
	}
	relPath = filepath.ToSlash(relPath)
	res := fileResult{sourcePath: relPath}

	body, err := os.ReadFile(path)
	if err != nil {
		res.err = err
		return res
	}

	projectID := projectOverride
	if projectID == "" {
		projectID = InferProject(relPath)
	}

	sections := idx.chunker.ChunkDocument(path, string(body))
	res.chunks = make([]types.Chunk, 0, len(sections))
	for _, sec := range sections {
		res.chunks = append(res.chunks, types.Chunk{
			Content:    sec.Content,
			Title:      sec.Title,
			SourcePath: relPath,
			ProjectID:  projectID,
		})
	}
	return res
}

// writeBatch replaces the chunks of a batch of files within a transaction
func (idx *Indexer) writeBatch(ctx context.Context, batch []fileResult, stats *Statistics) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var indexed, empty, created int
	failures := make([]string, 0)
	for _, res := range batch {
		if res.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", res.sourcePath, res.err))
			continue
		}

		if _, err := tx.DeleteChunksBySource(ctx, res.sourcePath); err != nil {
			return fmt.Errorf("failed to replace %s: %w", res.sourcePath, err)
		}
		if len(res.chunks) == 0 {
			empty++
			continue
		}
		if _, err := tx.InsertChunks(ctx, res.chunks); err != nil {
			return fmt.Errorf("failed to replace %s: %w", res.sourcePath, err)
		}
		indexed++
		created += len(res.chunks)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, msg := range failures {
		idx.logger.Warn("file skipped", "error", msg)
	}
	stats.FilesIndexed += indexed
	stats.FilesEmpty += empty
	stats.FilesFailed += len(failures)
	stats.ChunksCreated += created
	stats.ErrorMessages = append(stats.ErrorMessages, failures...)
	return nil
}

// Rebuild rebuilds the lexical index from the chunk table, then the dense
// index for projectID (all projects when empty). A dense build that reports
// OK=false does not fail the rebuild.
func (idx *Indexer) Rebuild(ctx context.Context, projectID string) (*RebuildResult, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	result := &RebuildResult{Dense: types.BuildFailed("dense index not configured")}

	rows, err := idx.storage.RebuildLexical(ctx)
	if err != nil {
		return nil, fmt.Errorf("lexical rebuild: %w", err)
	}
	result.LexicalRows = rows
	defer idx.invalidateCaches()

	if idx.dense != nil {
		result.Dense, err = idx.dense.Build(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("dense build: %w", err)
		}
		if result.Dense.OK {
			if err := idx.storage.RecordBuild(ctx, storage.IndexDense, result.Dense.Count); err != nil {
				return nil, err
			}
		} else {
			idx.logger.Warn("dense index not built", "reason", result.Dense.Reason)
		}
	}

	result.Duration = time.Since(startTime)
	idx.logger.Info("rebuild complete",
		"lexical_rows", result.LexicalRows,
		"dense_ok", result.Dense.OK,
		"dense_rows", result.Dense.Count,
		"elapsed", result.Duration)
	return result, nil
}

func (idx *Indexer) invalidateCaches() {
	for _, c := range idx.caches {
		c.InvalidateCache()
	}
}

// discoverFiles finds all supported files under root, skipping hidden directories
func discoverFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !Extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		files = append(files, path)
		return nil
	})

	return files, err
}

// InferProject returns the directory name directly under the first
// "projects" segment of a slash-separated path, or "" when there is none.
func InferProject(relPath string) string {
	parts := strings.Split(relPath, "/")
	// The project segment must be a directory, not the file itself
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "projects" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}
