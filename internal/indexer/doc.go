// Package indexer ingests a corpus directory into the chunk store and
// rebuilds the retrieval indexes derived from it.
//
// # Basic Usage
//
//	idx := indexer.New(store, chunker.New(), denseService, logger, searcher)
//
//	stats, err := idx.IngestDir(ctx, "/srv/site/content", nil)
//	fmt.Printf("Ingested %d files (%d chunks) in %v\n",
//	    stats.FilesIndexed, stats.ChunksCreated, stats.Duration)
//
//	res, err := idx.Rebuild(ctx, "")
//	fmt.Printf("lexical=%d dense=%+v\n", res.LexicalRows, res.Dense)
//
// # Ingestion Pipeline
//
//  1. Discovery: walk the root for .md, .markdown, .html, .htm and .txt
//     files, skipping hidden directories
//  2. Chunk: read and chunk files concurrently (errgroup, one worker per CPU)
//  3. Store: replace the chunk rows of each source path, committing
//     BatchSize files per transaction
//
// Source paths are stored relative to the root with forward slashes. A
// file under projects/<name>/ is tagged with project <name> unless
// Config.ProjectID overrides it. A file that yields no chunks still has its
// old rows removed.
//
// Unreadable files are counted in Statistics.FilesFailed and do not stop the
// run. Storage errors do.
//
// # Rebuild
//
// Rebuild recreates the lexical index from every chunk row and then builds
// the dense index, optionally scoped to one project. A dense build that
// cannot run ("dense disabled", "no chunks", ...) is reported in the result
// and is not an error. Registered caches are invalidated afterwards.
//
// # Concurrency
//
// IngestDir and Rebuild share one non-blocking lock. A call made while
// either is running returns ErrIndexingInProgress immediately.
package indexer
