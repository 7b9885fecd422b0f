// Package storage provides SQLite-based persistence for chunks and the
// lexical (BM25) index derived from them.
//
// The storage layer manages:
//   - Chunk rows (id, content, title, source_path, project_id)
//   - Whole documents, used only to backfill the lexical index
//   - The FTS5 lexical index
//   - Index build bookkeeping
//
// # Database Schema
//
// Tables:
//   - chunks: retrievable text, ids assigned on insert and never reused
//   - documents: whole source documents
//   - lexical: FTS5 virtual table (content, title, source_path, project_id, chunk_id)
//   - index_state: last successful build per index kind
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("ragroute.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	ids, err := db.ReplaceSource(ctx, "projects/ledgermind/README.md", chunks)
//	n, err := db.RebuildLexical(ctx)
//
//	hits, err := db.LexicalSearchScored(ctx, "reconcile bank exports", 5)
//	for _, h := range hits {
//	    fmt.Printf("%d %.3f %s\n", h.ChunkID, h.Score, h.SourcePath)
//	}
//
// # Lexical Index
//
// The lexical index is a pure function of the chunk rows. RebuildLexical
// deletes and refills it inside one transaction; readers see either the old
// or the new index. Rebuilds and backfills are serialized by a mutex.
//
// Every query goes through SanitizeQuery before it reaches MATCH. Tokens
// made of letters, digits and hyphens are lower-cased, quoted and joined
// with OR, so FTS5 operators in user input are never interpreted. A query
// without tokens is a wildcard and returns the first rows with score 0.
//
// Scores are the negated FTS5 bm25() value: higher is better and the scale
// is unbounded.
//
// # Backfill
//
// BackfillFromDocuments fills an empty lexical index from the documents
// table, one row per document without a chunk id. Once the index has rows
// it only reports their count, so repeated calls are harmless.
//
// # Drivers
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags "cgo_sqlite,sqlite_fts5" switches to github.com/mattn/go-sqlite3.
package storage
