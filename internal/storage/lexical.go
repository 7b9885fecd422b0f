package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/ragroute/pkg/types"
)

// Wildcard is the sanitized form of a query with no usable tokens
const Wildcard = "*"

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9-]+`)

// SanitizeQuery rewrites free text into a safe FTS5 match expression.
// Tokens are lower-cased, quoted as FTS5 strings and joined with OR.
// A query without tokens becomes Wildcard.
func SanitizeQuery(query string) string {
	seen := make(map[string]bool)
	terms := make([]string, 0)
	for _, tok := range tokenPattern.FindAllString(query, -1) {
		tok = strings.ToLower(strings.Trim(tok, "-"))
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, `"`+tok+`"`)
	}
	if len(terms) == 0 {
		return Wildcard
	}
	return strings.Join(terms, " OR ")
}

// RebuildLexical replaces the whole lexical index with the current chunk rows.
// The swap happens in one transaction so readers see the old or the new index.
func (s *SQLiteStorage) RebuildLexical(ctx context.Context) (int, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lexical`); err != nil {
		return 0, fmt.Errorf("failed to clear lexical index: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lexical (content, title, source_path, project_id, chunk_id)
		SELECT content, title, source_path, project_id, id
		FROM chunks
		WHERE content != ''
		ORDER BY id
	`); err != nil {
		return 0, fmt.Errorf("failed to fill lexical index: %w", err)
	}

	n, err := countLexical(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := s.recordBuildWithQuerier(ctx, tx, IndexLexical, n); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit lexical rebuild: %w", err)
	}
	return n, nil
}

// LexicalSearch returns chunk ids ranked best first. Rows without a chunk,
// such as those added by BackfillFromDocuments, are left out.
func (s *SQLiteStorage) LexicalSearch(ctx context.Context, query string, k int) ([]int64, error) {
	hits, err := s.LexicalSearchScored(ctx, query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if h.ChunkID != 0 {
			ids = append(ids, h.ChunkID)
		}
	}
	return ids, nil
}

// LexicalSearchScored returns up to k hits ranked best first with their BM25
// relevance. A wildcard query returns the first k rows with score 0.
func (s *SQLiteStorage) LexicalSearchScored(ctx context.Context, query string, k int) ([]types.LexicalHit, error) {
	if k <= 0 {
		return []types.LexicalHit{}, nil
	}

	match := SanitizeQuery(query)

	var rows *sql.Rows
	var err error
	if match == Wildcard {
		rows, err = s.db.QueryContext(ctx, `
			SELECT chunk_id, 0.0, title, source_path, project_id
			FROM lexical
			ORDER BY rowid
			LIMIT ?
		`, k)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT chunk_id, -bm25(lexical), title, source_path, project_id
			FROM lexical
			WHERE lexical MATCH ?
			ORDER BY bm25(lexical)
			LIMIT ?
		`, match, k)
	}
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]types.LexicalHit, 0, k)
	for rows.Next() {
		var h types.LexicalHit
		var chunkID sql.NullInt64
		var title, source, project sql.NullString
		if err := rows.Scan(&chunkID, &h.Score, &title, &source, &project); err != nil {
			return nil, err
		}
		h.ChunkID = chunkID.Int64
		h.Title = title.String
		h.SourcePath = source.String
		h.ProjectID = project.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// BackfillFromDocuments seeds the lexical index from the documents table
// for stores that have no chunk rows yet. When chunks exist nothing is
// written and the chunk count is reported with Skipped set. A populated
// index or an earlier backfill also skips, reporting the lexical row count.
func (s *SQLiteStorage) BackfillFromDocuments(ctx context.Context) (types.BackfillResult, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.BackfillResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var chunks int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return types.BackfillResult{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	if chunks > 0 {
		return types.BackfillResult{Skipped: true, Rows: chunks}, nil
	}

	existing, err := countLexical(ctx, tx)
	if err != nil {
		return types.BackfillResult{}, err
	}
	var done int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_state WHERE kind = ?`, IndexBackfill).Scan(&done); err != nil {
		return types.BackfillResult{}, fmt.Errorf("failed to read backfill state: %w", err)
	}
	if existing > 0 || done > 0 {
		return types.BackfillResult{Skipped: true, Rows: existing}, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lexical (content, title, source_path, project_id, chunk_id)
		SELECT content, title, source_path, project_id, NULL
		FROM documents
		WHERE content != ''
		ORDER BY id
	`); err != nil {
		return types.BackfillResult{}, fmt.Errorf("failed to backfill lexical index: %w", err)
	}
	n, err := countLexical(ctx, tx)
	if err != nil {
		return types.BackfillResult{}, err
	}
	if err := s.recordBuildWithQuerier(ctx, tx, IndexBackfill, n); err != nil {
		return types.BackfillResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.BackfillResult{}, fmt.Errorf("failed to commit backfill: %w", err)
	}
	return types.BackfillResult{Skipped: false, Rows: n}, nil
}

func countLexical(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM lexical`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lexical rows: %w", err)
	}
	return n, nil
}
