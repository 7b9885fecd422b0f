package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/ragroute/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for rows that cannot be stored
	ErrInvalidInput = errors.New("invalid input")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB

	// rebuildMu serializes lexical rebuilds and backfills
	rebuildMu sync.Mutex
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) InsertChunks(ctx context.Context, chunks []types.Chunk) ([]int64, error) {
	return t.storage.insertChunksWithQuerier(ctx, t.tx, chunks)
}

func (t *sqliteTx) DeleteChunksBySource(ctx context.Context, sourcePath string) (int, error) {
	return t.storage.deleteChunksBySourceWithQuerier(ctx, t.tx, sourcePath)
}

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.insertDocumentWithQuerier(ctx, t.tx, doc)
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// nullString stores empty strings as NULL
func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// Chunk operations

func (s *SQLiteStorage) insertChunksWithQuerier(ctx context.Context, q querier, chunks []types.Chunk) ([]int64, error) {
	query := `
		INSERT INTO chunks (content, title, source_path, project_id)
		VALUES (?, ?, ?, ?)
	`
	ids := make([]int64, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrInvalidInput, i, err)
		}
		result, err := q.ExecContext(ctx, query, c.Content, c.Title, c.SourcePath, nullString(c.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InsertChunks stores chunks and returns their assigned ids in order
func (s *SQLiteStorage) InsertChunks(ctx context.Context, chunks []types.Chunk) ([]int64, error) {
	return s.insertChunksWithQuerier(ctx, s.querier(), chunks)
}

func (s *SQLiteStorage) deleteChunksBySourceWithQuerier(ctx context.Context, q querier, sourcePath string) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE source_path = ?`, sourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteChunksBySource removes every chunk that came from sourcePath
func (s *SQLiteStorage) DeleteChunksBySource(ctx context.Context, sourcePath string) (int, error) {
	return s.deleteChunksBySourceWithQuerier(ctx, s.querier(), sourcePath)
}

// ReplaceSource swaps the chunks of one source document in a single transaction
func (s *SQLiteStorage) ReplaceSource(ctx context.Context, sourcePath string, chunks []types.Chunk) ([]int64, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.DeleteChunksBySource(ctx, sourcePath); err != nil {
		return nil, err
	}
	ids, err := tx.InsertChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return ids, nil
}

// FetchChunks implements ChunkStore
func (s *SQLiteStorage) FetchChunks(ctx context.Context, projectID string) ([]types.ChunkText, error) {
	query := `SELECT id, content FROM chunks WHERE content != ''`
	args := []interface{}{}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]types.ChunkText, 0)
	for rows.Next() {
		var c types.ChunkText
		if err := rows.Scan(&c.ID, &c.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// FetchChunksFull implements ChunkStore
func (s *SQLiteStorage) FetchChunksFull(ctx context.Context, projectID string) ([]types.Chunk, error) {
	query := `SELECT id, content, title, source_path, project_id FROM chunks WHERE content != ''`
	args := []interface{}{}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChunks(rows)
}

// GetChunks implements ChunkStore
func (s *SQLiteStorage) GetChunks(ctx context.Context, ids []int64) ([]types.Chunk, error) {
	if len(ids) == 0 {
		return []types.Chunk{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT id, content, title, source_path, project_id FROM chunks WHERE id IN (` +
		strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]types.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	ordered := make([]types.Chunk, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
			delete(byID, id)
		}
	}
	return ordered, nil
}

func scanChunks(rows *sql.Rows) ([]types.Chunk, error) {
	chunks := make([]types.Chunk, 0)
	for rows.Next() {
		var c types.Chunk
		var projectID sql.NullString
		if err := rows.Scan(&c.ID, &c.Content, &c.Title, &c.SourcePath, &projectID); err != nil {
			return nil, err
		}
		c.ProjectID = projectID.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Document operations

func (s *SQLiteStorage) insertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	if doc.Content == "" || doc.SourcePath == "" {
		return fmt.Errorf("%w: document needs content and source path", ErrInvalidInput)
	}
	result, err := q.ExecContext(ctx, `
		INSERT INTO documents (title, content, source_path, project_id)
		VALUES (?, ?, ?, ?)
	`, doc.Title, doc.Content, doc.SourcePath, nullString(doc.ProjectID))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.ID, err = result.LastInsertId()
	return err
}

// InsertDocument stores a whole document
func (s *SQLiteStorage) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

// Index bookkeeping

func (s *SQLiteStorage) recordBuildWithQuerier(ctx context.Context, q querier, kind string, rows int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO index_state (kind, row_count, built_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET row_count = excluded.row_count, built_at = excluded.built_at
	`, kind, rows, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record %s build: %w", kind, err)
	}
	return nil
}

// RecordBuild notes a successful index build
func (s *SQLiteStorage) RecordBuild(ctx context.Context, kind string, rows int) error {
	return s.recordBuildWithQuerier(ctx, s.querier(), kind, rows)
}

// Status operations

// GetStatus reports table counts and index build times
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		SchemaVersion: CurrentSchemaVersion,
		BuildMode:     BuildMode,
		Builds:        make(map[string]IndexState),
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM chunks", &status.Chunks},
		{"SELECT COUNT(*) FROM documents", &status.Documents},
		{"SELECT COUNT(*) FROM lexical", &status.LexicalRows},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT project_id FROM chunks
		WHERE project_id IS NOT NULL AND project_id != ''
		ORDER BY project_id
	`)
	if err != nil {
		return nil, err
	}
	status.Projects = make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.Projects = append(status.Projects, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT kind, row_count, built_at FROM index_state")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind string
		var n int
		var builtAt int64
		if err := rows.Scan(&kind, &n, &builtAt); err != nil {
			return nil, err
		}
		status.Builds[kind] = IndexState{Rows: n, BuiltAt: time.Unix(builtAt, 0)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return status, nil
}
