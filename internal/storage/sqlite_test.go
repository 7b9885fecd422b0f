package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dshills/ragroute/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func sampleChunks() []types.Chunk {
	return []types.Chunk{
		{Content: "LedgerMind reconciles bank exports against invoices.", Title: "Overview", SourcePath: "projects/ledgermind/README.md", ProjectID: "ledgermind"},
		{Content: "Install with the make target and run the daemon.", Title: "Setup", SourcePath: "projects/ledgermind/README.md", ProjectID: "ledgermind"},
		{Content: "Trailmap renders hiking routes from GPX files.", Title: "Overview", SourcePath: "projects/trailmap/README.md", ProjectID: "trailmap"},
		{Content: "Notes about cooking pasta.", Title: "Document", SourcePath: "notes/pasta.md"},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)
	assert.NoError(t, storage.Close())
}

func TestInsertAndFetchChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	ids, err := storage.InsertChunks(ctx, sampleChunks())
	require.NoError(t, err)
	require.Len(t, ids, 4)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	all, err := storage.FetchChunks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, ids[0], all[0].ID)
	assert.Equal(t, "LedgerMind reconciles bank exports against invoices.", all[0].Content)

	scoped, err := storage.FetchChunksFull(ctx, "ledgermind")
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, "Setup", scoped[1].Title)
	assert.Equal(t, "ledgermind", scoped[1].ProjectID)

	full, err := storage.FetchChunksFull(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "", full[3].ProjectID)
}

func TestInsertChunks_RejectsEmptyContent(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.InsertChunks(context.Background(), []types.Chunk{{SourcePath: "a.md"}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetChunks_Order(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	ids, err := storage.InsertChunks(ctx, sampleChunks())
	require.NoError(t, err)

	got, err := storage.GetChunks(ctx, []int64{ids[2], 9999, ids[0]})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[0], got[1].ID)

	empty, err := storage.GetChunks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReplaceSource(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.InsertChunks(ctx, sampleChunks())
	require.NoError(t, err)

	ids, err := storage.ReplaceSource(ctx, "projects/ledgermind/README.md", []types.Chunk{
		{Content: "Rewritten overview.", Title: "Overview", SourcePath: "projects/ledgermind/README.md", ProjectID: "ledgermind"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	scoped, err := storage.FetchChunksFull(ctx, "ledgermind")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "Rewritten overview.", scoped[0].Content)
}

func TestReplaceSource_RollsBackOnError(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.InsertChunks(ctx, sampleChunks())
	require.NoError(t, err)

	_, err = storage.ReplaceSource(ctx, "projects/ledgermind/README.md", []types.Chunk{
		{Content: "", SourcePath: "projects/ledgermind/README.md"},
	})
	require.Error(t, err)

	scoped, err := storage.FetchChunks(ctx, "ledgermind")
	require.NoError(t, err)
	assert.Len(t, scoped, 2, "failed replace must keep old rows")
}

func TestDeleteChunksBySource(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.InsertChunks(ctx, sampleChunks())
	require.NoError(t, err)

	n, err := storage.DeleteChunksBySource(ctx, "projects/ledgermind/README.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = storage.DeleteChunksBySource(ctx, "missing.md")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTransaction(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.InsertChunks(ctx, sampleChunks()[:1])
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument(ctx, &Document{Content: "doc", SourcePath: "a.md"}))
	require.NoError(t, tx.Rollback())

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Chunks)
	assert.Equal(t, 0, status.Documents)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.InsertChunks(ctx, sampleChunks())
	require.NoError(t, err)
	require.NoError(t, storage.InsertDocument(ctx, &Document{Title: "Pasta", Content: "Boil water.", SourcePath: "notes/pasta.md"}))
	_, err = storage.RebuildLexical(ctx)
	require.NoError(t, err)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, BuildMode, status.BuildMode)
	assert.Equal(t, 4, status.Chunks)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 4, status.LexicalRows)
	assert.Equal(t, []string{"ledgermind", "trailmap"}, status.Projects)
	require.Contains(t, status.Builds, IndexLexical)
	assert.Equal(t, 4, status.Builds[IndexLexical].Rows)
	assert.Greater(t, status.SizeMB, 0.0)
}

func TestGetStatus_CanceledContext(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.InsertChunks(context.Background(), sampleChunks())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := storage.GetStatus(ctx)
	assert.Error(t, err)
	assert.Nil(t, status)
}

func TestRecordBuild(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.RecordBuild(ctx, IndexDense, 10))
	require.NoError(t, storage.RecordBuild(ctx, IndexDense, 12))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, status.Builds[IndexDense].Rows)
}
