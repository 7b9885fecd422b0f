package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragroute/internal/config"
	"github.com/dshills/ragroute/internal/embedder/embeddertest"
	"github.com/dshills/ragroute/internal/storage"
	"github.com/dshills/ragroute/pkg/types"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := config.Load(config.Options{EnvFile: filepath.Join(dir, "absent.env")})
	require.NoError(t, err)
	cfg.DBPath = filepath.Join(dir, "data", "chunks.db")
	cfg.Dense.Dir = filepath.Join(dir, "dense")
	cfg.FAQ.Path = filepath.Join(dir, "faq.json")
	require.NoError(t, os.WriteFile(cfg.FAQ.Path,
		[]byte(`[{"q":"What is LedgerMind?","a":"A bookkeeping assistant.","project_id":"ledgermind"}]`), 0o644))
	return cfg
}

func TestOpen_WithoutEmbeddingBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.PreferLocal = false

	e, err := Open(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Nil(t, e.Embedder)
	assert.Nil(t, e.Matcher)
	assert.False(t, e.Dense.Enabled())

	d := e.Router.Route(context.Background(), "What's LedgerMind")
	assert.Equal(t, types.RouteChitchat, d.Route)

	st, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.EmbedderEnabled)
	assert.Equal(t, 1, st.FAQEntries)
	assert.Equal(t, storage.CurrentSchemaVersion, st.Storage.SchemaVersion)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.FAQMinScore = 2

	_, err := Open(context.Background(), cfg, quiet())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAssemble_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	require.NoError(t, err)
	e, err := Assemble(cfg, store, &embeddertest.Keyword{}, quiet())
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	corpus := t.TempDir()
	path := filepath.Join(corpus, "projects", "ledgermind", "README.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("# LedgerMind\n\nReconciles bank exports.\n"), 0o644))

	_, err = e.Indexer.IngestDir(ctx, corpus, nil)
	require.NoError(t, err)
	res, err := e.Indexer.Rebuild(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.LexicalRows)

	d := e.Router.Route(ctx, "What's LedgerMind")
	assert.Equal(t, types.RouteFAQ, d.Route)
	assert.Equal(t, "ledgermind", d.ProjectID)
	assert.GreaterOrEqual(t, d.Score, 0.72)

	st, err := e.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.EmbedderEnabled)
	assert.Equal(t, 1, st.Storage.Chunks)
	assert.Equal(t, res.Dense.OK, st.Dense.Present)
}
