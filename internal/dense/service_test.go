package dense

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/ragroute/internal/embedder"
	"github.com/dshills/ragroute/pkg/types"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

// bagEmbedder hashes each word into one of testDim buckets
type bagEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *bagEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
			v[h.Sum32()%testDim]++
		}
		out[i] = embedder.Normalize(v)
	}
	return out, nil
}

func (b *bagEmbedder) Dimension() int { return testDim }

type memStore struct {
	chunks []types.Chunk
}

func (m *memStore) FetchChunks(_ context.Context, projectID string) ([]types.ChunkText, error) {
	out := make([]types.ChunkText, 0)
	for _, c := range m.chunks {
		if projectID == "" || c.ProjectID == projectID {
			out = append(out, types.ChunkText{ID: c.ID, Content: c.Content})
		}
	}
	return out, nil
}

func (m *memStore) FetchChunksFull(_ context.Context, projectID string) ([]types.Chunk, error) {
	out := make([]types.Chunk, 0)
	for _, c := range m.chunks {
		if projectID == "" || c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) GetChunks(_ context.Context, ids []int64) ([]types.Chunk, error) {
	return nil, errors.New("not used")
}

func corpus() *memStore {
	return &memStore{chunks: []types.Chunk{
		{ID: 10, Content: "ledgermind reconciles bank exports", ProjectID: "ledgermind"},
		{ID: 20, Content: "trailmap renders hiking routes", ProjectID: "trailmap"},
		{ID: 30, Content: "pasta needs salted boiling water"},
	}}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, cfg Config, store *memStore, emb embedder.Embedder) *Service {
	t.Helper()
	if !Available {
		t.Skip("built with nodense")
	}
	return NewService(cfg, store, emb, quiet())
}

func TestBuildAndSearch(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, Config{Dir: dir, BatchSize: 2}, corpus(), &bagEmbedder{})
	ctx := context.Background()

	res, err := svc.Build(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, types.BuildResult{OK: true, Count: 3, Dimension: testDim}, res)

	ids, err := svc.Search(ctx, "hiking routes", 2)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, int64(20), ids[0])

	hits, err := svc.SearchScored(ctx, "ledgermind bank exports", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(10), hits[0].ChunkID)
	assert.Greater(t, hits[0].Similarity, 0.5)
}

func TestSearch_SkipsPaddingRows(t *testing.T) {
	svc := newService(t, Config{Dir: t.TempDir()}, corpus(), &bagEmbedder{})
	ctx := context.Background()

	_, err := svc.Build(ctx, "")
	require.NoError(t, err)

	ids, err := svc.Search(ctx, "water", 10)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestBuild_ProjectScope(t *testing.T) {
	svc := newService(t, Config{Dir: t.TempDir()}, corpus(), &bagEmbedder{})
	ctx := context.Background()

	res, err := svc.Build(ctx, "trailmap")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Count)

	ids, err := svc.Search(ctx, "bank exports", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, ids)
}

func TestDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dense")
	emb := &bagEmbedder{}
	svc := newService(t, Config{Dir: dir, Disabled: true}, corpus(), emb)
	ctx := context.Background()

	res, err := svc.Build(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, types.BuildResult{OK: false, Reason: "dense disabled"}, res)

	ids, err := svc.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "disabled build must not touch storage")
	assert.Equal(t, 0, emb.calls)
	assert.False(t, svc.Status().Enabled)
}

func TestBuild_NoChunks(t *testing.T) {
	svc := newService(t, Config{Dir: t.TempDir()}, &memStore{}, &bagEmbedder{})

	res, err := svc.Build(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, types.BuildFailed("no chunks"), res)
}

func TestNoStorageDir(t *testing.T) {
	svc := newService(t, Config{}, corpus(), &bagEmbedder{})
	ctx := context.Background()

	_, err := svc.Build(ctx, "")
	assert.ErrorIs(t, err, ErrNoStorageDir)

	_, err = svc.Search(ctx, "query", 3)
	assert.ErrorIs(t, err, ErrNoStorageDir)
}

func TestBuild_EmbeddingFailure(t *testing.T) {
	svc := newService(t, Config{Dir: t.TempDir()}, corpus(), &bagEmbedder{err: embedder.ErrProviderFailed})

	_, err := svc.Build(context.Background(), "")
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)
}

func TestSearch_MissingIndexIsEmpty(t *testing.T) {
	emb := &bagEmbedder{}
	svc := newService(t, Config{Dir: t.TempDir()}, corpus(), emb)

	ids, err := svc.Search(context.Background(), "hiking", 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, emb.calls, "no query embedding without an index")
	assert.False(t, svc.Status().Present)
}

func TestSearch_CorruptMappingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, Config{Dir: dir}, corpus(), &bagEmbedder{})
	ctx := context.Background()

	_, err := svc.Build(ctx, "")
	require.NoError(t, err)
	ids, err := svc.Search(ctx, "hiking", 3)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	require.NoError(t, os.WriteFile(filepath.Join(dir, MappingFile), []byte(`{"build_id":"x","rows":[]}`), 0o644))

	ids, err = svc.Search(ctx, "hiking", 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearch_ReloadsAfterRebuild(t *testing.T) {
	dir := t.TempDir()
	store := corpus()
	svc := newService(t, Config{Dir: dir}, store, &bagEmbedder{})
	ctx := context.Background()

	_, err := svc.Build(ctx, "")
	require.NoError(t, err)
	first := svc.Status()
	require.True(t, first.Present)
	assert.Equal(t, 3, first.Count)

	// A second service stands in for another process rebuilding the index
	store.chunks = append(store.chunks, types.Chunk{ID: 40, Content: "kayak rental prices"})
	other := NewService(Config{Dir: dir}, store, &bagEmbedder{}, quiet())
	_, err = other.Build(ctx, "")
	require.NoError(t, err)

	second := svc.Status()
	assert.Equal(t, 4, second.Count)
	assert.NotEqual(t, first.BuildID, second.BuildID)

	ids, err := svc.Search(ctx, "kayak rental", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{40}, ids)
}

func TestBuild_LockHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, Config{Dir: dir, LockTimeout: 150 * time.Millisecond}, corpus(), &bagEmbedder{})

	held := flock.New(filepath.Join(dir, LockFile))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	res, err := svc.Build(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, types.BuildFailed(ReasonLockHeld), res)
}

func TestBuild_Concurrent(t *testing.T) {
	svc := newService(t, Config{Dir: t.TempDir()}, corpus(), &bagEmbedder{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Build(ctx, "")
			assert.NoError(t, err)
			assert.True(t, res.OK)
		}()
	}
	wg.Wait()

	st := svc.Status()
	assert.True(t, st.Present)
	assert.Equal(t, 3, st.Count)
}
