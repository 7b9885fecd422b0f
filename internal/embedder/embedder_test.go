package embedder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVector derives a non-normalized vector from text so order can be checked
func fakeVector(text string, scale float32) []float32 {
	return []float32{float32(len(text)) * scale, float32(text[0]) * scale, 3 * scale}
}

type fakeRemote struct {
	mu      sync.Mutex
	calls   [][]string
	failFor int // fail this many calls before succeeding
	short   bool
}

func (f *fakeRemote) CreateEmbeddings(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.failFor > 0 {
		f.failFor--
		return nil, errors.New("remote unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = fakeVector(t, 7)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLocal struct {
	failOn string // fail any batch containing this text
	always bool
}

func (f *fakeLocal) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if f.always {
		return nil, errors.New("model not loaded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && t == f.failOn {
			return nil, fmt.Errorf("cannot encode %q", t)
		}
		out[i] = fakeVector(t, 0.5)
	}
	return out, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	backends []string
	sizes    []int
}

func (r *recordingObserver) ObserveEmbed(backend string, batchSize int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, backend)
	r.sizes = append(r.sizes, batchSize)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func newTestService(settings Settings, opts ...Option) *Service {
	if settings.Retry.MaxRetries == 0 {
		settings.Retry = fastRetry()
	}
	opts = append([]Option{WithLogger(quietLogger()), WithObserver(&recordingObserver{})}, opts...)
	return NewService(settings, opts...)
}

func localInit(enc LocalEncoder) func() (LocalEncoder, error) {
	return func() (LocalEncoder, error) { return enc, nil }
}

func assertUnitNorm(t *testing.T, vecs [][]float32) {
	t.Helper()
	for i, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6, "vector %d", i)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)

	orig := []float32{1, 1}
	_ = Normalize(orig)
	assert.Equal(t, []float32{1, 1}, orig, "input must not be modified")
}

func TestDot(t *testing.T) {
	a := Normalize([]float32{1, 2, 3})
	assert.InDelta(t, 1.0, Dot(a, a), 1e-6)
	assert.InDelta(t, 0.0, Dot([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestEmbed_LocalPreferred(t *testing.T) {
	remote := &fakeRemote{}
	svc := newTestService(Settings{PreferLocal: true},
		WithLocal(localInit(&fakeLocal{})), WithRemote(remote))

	vecs, err := svc.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assertUnitNorm(t, vecs)
	assert.Equal(t, 0, remote.callCount())
	assert.Equal(t, 3, svc.Dimension())
}

func TestEmbed_FallbackWhenLocalAlwaysFails(t *testing.T) {
	remote := &fakeRemote{}
	svc := newTestService(Settings{PreferLocal: true, BatchSize: 2},
		WithLocal(localInit(&fakeLocal{always: true})), WithRemote(remote))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := svc.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assertUnitNorm(t, vecs)

	for i, text := range texts {
		want := Normalize(fakeVector(text, 7))
		assert.InDeltaSlice(t, want, vecs[i], 1e-6, "order must match input at %d", i)
	}
	assert.Equal(t, 3, remote.callCount())
}

func TestEmbed_FallbackPerSubBatch(t *testing.T) {
	remote := &fakeRemote{}
	obs := &recordingObserver{}
	svc := newTestService(Settings{PreferLocal: true, BatchSize: 2},
		WithLocal(localInit(&fakeLocal{failOn: "bad"})), WithRemote(remote), WithObserver(obs))

	texts := []string{"one", "two", "bad", "four", "five"}
	vecs, err := svc.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assertUnitNorm(t, vecs)

	require.Equal(t, 1, remote.callCount())
	assert.Equal(t, []string{"bad", "four"}, remote.calls[0])
	assert.Equal(t, []string{BackendLocal, BackendLocal, BackendRemote, BackendLocal}, obs.backends)
}

func TestEmbed_LocalInitFailsOnce(t *testing.T) {
	var inits atomic.Int32
	remote := &fakeRemote{}
	svc := newTestService(Settings{PreferLocal: true, BatchSize: 1},
		WithLocal(func() (LocalEncoder, error) {
			inits.Add(1)
			return nil, ErrLocalUnavailable
		}),
		WithRemote(remote))

	vecs, err := svc.Embed(context.Background(), []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int32(1), inits.Load())
	assert.Equal(t, 3, remote.callCount())
}

func TestEmbed_LocalInitConcurrent(t *testing.T) {
	var inits atomic.Int32
	svc := newTestService(Settings{PreferLocal: true},
		WithLocal(func() (LocalEncoder, error) {
			inits.Add(1)
			time.Sleep(5 * time.Millisecond)
			return &fakeLocal{}, nil
		}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Embed(context.Background(), []string{fmt.Sprintf("text %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), inits.Load())
}

func TestEmbed_NoRemote(t *testing.T) {
	svc := newTestService(Settings{PreferLocal: true},
		WithLocal(localInit(&fakeLocal{always: true})))

	_, err := svc.Embed(context.Background(), []string{"x"})
	require.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestEmbed_RemoteRetries(t *testing.T) {
	remote := &fakeRemote{failFor: 2}
	svc := newTestService(Settings{}, WithRemote(remote))

	vecs, err := svc.Embed(context.Background(), []string{"retry me"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, remote.callCount())
}

func TestEmbed_RemoteTerminalFailure(t *testing.T) {
	remote := &fakeRemote{failFor: 10}
	svc := newTestService(Settings{}, WithRemote(remote))

	_, err := svc.Embed(context.Background(), []string{"doomed"})
	require.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, 3, remote.callCount())
}

func TestEmbed_ShortResponse(t *testing.T) {
	remote := &fakeRemote{short: true}
	svc := newTestService(Settings{}, WithRemote(remote))

	_, err := svc.Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrProviderFailed)
}

func TestEmbed_Cache(t *testing.T) {
	remote := &fakeRemote{}
	svc := newTestService(Settings{}, WithRemote(remote))
	ctx := context.Background()

	first, err := svc.Embed(ctx, []string{"cached", "text"})
	require.NoError(t, err)
	first[0][0] = 42

	second, err := svc.Embed(ctx, []string{"text", "cached", "new"})
	require.NoError(t, err)
	require.Equal(t, 2, remote.callCount())
	assert.Equal(t, []string{"new"}, remote.calls[1])
	assert.NotEqual(t, float32(42), second[1][0], "cache must not alias caller slices")
	assert.InDeltaSlice(t, Normalize(fakeVector("cached", 7)), second[1], 1e-6)
}

func TestEmbed_Empty(t *testing.T) {
	svc := newTestService(Settings{}, WithRemote(&fakeRemote{}))
	vecs, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, 0, svc.Dimension())
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})
	assert.Equal(t, 2, c.Size())

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	v, ok := c.Get("c")
	require.True(t, ok)
	v[0] = 99
	again, _ := c.Get("c")
	assert.Equal(t, float32(3), again[0])

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCacheKey(t *testing.T) {
	assert.NotEqual(t, cacheKey(BackendLocal, "m", "x"), cacheKey(BackendRemote, "m", "x"))
	assert.NotEqual(t, cacheKey(BackendRemote, "m1", "x"), cacheKey(BackendRemote, "m2", "x"))
	assert.True(t, strings.HasPrefix(cacheKey(BackendRemote, "m", "x"), BackendRemote))
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
