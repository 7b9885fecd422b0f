package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/ragroute/internal/telemetry"
)

// Observer receives timing for every backend call
type Observer interface {
	ObserveEmbed(backend string, batchSize int, elapsed time.Duration, err error)
}

// Settings tunes a Service
type Settings struct {
	Model       string        // Remote model name
	LocalModel  string        // Local model name, used in cache keys
	PreferLocal bool          // Try the local encoder before the remote provider
	BatchSize   int           // Texts per backend call
	Timeout     time.Duration // Per remote request
	Retry       RetryConfig
}

// Service embeds texts with a local encoder and falls back to a remote
// provider one sub-batch at a time. It is safe for concurrent use.
type Service struct {
	settings Settings
	local    func() (LocalEncoder, error)
	remote   RemoteProvider
	cache    *Cache
	observer Observer
	logger   *slog.Logger
	dim      atomic.Int64
}

// Option configures a Service
type Option func(*Service)

// WithLocal sets the constructor of the local encoder. It runs at most once,
// on first use, and its result is shared by all callers.
func WithLocal(init func() (LocalEncoder, error)) Option {
	return func(s *Service) {
		if init != nil {
			s.local = sync.OnceValues(init)
		}
	}
}

// WithRemote sets the fallback provider
func WithRemote(p RemoteProvider) Option {
	return func(s *Service) { s.remote = p }
}

// WithCache sets the vector cache
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithObserver replaces the default telemetry recorder
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service
func NewService(settings Settings, opts ...Option) *Service {
	if settings.BatchSize <= 0 {
		settings.BatchSize = DefaultBatchSize
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.Retry.MaxRetries <= 0 {
		settings.Retry = DefaultRetryConfig()
	}

	s := &Service{settings: settings}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache(DefaultCacheSize)
	}
	if s.observer == nil {
		s.observer = telemetry.Default()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Embed implements Embedder
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.settings.BatchSize {
		end := min(start+s.settings.BatchSize, len(texts))
		vecs, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimension implements Embedder
func (s *Service) Dimension() int {
	return int(s.dim.Load())
}

// embedBatch serves one sub-batch entirely from one backend
func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if s.settings.PreferLocal && s.local != nil {
		enc, err := s.local()
		if err == nil {
			vecs, err := s.serve(ctx, BackendLocal, s.settings.LocalModel, batch, enc.Encode)
			if err == nil {
				return vecs, nil
			}
			s.logger.Warn("local embedding failed, using remote", "batch", len(batch), "error", err)
		} else {
			s.logger.Debug("local encoder unavailable", "error", err)
		}
	}

	if s.remote == nil {
		return nil, fmt.Errorf("%w: no remote provider for fallback", ErrNoProviderEnabled)
	}
	vecs, err := s.serve(ctx, BackendRemote, s.settings.Model, batch, s.callRemote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return vecs, nil
}

func (s *Service) callRemote(ctx context.Context, texts []string) ([][]float32, error) {
	return retryWithBackoff(ctx, s.settings.Retry, func() ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
		return s.remote.CreateEmbeddings(reqCtx, s.settings.Model, texts)
	})
}

// serve answers batch from the cache of backend and sends the misses to call
func (s *Service) serve(ctx context.Context, backend, model string, batch []string,
	call func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(batch))
	missing := make([]int, 0, len(batch))
	for i, text := range batch {
		if v, ok := s.cache.Get(cacheKey(backend, model, text)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = batch[i]
	}

	started := time.Now()
	vecs, err := call(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vecs), len(texts))
	}
	s.observer.ObserveEmbed(backend, len(texts), time.Since(started), err)
	if err != nil {
		return nil, err
	}

	for j, i := range missing {
		v := Normalize(vecs[j])
		s.cache.Set(cacheKey(backend, model, batch[i]), v)
		out[i] = v
	}
	s.dim.Store(int64(len(out[missing[0]])))
	return out, nil
}
