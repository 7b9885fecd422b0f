package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrLocalUnavailable  = errors.New("local embedding unavailable")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// normEpsilon guards the division in Normalize
const normEpsilon = 1e-12

// Embedder maps texts to unit-norm vectors, one per input, in input order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension seen on the last successful call
	Dimension() int
}

// Cache provides in-memory LRU caching of vectors keyed by backend, model and content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a copy of a cached vector
func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

// Set stores a copy of v
func (c *Cache) Set(key string, v []float32) {
	c.cache.Add(key, cloneVector(v))
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cacheKey(backend, model, text string) string {
	return backend + "\x00" + model + "\x00" + ComputeHash(text)
}

// Normalize returns v scaled to unit Euclidean length.
// A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	norm := math.Max(math.Sqrt(sum), normEpsilon)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}
	return result
}

// Dot returns the inner product of two vectors of equal length
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
