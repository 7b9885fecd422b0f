package embedder

import (
	"context"
	"fmt"
	"time"

	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// Provider configuration
const (
	BackendLocal  = "local"
	BackendRemote = "remote"

	// Default models
	DefaultRemoteModel = "text-embedding-3-small"
	DefaultLocalModel  = "nomic-embed-text"
	DefaultOllamaURL   = "http://localhost:11434"

	// Batch and cache limits
	DefaultBatchSize = 64
	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// LocalEncoder encodes texts with a model served close to the process
type LocalEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// RemoteProvider creates embeddings through a hosted API
type RemoteProvider interface {
	CreateEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// EinoEncoder adapts an eino embedder to LocalEncoder
type EinoEncoder struct {
	emb embedding.Embedder
}

// NewEinoEncoder wraps emb as a LocalEncoder
func NewEinoEncoder(emb embedding.Embedder) *EinoEncoder {
	return &EinoEncoder{emb: emb}
}

// Encode implements LocalEncoder
func (e *EinoEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.emb.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	return toFloat32(out), nil
}

// EinoRemote adapts an eino embedder to RemoteProvider
type EinoRemote struct {
	emb embedding.Embedder
}

// NewEinoRemote wraps emb as a RemoteProvider
func NewEinoRemote(emb embedding.Embedder) *EinoRemote {
	return &EinoRemote{emb: emb}
}

// CreateEmbeddings implements RemoteProvider. A non-empty model overrides
// the model the embedder was built with.
func (r *EinoRemote) CreateEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	var opts []embedding.Option
	if model != "" {
		opts = append(opts, embedding.WithModel(model))
	}
	out, err := r.emb.EmbedStrings(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}
	return toFloat32(out), nil
}

// NewOllamaEncoder creates a LocalEncoder backed by an Ollama server
func NewOllamaEncoder(ctx context.Context, baseURL, model string, timeout time.Duration) (*EinoEncoder, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultLocalModel
	}
	emb, err := ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
		BaseURL: baseURL,
		Model:   model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
	}
	return NewEinoEncoder(emb), nil
}

// NewOpenAIRemote creates a RemoteProvider for an OpenAI-compatible API.
// An empty baseURL targets the official endpoint.
func NewOpenAIRemote(ctx context.Context, apiKey, baseURL, model string, timeout time.Duration) (*EinoRemote, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultRemoteModel
	}
	emb, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote embedder: %w", err)
	}
	return NewEinoRemote(emb), nil
}

func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, v := range in {
		row := make([]float32, len(v))
		for j, x := range v {
			row[j] = float32(x)
		}
		out[i] = row
	}
	return out
}
