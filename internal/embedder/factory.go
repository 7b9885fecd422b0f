package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Model       string
	LocalModel  string
	Device      string // Advisory; logged when the local encoder starts
	PreferLocal bool
	BatchSize   int
	LocalURL    string
	RemoteURL   string
	APIKey      string
	Timeout     time.Duration
	CacheSize   int
}

// New creates a Service from configuration. The local encoder is built
// lazily on the first Embed call; the remote provider is built eagerly when
// an API key is present.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LocalModel == "" {
		cfg.LocalModel = DefaultLocalModel
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRemoteModel
	}

	opts := []Option{
		WithCache(NewCache(cfg.CacheSize)),
		WithLogger(logger),
	}

	if cfg.APIKey != "" {
		remote, err := NewOpenAIRemote(ctx, cfg.APIKey, cfg.RemoteURL, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRemote(remote))
	}

	if cfg.PreferLocal {
		opts = append(opts, WithLocal(func() (LocalEncoder, error) {
			logger.Info("initializing local embedder",
				"url", cfg.LocalURL, "model", cfg.LocalModel, "device", cfg.Device)
			return NewOllamaEncoder(context.Background(), cfg.LocalURL, cfg.LocalModel, cfg.Timeout)
		}))
	}

	if !cfg.PreferLocal && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: enable the local model or set an api key", ErrNoProviderEnabled)
	}

	return NewService(Settings{
		Model:       cfg.Model,
		LocalModel:  cfg.LocalModel,
		PreferLocal: cfg.PreferLocal,
		BatchSize:   cfg.BatchSize,
		Timeout:     cfg.Timeout,
	}, opts...), nil
}
