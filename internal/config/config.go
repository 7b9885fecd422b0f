// Package config loads ragroute settings from a config file, a .env file and
// RAGROUTE_* environment variables.
//
// Precedence, highest first: environment, config file, defaults. Keys are
// dotted (embedding.batch_size); the matching variable replaces dots with
// underscores (RAGROUTE_EMBEDDING_BATCH_SIZE).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/ragroute/internal/chunker"
	"github.com/dshills/ragroute/internal/dense"
	"github.com/dshills/ragroute/internal/embedder"
	"github.com/dshills/ragroute/internal/router"
)

const (
	configName = "ragroute"
	envPrefix  = "RAGROUTE"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full ragroute configuration
type Config struct {
	DBPath    string          `mapstructure:"db_path"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Dense     DenseConfig     `mapstructure:"dense"`
	FAQ       FAQConfig       `mapstructure:"faq"`
	Router    RouterConfig    `mapstructure:"router"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// EmbeddingConfig selects and tunes the embedding backends
type EmbeddingConfig struct {
	Model       string        `mapstructure:"model"`       // remote model name
	LocalModel  string        `mapstructure:"local_model"` // local (Ollama) model name
	Device      string        `mapstructure:"device"`
	PreferLocal bool          `mapstructure:"prefer_local"`
	BatchSize   int           `mapstructure:"batch_size"`
	LocalURL    string        `mapstructure:"local_url"`
	RemoteURL   string        `mapstructure:"remote_url"` // empty means the provider default
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"` // per remote request
	CacheSize   int           `mapstructure:"cache_size"`
}

// ChunkerConfig sets the window size in characters
type ChunkerConfig struct {
	MaxChars int `mapstructure:"max_chars"`
	Overlap  int `mapstructure:"overlap"`
}

// DenseConfig locates the dense index artifacts
type DenseConfig struct {
	Dir      string `mapstructure:"dir"`
	Disabled bool   `mapstructure:"disabled"`
}

// FAQConfig locates the FAQ store
type FAQConfig struct {
	Path string `mapstructure:"path"`
}

// RouterConfig holds the routing thresholds.
// FAQMinScore is a cosine similarity in [0,1]; RAGMinScore is in FTS5 bm25
// relevance units (unbounded, higher is better).
type RouterConfig struct {
	FAQMinScore float64 `mapstructure:"faq_min_score"`
	RAGMinScore float64 `mapstructure:"rag_min_score"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// MetricsConfig configures the Prometheus endpoint; empty Addr disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Options locate the optional config and env files
type Options struct {
	ConfigFile string // explicit config file; searched for when empty
	EnvFile    string // defaults to .env in the working directory
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "ragroute.db")

	v.SetDefault("embedding.model", embedder.DefaultRemoteModel)
	v.SetDefault("embedding.local_model", embedder.DefaultLocalModel)
	v.SetDefault("embedding.device", "cpu")
	v.SetDefault("embedding.prefer_local", true)
	v.SetDefault("embedding.batch_size", embedder.DefaultBatchSize)
	v.SetDefault("embedding.local_url", embedder.DefaultOllamaURL)
	v.SetDefault("embedding.remote_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout", embedder.DefaultTimeout)
	v.SetDefault("embedding.cache_size", embedder.DefaultCacheSize)

	v.SetDefault("chunker.max_chars", chunker.DefaultMaxChars)
	v.SetDefault("chunker.overlap", chunker.DefaultOverlap)

	v.SetDefault("dense.dir", "")
	v.SetDefault("dense.disabled", false)

	v.SetDefault("faq.path", "")

	v.SetDefault("router.faq_min_score", router.DefaultFAQMinScore)
	v.SetDefault("router.rag_min_score", router.DefaultRAGMinScore)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration. A missing .env or config file is not an error.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional variable works too
	if err := v.BindEnv("embedding.api_key", envPrefix+"_EMBEDDING_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings that would make the engine misbehave
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.DBPath == "" {
		add("db_path is required")
	}
	if c.Embedding.BatchSize <= 0 {
		add("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Timeout <= 0 {
		add("embedding.timeout must be positive, got %s", c.Embedding.Timeout)
	}
	if c.Embedding.CacheSize < 0 {
		add("embedding.cache_size must not be negative")
	}
	if c.Chunker.MaxChars <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.MaxChars {
		add("chunker needs 0 <= overlap < max_chars, got overlap=%d max_chars=%d", c.Chunker.Overlap, c.Chunker.MaxChars)
	}
	if c.Router.FAQMinScore < 0 || c.Router.FAQMinScore > 1 {
		add("router.faq_min_score is a cosine similarity in [0,1], got %g", c.Router.FAQMinScore)
	}
	if c.Router.RAGMinScore < 0 {
		add("router.rag_min_score must not be negative, got %g", c.Router.RAGMinScore)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		add("%v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// EmbedderConfig maps the embedding section onto embedder.Config
func (c *Config) EmbedderConfig() embedder.Config {
	e := c.Embedding
	return embedder.Config{
		Model:       e.Model,
		LocalModel:  e.LocalModel,
		Device:      e.Device,
		PreferLocal: e.PreferLocal,
		BatchSize:   e.BatchSize,
		LocalURL:    e.LocalURL,
		RemoteURL:   e.RemoteURL,
		APIKey:      e.APIKey,
		Timeout:     e.Timeout,
		CacheSize:   e.CacheSize,
	}
}

// DenseServiceConfig maps the dense section onto dense.Config
func (c *Config) DenseServiceConfig() dense.Config {
	return dense.Config{
		Dir:       c.Dense.Dir,
		Disabled:  c.Dense.Disabled,
		BatchSize: c.Embedding.BatchSize,
	}
}

// Thresholds returns the router thresholds
func (c *Config) Thresholds() router.Thresholds {
	return router.Thresholds{
		FAQMinScore: c.Router.FAQMinScore,
		RAGMinScore: c.Router.RAGMinScore,
	}
}

// ChunkerOptions returns the chunker window settings
func (c *Config) ChunkerOptions() []chunker.Option {
	return []chunker.Option{
		chunker.WithMaxChars(c.Chunker.MaxChars),
		chunker.WithOverlap(c.Chunker.Overlap),
	}
}

// ParseLevel maps a level name onto slog.Level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
