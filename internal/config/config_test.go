package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragroute/internal/router"
)

// isolate points Load at files that do not exist and runs from an empty dir
func isolate(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("OPENAI_API_KEY", "")
	return Options{EnvFile: filepath.Join(dir, "absent.env")}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(isolate(t))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ragroute.db", cfg.DBPath)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.True(t, cfg.Embedding.PreferLocal)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.LocalURL)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 3500, cfg.Chunker.MaxChars)
	assert.Equal(t, 250, cfg.Chunker.Overlap)
	assert.Equal(t, router.DefaultThresholds(), cfg.Thresholds())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Dense.Dir)
}

func TestLoad_Environment(t *testing.T) {
	opts := isolate(t)
	t.Setenv("RAGROUTE_DB_PATH", "/var/lib/ragroute/chunks.db")
	t.Setenv("RAGROUTE_EMBEDDING_BATCH_SIZE", "16")
	t.Setenv("RAGROUTE_EMBEDDING_PREFER_LOCAL", "false")
	t.Setenv("RAGROUTE_EMBEDDING_TIMEOUT", "5s")
	t.Setenv("RAGROUTE_DENSE_DIR", "/var/lib/ragroute/dense")
	t.Setenv("RAGROUTE_ROUTER_FAQ_MIN_SCORE", "0.8")
	t.Setenv("RAGROUTE_ROUTER_RAG_MIN_SCORE", "4.5")

	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ragroute/chunks.db", cfg.DBPath)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.False(t, cfg.Embedding.PreferLocal)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, router.Thresholds{FAQMinScore: 0.8, RAGMinScore: 4.5}, cfg.Thresholds())

	dc := cfg.DenseServiceConfig()
	assert.Equal(t, "/var/lib/ragroute/dense", dc.Dir)
	assert.Equal(t, 16, dc.BatchSize)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	opts := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-conventional")

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "sk-conventional", cfg.Embedding.APIKey)

	t.Setenv("RAGROUTE_EMBEDDING_API_KEY", "sk-specific")
	cfg, err = Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "sk-specific", cfg.EmbedderConfig().APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	opts := isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: site.db
embedding:
  model: text-embedding-3-large
  batch_size: 8
dense:
  dir: ./dense
  disabled: true
faq:
  path: faq.json
log:
  level: debug
  format: json
`), 0o644))
	opts.ConfigFile = path
	t.Setenv("RAGROUTE_EMBEDDING_BATCH_SIZE", "32")

	cfg, err := Load(opts)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "site.db", cfg.DBPath)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 32, cfg.Embedding.BatchSize, "environment wins over the file")
	assert.True(t, cfg.Dense.Disabled)
	assert.Equal(t, "faq.json", cfg.FAQ.Path)
	assert.Equal(t, "json", cfg.Log.Format)
	level, err := ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_SearchedConfigFile(t *testing.T) {
	opts := isolate(t)
	require.NoError(t, os.WriteFile("ragroute.toml", []byte("db_path = \"found.db\"\n"), 0o644))

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "found.db", cfg.DBPath)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	opts := isolate(t)
	opts.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := Load(opts)
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	opts := isolate(t)
	opts.EnvFile = filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(opts.EnvFile, []byte("RAGROUTE_FAQ_PATH=/srv/faq.json\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("RAGROUTE_FAQ_PATH") })

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "/srv/faq.json", cfg.FAQ.Path)
}

func TestValidate(t *testing.T) {
	base, err := Load(isolate(t))
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "db path", mutate: func(c *Config) { c.DBPath = "" }, want: "db_path"},
		{name: "batch size", mutate: func(c *Config) { c.Embedding.BatchSize = 0 }, want: "batch_size"},
		{name: "timeout", mutate: func(c *Config) { c.Embedding.Timeout = 0 }, want: "timeout"},
		{name: "overlap", mutate: func(c *Config) { c.Chunker.Overlap = c.Chunker.MaxChars }, want: "overlap"},
		{name: "faq score", mutate: func(c *Config) { c.Router.FAQMinScore = 1.5 }, want: "faq_min_score"},
		{name: "rag score", mutate: func(c *Config) { c.Router.RAGMinScore = -1 }, want: "rag_min_score"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
