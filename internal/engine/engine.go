// Package engine assembles the retrieval and routing components from
// configuration. The MCP server and the CLI both work through an Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/ragroute/internal/chunker"
	"github.com/dshills/ragroute/internal/config"
	"github.com/dshills/ragroute/internal/dense"
	"github.com/dshills/ragroute/internal/embedder"
	"github.com/dshills/ragroute/internal/faq"
	"github.com/dshills/ragroute/internal/indexer"
	"github.com/dshills/ragroute/internal/router"
	"github.com/dshills/ragroute/internal/searcher"
	"github.com/dshills/ragroute/internal/storage"
)

// Engine owns one instance of every component
type Engine struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Embedder embedder.Embedder // nil when no embedding backend is enabled
	Dense    *dense.Service
	FAQ      *faq.Store
	Matcher  *faq.Matcher // nil without an embedder
	Router   *router.Router
	Searcher *searcher.Searcher
	Indexer  *indexer.Indexer

	logger *slog.Logger
}

// Status summarizes the engine for status reports
type Status struct {
	Storage         *storage.Status   `json:"storage"`
	Dense           dense.Status      `json:"dense"`
	FAQEntries      int               `json:"faq_entries"`
	FAQError        string            `json:"faq_error,omitempty"`
	EmbedderEnabled bool              `json:"embedder_enabled"`
	Thresholds      router.Thresholds `json:"thresholds"`
}

// Open validates cfg, opens the chunk store and builds the embedder.
// A configuration that enables no embedding backend still opens; FAQ
// matching and dense retrieval are then unavailable.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var emb embedder.Embedder
	svc, err := embedder.New(ctx, cfg.EmbedderConfig(), logger.With("component", "embedder"))
	switch {
	case errors.Is(err, embedder.ErrNoProviderEnabled):
		logger.Warn("no embedding backend enabled, faq and dense retrieval are off", "error", err)
	case err != nil:
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	default:
		emb = svc
	}

	e, err := Assemble(cfg, store, emb, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return e, nil
}

// Assemble wires the components around an open store and an optional embedder
func Assemble(cfg *config.Config, store *storage.SQLiteStorage, emb embedder.Embedder, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ch, err := chunker.NewChecked(cfg.ChunkerOptions()...)
	if err != nil {
		return nil, err
	}

	denseCfg := cfg.DenseServiceConfig()
	if emb == nil {
		denseCfg.Disabled = true
	}
	denseSvc := dense.NewService(denseCfg, store, emb, logger.With("component", "dense"))

	faqStore := faq.NewStore(cfg.FAQ.Path, logger.With("component", "faq"))
	var matcher *faq.Matcher
	var faqTier router.FAQMatcher
	if emb != nil {
		matcher = faq.NewMatcher(faqStore, emb)
		faqTier = matcher
	}

	rt := router.New(faqTier, store,
		router.WithThresholds(cfg.Thresholds()),
		router.WithLogger(logger.With("component", "router")))

	var denseTier searcher.DenseSearcher
	if denseSvc.Enabled() {
		denseTier = denseSvc
	}
	srch := searcher.NewSearcher(store, store, denseTier, logger.With("component", "searcher"))

	idx := indexer.New(store, ch, denseSvc, logger.With("component", "indexer"), srch)

	return &Engine{
		Config:   cfg,
		Storage:  store,
		Embedder: emb,
		Dense:    denseSvc,
		FAQ:      faqStore,
		Matcher:  matcher,
		Router:   rt,
		Searcher: srch,
		Indexer:  idx,
		logger:   logger,
	}, nil
}

// Status gathers store counts, dense artifact state and the FAQ size.
// Loading the FAQ store here surfaces parse errors early.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st, err := e.Storage.GetStatus(ctx)
	if err != nil {
		return nil, err
	}

	out := &Status{
		Storage:         st,
		Dense:           e.Dense.Status(),
		EmbedderEnabled: e.Embedder != nil,
		Thresholds:      e.Router.Thresholds(),
	}
	entries, err := e.FAQ.Entries(ctx)
	if err != nil {
		out.FAQError = err.Error()
	} else {
		out.FAQEntries = len(entries)
	}
	return out, nil
}

// Close releases the chunk store
func (e *Engine) Close() error {
	return e.Storage.Close()
}
