package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/ragroute/internal/config"
	"github.com/dshills/ragroute/internal/engine"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	cfgFile  string
	envFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "ragroute",
	Short:        "Hybrid retrieval and query routing over a document corpus",
	SilenceUsage: true,
	Long: `ragroute decides whether a question is answered from the FAQ store,
from retrieved corpus passages, or as plain conversation.

Logs go to stderr; stdout carries command output and the MCP protocol.`,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./ragroute.yaml or ~/.config/ragroute/ragroute.yaml)")
	flags.StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")
	flags.StringVar(&dbPath, "db", "", "chunk database path (overrides db_path)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
}

// Execute is called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: cfgFile, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openEngine loads config, installs the logger and opens the engine.
// The caller closes the engine.
func openEngine(ctx context.Context) (*engine.Engine, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot load config: %w", err)
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	e, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return e, logger, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", path, err)
	}
	return abs, nil
}
