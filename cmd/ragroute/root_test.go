package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragroute/internal/config"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)

	logger, err = newLogger(config.LogConfig{Level: "debug"}, &buf)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	cfgFile, envFile = "", filepath.Join(dir, "absent.env")
	dbPath, logLevel = filepath.Join(dir, "x.db"), "debug"
	t.Cleanup(func() { cfgFile, envFile, dbPath, logLevel = "", "", "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.db"), cfg.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ragroute dev")
	assert.Contains(t, out.String(), "SQLite Driver:")
}

func TestRegisteredCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ingest", "build", "backfill", "route", "search", "status", "version"} {
		assert.True(t, names[want], want)
	}
}
