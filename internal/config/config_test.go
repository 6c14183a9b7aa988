package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/db"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/llm"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults without a file", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", "")
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, db.DriverSQLite, cfg.Database.Driver)
		assert.Equal(t, llm.BackendVertex, cfg.LLM.Backend)
		assert.Equal(t, llm.DefaultModel, cfg.LLM.Model)
		assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 10, cfg.RateLimit.Requests)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)
		assert.True(t, cfg.Storage.PublicRead)
		assert.Contains(t, cfg.Server.CORSOrigins, "http://localhost:3000")
	})

	t.Run("File values", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `
server:
  port: 9090
database:
  driver: postgres
  host: db.internal
  circuit_breaker:
    failure_threshold: 7
    timeout: 45s
llm:
  backend: gemini
  api_key: secret
  timeout: 30s
storage:
  bucket: studio-media
logging:
  level: debug
  format: console
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, db.DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, uint32(7), cfg.Database.CircuitBreaker.FailureThreshold)
		assert.Equal(t, 45*time.Second, cfg.Database.CircuitBreaker.Timeout)
		assert.Equal(t, llm.BackendGemini, cfg.LLM.Backend)
		assert.Equal(t, "secret", cfg.LLM.APIKey)
		assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, "studio-media", cfg.Storage.Bucket)
		assert.Equal(t, "console", cfg.Logging.Format)
	})

	t.Run("Environment overrides", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "llm:\n  project: from-file\n")
		t.Setenv("LLM_TIMEOUT", "15s")
		t.Setenv("GCP_PROJECT", "doc-studio")
		t.Setenv("GCS_BUCKET", "doc-media")
		t.Setenv("VERTEX_AI_LOCATION", "europe-west2")
		t.Setenv("PORT", "8181")
		t.Setenv("POSTGRES_HOST", "pg")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, "doc-studio", cfg.LLM.Project)
		assert.Equal(t, "doc-media", cfg.Storage.Bucket)
		assert.Equal(t, "europe-west2", cfg.LLM.Location)
		assert.Equal(t, 8181, cfg.Server.Port)
		assert.Equal(t, "pg", cfg.Database.Host)
	})

	t.Run("CONFIG_PATH pointing nowhere", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("Invalid values", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `
server:
  port: 70000
database:
  driver: mysql
llm:
  backend: openai
logging:
  level: chatty
`)
		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "server.port")
		assert.Contains(t, err.Error(), "database.driver")
		assert.Contains(t, err.Error(), "llm.backend")
		assert.Contains(t, err.Error(), "logging.level")
	})
}

func TestNewLogger(t *testing.T) {
	logger, level, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	_, _, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLogLevelHandler(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	h := LogLevelHandler(level, zaptest.NewLogger(t))

	require.NoError(t, h(&Config{Logging: LoggingConfig{Level: "debug"}}))
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	assert.Error(t, h(&Config{Logging: LoggingConfig{Level: "nope"}}))
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")

	w, err := NewWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	var calls atomic.Int32
	w.OnChange(LogLevelHandler(level, zaptest.NewLogger(t)))
	w.OnChange(func(*Config) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	assert.Eventually(t, func() bool {
		return level.Level() == zapcore.DebugLevel
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	// Unrelated files in the directory are ignored
	time.Sleep(100 * time.Millisecond)
	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, calls.Load())
}

func TestWatcherRejectsInvalidReload(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "logging:\n  level: info\n")
	w, err := NewWatcher(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	called := false
	w.OnChange(func(*Config) error {
		called = true
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644))
	assert.ErrorIs(t, w.Reload(), ErrInvalidConfig)
	assert.False(t, called)

	assert.NoError(t, w.Stop())
}
