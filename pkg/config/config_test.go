package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("文件不存在时使用默认值", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "http://127.0.0.1:5000", cfg.API.BaseURL)
		assert.Equal(t, 30, cfg.API.Timeout)
		assert.Equal(t, 1, cfg.API.RetryCount)
		assert.Equal(t, "file", cfg.Session.Store)
		assert.Equal(t, "/api/ws", cfg.Feed.Path)
		assert.Equal(t, 100, cfg.Dashboard.ConnectionCapacity)
		assert.Equal(t, "1h", cfg.Dashboard.TimeRange)
		assert.Equal(t, 50, cfg.Dashboard.LogPageSize)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("解析YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
api:
  base_url: https://fw.example.com/
  timeout: 10
  retry_count: 3
session:
  store: sqlite
feed:
  reconnect_max: 60
log_level: debug
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "https://fw.example.com", cfg.API.BaseURL)
		assert.Equal(t, 10, cfg.API.Timeout)
		assert.Equal(t, 3, cfg.API.RetryCount)
		assert.Equal(t, "sqlite", cfg.Session.Store)
		assert.Equal(t, "session.db", filepath.Base(cfg.Session.Path))
		assert.Equal(t, 60, cfg.Feed.ReconnectMax)
		assert.Equal(t, "debug", cfg.Logger.Level)
	})

	t.Run("环境变量覆盖", func(t *testing.T) {
		t.Setenv("FWCTL_BASE_URL", "http://10.0.0.1:8080")
		t.Setenv("FWCTL_TIMEOUT", "5")
		t.Setenv("FWCTL_TLS_SKIP_VERIFY", "true")

		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "http://10.0.0.1:8080", cfg.API.BaseURL)
		assert.Equal(t, 5, cfg.API.Timeout)
		assert.True(t, cfg.API.TLSSkipVerify)
	})

	t.Run("无效环境变量", func(t *testing.T) {
		t.Setenv("FWCTL_TIMEOUT", "soon")
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("无效YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"无scheme", func(c *Config) { c.API.BaseURL = "fw.example.com" }},
		{"非http scheme", func(c *Config) { c.API.BaseURL = "ftp://fw.example.com" }},
		{"超时为负", func(c *Config) { c.API.Timeout = -1 }},
		{"限速为负", func(c *Config) { c.API.RateLimit = -2 }},
		{"未知存储", func(c *Config) { c.Session.Store = "redis" }},
		{"重连上限过小", func(c *Config) { c.Feed.ReconnectInitial = 10; c.Feed.ReconnectMax = 5 }},
		{"容量为负", func(c *Config) { c.Dashboard.ConnectionCapacity = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.API.BaseURL = "https://fw.internal"
	cfg.Dashboard.TimeRange = "24h"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://fw.internal", loaded.API.BaseURL)
	assert.Equal(t, "24h", loaded.Dashboard.TimeRange)
}
