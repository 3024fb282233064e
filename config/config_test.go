package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Equal(t, "global", cfg.Chat.DefaultRoom)
	assert.Equal(t, 100, cfg.Chat.CacheCapacity)
	assert.Equal(t, 7*24*time.Hour, cfg.Chat.OfflineQueueTTL)
	assert.Equal(t, 100, cfg.Chat.OfflineQueueMax)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
}

func TestLoadConfig_YAMLKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
chat:
  cacheCapacity: 20
`), 0o600))

	cfg := LoadConfig(path)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 20, cfg.Chat.CacheCapacity)
	assert.Equal(t, "global", cfg.Chat.DefaultRoom)
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CHAT_OFFLINE_MAX", "25")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("FRONTEND_ORIGIN", "http://a.test, http://b.test")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 25, cfg.Chat.OfflineQueueMax)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfig_OfflineQueueStaysBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chat:
  offlineQueueTTL: 24h
`), 0o600))
	t.Setenv("CHAT_OFFLINE_MAX", "0")

	cfg := LoadConfig(path)

	assert.Equal(t, 24*time.Hour, cfg.Chat.OfflineQueueTTL)
	assert.Equal(t, 100, cfg.Chat.OfflineQueueMax)
}
