package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/database"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_LocalBackendDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, pubsub.DriverMemory, cfg.PubSub.Driver)
	assert.Equal(t, 3*time.Second, cfg.Feed.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.Feed.StatusPollInterval)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 3*time.Second, cfg.PubSub.Redis.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageSize)
}

func TestLoad_HostedBackendKeepsExplicitDrivers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
backend: hosted
database:
  driver: mysql
feed:
  reconnect_delay: 1s
`))
	require.NoError(t, err)

	assert.Equal(t, database.DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, pubsub.DriverRedis, cfg.PubSub.Driver)
	assert.Equal(t, time.Second, cfg.Feed.ReconnectDelay)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PUBSUB_DRIVER", "kafka")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, "backend: local\n"))
	require.NoError(t, err)

	assert.Equal(t, pubsub.DriverKafka, cfg.PubSub.Driver)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
}

func TestLoad_UnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: cloud\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
