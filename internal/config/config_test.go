package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
server:
  name: beacon-test
  version: dev
api:
  host: 127.0.0.1
  port: 9090
web:
  static_dir: ./web
settings:
  path: /tmp/settings.yaml
monitor:
  tick_interval: 250ms
  reconnect_interval: 1s
  alert_ttl: 30s
  alert_capacity: 8
nats:
  url: nats://localhost:4222
webhook:
  url: http://example.com/hook
jwt:
  secret: test-secret
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "beacon-test", cfg.Server.Name)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "./web", cfg.Web.StaticDir)
	assert.Equal(t, "/tmp/settings.yaml", cfg.Settings.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.TickInterval)
	assert.Equal(t, time.Second, cfg.Monitor.ReconnectInterval)
	assert.Equal(t, 30*time.Second, cfg.Monitor.AlertTTL)
	assert.Equal(t, 8, cfg.Monitor.AlertCapacity)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "http://example.com/hook", cfg.Webhook.URL)
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "bambubeacon-server", cfg.Server.Name)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "settings.yaml", cfg.Settings.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.Monitor.ReconnectInterval)
	assert.Equal(t, 20*time.Second, cfg.Monitor.AlertTTL)
	assert.Equal(t, 20, cfg.Monitor.AlertCapacity)
	assert.Equal(t, 10, cfg.NATS.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectInterval)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 72*time.Hour, cfg.JWT.RefreshTokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.Webhook.URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("WEBHOOK_URL", "http://env/hook")
	t.Setenv("SETTINGS_PATH", "/env/settings.yaml")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, `
nats:
  url: nats://file:4222
jwt:
  secret: file-secret
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "http://env/hook", cfg.Webhook.URL)
	assert.Equal(t, "/env/settings.yaml", cfg.Settings.Path)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeConfig(t, "api: [not, a, map]\n"))
	assert.ErrorContains(t, err, "unmarshal config")

	_, err = Load(writeConfig(t, "api:\n  port: 70000\n"))
	assert.ErrorContains(t, err, "invalid api port")

	_, err = Load(writeConfig(t, "monitor:\n  alert_capacity: -1\n"))
	assert.ErrorContains(t, err, "invalid alert capacity")

	_, err = Load(writeConfig(t, "jwt:\n  access_token_ttl: 2h\n  refresh_token_ttl: 1h\n"))
	assert.ErrorContains(t, err, "refresh token ttl")
}
