package guestws

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("GUESTWS_REDIS_PASSWORD", "s3cret")

	cfg, err := ParseConfig([]byte(`
identity: guest-42
broker:
  base_url: https://hotel.example.com
  timeout: 3s
connection:
  heartbeat_interval: 20s
  pong_timeout: 45s
  answer_pings: true
  protocol_pings: true
redis:
  enabled: true
  addr: redis:6379
  password: ${GUESTWS_REDIS_PASSWORD}
log:
  level: debug
  file: /var/log/guestwatch.log
`))
	require.NoError(t, err)

	assert.Equal(t, "guest-42", cfg.Identity)
	assert.Equal(t, "https://hotel.example.com", cfg.Broker.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Broker.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Connection.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.Connection.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.Connection.WriteTimeout)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, "guestws:", cfg.Redis.Prefix)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)

	mcfg := cfg.ManagerConfig()
	assert.Equal(t, 20*time.Second, mcfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, mcfg.ReconnectDelay)
	assert.Equal(t, 45*time.Second, mcfg.PongTimeout)
	assert.True(t, mcfg.AnswerPings)
	assert.True(t, mcfg.ProtocolPings)
	assert.Equal(t, PingToken, mcfg.PingToken)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("broker:\n  base_url: http://localhost:8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Broker.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Connection.HeartbeatInterval)
	assert.Zero(t, cfg.Connection.PongTimeout)
	assert.False(t, cfg.Connection.AnswerPings)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParseConfig_Invalid(t *testing.T) {
	for name, raw := range map[string]string{
		"missing broker url":    "identity: guest-1\n",
		"unknown log level":     "broker:\n  base_url: http://x\nlog:\n  level: loud\n",
		"negative pong timeout": "broker:\n  base_url: http://x\nconnection:\n  pong_timeout: -1s\n",
		"bad yaml":              "broker: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guestwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  base_url: http://localhost\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", cfg.Broker.BaseURL)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}
