package guestws

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of a watcher process.
type Config struct {
	Identity   string           `yaml:"identity"`
	Broker     BrokerConfig     `yaml:"broker"`
	Connection ConnectionConfig `yaml:"connection"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
}

type BrokerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ConnectionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
	AnswerPings       bool          `yaml:"answer_pings"`
	ProtocolPings     bool          `yaml:"protocol_pings"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// LoadConfig reads path, expands ${VAR} references, applies defaults and validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Timeout <= 0 {
		c.Broker.Timeout = defaultBrokerTimeout
	}
	if c.Connection.HeartbeatInterval <= 0 {
		c.Connection.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Connection.ReconnectDelay <= 0 {
		c.Connection.ReconnectDelay = defaultReconnectDelay
	}
	if c.Connection.WriteTimeout <= 0 {
		c.Connection.WriteTimeout = defaultWriteTimeout
	}
	if c.Connection.HandshakeTimeout <= 0 {
		c.Connection.HandshakeTimeout = 10 * time.Second
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = defaultRelayPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Broker.BaseURL) == "" {
		return errors.New("broker.base_url is required")
	}
	if c.Connection.PongTimeout < 0 {
		return errors.New("connection.pong_timeout must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(err, "log.level %q", c.Log.Level)
	}
	return nil
}

// ManagerConfig maps the connection section onto a ManagerConfig.
func (c *Config) ManagerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.HeartbeatInterval = c.Connection.HeartbeatInterval
	cfg.ReconnectDelay = c.Connection.ReconnectDelay
	cfg.PongTimeout = c.Connection.PongTimeout
	cfg.AnswerPings = c.Connection.AnswerPings
	cfg.ProtocolPings = c.Connection.ProtocolPings
	return cfg
}
