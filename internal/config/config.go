package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Web      WebConfig      `yaml:"web"`
	Settings SettingsConfig `yaml:"settings"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	NATS     NATSConfig     `yaml:"nats"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server identity configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WebConfig represents web UI configuration
type WebConfig struct {
	StaticDir string `yaml:"static_dir"`
}

// SettingsConfig locates the mutable device settings file
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// MonitorConfig represents printer monitor configuration
type MonitorConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	AlertTTL          time.Duration `yaml:"alert_ttl"`
	AlertCapacity     int           `yaml:"alert_capacity"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// WebhookConfig represents the outbound report webhook
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	if err := cfg.validateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if webhookURL := os.Getenv("WEBHOOK_URL"); webhookURL != "" {
		c.Webhook.URL = webhookURL
	}

	if settingsPath := os.Getenv("SETTINGS_PATH"); settingsPath != "" {
		c.Settings.Path = settingsPath
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// validateAndSetDefaults fills unset fields with working defaults and
// rejects values the services cannot run with.
func (c *Config) validateAndSetDefaults() error {
	if c.Server.Name == "" {
		c.Server.Name = "bambubeacon-server"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}

	if c.Settings.Path == "" {
		c.Settings.Path = "settings.yaml"
	}

	if c.Monitor.TickInterval == 0 {
		c.Monitor.TickInterval = 500 * time.Millisecond
	}
	if c.Monitor.ReconnectInterval == 0 {
		c.Monitor.ReconnectInterval = 2 * time.Second
	}
	if c.Monitor.AlertTTL == 0 {
		c.Monitor.AlertTTL = 20 * time.Second
	}
	if c.Monitor.AlertCapacity == 0 {
		c.Monitor.AlertCapacity = 20
	}
	if c.Monitor.AlertCapacity < 0 {
		return fmt.Errorf("invalid alert capacity: %d", c.Monitor.AlertCapacity)
	}

	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 5 * time.Second
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 72 * time.Hour
	}
	if c.JWT.RefreshTokenTTL < c.JWT.AccessTokenTTL {
		return fmt.Errorf("refresh token ttl %s shorter than access token ttl %s",
			c.JWT.RefreshTokenTTL, c.JWT.AccessTokenTTL)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	return nil
}
