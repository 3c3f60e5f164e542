// Package config loads the yaml configuration shared by the live view client
// and the push server, overlaid with PHONELOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PHONELOG_SERVER_PORT.
const EnvPrefix = "phonelog"

type Config struct {
	Server ServerConfig `yaml:"server" envconfig:"server"`
	Client ClientConfig `yaml:"client" envconfig:"client"`
	Log    LogConfig    `yaml:"log" envconfig:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" envconfig:"port"`
	Host           string        `yaml:"host" envconfig:"host"`
	AuthToken      string        `yaml:"auth_token" envconfig:"auth_token"`
	AllowedOrigins []string      `yaml:"allowed_origins" envconfig:"allowed_origins"`
	CSRFSecret     string        `yaml:"csrf_secret" envconfig:"csrf_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl" envconfig:"token_ttl"`
	AckTimeout     time.Duration `yaml:"ack_timeout" envconfig:"ack_timeout"`
	MaxConnections int           `yaml:"max_connections" envconfig:"max_connections"`
	Language       string        `yaml:"language" envconfig:"language"`
	Mock           MockConfig    `yaml:"mock" envconfig:"mock"`
}

type MockConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"enabled"`
	Interval time.Duration `yaml:"interval" envconfig:"interval"`
	MaxCalls int           `yaml:"max_calls" envconfig:"max_calls"`
}

type ClientConfig struct {
	URL       string `yaml:"url" envconfig:"url"`
	PageURL   string `yaml:"page_url" envconfig:"page_url"`
	AuthToken string `yaml:"auth_token" envconfig:"auth_token"`
	// Language overrides the locale detected from the environment.
	Language string `yaml:"language" envconfig:"language"`
	Timezone string `yaml:"timezone" envconfig:"timezone"`
	// CancelReloadOnConnect stops a pending forced reload once the
	// connection comes back.
	CancelReloadOnConnect bool `yaml:"cancel_reload_on_connect" envconfig:"cancel_reload_on_connect"`
	Animate               bool `yaml:"animate" envconfig:"animate"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"level"`
	File  string `yaml:"file" envconfig:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       8080,
			Host:       "127.0.0.1",
			TokenTTL:   12 * time.Hour,
			AckTimeout: 5 * time.Second,
			Mock: MockConfig{
				Interval: 3 * time.Second,
				MaxCalls: 25,
			},
		},
		Client: ClientConfig{
			URL:     "ws://127.0.0.1:8080/ws",
			Animate: true,
		},
		Log: LogConfig{
			Level: "info",
			File:  "phonelog-live.log",
		},
	}
}

// Default returns the built-in configuration with the environment applied.
func Default() (*Config, error) {
	return Load("")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.TokenTTL <= 0 {
		return errors.New("server.token_ttl must be positive")
	}
	if c.Server.AckTimeout <= 0 {
		return errors.New("server.ack_timeout must be positive")
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("server.max_connections must not be negative")
	}
	if c.Server.Mock.Enabled && c.Server.Mock.Interval <= 0 {
		return errors.New("server.mock.interval must be positive")
	}
	if c.Client.URL == "" {
		return errors.New("client.url is required")
	}
	if c.Client.Timezone != "" {
		if _, err := time.LoadLocation(c.Client.Timezone); err != nil {
			return fmt.Errorf("client.timezone: %w", err)
		}
	}
	return nil
}

// Location returns the client's display timezone, time.Local when unset.
func (c *ClientConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Addr returns the server's listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
