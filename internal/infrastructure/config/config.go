package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for switchhub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Client    ClientConfig    `yaml:"client"`
}

// SiteConfig identifies the installation the hub serves.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite settings for the durable status store.
type DatabaseConfig struct {
	Path        string          `yaml:"path"`
	WALMode     bool            `yaml:"wal_mode"`
	BusyTimeout int             `yaml:"busy_timeout"`
	PoolRetry   PoolRetryConfig `yaml:"pool_retry"`
}

// PoolRetryConfig bounds how often the store retries opening its pool
// before giving up until the next use.
type PoolRetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	Delay       int `yaml:"delay"` // seconds between attempts
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Topic     string              `yaml:"topic"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// The broker link retries forever on a fixed interval.
type MQTTReconnectConfig struct {
	Interval       int `yaml:"interval"`        // seconds between attempts
	ConnectTimeout int `yaml:"connect_timeout"` // seconds per attempt
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the live subscriber listener.
type WebSocketConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`  // seconds
	PongTimeout    int    `yaml:"pong_timeout"`   // seconds
	SweepInterval  int    `yaml:"sweep_interval"` // seconds
	SendBuffer     int    `yaml:"send_buffer"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ClientConfig configures the live viewer (cmd/switchwatch).
type ClientConfig struct {
	URL                  string `yaml:"url"`
	ReconnectDelay       int    `yaml:"reconnect_delay"` // seconds
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	CheckInterval        int    `yaml:"check_interval"` // seconds
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SWITCHHUB_SECTION_KEY
// For example: SWITCHHUB_DATABASE_PATH, SWITCHHUB_MQTT_HOST
//
// An empty path skips the file and yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "switchhub",
		},
		Database: DatabaseConfig{
			Path:        "./data/switchhub.db",
			WALMode:     true,
			BusyTimeout: 5,
			PoolRetry: PoolRetryConfig{
				MaxAttempts: 5,
				Delay:       5,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "switchhub",
			},
			QoS:   1,
			Topic: "switches/#",
			Reconnect: MQTTReconnectConfig{
				Interval:       5,
				ConnectTimeout: 10,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			},
		},
		WebSocket: WebSocketConfig{
			Host:           "0.0.0.0",
			Port:           8765,
			Path:           "/",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SweepInterval:  60,
			SendBuffer:     256,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "switches",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Client: ClientConfig{
			URL:                  "ws://localhost:8765/",
			ReconnectDelay:       2,
			MaxReconnectAttempts: 30,
			CheckInterval:        30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SWITCHHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SWITCHHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SWITCHHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := envInt("SWITCHHUB_MQTT_PORT"); v > 0 {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("SWITCHHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SWITCHHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SWITCHHUB_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}

	// API
	if v := os.Getenv("SWITCHHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := envInt("SWITCHHUB_API_PORT"); v > 0 {
		cfg.API.Port = v
	}

	// WebSocket
	if v := envInt("SWITCHHUB_WEBSOCKET_PORT"); v > 0 {
		cfg.WebSocket.Port = v
	}

	// InfluxDB
	if v := os.Getenv("SWITCHHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Client
	if v := os.Getenv("SWITCHHUB_CLIENT_URL"); v != "" {
		cfg.Client.URL = v
	}
}

// envInt returns the integer value of key, or 0 when unset or malformed.
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

// Validate checks the configuration for errors.
//
// All problems are collected so a single run reports every bad field.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.PoolRetry.MaxAttempts < 0 {
		errs = append(errs, "database.pool_retry.max_attempts must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.Reconnect.Interval < 0 {
		errs = append(errs, "mqtt.reconnect.interval must not be negative")
	}

	if !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if !validPort(c.WebSocket.Port) {
		errs = append(errs, "websocket.port must be between 1 and 65535")
	}
	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if c.WebSocket.SweepInterval <= 0 {
		errs = append(errs, "websocket.sweep_interval must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return Seconds(c.Timeouts.Read)
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return Seconds(c.Timeouts.Write)
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return Seconds(c.Timeouts.Idle)
}

// Seconds converts a whole-second config value into a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
