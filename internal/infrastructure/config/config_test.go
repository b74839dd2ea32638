package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "lab-a"
database:
  path: "/tmp/switches.db"
  pool_retry:
    max_attempts: 3
    delay: 1
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "hub-test"
  qos: 1
  topic: "switches/#"
websocket:
  port: 9000
  ping_interval: 15
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "lab-a" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "lab-a")
	}
	if cfg.Database.PoolRetry.MaxAttempts != 3 {
		t.Errorf("Database.PoolRetry.MaxAttempts = %d, want 3", cfg.Database.PoolRetry.MaxAttempts)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.WebSocket.Port != 9000 {
		t.Errorf("WebSocket.Port = %d, want 9000", cfg.WebSocket.Port)
	}
	if cfg.WebSocket.PingInterval != 15 {
		t.Errorf("WebSocket.PingInterval = %d, want 15", cfg.WebSocket.PingInterval)
	}
	// Untouched sections keep their defaults.
	if cfg.WebSocket.SweepInterval != 60 {
		t.Errorf("WebSocket.SweepInterval = %d, want 60", cfg.WebSocket.SweepInterval)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.MQTT.Topic != "switches/#" {
		t.Errorf("MQTT.Topic = %q, want %q", cfg.MQTT.Topic, "switches/#")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
mqtt:
  topic: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Every problem is reported, not just the first.
	for _, want := range []string{"site.id", "mqtt.topic"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative pool attempts", mutate: func(c *Config) { c.Database.PoolRetry.MaxAttempts = -1 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "missing topic", mutate: func(c *Config) { c.MQTT.Topic = "" }, wantErr: true},
		{name: "invalid api port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid websocket port high", mutate: func(c *Config) { c.WebSocket.Port = 70000 }, wantErr: true},
		{name: "zero ping interval", mutate: func(c *Config) { c.WebSocket.PingInterval = 0 }, wantErr: true},
		{name: "zero sweep interval", mutate: func(c *Config) { c.WebSocket.SweepInterval = 0 }, wantErr: true},
		{
			name: "influx enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIConfig_Timeouts(t *testing.T) {
	cfg := APIConfig{
		Timeouts: APITimeoutConfig{
			Read:  30,
			Write: 45,
			Idle:  60,
		},
	}

	if got := cfg.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := cfg.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := cfg.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(5); got != 5*time.Second {
		t.Errorf("Seconds(5) = %v, want 5s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SWITCHHUB_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SWITCHHUB_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SWITCHHUB_MQTT_PORT", "8883")
	t.Setenv("SWITCHHUB_MQTT_USERNAME", "testuser")
	t.Setenv("SWITCHHUB_MQTT_PASSWORD", "testpass")
	t.Setenv("SWITCHHUB_API_PORT", "4000")
	t.Setenv("SWITCHHUB_WEBSOCKET_PORT", "not-a-number")
	t.Setenv("SWITCHHUB_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SWITCHHUB_CLIENT_URL", "ws://hub:8765/")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Port != 4000 {
		t.Errorf("API.Port = %d, want 4000", cfg.API.Port)
	}
	if cfg.WebSocket.Port != 8765 {
		t.Errorf("WebSocket.Port = %d, want default 8765 for malformed override", cfg.WebSocket.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Client.URL != "ws://hub:8765/" {
		t.Errorf("Client.URL = %q, want %q", cfg.Client.URL, "ws://hub:8765/")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Reconnect.Interval != 5 {
		t.Errorf("MQTT.Reconnect.Interval = %d, want 5", cfg.MQTT.Reconnect.Interval)
	}
	if cfg.API.Port != 3000 {
		t.Errorf("API.Port = %d, want 3000", cfg.API.Port)
	}
	if cfg.WebSocket.Port != 8765 {
		t.Errorf("WebSocket.Port = %d, want 8765", cfg.WebSocket.Port)
	}
	if cfg.WebSocket.PingInterval != 30 || cfg.WebSocket.SweepInterval != 60 {
		t.Errorf("WebSocket intervals = %d/%d, want 30/60", cfg.WebSocket.PingInterval, cfg.WebSocket.SweepInterval)
	}
	if cfg.Client.ReconnectDelay != 2 || cfg.Client.MaxReconnectAttempts != 30 || cfg.Client.CheckInterval != 30 {
		t.Errorf("Client = %+v, want delay 2 attempts 30 check 30", cfg.Client)
	}
	if cfg.Database.PoolRetry.MaxAttempts != 5 || cfg.Database.PoolRetry.Delay != 5 {
		t.Errorf("Database.PoolRetry = %+v, want 5/5", cfg.Database.PoolRetry)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}
	if cfg.MQTT.Topic != "switches/#" {
		t.Errorf("MQTT.Topic = %q, want switches/#", cfg.MQTT.Topic)
	}
	if cfg.WebSocket.SendBuffer != 256 {
		t.Errorf("WebSocket.SendBuffer = %d, want 256", cfg.WebSocket.SendBuffer)
	}
	if cfg.Client.MaxReconnectAttempts != 30 {
		t.Errorf("Client.MaxReconnectAttempts = %d, want 30", cfg.Client.MaxReconnectAttempts)
	}
}
