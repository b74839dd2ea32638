package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/switchhub/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds one connection attempt when unset in config.
	defaultConnectTimeout = 10 * time.Second

	// defaultReconnectInterval is used when the config interval is zero.
	defaultReconnectInterval = 5 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish/subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// reconnectInterval returns the fixed delay between connection attempts.
func reconnectInterval(cfg config.MQTTConfig) time.Duration {
	if cfg.Reconnect.Interval <= 0 {
		return defaultReconnectInterval
	}
	return config.Seconds(cfg.Reconnect.Interval)
}

// buildClientOptions creates paho MQTT options from switchhub config.
//
// Both the initial connect and reconnects retry forever on the same fixed
// interval: ConnectRetryInterval covers the first connection and a
// MaxReconnectInterval equal to it pins paho's reconnect backoff.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	interval := reconnectInterval(cfg)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(interval)
	opts.SetMaxReconnectInterval(interval)

	connectTimeout := defaultConnectTimeout
	if cfg.Reconnect.ConnectTimeout > 0 {
		connectTimeout = config.Seconds(cfg.Reconnect.ConnectTimeout)
	}
	opts.SetConnectTimeout(connectTimeout)

	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets up Last Will and Testament so dashboards and operators
// can see when the hub drops off the broker unexpectedly.
//
// Topic: switchhub/system/status, QoS 1, retained.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":%q,"reason":"unexpected_disconnect"}`,
		clientID,
	)
	opts.SetWill(Topics{}.SystemStatus(), willPayload, 1, true)
}

func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":%q,"timestamp":%q}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":%q,"reason":"graceful_shutdown","timestamp":%q}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
