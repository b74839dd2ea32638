package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/switchhub/internal/infrastructure/config"
)

// State is the lifecycle state of the broker link.
type State int32

// Broker link states.
//
//	Disconnected → Connecting → Connected → Subscribed
//	                    ▲                        │
//	                    └──────── (drop) ────────┘
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Client wraps paho.mqtt.golang for the switch event feed.
//
// The broker link is long-lived infrastructure: Connect never fails because
// the broker is unreachable, paho retries on a fixed interval for as long as
// the process runs, and every tracked subscription is re-applied after each
// (re)connect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions tracks wanted subscriptions, connected or not.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state   State
	stateMu sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// A returned error is logged and does not affect the connection.
type MessageHandler func(topic string, payload []byte) error

// clientFactory builds the underlying paho client. Replaced in tests.
type clientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Connect starts connecting to the broker and returns immediately.
//
// The first attempt and every retry run in the background on the fixed
// cfg.Reconnect.Interval. Use State or SetOnConnect to observe progress.
//
// Parameters:
//   - cfg: MQTT configuration
//   - logger: Receives connection and handler diagnostics (may be nil)
//
// Returns:
//   - *Client: Client in StateConnecting
//   - error: Only for unusable configuration
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	return connect(cfg, logger, pahomqtt.NewClient)
}

func connect(cfg config.MQTTConfig, logger Logger, factory clientFactory) (*Client, error) {
	if cfg.Broker.Host == "" {
		return nil, fmt.Errorf("%w: broker host is empty", ErrConnectionFailed)
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		state:         StateConnecting,
		logger:        logger,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.setState(StateConnecting)
		if l := c.getLogger(); l != nil {
			l.Info("reconnecting to MQTT broker", "broker", brokerURL(cfg))
		}
	})

	c.client = factory(opts)

	// With ConnectRetry enabled the token completes only once connected
	// (or on Disconnect), so it is not waited on here.
	c.client.Connect()

	return c, nil
}

// handleConnect is called on initial connect and every reconnect.
func (c *Client) handleConnect() {
	c.setState(StateConnected)
	if l := c.getLogger(); l != nil {
		l.Info("connected to MQTT broker", "broker", brokerURL(c.cfg))
	}

	if c.restoreSubscriptions() {
		c.setState(StateSubscribed)
	}

	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when an established connection drops.
// paho's auto-reconnect takes over from here.
func (c *Client) handleDisconnect(err error) {
	c.setState(StateConnecting)
	if l := c.getLogger(); l != nil {
		l.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes every tracked topic and reports whether
// all of them were acknowledged.
func (c *Client) restoreSubscriptions() bool {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	ok := true
	for _, sub := range subs {
		if err := c.subscribeNow(sub); err != nil {
			ok = false
			if l := c.getLogger(); l != nil {
				l.Error("restoring MQTT subscription failed", "topic", sub.topic, "error", err)
			}
		}
	}
	return ok
}

func (c *Client) publishOnlineStatus() {
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, buildOnlinePayload(c.cfg.Broker.ClientID))
}

// Close publishes a graceful offline status (when connected) and disconnects.
// It also stops any background connection retries.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)

	return nil
}

// HealthCheck reports ErrNotConnected unless the link is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: state %s", ErrNotConnected, c.State())
	}
	return nil
}

// State returns the current link state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// IsConnected reports whether the link is up (Connected or Subscribed).
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	s := c.State()
	return (s == StateConnected || s == StateSubscribed) && c.client.IsConnectionOpen()
}

// SetOnConnect sets a callback invoked after every (re)connect, once
// subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when an established connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger replaces the diagnostics logger.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging to a MessageHandler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
