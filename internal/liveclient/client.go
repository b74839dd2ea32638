package liveclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
)

const (
	defaultReconnectDelay       = 2 * time.Second
	defaultMaxReconnectAttempts = 30
	defaultCheckInterval        = 30 * time.Second
	defaultDialTimeout          = 10 * time.Second
	pingWriteTimeout            = 5 * time.Second
)

// State is the client's connection state.
type State int32

// Connection states.
const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives every decoded status message. A returned error is logged.
type Handler func(msg device.Message) error

// ConnectionObserver is told whenever the connection goes up or down.
type ConnectionObserver func(connected bool)

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config controls reconnection behaviour.
type Config struct {
	URL                  string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	CheckInterval        time.Duration
	DialTimeout          time.Duration
}

// ConfigFrom derives client settings from the client config section.
func ConfigFrom(c config.ClientConfig) Config {
	return Config{
		URL:                  c.URL,
		ReconnectDelay:       config.Seconds(c.ReconnectDelay),
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		CheckInterval:        config.Seconds(c.CheckInterval),
	}
}

// Option customises a Client.
type Option func(*Client)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

type handlerEntry struct {
	id uint64
	fn Handler
}

type observerEntry struct {
	id uint64
	fn ConnectionObserver
}

// Client keeps a viewer connected to the hub.
//
// After a drop it reconnects on a fixed delay up to a bounded number of
// attempts. External signals (network restored, focus, visibility) force an
// immediate attempt with a fresh budget. While open, a periodic check pings
// the hub so a silently dead link is noticed.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Handlers and observers run synchronously on the client's goroutines
//     and must not block for long.
type Client struct {
	cfg    Config
	dialer Dialer
	logger *logging.Logger

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	connecting bool
	attempts   int
	retry      *time.Timer
	checkStop  chan struct{}
	closed     bool

	regMu     sync.RWMutex
	nextID    uint64
	handlers  []handlerEntry
	observers []observerEntry

	wg sync.WaitGroup
}

// New creates a Client. Call Connect to open the first connection.
func New(cfg Config, logger *logging.Logger, opts ...Option) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	c := &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.With("component", "liveclient"),
		state:  Closed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect attempts since the last
// successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect starts a connection attempt unless the client is already open or
// an attempt is in flight. It does not wait for the result.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

func (c *Client) connectLocked() {
	if c.closed || c.state == Open || c.connecting {
		return
	}
	c.connecting = true
	c.state = Connecting
	c.stopCheckLocked()

	c.wg.Add(1)
	go c.dial()
}

func (c *Client) dial() {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	c.logger.Debug("connecting to hub", "url", c.cfg.URL)
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn("hub connection failed", "url", c.cfg.URL, "error", err)
		c.connectionLost(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close() //nolint:errcheck // client closed while dialing
		return
	}
	c.conn = conn
	c.state = Open
	c.connecting = false
	c.attempts = 0
	c.cancelRetryLocked()
	c.startCheckLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("connected to hub", "url", c.cfg.URL)
	c.notify(true)

	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Info("hub connection closed", "error", err)
			c.connectionLost(conn)
			return
		}
		c.dispatch(data)
	}
}

// connectionLost handles a closed connection or failed dial. conn is nil for
// a failed dial; a stale conn (already replaced) is ignored.
func (c *Client) connectionLost(conn *websocket.Conn) {
	c.mu.Lock()
	if conn != nil && c.conn != conn {
		c.mu.Unlock()
		return
	}
	if conn != nil {
		conn.Close() //nolint:errcheck // already failed
		c.conn = nil
	}
	c.state = Closed
	c.connecting = false
	c.stopCheckLocked()
	closed := c.closed
	if !closed {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if !closed {
		c.notify(false)
	}
}

// scheduleReconnectLocked arms one delayed attempt unless one is pending or
// the attempt budget is spent.
func (c *Client) scheduleReconnectLocked() {
	if c.retry != nil {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Warn("max reconnection attempts reached", "attempts", c.attempts)
		return
	}

	c.logger.Info("reconnecting",
		"attempt", c.attempts+1,
		"max_attempts", c.cfg.MaxReconnectAttempts,
		"delay", c.cfg.ReconnectDelay,
	)
	var timer *time.Timer
	timer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.retry != timer {
			return // cancelled or superseded
		}
		c.retry = nil
		c.attempts++
		c.connectLocked()
	})
	c.retry = timer
}

func (c *Client) cancelRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) startCheckLocked() {
	c.stopCheckLocked()
	stop := make(chan struct{})
	c.checkStop = stop

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.checkLiveness()
			}
		}
	}()
}

func (c *Client) stopCheckLocked() {
	if c.checkStop != nil {
		close(c.checkStop)
		c.checkStop = nil
	}
}

// checkLiveness pings an open connection; a failed ping closes it, which
// the read loop turns into a reconnect. A client that is not open gets an
// immediate attempt.
func (c *Client) checkLiveness() {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != Open || conn == nil {
		c.CheckConnection()
		return
	}
	if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteTimeout)); err != nil {
		c.logger.Warn("liveness ping failed", "error", err)
		conn.Close() //nolint:errcheck // read loop reports the failure
	}
}

// CheckConnection forces an immediate attempt with a fresh retry budget
// when the client is not open.
func (c *Client) CheckConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state == Open {
		return
	}
	c.logger.Info("connection check failed, reconnecting now")
	c.attempts = 0
	c.cancelRetryLocked()
	c.connectLocked()
}

// NetworkRestored reacts to the host regaining connectivity.
func (c *Client) NetworkRestored() {
	c.logger.Info("network connection restored")
	c.CheckConnection()
}

// NetworkLost reacts to the host losing connectivity by telling observers
// the hub is unreachable. Reconnection is left to the normal retry path.
func (c *Client) NetworkLost() {
	c.logger.Info("network connection lost")
	c.notify(false)
}

// FocusGained reacts to the viewer regaining focus.
func (c *Client) FocusGained() {
	c.CheckConnection()
}

// VisibilityChanged reacts to the viewer being shown or hidden.
func (c *Client) VisibilityChanged(visible bool) {
	if visible {
		c.CheckConnection()
	}
}

// Subscribe registers h for every inbound status message and returns a
// function that removes exactly this registration.
func (c *Client) Subscribe(h Handler) (unsubscribe func()) {
	c.regMu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, handlerEntry{id: id, fn: h})
	c.regMu.Unlock()

	return func() {
		c.regMu.Lock()
		defer c.regMu.Unlock()
		for i, e := range c.handlers {
			if e.id == id {
				c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// OnConnectionChange registers o for connection changes and returns a
// function that removes exactly this registration. If the client is
// already open, o is called with true before OnConnectionChange returns.
func (c *Client) OnConnectionChange(o ConnectionObserver) (unsubscribe func()) {
	c.regMu.Lock()
	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, observerEntry{id: id, fn: o})
	c.regMu.Unlock()

	if c.State() == Open {
		c.safeObserve(o, true)
	}

	return func() {
		c.regMu.Lock()
		defer c.regMu.Unlock()
		for i, e := range c.observers {
			if e.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) notify(connected bool) {
	c.regMu.RLock()
	observers := make([]observerEntry, len(c.observers))
	copy(observers, c.observers)
	c.regMu.RUnlock()

	for _, o := range observers {
		c.safeObserve(o.fn, connected)
	}
}

func (c *Client) safeObserve(o ConnectionObserver, connected bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connection observer panic recovered", "panic", r)
		}
	}()
	o(connected)
}

// dispatch decodes one inbound frame and hands it to every handler in
// registration order. Application-level pong frames are dropped.
func (c *Client) dispatch(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.Error("undecodable hub message", "error", err, "bytes", len(data))
		return
	}
	if envelope.Type == "pong" {
		return
	}

	var msg device.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("undecodable hub message", "error", err, "bytes", len(data))
		return
	}

	c.regMu.RLock()
	handlers := make([]handlerEntry, len(c.handlers))
	copy(handlers, c.handlers)
	c.regMu.RUnlock()

	for _, h := range handlers {
		c.safeHandle(h.fn, msg)
	}
}

func (c *Client) safeHandle(h Handler, msg device.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panic recovered", "device_name", msg.DeviceName, "panic", r)
		}
	}()
	if err := h(msg); err != nil {
		c.logger.Warn("message handler returned error", "device_name", msg.DeviceName, "error", err)
	}
}

// Close stops reconnecting, closes the connection and waits for the
// client's goroutines to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancelRetryLocked()
	c.stopCheckLocked()
	conn := c.conn
	c.conn = nil
	c.state = Closed
	c.mu.Unlock()

	var err error
	if conn != nil {
		//nolint:errcheck // best-effort close handshake
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(pingWriteTimeout))
		err = conn.Close()
	}

	c.wg.Wait()
	return err
}
