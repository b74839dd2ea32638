package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
)

const (
	defaultPingInterval  = 30 * time.Second
	defaultPongTimeout   = 10 * time.Second
	defaultSweepInterval = 60 * time.Second
	controlWriteTimeout  = 5 * time.Second
	readHeaderTimeout    = 10 * time.Second
)

// ManagerConfig controls the listener and the two keepalive sweeps.
type ManagerConfig struct {
	Addr          string
	Path          string
	PingInterval  time.Duration
	PongTimeout   time.Duration
	SweepInterval time.Duration
}

// ManagerConfigFrom derives listener settings from the websocket config section.
func ManagerConfigFrom(ws config.WebSocketConfig) ManagerConfig {
	return ManagerConfig{
		Addr:          fmt.Sprintf("%s:%d", ws.Host, ws.Port),
		Path:          ws.Path,
		PingInterval:  config.Seconds(ws.PingInterval),
		PongTimeout:   config.Seconds(ws.PongTimeout),
		SweepInterval: config.Seconds(ws.SweepInterval),
	}
}

// Manager owns the WebSocket listener. Upgraded connections join the hub;
// a ping sweep keeps them alive and a liveness sweep removes the ones that
// stopped answering.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	cfg      ManagerConfig
	hub      *Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	sweeps   sync.WaitGroup
	closing  atomic.Bool
}

// NewManager creates a Manager serving subscribers for h.
func NewManager(cfg ManagerConfig, h *Hub, logger *logging.Logger) *Manager {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	return &Manager{
		cfg:    cfg,
		hub:    h,
		logger: logger.With("component", "subscribers"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Viewers are unauthenticated and may be served from anywhere.
				return true
			},
		},
	}
}

// Start binds the listener, begins serving and starts both sweeps.
// It returns once the listener is bound.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.cfg.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(m.cfg.Path, m)

	m.listener = ln
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("subscriber listener failed", "error", err)
		}
	}()

	sweepCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.sweeps.Add(2)
	go m.runEvery(sweepCtx, m.cfg.PingInterval, m.PingAll)
	go m.runEvery(sweepCtx, m.cfg.SweepInterval, m.SweepStale)

	m.logger.Info("subscriber listener started",
		"address", ln.Addr().String(),
		"path", m.cfg.Path,
		"ping_interval", m.cfg.PingInterval,
		"sweep_interval", m.cfg.SweepInterval,
	)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// ServeHTTP upgrades the request and joins the connection to the hub.
// Once Shutdown has begun new connections get 503.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := m.hub.Join(conn)
	m.logger.Debug("websocket connection accepted", "remote", r.RemoteAddr, "subscriber_id", sub.ID())
}

func (m *Manager) runEvery(ctx context.Context, interval time.Duration, fn func()) {
	defer m.sweeps.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// PingAll sends a keepalive ping to every open subscriber. A failed ping
// removes that subscriber.
func (m *Manager) PingAll() {
	deadline := time.Now().Add(controlWriteTimeout)
	for _, sub := range m.hub.Subscribers() {
		if sub.State() != Open {
			continue
		}
		if err := sub.ping(deadline); err != nil {
			m.logger.Debug("ping failed", "subscriber_id", sub.ID(), "error", err)
			m.hub.remove(sub, "ping_failed")
		}
	}
}

// SweepStale removes subscribers that are no longer open or whose last pong
// is older than the ping interval plus the pong timeout.
func (m *Manager) SweepStale() {
	cutoff := m.hub.now().Add(-(m.cfg.PingInterval + m.cfg.PongTimeout))
	removed := 0
	for _, sub := range m.hub.Subscribers() {
		if sub.State() == Open && !sub.LastPong().Before(cutoff) {
			continue
		}
		m.hub.remove(sub, "stale")
		removed++
	}
	if removed > 0 {
		m.logger.Info("stale subscribers removed", "count", removed, "remaining", m.hub.Count())
	}
}

// Shutdown stops the sweeps, terminates every subscriber connection and
// closes the listener. Upgrades are refused from the start of Shutdown, so
// no connection joins between terminating subscribers and closing the
// listener. A failing step is logged and the remaining steps still run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	server, cancel := m.server, m.cancel
	m.mu.Unlock()

	if server == nil {
		return ErrNotStarted
	}

	m.closing.Store(true)
	cancel()
	m.sweeps.Wait()
	m.logger.Info("subscriber sweeps stopped")

	var errs []error
	deadline := time.Now().Add(controlWriteTimeout)
	for _, sub := range m.hub.Subscribers() {
		if err := sub.closeFrame(websocket.CloseGoingAway, "server shutdown", deadline); err != nil {
			m.logger.Debug("close frame not delivered", "subscriber_id", sub.ID(), "error", err)
		}
		m.hub.remove(sub, "shutdown")
	}
	m.logger.Info("subscriber connections terminated")

	if err := server.Shutdown(ctx); err != nil {
		m.logger.Error("closing subscriber listener", "error", err)
		errs = append(errs, fmt.Errorf("closing listener: %w", err))
	} else {
		m.logger.Info("subscriber listener closed")
	}

	return errors.Join(errs...)
}
