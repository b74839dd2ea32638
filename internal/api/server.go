package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusReader is the read side of the durable store.
type StatusReader interface {
	LatestStatusOfAllDevices(ctx context.Context) ([]device.StatusRecord, error)
	DeviceHistory(ctx context.Context, deviceName string, limit int) ([]device.StatusRecord, error)
	DailyUsage(ctx context.Context, days int) ([]device.DailyUsage, error)
}

// HealthChecker is implemented by every component the health endpoint probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SubscriberCounter reports the number of live subscribers.
type SubscriberCounter interface {
	Count() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Store   StatusReader
	Hub     SubscriberCounter        // optional
	Checks  map[string]HealthChecker // optional, probed by /api/v1/health
	Metrics prometheus.Gatherer      // optional, served on /metrics
	Version string
}

// Server is the HTTP status query server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	store   StatusReader
	hub     SubscriberCounter
	checks  map[string]HealthChecker
	metrics prometheus.Gatherer
	version string

	startTime time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server. The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("status store is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		store:     deps.Store,
		hub:       deps.Hub,
		checks:    deps.Checks,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. A busy
// port is reported here rather than from the goroutine.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
