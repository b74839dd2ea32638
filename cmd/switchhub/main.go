// switchhub keeps live viewers in sync with the on/off state of every
// switch on the site.
//
// It subscribes to the MQTT switch feed, validates each message, records it
// in SQLite and broadcasts it to WebSocket subscribers. New subscribers
// receive the latest stored status of every device before live traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/nerrad567/switchhub/internal/api"
	"github.com/nerrad567/switchhub/internal/hub"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/database"
	"github.com/nerrad567/switchhub/internal/infrastructure/influxdb"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
	"github.com/nerrad567/switchhub/internal/infrastructure/mqtt"
	"github.com/nerrad567/switchhub/internal/ingest"
	"github.com/nerrad567/switchhub/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the WebSocket listener shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "switchhub",
		Usage:                "real-time switch state hub",
		Version:              fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				Value:   defaultConfigPath,
				EnvVars: []string{"SWITCHHUB_CONFIG"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the hub (default)",
				Action: serveAction,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the configuration, then exit",
				Action: checkConfigAction,
			},
			{
				Name:      "publish",
				Usage:     "publish one switch event to the broker",
				ArgsUsage: "<device_name> <on|off>",
				Action:    publishAction,
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	return run(c.Context, c.String("config"))
}

func checkConfigAction(c *cli.Context) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "configuration ok: %s (site %s)\n", path, cfg.Site.ID)
	return nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting switchhub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"level", cfg.Logging.Level,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := hub.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// The pool opens lazily, so an unreachable database degrades the hub
	// instead of stopping it.
	statusStore := store.New(store.Config{
		Database: database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		},
		MaxAttempts: cfg.Database.PoolRetry.MaxAttempts,
		RetryDelay:  config.Seconds(cfg.Database.PoolRetry.Delay),
	}, log)
	defer func() {
		log.Info("closing status store")
		if closeErr := statusStore.Close(); closeErr != nil {
			log.Error("error closing status store", "error", closeErr)
		}
	}()

	checks := map[string]api.HealthChecker{"store": statusStore}
	hubOpts := []hub.Option{hub.WithMetrics(metrics)}

	influxClient := connectInflux(cfg.InfluxDB, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		hubOpts = append(hubOpts, hub.WithSink(influxClient))
		checks["influxdb"] = influxClient
	}

	h := hub.New(hub.ConfigFrom(cfg.WebSocket), statusStore, log, hubOpts...)
	// The writer outlives ctx so events delivered during shutdown are still
	// persisted; Stop drains them.
	if err := h.Start(context.Background()); err != nil {
		return fmt.Errorf("starting hub: %w", err)
	}
	defer func() {
		log.Info("stopping hub")
		h.Stop()
	}()

	manager := hub.NewManager(hub.ManagerConfigFrom(cfg.WebSocket), h, log)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting websocket listener: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := manager.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("error shutting down websocket listener", "error", shutdownErr)
		}
	}()

	// Connect never waits for the broker; the link retries in the background.
	mqttClient, err := mqtt.Connect(cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("configuring MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected", "state", mqttClient.State().String())
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	checks["mqtt"] = mqttClient

	feed := ingest.New(ingest.Config{
		Topic: cfg.MQTT.Topic,
		QoS:   byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
	}, mqttClient, h, log, ingest.WithRecorder(metrics))
	if err := feed.Start(); err != nil {
		return fmt.Errorf("starting switch feed: %w", err)
	}
	defer func() {
		if stopErr := feed.Stop(); stopErr != nil {
			log.Warn("error stopping switch feed", "error", stopErr)
		}
		stats := feed.Stats()
		log.Info("switch feed stopped", "accepted", stats.Accepted, "rejected", stats.Rejected)
	}()

	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Store:   statusStore,
		Hub:     h,
		Checks:  checks,
		Metrics: registry,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"websocket", manager.Addr().String(),
		"api", apiServer.Addr(),
	)

	<-ctx.Done()

	// Deferred calls run in reverse: API, switch feed, MQTT, WebSocket
	// listener, hub (drains queued writes), InfluxDB, store.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// connectInflux returns nil when the mirror is disabled or unreachable.
// SQLite stays the system of record either way.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without telemetry mirror", "error", err)
		return nil
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client
}
