// switchwatch is a terminal viewer for a switchhub WebSocket feed.
//
// It prints every status message as it arrives, keeps a board of the
// latest status per device and reconnects on its own when the hub goes
// away. Send SIGUSR1 to force an immediate reconnect attempt.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
	"github.com/nerrad567/switchhub/internal/liveclient"
)

var version = "dev"

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
		Name:    "switchwatch",
		Usage:   "follow live switch status from a switchhub",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file (optional)",
				EnvVars: []string{"SWITCHHUB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "hub WebSocket URL, overrides client.url",
				EnvVars: []string{"SWITCHWATCH_URL"},
			},
			&cli.DurationFlag{
				Name:  "summary",
				Usage: "print a board summary at this interval (0 disables)",
				Value: time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if u := c.String("url"); u != "" {
				cfg.Client.URL = u
			}

			// stdout carries the feed; diagnostics go to stderr.
			log := logging.NewWithWriter(cfg.Logging, version, c.App.ErrWriter)

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGUSR1)
			defer signal.Stop(signals)

			return watch(c.Context, watchOptions{
				Client:  liveclient.ConfigFrom(cfg.Client),
				Logger:  log,
				Out:     c.App.Writer,
				Signals: signals,
				Summary: c.Duration("summary"),
			})
		},
	}
}

type watchOptions struct {
	Client  liveclient.Config
	Logger  *logging.Logger
	Out     io.Writer
	Signals <-chan os.Signal
	Summary time.Duration
}

// watch follows the feed until ctx ends, then prints a final summary.
func watch(ctx context.Context, opts watchOptions) error {
	out := &syncWriter{w: opts.Out}
	client := liveclient.New(opts.Client, opts.Logger)
	board := liveclient.NewBoard()

	client.Subscribe(board.Apply)
	client.Subscribe(func(msg device.Message) error {
		return printMessage(out, msg)
	})
	client.OnConnectionChange(func(connected bool) {
		if connected {
			out.printf("# connected to %s\n", opts.Client.URL)
			return
		}
		out.printf("# disconnected from %s\n", opts.Client.URL)
	})

	client.Connect()
	defer client.Close() //nolint:errcheck // Close never fails

	var tick <-chan time.Time
	if opts.Summary > 0 {
		ticker := time.NewTicker(opts.Summary)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			printSummary(out, board)
			return nil
		case <-opts.Signals:
			out.printf("# reconnect requested\n")
			client.FocusGained()
		case <-tick:
			printSummary(out, board)
		}
	}
}

func printMessage(out *syncWriter, msg device.Message) error {
	if msg.DeviceName == "" {
		return nil
	}
	suffix := ""
	if msg.Source == device.SourceDatabase {
		suffix = " (snapshot)"
	}
	return out.printf("%s %-12s %s%s\n",
		msg.Time.UTC().Format(time.RFC3339), msg.DeviceName, msg.Status, suffix)
}

func printSummary(out *syncWriter, board *liveclient.Board) {
	out.printf("# %d devices, %d on\n", board.Len(), board.CountOn())
	for _, e := range board.Entries() {
		out.printf("#   %-12s %-3s %s\n", e.DeviceName, e.Status, e.Time.UTC().Format(time.RFC3339))
	}
}

// syncWriter serialises writes from the dispatch goroutine and the main loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, format, args...)
	return err
}
