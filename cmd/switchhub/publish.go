package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
	"github.com/nerrad567/switchhub/internal/infrastructure/mqtt"
)

// connectPollInterval is how often publish checks whether the broker link is up.
const connectPollInterval = 100 * time.Millisecond

func publishAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: switchhub publish <device_name> <on|off>")
	}

	payload, err := switchPayload(c.Args().Get(0), c.Args().Get(1), time.Now())
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	client, err := mqtt.Connect(cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("configuring MQTT: %w", err)
	}
	defer client.Close() //nolint:errcheck // Close never fails

	timeout := config.Seconds(cfg.MQTT.Reconnect.ConnectTimeout)
	if err := waitConnected(c.Context, client, timeout); err != nil {
		return err
	}

	topic := mqtt.Topics{}.Switch(c.Args().Get(0))
	// #nosec G115 -- qos validated to 0..2
	if err := client.Publish(topic, payload, byte(cfg.MQTT.QoS), false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	fmt.Fprintf(c.App.Writer, "published %s %s\n", topic, payload)
	return nil
}

// switchPayload builds the broker message for one switch, validated the
// same way the hub will validate it.
func switchPayload(deviceName, status string, ts time.Time) ([]byte, error) {
	st, ok := device.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("status must be on or off, got %q", status)
	}

	payload, err := device.Normalize(deviceName, string(st), ts, "").MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	if _, err := device.Validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func waitConnected(ctx context.Context, client *mqtt.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()

	for !client.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: broker not reachable within %v", mqtt.ErrNotConnected, timeout)
		case <-ticker.C:
		}
	}
	return nil
}
