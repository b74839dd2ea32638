// Package config handles loading and validating switchhub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SWITCHHUB_* environment variables
//   - Validation of required fields
//   - Default values matching the deployed hub (API :3000, live feed :8765)
//
// Broker and InfluxDB credentials should come from the environment rather
// than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/switchhub.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topic)
package config
