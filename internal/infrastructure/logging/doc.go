// Package logging provides structured logging for switchhub.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape: JSON in production, text for development, and the
// default fields service=switchhub and version on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	hubLog := logger.With("component", "hub")
//	hubLog.Info("subscriber joined", "subscriber_id", id)
//
// Never log broker or InfluxDB credentials.
package logging
