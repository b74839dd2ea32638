package store

import "errors"

var (
	// ErrUnavailable is returned when the connection pool could not be
	// created within the configured attempts. The next call starts a new
	// attempt sequence.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("store: closed")

	// ErrInvalidDevice is returned for an empty device name.
	ErrInvalidDevice = errors.New("store: device name is required")
)
