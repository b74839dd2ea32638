package hub

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("hub: already started")

	// ErrNotStarted is returned when Shutdown is called before Start.
	ErrNotStarted = errors.New("hub: not started")
)
