package ingest

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
	"github.com/nerrad567/switchhub/internal/infrastructure/mqtt"
)

// Subscriber is the broker side of the service. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Sink receives every accepted event. *hub.Hub satisfies it.
type Sink interface {
	Ingest(ev device.StatusEvent)
}

// Recorder counts validation outcomes. *hub.Metrics satisfies it.
type Recorder interface {
	EventAccepted()
	EventRejected(reason string)
}

// Config selects the broker feed.
type Config struct {
	Topic string
	QoS   byte
}

// Stats is a snapshot of the service's counters.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Option customises a Service.
type Option func(*Service)

// WithRecorder reports validation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service validates switch messages from the broker and forwards the
// accepted ones to the hub.
//
// Thread Safety:
//   - Handle may be called concurrently; paho runs handlers on its own
//     goroutines.
type Service struct {
	cfg      Config
	broker   Subscriber
	sink     Sink
	recorder Recorder
	logger   *logging.Logger

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New creates a Service. Call Start to subscribe.
func New(cfg Config, broker Subscriber, sink Sink, logger *logging.Logger, opts ...Option) *Service {
	if cfg.Topic == "" {
		cfg.Topic = mqtt.Topics{}.AllSwitches()
	}
	s := &Service{
		cfg:      cfg,
		broker:   broker,
		sink:     sink,
		recorder: noopRecorder{},
		logger:   logger.With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the switch feed. While the broker is unreachable the
// subscription is applied on the next connect and Start returns nil.
func (s *Service) Start() error {
	if err := s.broker.Subscribe(s.cfg.Topic, s.cfg.QoS, s.Handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.cfg.Topic, err)
	}
	s.logger.Info("switch feed subscription registered", "topic", s.cfg.Topic, "qos", s.cfg.QoS)
	return nil
}

// Stop unsubscribes from the switch feed.
func (s *Service) Stop() error {
	if err := s.broker.Unsubscribe(s.cfg.Topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", s.cfg.Topic, err)
	}
	return nil
}

// Handle validates one broker message. Rejections are logged and counted,
// never returned, so a bad device cannot disturb the broker link.
func (s *Service) Handle(topic string, payload []byte) error {
	ev, err := device.Validate(payload)
	if err != nil {
		reason := rejectionReason(err)
		s.rejected.Add(1)
		s.recorder.EventRejected(reason)
		s.logger.Warn("switch message rejected",
			"topic", topic,
			"reason", reason,
			"error", err,
		)
		return nil
	}

	s.accepted.Add(1)
	s.recorder.EventAccepted()
	s.logger.Debug("switch event accepted",
		"topic", topic,
		"device_name", ev.DeviceName,
		"status", ev.Status,
	)

	s.sink.Ingest(ev)
	return nil
}

// Stats returns the accepted and rejected message counts.
func (s *Service) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, device.ErrDecode):
		return "decode"
	case errors.Is(err, device.ErrMissingField):
		return "missing_field"
	case errors.Is(err, device.ErrBadFormat):
		return "bad_format"
	case errors.Is(err, device.ErrBadStatus):
		return "bad_status"
	default:
		return "invalid"
	}
}

type noopRecorder struct{}

func (noopRecorder) EventAccepted()       {}
func (noopRecorder) EventRejected(string) {}
