package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn a subscriber needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ReadyState is the lifecycle state of a live subscriber.
type ReadyState int32

// Subscriber readiness states.
const (
	Connecting ReadyState = iota
	Open
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ready_state(%d)", int32(s))
	}
}

// Subscriber is one live viewer connection.
//
// Outbound messages go through a buffered queue drained by the write pump,
// so broadcasting never blocks on a slow socket. Until the join snapshot has
// been queued, live messages are held back and flushed right after it. The
// hold keeps at most one queue's worth of messages; older ones are dropped
// rather than evicting a subscriber whose snapshot is slow to load.
type Subscriber struct {
	id   string
	conn Conn

	state    atomic.Int32
	lastPong atomic.Int64 // unix nanoseconds

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu guards the snapshot gate.
	mu              sync.Mutex
	snapshotPending bool
	held            [][]byte
	heldDropped     int
}

func newSubscriber(id string, conn Conn, buffer int, now time.Time) *Subscriber {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscriber{
		id:              id,
		conn:            conn,
		send:            make(chan []byte, buffer),
		done:            make(chan struct{}),
		snapshotPending: true,
	}
	s.state.Store(int32(Connecting))
	s.lastPong.Store(now.UnixNano())
	return s
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// State returns the current readiness.
func (s *Subscriber) State() ReadyState {
	return ReadyState(s.state.Load())
}

func (s *Subscriber) setState(st ReadyState) {
	s.state.Store(int32(st))
}

// LastPong returns when the subscriber last answered a ping.
func (s *Subscriber) LastPong() time.Time {
	return time.Unix(0, s.lastPong.Load())
}

func (s *Subscriber) touch(now time.Time) {
	s.lastPong.Store(now.UnixNano())
}

func (s *Subscriber) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue queues data without blocking. It reports false when the
// subscriber is closed or its queue is full.
func (s *Subscriber) enqueue(data []byte) bool {
	if s.isClosed() {
		return false
	}

	s.mu.Lock()
	if s.snapshotPending {
		defer s.mu.Unlock()
		if n := len(s.held); n >= cap(s.send) {
			copy(s.held, s.held[1:])
			s.held[n-1] = nil
			s.held = s.held[:n-1]
			s.heldDropped++
		}
		s.held = append(s.held, data)
		return true
	}
	s.mu.Unlock()

	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// deliverSnapshot queues msgs, then every live message held back while the
// snapshot was being built, and finally opens the gate. Unlike enqueue it
// waits for queue space, bounded by ctx. It returns how many held messages
// were dropped because the hold overflowed.
func (s *Subscriber) deliverSnapshot(ctx context.Context, msgs [][]byte) (int, bool) {
	if !s.pushAll(ctx, msgs) {
		return s.takeDropped(), false
	}

	for {
		s.mu.Lock()
		batch := s.held
		s.held = nil
		if len(batch) == 0 {
			s.snapshotPending = false
			dropped := s.heldDropped
			s.heldDropped = 0
			s.mu.Unlock()
			return dropped, true
		}
		s.mu.Unlock()

		if !s.pushAll(ctx, batch) {
			return s.takeDropped(), false
		}
	}
}

func (s *Subscriber) takeDropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.heldDropped
	s.heldDropped = 0
	return n
}

func (s *Subscriber) pushAll(ctx context.Context, msgs [][]byte) bool {
	for _, data := range msgs {
		select {
		case s.send <- data:
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// close marks the subscriber Closed and stops its write pump. Safe to call
// more than once.
func (s *Subscriber) close() {
	s.setState(Closed)
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscriber) ping(deadline time.Time) error {
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (s *Subscriber) closeFrame(code int, text string, deadline time.Time) error {
	return s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
