package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
)

const (
	defaultWriteQueue   = 1024
	defaultWriteTimeout = 10 * time.Second
	defaultStoreTimeout = 30 * time.Second
	defaultSnapshotWait = 5 * time.Second
	drainTimeout        = 5 * time.Second
)

// StatusStore is the durable side of the hub. *store.Store satisfies it.
type StatusStore interface {
	RecordEvent(ctx context.Context, ev device.StatusEvent) error
	LatestStatusOfAllDevices(ctx context.Context) ([]device.StatusRecord, error)
}

// EventSink receives a copy of every accepted event. Implementations must
// not block.
type EventSink interface {
	WriteSwitchEvent(ev device.StatusEvent)
}

// Config sizes the hub's queues and bounds its I/O.
type Config struct {
	// SendBuffer is the per-subscriber outbound queue length.
	SendBuffer int

	// WriteQueue is the number of store writes that may wait for the writer.
	WriteQueue int

	// MaxMessageSize caps inbound subscriber frames.
	MaxMessageSize int64

	// WriteTimeout bounds one socket write.
	WriteTimeout time.Duration

	// StoreTimeout bounds one store call, pool retries included.
	StoreTimeout time.Duration

	// SnapshotTimeout bounds the store read behind a join snapshot. Live
	// traffic for the joiner is held until it returns.
	SnapshotTimeout time.Duration
}

// ConfigFrom derives hub settings from the websocket config section.
func ConfigFrom(ws config.WebSocketConfig) Config {
	return Config{
		SendBuffer:     ws.SendBuffer,
		MaxMessageSize: int64(ws.MaxMessageSize),
		WriteTimeout:   config.Seconds(ws.PongTimeout),
	}
}

// Option customises a Hub.
type Option func(*Hub)

// WithSink adds a telemetry sink fed from Ingest.
func WithSink(sink EventSink) Option {
	return func(h *Hub) { h.sinks = append(h.sinks, sink) }
}

// WithMetrics records hub activity in m.
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithClock replaces the clock used for pong bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// Hub fans accepted switch events out to live subscribers and writes them
// through to the durable store.
//
// Ingest and Broadcast are serialized, so subscribers see events in the
// order they were ingested. The store write runs on a single writer
// goroutine in the same order and may complete after the broadcast.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Hub struct {
	cfg     Config
	store   StatusStore
	sinks   []EventSink
	metrics *Metrics
	logger  *logging.Logger
	now     func() time.Time

	subs cmap.ConcurrentMap[string, *Subscriber]

	// ingestMu serializes Ingest and Broadcast.
	ingestMu sync.Mutex
	writes   chan device.StatusEvent

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once

	// lifeMu orders Join's goroutine starts against Stop's wait.
	lifeMu  sync.Mutex
	stopped bool
}

// New creates a Hub. Call Start to begin writing through to the store.
func New(cfg Config, store StatusStore, logger *logging.Logger, opts ...Option) *Hub {
	if cfg.WriteQueue <= 0 {
		cfg.WriteQueue = defaultWriteQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = defaultSnapshotWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "hub"),
		now:    time.Now,
		subs:   cmap.New[*Subscriber](),
		writes: make(chan device.StatusEvent, cfg.WriteQueue),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the store writer. It returns immediately; the writer runs
// until ctx is cancelled or Stop is called. Writes queued after the writer
// exits are flushed by Stop.
func (h *Hub) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	h.wg.Add(1)
	go h.writeLoop(ctx)

	h.logger.Info("hub started", "write_queue", h.cfg.WriteQueue, "send_buffer", h.cfg.SendBuffer)
	return nil
}

// Stop removes every subscriber, flushes queued store writes and waits for
// all hub goroutines to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.lifeMu.Lock()
		h.stopped = true
		h.lifeMu.Unlock()

		h.cancel()
		for _, sub := range h.subs.Items() {
			h.remove(sub, "shutdown")
		}
		h.wg.Wait()
		h.drain()
		h.logger.Info("hub stopped")
	})
}

// Ingest accepts a validated event: it queues the store write, feeds the
// telemetry sinks and broadcasts to every open subscriber.
func (h *Hub) Ingest(ev device.StatusEvent) {
	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()

	select {
	case h.writes <- ev:
	default:
		h.metrics.storeWrite("dropped", 0)
		h.logger.Warn("store write queue full, dropping write",
			"device_name", ev.DeviceName,
			"status", ev.Status,
		)
	}

	for _, sink := range h.sinks {
		sink.WriteSwitchEvent(ev)
	}

	h.broadcastLocked(ev)
}

// Broadcast sends ev to every open subscriber. A subscriber whose queue
// cannot take the message is removed; the others are unaffected.
func (h *Hub) Broadcast(ev device.StatusEvent) {
	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()
	h.broadcastLocked(ev)
}

func (h *Hub) broadcastLocked(ev device.StatusEvent) {
	data, err := json.Marshal(ev.Message())
	if err != nil {
		h.logger.Error("marshalling broadcast message", "device_name", ev.DeviceName, "error", err)
		return
	}

	recipients := 0
	for _, sub := range h.subs.Items() {
		if sub.State() != Open {
			continue
		}
		if !sub.enqueue(data) {
			h.metrics.sendFailed()
			h.logger.Warn("subscriber queue unavailable, removing", "subscriber_id", sub.id)
			h.remove(sub, "send_failed")
			continue
		}
		recipients++
	}

	h.metrics.broadcast()
	h.logger.Debug("event broadcast",
		"device_name", ev.DeviceName,
		"status", ev.Status,
		"recipients", recipients,
	)
}

// Join registers conn as a live subscriber, starts its pumps and queues the
// current status of every device to it before any live traffic. After Stop
// the connection is closed and the returned subscriber is already Closed.
func (h *Hub) Join(conn Conn) *Subscriber {
	sub := newSubscriber(uuid.NewString(), conn, h.cfg.SendBuffer, h.now())

	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()
	if h.stopped {
		sub.close()
		if err := conn.Close(); err != nil {
			h.logger.Debug("closing refused connection", "subscriber_id", sub.id, "error", err)
		}
		h.logger.Debug("join refused, hub stopped", "subscriber_id", sub.id)
		return sub
	}

	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	conn.SetPongHandler(func(string) error {
		sub.touch(h.now())
		return nil
	})

	sub.setState(Open)
	h.subs.Set(sub.id, sub)
	h.metrics.subscriberJoined()
	h.logger.Info("subscriber joined", "subscriber_id", sub.id, "subscribers", h.subs.Count())

	h.wg.Add(3)
	go h.writePump(sub)
	go h.readPump(sub)
	go h.sendSnapshot(sub)

	return sub
}

// Remove unregisters sub and closes its connection. Removing an already
// removed subscriber is a no-op.
func (h *Hub) Remove(sub *Subscriber) {
	h.remove(sub, "removed")
}

func (h *Hub) remove(sub *Subscriber, reason string) {
	if _, ok := h.subs.Pop(sub.id); !ok {
		sub.close()
		return
	}

	sub.close()
	if err := sub.conn.Close(); err != nil {
		h.logger.Debug("closing subscriber connection", "subscriber_id", sub.id, "error", err)
	}

	h.metrics.subscriberRemoved(reason)
	h.logger.Info("subscriber removed",
		"subscriber_id", sub.id,
		"reason", reason,
		"subscribers", h.subs.Count(),
	)
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	return h.subs.Count()
}

// Subscribers returns a point-in-time copy of the registered subscribers.
func (h *Hub) Subscribers() []*Subscriber {
	items := h.subs.Items()
	subs := make([]*Subscriber, 0, len(items))
	for _, sub := range items {
		subs = append(subs, sub)
	}
	return subs
}

func (h *Hub) sendSnapshot(sub *Subscriber) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.SnapshotTimeout)
	defer cancel()

	var msgs [][]byte
	records, err := h.store.LatestStatusOfAllDevices(ctx)
	if err != nil {
		h.metrics.snapshot("store_error")
		h.logger.Warn("snapshot unavailable, subscriber stays registered",
			"subscriber_id", sub.id,
			"error", err,
		)
	} else {
		msgs = make([][]byte, 0, len(records))
		for _, rec := range records {
			data, err := json.Marshal(rec.Message())
			if err != nil {
				h.logger.Error("marshalling snapshot entry", "device_name", rec.DeviceName, "error", err)
				continue
			}
			msgs = append(msgs, data)
		}
	}

	sendCtx, cancelSend := context.WithTimeout(h.ctx, h.cfg.StoreTimeout)
	defer cancelSend()

	dropped, ok := sub.deliverSnapshot(sendCtx, msgs)
	if dropped > 0 {
		h.metrics.heldDropped(dropped)
		h.logger.Warn("live messages dropped while snapshot was pending",
			"subscriber_id", sub.id,
			"dropped", dropped,
		)
	}
	if !ok {
		if sub.isClosed() {
			return
		}
		h.metrics.snapshot("send_error")
		h.remove(sub, "send_failed")
		return
	}

	if err == nil {
		h.metrics.snapshot("sent")
		h.logger.Debug("snapshot queued", "subscriber_id", sub.id, "devices", len(msgs))
	}
}

func (h *Hub) writePump(sub *Subscriber) {
	defer h.wg.Done()

	for {
		select {
		case data := <-sub.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			sub.conn.SetWriteDeadline(h.now().Add(h.cfg.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("subscriber write failed", "subscriber_id", sub.id, "error", err)
				h.remove(sub, "write_error")
				return
			}
		case <-sub.done:
			return
		}
	}
}

// readPump drains inbound frames so control frames (pong, close) are
// processed. Application payloads are ignored.
func (h *Hub) readPump(sub *Subscriber) {
	defer h.wg.Done()

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			reason := "closed"
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				reason = "read_error"
				if !sub.isClosed() {
					h.logger.Warn("subscriber read error", "subscriber_id", sub.id, "error", err)
				}
			}
			h.remove(sub, reason)
			return
		}
		h.logger.Debug("ignoring subscriber message", "subscriber_id", sub.id, "bytes", len(data))
	}
}

func (h *Hub) writeLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case ev := <-h.writes:
			h.write(ctx, ev)
		case <-ctx.Done():
			h.drain()
			return
		case <-h.ctx.Done():
			h.drain()
			return
		}
	}
}

// drain flushes writes still queued at shutdown, bounded by drainTimeout.
func (h *Hub) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-h.writes:
			h.write(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			h.logger.Warn("store writes abandoned at shutdown", "pending", len(h.writes))
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, ev device.StatusEvent) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	if err := h.store.RecordEvent(ctx, ev); err != nil {
		h.metrics.storeWrite("error", time.Since(start).Seconds())
		h.logger.Warn("store write failed",
			"device_name", ev.DeviceName,
			"status", ev.Status,
			"error", err,
		)
		return
	}
	h.metrics.storeWrite("ok", time.Since(start).Seconds())
}
