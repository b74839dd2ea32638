package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/switchhub/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for unit tests.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "switchhub-test",
		},
		QoS:   1,
		Topic: "switches/#",
		Reconnect: config.MQTTReconnectConfig{
			Interval: 5,
		},
	}
}

// =============================================================================
// Fakes
// =============================================================================

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakePaho records calls and lets tests drive connection callbacks.
type fakePaho struct {
	mu           sync.Mutex
	opts         *pahomqtt.ClientOptions
	open         bool
	connects     int
	disconnected bool
	subscribed   map[string]pahomqtt.MessageHandler
	subscribeErr error
	published    []string
}

func newFakePaho() *fakePaho {
	return &fakePaho{subscribed: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) factory(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	f.opts = opts
	return f
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }

func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(_ uint) {
	f.mu.Lock()
	f.open = false
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	f.mu.Lock()
	f.published = append(f.published, topic)
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.subscribed[topic] = cb
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(_ map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	for _, t := range topics {
		delete(f.subscribed, t)
	}
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(_ string, _ pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(f.opts)
}

// brokerUp simulates paho establishing the connection.
func (f *fakePaho) brokerUp() {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.opts.OnConnect(f)
}

// brokerDown simulates paho losing the connection.
func (f *fakePaho) brokerDown(err error) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.opts.OnConnectionLost(f, err)
}

func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	var cb pahomqtt.MessageHandler
	for filter, h := range f.subscribed {
		if filter == topic || filter == TopicPrefixSwitches+"/#" {
			cb = h
		}
	}
	f.mu.Unlock()
	if cb != nil {
		cb(f, &fakeMessage{topic: topic, payload: payload})
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, level+":"+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func newTestClient(t *testing.T) (*Client, *fakePaho, *recordingLogger) {
	t.Helper()
	fake := newFakePaho()
	logger := &recordingLogger{}
	c, err := connect(testConfig(), logger, fake.factory)
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	return c, fake, logger
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_NonBlocking(t *testing.T) {
	c, fake, _ := newTestClient(t)

	if fake.connects != 1 {
		t.Errorf("Connect calls = %d, want 1", fake.connects)
	}
	if got := c.State(); got != StateConnecting {
		t.Errorf("State() = %v, want connecting", got)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true before broker is up")
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Host = ""
	if _, err := connect(cfg, nil, newFakePaho().factory); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("connect() error = %v, want ErrConnectionFailed", err)
	}

	cfg = testConfig()
	cfg.QoS = 3
	if _, err := connect(cfg, nil, newFakePaho().factory); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("connect() error = %v, want ErrInvalidQoS", err)
	}
}

func TestBuildClientOptions_FixedInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.Interval = 7
	cfg.Auth.Username = "hub"
	cfg.Auth.Password = "secret"
	opts := buildClientOptions(cfg)

	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("expected auto reconnect and connect retry enabled")
	}
	if opts.ConnectRetryInterval != 7*time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 7s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 7*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 7s", opts.MaxReconnectInterval)
	}
	if opts.Username != "hub" {
		t.Errorf("Username = %q, want hub", opts.Username)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}

	cfg.Reconnect.Interval = 0
	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.ConnectRetryInterval != defaultReconnectInterval {
		t.Errorf("ConnectRetryInterval = %v, want default", opts.ConnectRetryInterval)
	}
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil {
		t.Error("expected ssl scheme and TLS config")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "hub-1")

	if opts.WillTopic != "switchhub/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Error("LWT should be retained QoS 1")
	}
}

func TestStateTransitions(t *testing.T) {
	c, fake, logger := newTestClient(t)

	var connects, drops int
	c.SetOnConnect(func() { connects++ })
	c.SetOnDisconnect(func(error) { drops++ })

	if err := c.Subscribe("switches/#", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() while connecting error = %v", err)
	}

	fake.brokerUp()
	if got := c.State(); got != StateSubscribed {
		t.Errorf("State() after connect = %v, want subscribed", got)
	}
	if _, ok := fake.subscribed["switches/#"]; !ok {
		t.Error("tracked subscription not applied on connect")
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after connect")
	}

	fake.brokerDown(errors.New("network unreachable"))
	if got := c.State(); got != StateConnecting {
		t.Errorf("State() after drop = %v, want connecting", got)
	}
	if !logger.has("warn:MQTT connection lost") {
		t.Error("connection loss not logged")
	}

	// Reconnect restores the subscription again.
	delete(fake.subscribed, "switches/#")
	fake.brokerUp()
	if _, ok := fake.subscribed["switches/#"]; !ok {
		t.Error("subscription not restored after reconnect")
	}

	if connects != 2 || drops != 1 {
		t.Errorf("callbacks connect=%d drop=%d, want 2/1", connects, drops)
	}
}

func TestRestoreSubscriptions_FailureStaysConnected(t *testing.T) {
	c, fake, logger := newTestClient(t)

	if err := c.Subscribe("switches/#", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	fake.subscribeErr = errors.New("not authorised")
	fake.brokerUp()

	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
	if !logger.has("error:restoring MQTT subscription failed") {
		t.Error("restore failure not logged")
	}
}

func TestClose(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.brokerUp()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !fake.disconnected {
		t.Error("Disconnect not called")
	}
	if c.State() != StateDisconnected || c.IsConnected() {
		t.Error("client still reports connected after Close()")
	}

	// online on connect, offline on close
	if len(fake.published) != 2 {
		t.Errorf("published = %v, want online and offline status", fake.published)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	c, fake, _ := newTestClient(t)

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() while connecting = %v, want ErrNotConnected", err)
	}

	fake.brokerUp()
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() with cancelled ctx = %v", err)
	}
}

// =============================================================================
// Publish / Subscribe Tests
// =============================================================================

func TestPublish(t *testing.T) {
	c, fake, _ := newTestClient(t)

	if err := c.Publish("switches/L1R1_B1", []byte("{}"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() disconnected error = %v, want ErrNotConnected", err)
	}

	fake.brokerUp()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"ok", "switches/L1R1_B1", []byte(`{}`), 1, nil},
		{"empty topic", "", []byte(`{}`), 1, ErrInvalidTopic},
		{"invalid qos", "switches/x", []byte(`{}`), 3, ErrInvalidQoS},
		{"too large", "switches/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _, _ := newTestClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("switches/#", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("switches/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestSubscribe_RefusedWhileConnected(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.brokerUp()
	fake.subscribeErr = errors.New("refused")

	err := c.Subscribe("switches/#", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("switches/#") {
		t.Error("refused subscription should not be tracked")
	}
}

func TestUnsubscribe(t *testing.T) {
	c, fake, _ := newTestClient(t)
	fake.brokerUp()

	noop := func(string, []byte) error { return nil }
	if err := c.Subscribe("switches/#", 1, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Unsubscribe("switches/#"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("switches/#") {
		t.Error("subscription still tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestHandlerPanicAndErrorAreContained(t *testing.T) {
	c, fake, logger := newTestClient(t)
	fake.brokerUp()

	calls := 0
	err := c.Subscribe("switches/#", 1, func(topic string, payload []byte) error {
		calls++
		switch string(payload) {
		case "panic":
			panic("boom")
		case "error":
			return fmt.Errorf("bad payload on %s", topic)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.deliver("switches/L1R1_B1", []byte("panic"))
	fake.deliver("switches/L1R1_B1", []byte("error"))
	fake.deliver("switches/L1R1_B1", []byte("ok"))

	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
	if !logger.has("error:MQTT handler panic recovered") {
		t.Error("panic not logged")
	}
	if !logger.has("warn:MQTT handler returned error") {
		t.Error("handler error not logged")
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.Switch("L15R7_B1"), "switches/L15R7_B1"},
		{topics.AllSwitches(), "switches/#"},
		{topics.SystemStatus(), "switchhub/system/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateSubscribed.String() != "subscribed" || State(42).String() != "state(42)" {
		t.Error("unexpected State.String() output")
	}
}
