package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/hub"
	"github.com/nerrad567/switchhub/internal/infrastructure/config"
	"github.com/nerrad567/switchhub/internal/infrastructure/database"
	"github.com/nerrad567/switchhub/internal/infrastructure/logging"
	"github.com/nerrad567/switchhub/internal/liveclient"
	"github.com/nerrad567/switchhub/internal/store"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startHub runs a real hub behind an httptest server, seeded with one
// stored status.
func startHub(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	st := store.New(store.Config{
		Database:    database.Config{Path: database.MemoryPath},
		MaxAttempts: 1,
	}, logging.Discard())
	t.Cleanup(func() { st.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, st.RecordEvent(context.Background(), device.StatusEvent{
		DeviceName: "L1R1_B1",
		Status:     device.StatusOn,
		Timestamp:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}))

	h := hub.New(hub.ConfigFrom(config.WebSocketConfig{SendBuffer: 64}), st, logging.Discard())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Stop)

	m := hub.NewManager(hub.ManagerConfig{}, h, logging.Discard())
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func TestWatch_PrintsSnapshotLiveAndSummary(t *testing.T) {
	h, url := startHub(t)

	out := &safeBuffer{}
	signals := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watch(ctx, watchOptions{
			Client: liveclient.Config{
				URL:                  url,
				ReconnectDelay:       50 * time.Millisecond,
				MaxReconnectAttempts: 3,
				CheckInterval:        time.Minute,
			},
			Logger:  logging.Discard(),
			Out:     out,
			Signals: signals,
		})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "L1R1_B1      on (snapshot)")
	}, waitFor, tick, out.String())
	assert.Contains(t, out.String(), "# connected to "+url)

	h.Ingest(device.StatusEvent{
		DeviceName: "L1R2_B1",
		Status:     device.StatusOff,
		Timestamp:  time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
	})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "2026-03-01T09:05:00Z L1R2_B1      off\n")
	}, waitFor, tick, out.String())

	signals <- syscall.SIGUSR1
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "# reconnect requested")
	}, waitFor, tick)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("watch did not return after cancel")
	}

	assert.Contains(t, out.String(), "# 2 devices, 1 on")
	assert.Contains(t, out.String(), "#   L1R1_B1      on ")
}

func TestWatch_ReportsDisconnect(t *testing.T) {
	h, url := startHub(t)

	out := &safeBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watch(ctx, watchOptions{ //nolint:errcheck // Returns nil on cancel
		Client: liveclient.Config{
			URL:                  url,
			ReconnectDelay:       time.Hour,
			MaxReconnectAttempts: 1,
			CheckInterval:        time.Minute,
		},
		Logger: logging.Discard(),
		Out:    out,
	})

	require.Eventually(t, func() bool { return h.Count() == 1 }, waitFor, tick)
	for _, sub := range h.Subscribers() {
		h.Remove(sub)
	}

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "# disconnected from "+url)
	}, waitFor, tick, out.String())
}

func TestPrintMessage_SkipsFramesWithoutDevice(t *testing.T) {
	var buf bytes.Buffer
	out := &syncWriter{w: &buf}

	require.NoError(t, printMessage(out, device.Message{}))
	assert.Empty(t, buf.String())

	require.NoError(t, printMessage(out, device.Normalize("L3R4_B1", "ON",
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), "")))
	assert.Equal(t, "2026-03-01T09:00:00Z L3R4_B1      on\n", buf.String())
}
