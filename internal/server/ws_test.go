package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
)

// fakeApp implements Application without a camera.
type fakeApp struct {
	mu          sync.Mutex
	calibration gesture.Calibration
	enabled     bool
	tokens      uint64
	jpeg        []byte
	snapErr     error
	subs        []chan gesture.Event
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		enabled:     true,
		calibration: gesture.Calibration{Sensitivity: gesture.DefaultSensitivity},
		jpeg:        []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9},
	}
}

func (f *fakeApp) Status() app.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return app.Status{Enabled: f.enabled, Camera: app.CameraScanning, FPS: 15, Calibration: f.calibration}
}

func (f *fakeApp) Calibration() gesture.Calibration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calibration
}

func (f *fakeApp) RequestCalibration() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens++
	f.calibration.Pending = true
	return f.tokens
}

func (f *fakeApp) ClearBaseline() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibration.Baseline = nil
	return nil
}

func (f *fakeApp) SetSensitivity(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibration.Sensitivity = v
	return nil
}

func (f *fakeApp) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakeApp) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jpeg, f.snapErr
}

func (f *fakeApp) Subscribe() (<-chan gesture.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan gesture.Event, 8)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeApp) emit(ev gesture.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

func testClient(hub *Hub, name string, buf int) *Client {
	return &Client{hub: hub, send: make(chan []byte, buf), remoteAddr: name}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(slog.Default(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	go hub.Run(ctx)

	c1 := testClient(hub, "c1", 4)
	c2 := testClient(hub, "c2", 4)
	hub.register <- c1
	hub.register <- c2
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	hub.broadcast <- []byte(`{"type":"gesture"}`)

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			assert.JSONEq(t, `{"type":"gesture"}`, string(got))
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_DisconnectsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(slog.Default(), HubConfig{SendBuf: 1, BroadcastBuf: 8})
	go hub.Run(ctx)

	slow := testClient(hub, "slow", 1)
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.broadcast <- []byte(`1`)
	hub.broadcast <- []byte(`2`)
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	// The queued message is still readable; then the channel is closed.
	assert.Equal(t, []byte(`1`), <-slow.send)
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(slog.Default(), HubConfig{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c := testClient(hub, "c", 1)
	hub.register <- c
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Zero(t, hub.Clients())
	_, open := <-c.send
	assert.False(t, open)
}

func TestHub_JoinAndLeaveAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(slog.Default(), HubConfig{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	cancel()
	<-done

	// More clients than the hub queues can hold.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 200; i++ {
			c := testClient(hub, "late", 1)
			assert.False(t, hub.join(c))
			hub.leave(c)
		}
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("join/leave blocked after the hub stopped")
	}
	assert.Zero(t, hub.Clients())
}

func TestEventsHandler_StatusThenGestures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fa := newFakeApp()
	s := New(Config{App: fa})
	s.startBackground(ctx)

	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first struct {
		Type string     `json:"type"`
		Data app.Status `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MessageStatus, first.Type)
	assert.Equal(t, app.CameraScanning, first.Data.Camera)

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	at := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	fa.emit(gesture.Event{Type: gesture.TypeTiltUp, OpennessRatio: 1.27, TiltDelta: 0.11, At: at})

	var msg struct {
		Type string          `json:"type"`
		Ts   time.Time       `json:"ts"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageGesture, msg.Type)
	assert.True(t, at.Equal(msg.Ts))

	var ev gesture.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, gesture.TypeTiltUp, ev.Type)
	assert.InDelta(t, 0.11, ev.TiltDelta, 1e-9)
}
