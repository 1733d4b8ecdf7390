package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveStream(t *testing.T, h http.Handler, d time.Duration) *httptest.ResponseRecorder {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStreamHandler_WritesFrames(t *testing.T) {
	fa := newFakeApp()
	rec := serveStream(t, NewStreamHandler(fa, 50), 150*time.Millisecond)

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 6\r\n\r\n")
	assert.Contains(t, body, string(fa.jpeg))
	assert.GreaterOrEqual(t, strings.Count(body, "--frame"), 2)
}

func TestStreamHandler_SkipsMissingFrames(t *testing.T) {
	fa := newFakeApp()
	fa.snapErr = errors.New("not running")

	rec := serveStream(t, NewStreamHandler(fa, 50), 100*time.Millisecond)
	assert.NotContains(t, rec.Body.String(), "--frame")
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/stream", nil)
	rec := httptest.NewRecorder()

	NewStreamHandler(newFakeApp(), 0).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ShutdownEndsOpenStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{App: newFakeApp(), StreamFPS: 50})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Wait until the handler is writing frames.
	buf := make([]byte, len("--frame"))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "--frame", string(buf))

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
